package opaque

import (
	"github.com/gtank/ristretto255"

	"commcore/internal/util/memzero"
)

// ClientRegistration holds the blind between request and finish.
type ClientRegistration struct {
	cfg      Config
	blind    *ristretto255.Scalar
	consumed bool
}

// RegistrationResult is the client's output from registration. Upload goes
// to the server; ExportKey never leaves the device.
type RegistrationResult struct {
	Upload    []byte
	ExportKey []byte
}

// ClientRegistrationStart blinds password and returns the request for
// ServerRegistrationStart.
func ClientRegistrationStart(cfg Config, password []byte) (*ClientRegistration, []byte, error) {
	b, blinded, err := blind(cfg.rng(), password)
	if err != nil {
		return nil, nil, err
	}
	req := &registrationRequest{BlindedMessage: blinded.Bytes()}
	return &ClientRegistration{cfg: cfg, blind: b}, req.marshal(), nil
}

// Finish consumes the state and builds the upload from the server's response.
func (s *ClientRegistration) Finish(password, response []byte, ids Identifiers) (*RegistrationResult, error) {
	if s.consumed {
		return nil, ErrStateConsumed
	}
	s.consumed = true

	resp, err := unmarshalRegistrationResponse(response)
	if err != nil {
		return nil, err
	}
	evaluated, err := decodeElement(resp.EvaluatedMessage, KindMalformedMessage)
	if err != nil {
		return nil, err
	}
	if _, err := decodeElement(resp.ServerPublicKey, KindInvalidPublicKey); err != nil {
		return nil, err
	}

	rp := s.cfg.randomizedPassword(password, s.blind, evaluated)
	defer memzero.Zero(rp)

	envelope, keys, maskingKey, err := s.cfg.storeEnvelope(rp, resp.ServerPublicKey, ids)
	if err != nil {
		return nil, err
	}
	memzero.Zero(keys.authKey)
	rec := &registrationRecord{
		ClientPublicKey: keys.clientPK,
		MaskingKey:      maskingKey,
		Envelope:        envelope,
	}
	return &RegistrationResult{
		Upload:    rec.marshal(tagRegistrationRecord),
		ExportKey: keys.exportKey,
	}, nil
}

func (c *Config) randomizedPassword(password []byte, b *ristretto255.Scalar, evaluated *ristretto255.Element) []byte {
	out := finalize(password, b, evaluated)
	stretched := c.stretch(out)
	rp := extract(nil, concat(out, stretched))
	memzero.Zero(out)
	memzero.Zero(stretched)
	return rp
}

// ClientLogin holds the password and ephemeral secrets between KE1 and KE3.
type ClientLogin struct {
	cfg          Config
	password     []byte
	blind        *ristretto255.Scalar
	clientSecret *ristretto255.Scalar
	ke1          *ke1
	consumed     bool
}

// LoginResult is the client's output from a successful login.
type LoginResult struct {
	// Finalization is KE3, sent to the server.
	Finalization []byte
	SessionKey   []byte
	ExportKey    []byte
}

// ClientLoginStart returns the state and KE1. The password is copied into
// the state and wiped once Finish runs.
func ClientLoginStart(cfg Config, password []byte) (*ClientLogin, []byte, error) {
	b, blinded, err := blind(cfg.rng(), password)
	if err != nil {
		return nil, nil, err
	}
	nonce, err := cfg.randomBytes(Nn)
	if err != nil {
		return nil, nil, err
	}
	seed, err := cfg.randomBytes(Nseed)
	if err != nil {
		return nil, nil, err
	}
	sk, pk, err := deriveKeyPair(seed, labelDeriveDHKeyPair)
	memzero.Zero(seed)
	if err != nil {
		return nil, nil, err
	}
	k1 := &ke1{BlindedMessage: blinded.Bytes(), ClientNonce: nonce, ClientKeyshare: pk.Bytes()}
	st := &ClientLogin{
		cfg:          cfg,
		password:     append([]byte(nil), password...),
		blind:        b,
		clientSecret: sk,
		ke1:          k1,
	}
	return st, k1.marshal(), nil
}

// Finish consumes the state. Every failure, including a malformed KE2,
// is reported as a bare ErrInvalidLogin so the cause does not leak.
func (s *ClientLogin) Finish(ke2Raw []byte, ids Identifiers) (*LoginResult, error) {
	if s.consumed {
		return nil, ErrStateConsumed
	}
	s.consumed = true
	defer memzero.Zero(s.password)

	res, err := s.finish(ke2Raw, ids)
	if err != nil {
		return nil, protocolError(KindInvalidLogin, nil)
	}
	return res, nil
}

func (s *ClientLogin) finish(ke2Raw []byte, ids Identifiers) (*LoginResult, error) {
	k2, err := unmarshalKE2(ke2Raw)
	if err != nil {
		return nil, err
	}
	evaluated, err := decodeElement(k2.EvaluatedMessage, KindMalformedMessage)
	if err != nil {
		return nil, err
	}
	serverKeyshare, err := decodeElement(k2.ServerKeyshare, KindInvalidPublicKey)
	if err != nil {
		return nil, err
	}

	rp := s.cfg.randomizedPassword(s.password, s.blind, evaluated)
	defer memzero.Zero(rp)

	maskingKey := expand(rp, []byte("MaskingKey"), Nh)
	pad := expandString(maskingKey, k2.MaskingNonce, "CredentialResponsePad", Npk+envelopeSize)
	plain := xor(pad, k2.MaskedResponse)
	serverPKBytes, envelope := plain[:Npk], plain[Npk:]
	serverPK, err := decodeElement(serverPKBytes, KindInvalidPublicKey)
	if err != nil {
		return nil, err
	}

	keys, err := recoverEnvelope(rp, serverPKBytes, envelope, ids)
	if err != nil {
		return nil, err
	}
	clientID, serverID := ids.resolve(keys.clientPK, serverPKBytes)
	preamble := s.cfg.preamble(clientID, s.ke1, serverID, &k2.credentialResponse, k2.ServerNonce, k2.ServerKeyshare)

	ikm := tripleDH(
		dhPair{s.clientSecret, serverKeyshare},
		dhPair{s.clientSecret, serverPK},
		dhPair{keys.clientSK, serverKeyshare},
	)
	ak := deriveAKEKeys(ikm, preamble)
	memzero.Zero(ikm)

	if !verifyMAC(ak.serverMACKey, k2.ServerMAC, hash(preamble)) {
		return nil, errServerMAC
	}
	clientMAC := mac(ak.clientMACKey, hash(preamble, k2.ServerMAC))
	return &LoginResult{
		Finalization: (&ke3{ClientMAC: clientMAC}).marshal(),
		SessionKey:   ak.sessionKey,
		ExportKey:    keys.exportKey,
	}, nil
}
