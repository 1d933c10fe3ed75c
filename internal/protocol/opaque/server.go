package opaque

import (
	"crypto/hmac"
	"errors"
	"fmt"

	"github.com/gtank/ristretto255"
)

const serverSetupSize = Nh + Nsk

// ServerSetup is the per-deployment secret: the OPRF seed and the AKE
// keypair. Rotating it invalidates every stored password file.
type ServerSetup struct {
	cfg      Config
	oprfSeed []byte
	sk       *ristretto255.Scalar
	pk       *ristretto255.Element
}

// NewServerSetup draws a fresh seed and keypair from cfg.Rand.
func NewServerSetup(cfg Config) (*ServerSetup, error) {
	seed, err := cfg.randomBytes(Nh)
	if err != nil {
		return nil, err
	}
	sk, err := randomScalar(cfg.rng())
	if err != nil {
		return nil, err
	}
	return &ServerSetup{
		cfg:      cfg,
		oprfSeed: seed,
		sk:       sk,
		pk:       ristretto255.NewIdentityElement().ScalarBaseMult(sk),
	}, nil
}

// UnmarshalServerSetup restores a setup written by MarshalBinary.
func UnmarshalServerSetup(cfg Config, data []byte) (*ServerSetup, error) {
	if len(data) != serverSetupSize {
		return nil, protocolError(KindMalformedMessage, fmt.Errorf("server setup is %d bytes, want %d", len(data), serverSetupSize))
	}
	sk, err := ristretto255.NewScalar().SetCanonicalBytes(data[Nh:])
	if err != nil {
		return nil, protocolError(KindMalformedMessage, err)
	}
	if isZeroScalar(sk) {
		return nil, protocolError(KindMalformedMessage, errors.New("zero server key"))
	}
	return &ServerSetup{
		cfg:      cfg,
		oprfSeed: append([]byte(nil), data[:Nh]...),
		sk:       sk,
		pk:       ristretto255.NewIdentityElement().ScalarBaseMult(sk),
	}, nil
}

// MarshalBinary returns oprf_seed || server_private_key.
func (s *ServerSetup) MarshalBinary() ([]byte, error) {
	return concat(s.oprfSeed, s.sk.Bytes()), nil
}

// PublicKey returns the encoded AKE public key.
func (s *ServerSetup) PublicKey() []byte { return s.pk.Bytes() }

func (s *ServerSetup) oprfKey(credentialID []byte) (*ristretto255.Scalar, error) {
	seed := expandString(s.oprfSeed, credentialID, "OprfKey", Nok)
	k, _, err := deriveKeyPair(seed, labelDeriveKeyPair)
	return k, err
}

// fakeRecord stands in for a missing password file. It is a pure function
// of the setup and credential ID, so repeated logins for an unknown user
// look consistent.
func (s *ServerSetup) fakeRecord(credentialID []byte) (*registrationRecord, error) {
	seed := expandString(s.oprfSeed, credentialID, "FakeClientKey", Nseed)
	_, pk, err := deriveKeyPair(seed, labelDeriveDHKeyPair)
	if err != nil {
		return nil, err
	}
	return &registrationRecord{
		ClientPublicKey: pk.Bytes(),
		MaskingKey:      expandString(s.oprfSeed, credentialID, "FakeMaskingKey", Nh),
		Envelope:        make([]byte, envelopeSize),
	}, nil
}

// ServerRegistrationStart evaluates the client's blinded password under the
// OPRF key bound to credentialID.
func ServerRegistrationStart(setup *ServerSetup, request, credentialID []byte) ([]byte, error) {
	req, err := unmarshalRegistrationRequest(request)
	if err != nil {
		return nil, err
	}
	blinded, err := decodeElement(req.BlindedMessage, KindMalformedMessage)
	if err != nil {
		return nil, err
	}
	k, err := setup.oprfKey(credentialID)
	if err != nil {
		return nil, err
	}
	resp := &registrationResponse{
		EvaluatedMessage: blindEvaluate(k, blinded).Bytes(),
		ServerPublicKey:  setup.PublicKey(),
	}
	return resp.marshal(), nil
}

// ServerRegistrationFinish validates the upload and returns the password
// file to persist for the user.
func ServerRegistrationFinish(upload []byte) ([]byte, error) {
	rec, err := unmarshalRegistrationRecord(upload, tagRegistrationRecord)
	if err != nil {
		return nil, err
	}
	if _, err := decodeElement(rec.ClientPublicKey, KindInvalidPublicKey); err != nil {
		return nil, err
	}
	return rec.marshal(tagPasswordFile), nil
}

// ServerLogin holds the expected client MAC and the session key until KE3
// arrives.
type ServerLogin struct {
	expectedClientMAC []byte
	sessionKey        []byte
	consumed          bool
}

// ServerLoginStart answers KE1. passwordFile may be nil for an unknown user;
// the KE2 produced then has the same shape and the login fails at Finish.
func ServerLoginStart(setup *ServerSetup, passwordFile, ke1Raw, credentialID []byte, ids Identifiers) (*ServerLogin, []byte, error) {
	k1, err := unmarshalKE1(ke1Raw)
	if err != nil {
		return nil, nil, err
	}
	blinded, err := decodeElement(k1.BlindedMessage, KindMalformedMessage)
	if err != nil {
		return nil, nil, err
	}
	clientKeyshare, err := decodeElement(k1.ClientKeyshare, KindInvalidPublicKey)
	if err != nil {
		return nil, nil, err
	}

	var rec *registrationRecord
	if passwordFile == nil {
		rec, err = setup.fakeRecord(credentialID)
	} else {
		rec, err = unmarshalRegistrationRecord(passwordFile, tagPasswordFile)
	}
	if err != nil {
		return nil, nil, err
	}
	clientPK, err := decodeElement(rec.ClientPublicKey, KindInvalidPublicKey)
	if err != nil {
		return nil, nil, err
	}

	cfg := &setup.cfg
	k, err := setup.oprfKey(credentialID)
	if err != nil {
		return nil, nil, err
	}
	maskingNonce, err := cfg.randomBytes(Nn)
	if err != nil {
		return nil, nil, err
	}
	serverPK := setup.PublicKey()
	pad := expandString(rec.MaskingKey, maskingNonce, "CredentialResponsePad", Npk+envelopeSize)
	cred := credentialResponse{
		EvaluatedMessage: blindEvaluate(k, blinded).Bytes(),
		MaskingNonce:     maskingNonce,
		MaskedResponse:   xor(pad, concat(serverPK, rec.Envelope)),
	}

	serverNonce, err := cfg.randomBytes(Nn)
	if err != nil {
		return nil, nil, err
	}
	seed, err := cfg.randomBytes(Nseed)
	if err != nil {
		return nil, nil, err
	}
	serverSecret, serverKeyshare, err := deriveKeyPair(seed, labelDeriveDHKeyPair)
	if err != nil {
		return nil, nil, err
	}

	clientID, serverID := ids.resolve(rec.ClientPublicKey, serverPK)
	preamble := cfg.preamble(clientID, k1, serverID, &cred, serverNonce, serverKeyshare.Bytes())
	ikm := tripleDH(
		dhPair{serverSecret, clientKeyshare},
		dhPair{setup.sk, clientKeyshare},
		dhPair{serverSecret, clientPK},
	)
	ak := deriveAKEKeys(ikm, preamble)

	serverMAC := mac(ak.serverMACKey, hash(preamble))
	k2 := &ke2{
		credentialResponse: cred,
		ServerNonce:        serverNonce,
		ServerKeyshare:     serverKeyshare.Bytes(),
		ServerMAC:          serverMAC,
	}
	st := &ServerLogin{
		expectedClientMAC: mac(ak.clientMACKey, hash(preamble, serverMAC)),
		sessionKey:        ak.sessionKey,
	}
	return st, k2.marshal(), nil
}

// Finish consumes the state and returns the session key if KE3
// authenticates. Like the client side, every failure, an unparseable KE3
// included, is a bare ErrInvalidLogin.
func (s *ServerLogin) Finish(ke3Raw []byte) ([]byte, error) {
	if s.consumed {
		return nil, ErrStateConsumed
	}
	s.consumed = true

	k3, err := unmarshalKE3(ke3Raw)
	if err != nil {
		return nil, protocolError(KindInvalidLogin, nil)
	}
	if !hmac.Equal(k3.ClientMAC, s.expectedClientMAC) {
		return nil, protocolError(KindInvalidLogin, nil)
	}
	return s.sessionKey, nil
}
