package opaque

import (
	"crypto/hmac"
	"errors"

	"github.com/gtank/ristretto255"
)

var errServerMAC = errors.New("server MAC mismatch")

const protocolVersion = "OPAQUEv1-"

type akeKeys struct {
	serverMACKey []byte
	clientMACKey []byte
	sessionKey   []byte
}

func (c *Config) preamble(clientID []byte, k1 *ke1, serverID []byte, cred *credentialResponse, serverNonce, serverKeyshare []byte) []byte {
	return concat(
		[]byte(protocolVersion),
		lengthPrefixed(c.Context),
		lengthPrefixed(clientID),
		k1.serialize(),
		lengthPrefixed(serverID),
		cred.serialize(),
		serverNonce,
		serverKeyshare,
	)
}

func deriveAKEKeys(ikm, preamble []byte) *akeKeys {
	prk := extract(nil, ikm)
	th := hash(preamble)
	handshake := deriveSecret(prk, "HandshakeSecret", th)
	return &akeKeys{
		sessionKey:   deriveSecret(prk, "SessionKey", th),
		serverMACKey: expandLabel(handshake, "ServerMAC", nil, Nh),
		clientMACKey: expandLabel(handshake, "ClientMAC", nil, Nh),
	}
}

type dhPair struct {
	sk *ristretto255.Scalar
	pk *ristretto255.Element
}

// tripleDH concatenates the shared elements in transcript order.
func tripleDH(pairs ...dhPair) []byte {
	out := make([]byte, 0, len(pairs)*Npk)
	for _, p := range pairs {
		out = append(out, ristretto255.NewIdentityElement().ScalarMult(p.sk, p.pk).Bytes()...)
	}
	return out
}

func verifyMAC(key []byte, got []byte, parts ...[]byte) bool {
	return hmac.Equal(got, mac(key, parts...))
}
