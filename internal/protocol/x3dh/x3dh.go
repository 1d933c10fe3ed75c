package x3dh

import (
	"errors"

	"commcore/internal/crypto"
	"commcore/internal/domain"
	"commcore/internal/util/memzero"
)

// SecretSize is the length of the concatenated DH transcript.
const SecretSize = 3 * 32

var ErrBadBundle = errors.New("x3dh: key bundle signature invalid")

// OutboundSecret derives the shared secret for the initiator.
func OutboundSecret(
	ourIDPriv domain.X25519Private,
	ourBasePriv domain.X25519Private,
	peerIDPub domain.X25519Public,
	peerOneTime domain.X25519Public,
) ([]byte, error) {
	return concat(
		pair{ourIDPriv, peerOneTime},   // DH(IKA, OTKB)
		pair{ourBasePriv, peerIDPub},   // DH(EKA, IKB)
		pair{ourBasePriv, peerOneTime}, // DH(EKA, OTKB)
	)
}

// InboundSecret derives the same secret on the responder side.
func InboundSecret(
	ourIDPriv domain.X25519Private,
	ourOneTimePriv domain.X25519Private,
	peerIDPub domain.X25519Public,
	peerBase domain.X25519Public,
) ([]byte, error) {
	return concat(
		pair{ourOneTimePriv, peerIDPub},
		pair{ourIDPriv, peerBase},
		pair{ourOneTimePriv, peerBase},
	)
}

// VerifyBundle checks the Ed25519 signature a device placed over its keys.
func VerifyBundle(bundle domain.KeyBundle) error {
	if !crypto.VerifyEd25519(bundle.IdentityKeys.Ed25519, bundle.SignedBytes(), bundle.Signature) {
		return ErrBadBundle
	}
	return nil
}

type pair struct {
	priv domain.X25519Private
	pub  domain.X25519Public
}

func concat(pairs ...pair) ([]byte, error) {
	out := make([]byte, 0, SecretSize)
	for _, p := range pairs {
		s, err := crypto.DH(p.priv, p.pub)
		if err != nil {
			memzero.Zero(out)
			return nil, err
		}
		out = append(out, s[:]...)
		memzero.Zero(s[:])
	}
	return out, nil
}
