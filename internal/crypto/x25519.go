package crypto

import (
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"

	"commcore/internal/domain"
	"commcore/internal/util/memzero"
)

// GenerateX25519 returns a fresh Curve25519 key pair read from r.
// The private key is clamped per RFC 7748.
func GenerateX25519(r io.Reader) (kp domain.X25519KeyPair, err error) {
	var priv domain.X25519Private
	if _, err = io.ReadFull(r, priv[:]); err != nil {
		return kp, fmt.Errorf("read x25519 key: %w", err)
	}
	return X25519FromPrivate(priv)
}

// X25519FromPrivate clamps priv and derives the matching public key.
func X25519FromPrivate(priv domain.X25519Private) (kp domain.X25519KeyPair, err error) {
	clamp(&priv)
	pb, err := curve25519.X25519(priv.Slice(), curve25519.Basepoint)
	if err != nil {
		return kp, err
	}
	kp.Private = priv
	copy(kp.Public[:], pb)
	return kp, nil
}

// DH computes X25519 Diffie–Hellman. Low-order peer keys are rejected.
func DH(priv domain.X25519Private, pub domain.X25519Public) (out [32]byte, err error) {
	secret, err := curve25519.X25519(priv.Slice(), pub.Slice())
	if err != nil {
		return out, err
	}
	copy(out[:], secret)
	memzero.Zero(secret)
	return out, nil
}

func clamp(k *domain.X25519Private) {
	kb := k[:]
	kb[0] &= 248
	kb[31] &= 127
	kb[31] |= 64
}
