package crypto

import (
	"crypto/ed25519"
	"crypto/sha512"
	"fmt"
	"io"

	"filippo.io/edwards25519"

	"commcore/internal/domain"
	"commcore/internal/util/memzero"
)

// GenerateEd25519 returns a new Ed25519 key pair. The private half is the
// expanded 64-byte form: clamped scalar followed by the nonce prefix.
func GenerateEd25519(r io.Reader) (priv domain.Ed25519Private, pub domain.Ed25519Public, err error) {
	seed := make([]byte, ed25519.SeedSize)
	defer memzero.Zero(seed)
	if _, err = io.ReadFull(r, seed); err != nil {
		return priv, pub, fmt.Errorf("read ed25519 seed: %w", err)
	}
	h := sha512.Sum512(seed)
	h[0] &= 248
	h[31] &= 63
	h[31] |= 64
	copy(priv[:], h[:])
	memzero.Zero(h[:])
	pub, err = Ed25519PublicFromPrivate(priv)
	return priv, pub, err
}

// Ed25519PublicFromPrivate recomputes A = a·B from an expanded key.
func Ed25519PublicFromPrivate(priv domain.Ed25519Private) (pub domain.Ed25519Public, err error) {
	a, err := edwards25519.NewScalar().SetBytesWithClamping(priv[:32])
	if err != nil {
		return pub, err
	}
	copy(pub[:], new(edwards25519.Point).ScalarBaseMult(a).Bytes())
	return pub, nil
}

// SignEd25519 signs msg with an expanded private key. The output is a
// standard RFC 8032 signature that VerifyEd25519 accepts.
func SignEd25519(priv domain.Ed25519Private, msg []byte) []byte {
	// Scalar setters only fail on wrong input lengths, which are fixed here.
	a, _ := edwards25519.NewScalar().SetBytesWithClamping(priv[:32])
	A := new(edwards25519.Point).ScalarBaseMult(a).Bytes()

	h := sha512.New()
	h.Write(priv[32:])
	h.Write(msg)
	r, _ := edwards25519.NewScalar().SetUniformBytes(h.Sum(nil))
	R := new(edwards25519.Point).ScalarBaseMult(r).Bytes()

	h.Reset()
	h.Write(R)
	h.Write(A)
	h.Write(msg)
	k, _ := edwards25519.NewScalar().SetUniformBytes(h.Sum(nil))
	S := edwards25519.NewScalar().MultiplyAdd(k, a, r)

	sig := make([]byte, 0, ed25519.SignatureSize)
	sig = append(sig, R...)
	sig = append(sig, S.Bytes()...)
	return sig
}

// VerifyEd25519 verifies sig over msg with pub.
func VerifyEd25519(pub domain.Ed25519Public, msg, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub[:]), msg, sig)
}
