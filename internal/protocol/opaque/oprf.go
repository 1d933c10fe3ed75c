package opaque

import (
	"crypto"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"io"

	"github.com/bytemare/hash2curve"
	"github.com/gtank/ristretto255"
)

// contextString is the RFC 9497 OPRF mode 0 context for ristretto255-SHA512.
const contextString = "OPRFV1-\x00-ristretto255-SHA512"

const (
	labelDeriveKeyPair   = "OPAQUE-DeriveKeyPair"
	labelDeriveDHKeyPair = "OPAQUE-DeriveDiffieHellmanKeyPair"
)

var (
	errIdentityElement = errors.New("identity element")
	errDeriveKeyPair   = errors.New("derive key pair: no valid scalar")
)

// expand runs expand_message_xmd (RFC 9380) with SHA-512.
func expand(msg []byte, dst string, length uint) []byte {
	return hash2curve.ExpandXMD(crypto.SHA512, msg, []byte(dst), length)
}

func hashToGroup(input []byte) *ristretto255.Element {
	u := expand(input, "HashToGroup-"+contextString, 64)
	e, _ := ristretto255.NewIdentityElement().SetUniformBytes(u)
	return e
}

func hashToScalar(input []byte, dst string) *ristretto255.Scalar {
	u := expand(input, dst, 64)
	s, _ := ristretto255.NewScalar().SetUniformBytes(u)
	return s
}

func isZeroScalar(s *ristretto255.Scalar) bool {
	return s.Equal(ristretto255.NewScalar()) == 1
}

func isIdentity(e *ristretto255.Element) bool {
	return e.Equal(ristretto255.NewIdentityElement()) == 1
}

// randomScalar draws a non-zero scalar from r.
func randomScalar(r io.Reader) (*ristretto255.Scalar, error) {
	var buf [64]byte
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, protocolError(KindRandomness, err)
		}
		s, _ := ristretto255.NewScalar().SetUniformBytes(buf[:])
		if !isZeroScalar(s) {
			return s, nil
		}
	}
}

// deriveKeyPair is DeriveKeyPair from RFC 9497.
func deriveKeyPair(seed []byte, info string) (*ristretto255.Scalar, *ristretto255.Element, error) {
	in := make([]byte, 0, len(seed)+2+len(info)+1)
	in = append(in, seed...)
	in = append(in, i2osp2(len(info))...)
	in = append(in, info...)
	for counter := 0; counter < 256; counter++ {
		sk := hashToScalar(append(in, byte(counter)), "DeriveKeyPair"+contextString)
		if !isZeroScalar(sk) {
			return sk, ristretto255.NewIdentityElement().ScalarBaseMult(sk), nil
		}
	}
	return nil, nil, errDeriveKeyPair
}

// blind maps input to the group and multiplies by a fresh random blind.
func blind(r io.Reader, input []byte) (*ristretto255.Scalar, *ristretto255.Element, error) {
	b, err := randomScalar(r)
	if err != nil {
		return nil, nil, err
	}
	p := hashToGroup(input)
	if isIdentity(p) {
		return nil, nil, protocolError(KindMalformedMessage, errIdentityElement)
	}
	return b, ristretto255.NewIdentityElement().ScalarMult(b, p), nil
}

func blindEvaluate(key *ristretto255.Scalar, blinded *ristretto255.Element) *ristretto255.Element {
	return ristretto255.NewIdentityElement().ScalarMult(key, blinded)
}

// finalize unblinds the server's evaluation and hashes it with the input.
func finalize(input []byte, b *ristretto255.Scalar, evaluated *ristretto255.Element) []byte {
	inv := ristretto255.NewScalar().Invert(b)
	unblinded := ristretto255.NewIdentityElement().ScalarMult(inv, evaluated).Bytes()

	h := sha512.New()
	h.Write(i2osp2(len(input)))
	h.Write(input)
	h.Write(i2osp2(len(unblinded)))
	h.Write(unblinded)
	h.Write([]byte("Finalize"))
	return h.Sum(nil)
}

func decodeElement(b []byte, kind Kind) (*ristretto255.Element, error) {
	e, err := ristretto255.NewIdentityElement().SetCanonicalBytes(b)
	if err != nil {
		return nil, protocolError(kind, err)
	}
	if isIdentity(e) {
		return nil, protocolError(kind, errIdentityElement)
	}
	return e, nil
}

func i2osp2(n int) []byte {
	return binary.BigEndian.AppendUint16(nil, uint16(n))
}
