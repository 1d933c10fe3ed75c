package types

import "encoding/base64"

// Key sizes shared by the primitives in this module.
const (
	Curve25519KeySize     = 32
	Ed25519PublicKeySize  = 32
	Ed25519PrivateKeySize = 64
)

type (
	// X25519Public is a Curve25519 public key.
	X25519Public [Curve25519KeySize]byte
	// X25519Private is a Curve25519 private scalar.
	X25519Private [Curve25519KeySize]byte
	// Ed25519Public is an Ed25519 verification key.
	Ed25519Public [Ed25519PublicKeySize]byte
	// Ed25519Private is an expanded Ed25519 signing key: the clamped scalar
	// followed by the nonce prefix, as SHA-512 derives them from the seed.
	Ed25519Private [Ed25519PrivateKeySize]byte
)

// X25519KeyPair is a Curve25519 private key and its public half.
type X25519KeyPair struct {
	Public  X25519Public  `json:"public"`
	Private X25519Private `json:"private"`
}

func (p X25519Public) Slice() []byte  { return p[:] }
func (k X25519Private) Slice() []byte { return k[:] }

// String returns the unpadded base64 used on the wire.
func (p X25519Public) String() string { return base64.RawStdEncoding.EncodeToString(p[:]) }

// String returns the unpadded base64 used on the wire.
func (p Ed25519Public) String() string { return base64.RawStdEncoding.EncodeToString(p[:]) }
