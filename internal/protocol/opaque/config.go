package opaque

import (
	"crypto/rand"
	"io"

	"golang.org/x/crypto/argon2"
)

// Sizes for ristretto255-SHA512.
const (
	Nn    = 32 // nonces
	Nseed = 32 // key derivation seeds
	Npk   = 32 // encoded group elements
	Nsk   = 32 // encoded scalars
	Noe   = 32 // OPRF elements
	Nok   = 32 // OPRF key seeds
	Nh    = 64 // hash output
	Nm    = 64 // MAC output
	Nx    = 64 // KDF output; session and export keys have this size

	envelopeSize = Nn + Nm
)

// KSFParams tunes Argon2id.
type KSFParams struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
}

// DefaultKSF follows the OWASP Argon2id baseline.
var DefaultKSF = KSFParams{Time: 2, MemoryKiB: 19 * 1024, Threads: 1}

// Config is shared by both sides of a deployment. Context is bound into
// every handshake transcript, so client and server must agree on it.
type Config struct {
	Context []byte
	KSF     KSFParams
	// Rand supplies nonces and blinds. Nil means crypto/rand.
	Rand io.Reader
}

// DefaultConfig returns a Config with the given context and DefaultKSF.
func DefaultConfig(context string) Config {
	return Config{Context: []byte(context), KSF: DefaultKSF}
}

func (c *Config) rng() io.Reader {
	if c.Rand == nil {
		return rand.Reader
	}
	return c.Rand
}

func (c *Config) randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(c.rng(), b); err != nil {
		return nil, protocolError(KindRandomness, err)
	}
	return b, nil
}

// stretch hardens the OPRF output with Argon2id over an all-zero salt.
func (c *Config) stretch(in []byte) []byte {
	p := c.KSF
	if p.Time == 0 || p.MemoryKiB == 0 || p.Threads == 0 {
		p = DefaultKSF
	}
	var salt [16]byte
	return argon2.IDKey(in, salt[:], p.Time, p.MemoryKiB, p.Threads, Nh)
}
