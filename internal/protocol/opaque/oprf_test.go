package opaque

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExpandVector(t *testing.T) {
	// RFC 9380 K.3, empty message.
	got := expand(nil, "QUUX-V01-CS02-with-expander-SHA512-256", 0x20)
	require.Equal(t, "6b9a7312411d92f921c6f68ca0b6380730a1a4d982c507211a90964c394179ba", hex.EncodeToString(got))
}

func TestOPRFUnblinds(t *testing.T) {
	cfg := Config{}
	key, _, err := deriveKeyPair([]byte("seed"), labelDeriveKeyPair)
	require.NoError(t, err)

	b1, m1, err := blind(cfg.rng(), []byte("input"))
	require.NoError(t, err)
	b2, m2, err := blind(cfg.rng(), []byte("input"))
	require.NoError(t, err)
	require.NotEqual(t, m1.Bytes(), m2.Bytes())

	out1 := finalize([]byte("input"), b1, blindEvaluate(key, m1))
	out2 := finalize([]byte("input"), b2, blindEvaluate(key, m2))
	require.Equal(t, out1, out2)
	require.Len(t, out1, Nh)
}
