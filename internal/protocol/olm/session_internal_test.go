package olm

import (
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/require"

	"commcore/internal/domain"
	"commcore/internal/protocol/ratchet"
)

func TestEncryptErrorKinds(t *testing.T) {
	s := &Session{ratchet: &ratchet.State{}}
	_, err := s.Encrypt([]byte("x"))
	require.ErrorIs(t, err, ErrSerialization)
	require.ErrorIs(t, err, ratchet.ErrNoReceiverChain)

	var peer domain.X25519Public
	peer[0] = 9
	s = &Session{
		ratchet: ratchet.InitAsBob(make([]byte, 96), peer),
		rand:    iotest.ErrReader(iotest.ErrTimeout),
	}
	_, err = s.Encrypt([]byte("x"))
	require.ErrorIs(t, err, ErrRandomness)
}
