package olm_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"commcore/internal/crypto"
	"commcore/internal/protocol/olm"
)

var (
	pickleKey = olm.PickleKey(bytes.Repeat([]byte{0x11}, 32))
	otherKey  = olm.PickleKey(bytes.Repeat([]byte{0x22}, 32))
)

func TestSessionPickleRoundTrip(t *testing.T) {
	_, _, out, in := establish(t)
	roundTrip(t, in, out, "reply")
	roundTrip(t, out, in, "again")

	p, err := out.Pickle(pickleKey)
	require.NoError(t, err)
	restored, err := olm.UnpickleSession(p, pickleKey)
	require.NoError(t, err)
	require.Equal(t, out.SessionID(), restored.SessionID())
	require.Equal(t, out.HasReceivedMessage(), restored.HasReceivedMessage())

	// With a live sender chain, encryption is deterministic, so both copies
	// must produce identical messages.
	a, err := out.Encrypt([]byte("same"))
	require.NoError(t, err)
	b, err := restored.Encrypt([]byte("same"))
	require.NoError(t, err)
	require.Equal(t, a, b)

	pt, err := in.Decrypt(b)
	require.NoError(t, err)
	require.Equal(t, "same", string(pt))
}

func TestInboundSessionPickleDecryptsSameStream(t *testing.T) {
	_, _, out, in := establish(t)
	p, err := in.Pickle(pickleKey)
	require.NoError(t, err)
	restored, err := olm.UnpickleSession(p, pickleKey)
	require.NoError(t, err)

	for _, text := range []string{"one", "two", "three"} {
		msg, err := out.Encrypt([]byte(text))
		require.NoError(t, err)
		a, err := in.Decrypt(msg)
		require.NoError(t, err)
		b, err := restored.Decrypt(msg)
		require.NoError(t, err)
		require.Equal(t, a, b)
	}
}

func TestPickleIsNotDeterministic(t *testing.T) {
	_, _, out, _ := establish(t)
	p1, err := out.Pickle(pickleKey)
	require.NoError(t, err)
	p2, err := out.Pickle(pickleKey)
	require.NoError(t, err)
	require.NotEqual(t, p1, p2)
}

func TestUnpickleErrors(t *testing.T) {
	_, _, out, _ := establish(t)
	p, err := out.Pickle(pickleKey)
	require.NoError(t, err)

	_, err = olm.UnpickleSession(p, otherKey)
	require.ErrorIs(t, err, olm.ErrIncorrectPickleKey)

	_, err = olm.UnpickleSession("%%% not base64 %%%", pickleKey)
	require.ErrorIs(t, err, olm.ErrInvalidPickleFormat)

	_, err = olm.UnpickleSession(crypto.B64([]byte{1, 2, 3}), pickleKey)
	require.ErrorIs(t, err, olm.ErrInvalidPickleFormat)

	// An account pickle decrypts fine but is not a session.
	acc := newAccount(t)
	ap, err := acc.Pickle(pickleKey)
	require.NoError(t, err)
	_, err = olm.UnpickleSession(ap, pickleKey)
	require.ErrorIs(t, err, olm.ErrSerialization)
}

func TestPickleTamperDetection(t *testing.T) {
	_, _, out, _ := establish(t)
	p, err := out.Pickle(pickleKey)
	require.NoError(t, err)
	raw, err := crypto.UnB64(p)
	require.NoError(t, err)

	for i := range raw {
		bad := append([]byte(nil), raw...)
		bad[i] ^= 0x01
		_, err := olm.UnpickleSession(crypto.B64(bad), pickleKey)
		require.Error(t, err, "flip at byte %d", i)
	}
}

func TestLegacySessionPickle(t *testing.T) {
	_, _, out, in := establish(t)
	roundTrip(t, in, out, "reply")
	roundTrip(t, out, in, "again")

	secret := bytes.Repeat([]byte{0x33}, 64)
	legacy, err := out.PickleLegacy(secret[:32])
	require.NoError(t, err)

	// A 64-byte secret behaves exactly like its first 32 bytes.
	full, err := olm.UnpickleLegacySession(legacy, secret)
	require.NoError(t, err)
	short, err := olm.UnpickleLegacySession(legacy, secret[:32])
	require.NoError(t, err)
	require.Equal(t, full.SessionID(), short.SessionID())

	a, err := full.Encrypt([]byte("legacy"))
	require.NoError(t, err)
	b, err := short.Encrypt([]byte("legacy"))
	require.NoError(t, err)
	c, err := out.Encrypt([]byte("legacy"))
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Equal(t, c, a)

	_, err = olm.UnpickleLegacySession(legacy, bytes.Repeat([]byte{0x34}, 32))
	require.ErrorIs(t, err, olm.ErrIncorrectPickleKey)
	_, err = olm.UnpickleLegacySession("@@", secret)
	require.ErrorIs(t, err, olm.ErrInvalidPickleFormat)

	raw, err := crypto.UnB64(legacy)
	require.NoError(t, err)
	for i := range raw {
		bad := append([]byte(nil), raw...)
		bad[i] ^= 0x80
		_, err := olm.UnpickleLegacySession(crypto.B64(bad), secret)
		require.Error(t, err, "flip at byte %d", i)
	}
}

func TestUnpickleSessionAuto(t *testing.T) {
	_, _, out, _ := establish(t)
	key := pickleKey[:]

	modern, err := out.Pickle(pickleKey)
	require.NoError(t, err)
	s, err := olm.UnpickleSessionAuto(modern, key)
	require.NoError(t, err)
	require.Equal(t, out.SessionID(), s.SessionID())

	// Legacy data falls back after the modern path fails to authenticate.
	legacy, err := out.PickleLegacy(key)
	require.NoError(t, err)
	s, err = olm.UnpickleSessionAuto(legacy, key)
	require.NoError(t, err)
	require.Equal(t, out.SessionID(), s.SessionID())

	// A 64-byte secret goes straight to the legacy path and is truncated.
	long := append(append([]byte(nil), key...), bytes.Repeat([]byte{0xFF}, 32)...)
	s, err = olm.UnpickleSessionAuto(legacy, long)
	require.NoError(t, err)
	require.Equal(t, out.SessionID(), s.SessionID())

	// Base64 failures are not retried as legacy.
	_, err = olm.UnpickleSessionAuto("not base64 !!", key)
	require.ErrorIs(t, err, olm.ErrInvalidPickleFormat)

	// The wrong key fails on both paths and reports the legacy result.
	_, err = olm.UnpickleSessionAuto(modern, otherKey[:])
	require.ErrorIs(t, err, olm.ErrIncorrectPickleKey)
}

func TestAccountPickleRoundTrip(t *testing.T) {
	acc := newAccount(t)
	require.NoError(t, acc.GenerateOneTimeKeys(5))
	require.NoError(t, acc.GenerateFallbackKey())
	acc.MarkKeysAsPublished()
	require.NoError(t, acc.GenerateOneTimeKeys(2))
	require.NoError(t, acc.GenerateFallbackKey())

	check := func(restored *olm.Account) {
		t.Helper()
		require.Equal(t, acc.IdentityKeys(), restored.IdentityKeys())
		require.Equal(t, acc.OneTimeKeys(), restored.OneTimeKeys())
		require.Equal(t, acc.FallbackKey(), restored.FallbackKey())
		require.Equal(t, acc.Sign([]byte("m")), restored.Sign([]byte("m")))
		require.True(t, restored.ForgetOldFallbackKey())

		// Key IDs continue where the original left off.
		require.NoError(t, restored.GenerateOneTimeKeys(1))
		keys := restored.UnpublishedOneTimeKeys()
		require.Equal(t, olm.KeyIDString(10), keys[len(keys)-1].ID)
	}

	p, err := acc.Pickle(pickleKey)
	require.NoError(t, err)
	restored, err := olm.UnpickleAccount(p, pickleKey)
	require.NoError(t, err)
	check(restored)

	legacy, err := acc.PickleLegacy(pickleKey[:])
	require.NoError(t, err)
	restored, err = olm.UnpickleLegacyAccount(legacy, pickleKey[:])
	require.NoError(t, err)
	check(restored)

	_, err = olm.UnpickleAccount(p, otherKey)
	require.ErrorIs(t, err, olm.ErrIncorrectPickleKey)
}

func TestRestoredAccountCreatesInboundSession(t *testing.T) {
	alice, bob := newAccount(t), newAccount(t)
	require.NoError(t, bob.GenerateOneTimeKeys(1))
	otk := firstOneTimeKey(t, bob)

	p, err := bob.Pickle(pickleKey)
	require.NoError(t, err)
	bob, err = olm.UnpickleAccount(p, pickleKey)
	require.NoError(t, err)

	out, err := alice.CreateOutboundSession(bob.Curve25519Key(), otk)
	require.NoError(t, err)
	msg, err := out.Encrypt([]byte("after restore"))
	require.NoError(t, err)
	pre, err := msg.PreKey()
	require.NoError(t, err)
	_, pt, err := bob.CreateInboundSession(alice.Curve25519Key(), pre)
	require.NoError(t, err)
	require.Equal(t, "after restore", string(pt))
}

func TestPickleKeyFromBytes(t *testing.T) {
	_, err := olm.PickleKeyFromBytes(make([]byte, 31))
	require.ErrorIs(t, err, olm.ErrSerialization)
	k, err := olm.PickleKeyFromBytes(pickleKey[:])
	require.NoError(t, err)
	require.Equal(t, pickleKey, k)
}
