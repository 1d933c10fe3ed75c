package olm_test

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"commcore/internal/crypto"
	"commcore/internal/domain"
	"commcore/internal/protocol/olm"
)

func newAccount(t *testing.T) *olm.Account {
	t.Helper()
	acc, err := olm.NewAccount()
	require.NoError(t, err)
	return acc
}

func firstOneTimeKey(t *testing.T, acc *olm.Account) domain.X25519Public {
	t.Helper()
	keys := acc.UnpublishedOneTimeKeys()
	require.NotEmpty(t, keys)
	return keys[0].Key
}

// establish runs the handshake and the first exchange so both sides hold a
// session. It returns Alice's outbound and Bob's inbound session.
func establish(t *testing.T) (alice, bob *olm.Account, out, in *olm.Session) {
	t.Helper()
	alice, bob = newAccount(t), newAccount(t)
	require.NoError(t, bob.GenerateOneTimeKeys(1))

	out, err := alice.CreateOutboundSession(bob.Curve25519Key(), firstOneTimeKey(t, bob))
	require.NoError(t, err)

	msg, err := out.Encrypt([]byte("hello bob"))
	require.NoError(t, err)
	require.Equal(t, olm.MessageTypePreKey, msg.Type)

	pre, err := msg.PreKey()
	require.NoError(t, err)
	in, pt, err := bob.CreateInboundSession(alice.Curve25519Key(), pre)
	require.NoError(t, err)
	require.Equal(t, "hello bob", string(pt))
	return alice, bob, out, in
}

func roundTrip(t *testing.T, from, to *olm.Session, text string) *olm.Message {
	t.Helper()
	msg, err := from.Encrypt([]byte(text))
	require.NoError(t, err)
	pt, err := to.Decrypt(msg)
	require.NoError(t, err)
	require.Equal(t, text, string(pt))
	return msg
}

func TestSessionLifecycle(t *testing.T) {
	_, _, out, in := establish(t)
	require.Equal(t, out.SessionID(), in.SessionID())
	require.True(t, in.HasReceivedMessage())
	require.False(t, out.HasReceivedMessage())

	// Alice keeps sending pre-key messages until she hears back.
	msg := roundTrip(t, out, in, "still pre-key")
	require.Equal(t, olm.MessageTypePreKey, msg.Type)

	msg = roundTrip(t, in, out, "reply")
	require.Equal(t, olm.MessageTypeNormal, msg.Type)
	require.True(t, out.HasReceivedMessage())

	msg = roundTrip(t, out, in, "now normal")
	require.Equal(t, olm.MessageTypeNormal, msg.Type)

	for i := 0; i < 5; i++ {
		roundTrip(t, out, in, "ping")
		roundTrip(t, in, out, "pong")
	}
}

func TestMessageTextForm(t *testing.T) {
	_, _, out, in := establish(t)
	msg, err := in.Encrypt([]byte("over the wire"))
	require.NoError(t, err)

	body := msg.EncodedBody()
	require.NotContains(t, body, "=")
	parsed, err := olm.ParseMessage(int(msg.Type), body)
	require.NoError(t, err)
	pt, err := out.Decrypt(parsed)
	require.NoError(t, err)
	require.Equal(t, "over the wire", string(pt))
}

func TestParseMessageRejectsBadTypes(t *testing.T) {
	_, _, out, in := establish(t)
	pre, err := out.Encrypt([]byte("a"))
	require.NoError(t, err)
	normal, err := in.Encrypt([]byte("b"))
	require.NoError(t, err)

	_, err = olm.ParseMessage(2, normal.EncodedBody())
	require.ErrorIs(t, err, olm.ErrInvalidMessageType)
	_, err = olm.ParseMessage(-1, normal.EncodedBody())
	require.ErrorIs(t, err, olm.ErrInvalidMessageType)

	// Body shape must match the declared type.
	_, err = olm.ParseMessage(int(olm.MessageTypeNormal), pre.EncodedBody())
	require.ErrorIs(t, err, olm.ErrInvalidMessageType)
	_, err = olm.ParseMessage(int(olm.MessageTypePreKey), normal.EncodedBody())
	require.ErrorIs(t, err, olm.ErrInvalidMessageType)

	_, err = olm.ParseMessage(int(olm.MessageTypeNormal), "!!not base64!!")
	require.ErrorIs(t, err, olm.ErrInvalidMessageType)

	// A normal message handed to Decrypt with the pre-key type fails too.
	_, err = in.Decrypt(&olm.Message{Type: olm.MessageTypePreKey, Body: normal.Body})
	require.ErrorIs(t, err, olm.ErrInvalidMessageType)
}

func TestCreateInboundRequiresPreKeyMessage(t *testing.T) {
	_, _, out, in := establish(t)
	roundTrip(t, in, out, "reply")
	normal, err := out.Encrypt([]byte("normal"))
	require.NoError(t, err)
	require.Equal(t, olm.MessageTypeNormal, normal.Type)

	_, err = normal.PreKey()
	require.ErrorIs(t, err, olm.ErrInvalidMessageType)
	require.Equal(t, olm.KindInvalidMessageType, olm.KindOf(err))
}

func TestOneTimeKeyConsumedOnce(t *testing.T) {
	alice, bob := newAccount(t), newAccount(t)
	require.NoError(t, bob.GenerateOneTimeKeys(2))
	require.Len(t, bob.OneTimeKeys(), 2)

	out, err := alice.CreateOutboundSession(bob.Curve25519Key(), firstOneTimeKey(t, bob))
	require.NoError(t, err)
	msg, err := out.Encrypt([]byte("first"))
	require.NoError(t, err)
	pre, err := msg.PreKey()
	require.NoError(t, err)

	_, _, err = bob.CreateInboundSession(alice.Curve25519Key(), pre)
	require.NoError(t, err)
	require.Len(t, bob.OneTimeKeys(), 1)

	_, _, err = bob.CreateInboundSession(alice.Curve25519Key(), pre)
	require.ErrorIs(t, err, olm.ErrOneTimeKeyAlreadyUsed)
}

func TestFailedInboundKeepsOneTimeKey(t *testing.T) {
	alice, bob := newAccount(t), newAccount(t)
	require.NoError(t, bob.GenerateOneTimeKeys(1))

	out, err := alice.CreateOutboundSession(bob.Curve25519Key(), firstOneTimeKey(t, bob))
	require.NoError(t, err)
	msg, err := out.Encrypt([]byte("first"))
	require.NoError(t, err)

	tampered := &olm.Message{Type: msg.Type, Body: append([]byte(nil), msg.Body...)}
	tampered.Body[len(tampered.Body)-1] ^= 0x80
	pre, err := tampered.PreKey()
	require.NoError(t, err)
	_, _, err = bob.CreateInboundSession(alice.Curve25519Key(), pre)
	require.ErrorIs(t, err, olm.ErrDecryptionFailed)
	require.Len(t, bob.OneTimeKeys(), 1)

	// Wrong claimed identity is refused without consuming the key either.
	pre, err = msg.PreKey()
	require.NoError(t, err)
	_, _, err = bob.CreateInboundSession(bob.Curve25519Key(), pre)
	require.Error(t, err)
	require.Len(t, bob.OneTimeKeys(), 1)

	_, pt, err := bob.CreateInboundSession(alice.Curve25519Key(), pre)
	require.NoError(t, err)
	require.Equal(t, "first", string(pt))
}

func TestFallbackKeyIsReusable(t *testing.T) {
	bob := newAccount(t)
	require.NoError(t, bob.GenerateFallbackKey())
	fallback, ok := bob.CurrentFallbackKey()
	require.True(t, ok)
	require.Len(t, bob.FallbackKey(), 1)

	for i := 0; i < 2; i++ {
		alice := newAccount(t)
		out, err := alice.CreateOutboundSession(bob.Curve25519Key(), fallback.Key)
		require.NoError(t, err)
		msg, err := out.Encrypt([]byte("via fallback"))
		require.NoError(t, err)
		pre, err := msg.PreKey()
		require.NoError(t, err)
		_, pt, err := bob.CreateInboundSession(alice.Curve25519Key(), pre)
		require.NoError(t, err)
		require.Equal(t, "via fallback", string(pt))
	}

	// The previous fallback key keeps working until it is forgotten.
	require.NoError(t, bob.GenerateFallbackKey())
	alice := newAccount(t)
	out, err := alice.CreateOutboundSession(bob.Curve25519Key(), fallback.Key)
	require.NoError(t, err)
	msg, err := out.Encrypt([]byte("old fallback"))
	require.NoError(t, err)
	pre, err := msg.PreKey()
	require.NoError(t, err)

	require.True(t, bob.ForgetOldFallbackKey())
	require.False(t, bob.ForgetOldFallbackKey())
	_, _, err = bob.CreateInboundSession(alice.Curve25519Key(), pre)
	require.ErrorIs(t, err, olm.ErrOneTimeKeyAlreadyUsed)
}

func TestMatchesRoutesPreKeyMessages(t *testing.T) {
	alice, bob, out, in := establish(t)

	// A second pre-key message from the same outbound session belongs to the
	// existing inbound session rather than a new one.
	msg, err := out.Encrypt([]byte("second"))
	require.NoError(t, err)
	require.Equal(t, olm.MessageTypePreKey, msg.Type)
	pre, err := msg.PreKey()
	require.NoError(t, err)
	require.True(t, in.Matches(pre))
	require.Equal(t, in.SessionID(), pre.SessionID())

	pt, err := in.Decrypt(msg)
	require.NoError(t, err)
	require.Equal(t, "second", string(pt))

	// Creating a new session from it would fail: the key is gone.
	_, _, err = bob.CreateInboundSession(alice.Curve25519Key(), pre)
	require.ErrorIs(t, err, olm.ErrOneTimeKeyAlreadyUsed)

	// A session from another initiator does not match.
	require.NoError(t, bob.GenerateOneTimeKeys(1))
	carol := newAccount(t)
	other, err := carol.CreateOutboundSession(bob.Curve25519Key(), firstOneTimeKey(t, bob))
	require.NoError(t, err)
	otherMsg, err := other.Encrypt([]byte("carol"))
	require.NoError(t, err)
	otherPre, err := otherMsg.PreKey()
	require.NoError(t, err)
	require.False(t, in.Matches(otherPre))
	require.False(t, in.Matches(nil))

	_, err = in.Decrypt(otherMsg)
	require.ErrorIs(t, err, olm.ErrDecryptionFailed)
}

func TestTamperedCiphertextFails(t *testing.T) {
	_, _, out, in := establish(t)
	roundTrip(t, in, out, "reply")
	msg, err := out.Encrypt([]byte("integrity"))
	require.NoError(t, err)

	for i := 1; i < len(msg.Body); i++ {
		bad := &olm.Message{Type: msg.Type, Body: append([]byte(nil), msg.Body...)}
		bad.Body[i] ^= 0x04
		pt, err := in.Decrypt(bad)
		require.Error(t, err, "flip at byte %d", i)
		require.Nil(t, pt)
	}

	pt, err := in.Decrypt(msg)
	require.NoError(t, err)
	require.Equal(t, "integrity", string(pt))
}

func TestOneTimeKeyPool(t *testing.T) {
	acc := newAccount(t)
	require.NoError(t, acc.GenerateOneTimeKeys(10))
	require.Len(t, acc.OneTimeKeys(), 10)

	acc.MarkKeysAsPublished()
	require.Empty(t, acc.OneTimeKeys())

	require.NoError(t, acc.GenerateOneTimeKeys(olm.MaxOneTimeKeys))
	keys := acc.UnpublishedOneTimeKeys()
	require.Len(t, keys, olm.MaxOneTimeKeys)
	// IDs keep increasing across batches.
	require.Equal(t, olm.KeyIDString(11), keys[0].ID)
	require.Equal(t, domain.KeyID("AAAACw"), keys[0].ID)
}

func TestSignVerifies(t *testing.T) {
	acc := newAccount(t)
	sig := acc.Sign([]byte("payload"))
	require.True(t, crypto.VerifyEd25519(acc.Ed25519Key(), []byte("payload"), sig))
	require.Equal(t, acc.Ed25519Key(), acc.IdentityKeys().Ed25519)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestRandomnessFailureSurfaces(t *testing.T) {
	_, err := olm.NewAccountFrom(failingReader{})
	require.ErrorIs(t, err, olm.ErrRandomness)

	acc, err := olm.NewAccountFrom(rand.Reader)
	require.NoError(t, err)
	_, err = olm.NewOutboundSession(domain.X25519KeyPair{}, acc.Curve25519Key(), acc.Curve25519Key(), failingReader{})
	require.ErrorIs(t, err, olm.ErrRandomness)
}

func TestParseCurve25519Key(t *testing.T) {
	acc := newAccount(t)
	k, err := olm.ParseCurve25519Key(acc.Curve25519Key().String())
	require.NoError(t, err)
	require.Equal(t, acc.Curve25519Key(), k)

	_, err = olm.ParseCurve25519Key(crypto.B64(bytes.Repeat([]byte{1}, 31)))
	require.ErrorIs(t, err, olm.ErrInvalidKeyFormat)
	_, err = olm.ParseCurve25519Key("***")
	require.ErrorIs(t, err, olm.ErrInvalidKeyFormat)
}

func TestGenerateOneTimeKeysBounds(t *testing.T) {
	acc := newAccount(t)
	require.ErrorIs(t, acc.GenerateOneTimeKeys(-1), olm.ErrSerialization)
	require.Empty(t, acc.UnpublishedOneTimeKeys())

	require.NoError(t, acc.GenerateOneTimeKeys(1<<30))
	require.Len(t, acc.UnpublishedOneTimeKeys(), olm.MaxOneTimeKeys)
}

func TestDecryptNilMessage(t *testing.T) {
	_, _, out, in := establish(t)
	_, err := out.Decrypt(nil)
	require.ErrorIs(t, err, olm.ErrInvalidMessageType)
	_, err = in.Decrypt(nil)
	require.ErrorIs(t, err, olm.ErrInvalidMessageType)
}
