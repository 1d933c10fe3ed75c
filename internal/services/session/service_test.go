package session_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"commcore/internal/domain"
	"commcore/internal/log"
	"commcore/internal/protocol/olm"
	"commcore/internal/relay"
	"commcore/internal/services/account"
	"commcore/internal/services/session"
	"commcore/internal/store"
)

const passphrase = "Correct-Horse-9"

type device struct {
	name     domain.Username
	accounts *account.Service
	sessions *session.Service
	store    *store.SessionFileStore
	key      domain.X25519Public
}

func newDevice(t *testing.T, hub *relay.Hub, name domain.Username) *device {
	t.Helper()
	dir := t.TempDir()
	backend := log.Discard()
	keys := store.NewPickleKeyFileStore(dir).WithScrypt(store.ScryptParams{N: 1 << 10, R: 8, P: 1})
	accounts := account.New(keys, store.NewAccountFileStore(dir), hub, backend.GetLogger("account"))
	ids, _, err := accounts.CreateAccount(passphrase, domain.AccountProfile{Username: name})
	require.NoError(t, err)
	_, err = accounts.PublishKeys(context.Background(), passphrase)
	require.NoError(t, err)

	ss := store.NewSessionFileStore(dir)
	return &device{
		name:     name,
		accounts: accounts,
		sessions: session.New(accounts, ss, hub, backend.GetLogger("session")),
		store:    ss,
		key:      ids.Curve25519,
	}
}

func (d *device) send(t *testing.T, to *device, text string) (int, string) {
	t.Helper()
	typ, body, err := d.sessions.Encrypt(passphrase, to.name, []byte(text))
	require.NoError(t, err)
	return typ, body
}

func (d *device) recv(t *testing.T, from *device, typ int, body, want string) domain.SessionID {
	t.Helper()
	sid, pt, err := d.sessions.Decrypt(passphrase, from.name, from.key, typ, body)
	require.NoError(t, err)
	require.Equal(t, want, string(pt))
	return sid
}

func TestConversation(t *testing.T) {
	hub := relay.NewHub(0)
	alice, bob := newDevice(t, hub, "alice"), newDevice(t, hub, "bob")
	before := hub.RemainingKeys("bob")

	rec, err := alice.sessions.InitiateSession(context.Background(), passphrase, "bob")
	require.NoError(t, err)
	require.Equal(t, before-1, hub.RemainingKeys("bob"))

	typ, body := alice.send(t, bob, "hi bob")
	require.Equal(t, int(olm.MessageTypePreKey), typ)
	sid := bob.recv(t, alice, typ, body, "hi bob")
	require.Equal(t, rec.SessionID, sid)

	typ, body = bob.send(t, alice, "hi alice")
	require.Equal(t, int(olm.MessageTypeNormal), typ)
	alice.recv(t, bob, typ, body, "hi alice")

	// Alice has now heard from Bob and stops sending pre-key messages.
	typ, body = alice.send(t, bob, "again")
	require.Equal(t, int(olm.MessageTypeNormal), typ)
	bob.recv(t, alice, typ, body, "again")
}

func TestResentPreKeyMessageReusesSession(t *testing.T) {
	hub := relay.NewHub(0)
	alice, bob := newDevice(t, hub, "alice"), newDevice(t, hub, "bob")
	_, err := alice.sessions.InitiateSession(context.Background(), passphrase, "bob")
	require.NoError(t, err)

	t1, b1 := alice.send(t, bob, "one")
	t2, b2 := alice.send(t, bob, "two")
	require.Equal(t, int(olm.MessageTypePreKey), t2)

	sid1 := bob.recv(t, alice, t1, b1, "one")
	// The second pre-key message names the same one-time key, which is now
	// consumed; it must be routed to the existing session.
	sid2 := bob.recv(t, alice, t2, b2, "two")
	require.Equal(t, sid1, sid2)

	recs, err := bob.store.LoadSessions("alice")
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestEncryptWithoutSession(t *testing.T) {
	hub := relay.NewHub(0)
	alice := newDevice(t, hub, "alice")
	_, _, err := alice.sessions.Encrypt(passphrase, "bob", []byte("x"))
	require.ErrorIs(t, err, session.ErrNoSession)
}

func TestDecryptErrors(t *testing.T) {
	hub := relay.NewHub(0)
	alice, bob := newDevice(t, hub, "alice"), newDevice(t, hub, "bob")
	_, err := alice.sessions.InitiateSession(context.Background(), passphrase, "bob")
	require.NoError(t, err)
	typ, body := alice.send(t, bob, "hello")

	_, _, err = bob.sessions.Decrypt(passphrase, "alice", alice.key, 7, body)
	require.ErrorIs(t, err, olm.ErrInvalidMessageType)

	// A pre-key message claiming a different sender identity is rejected
	// and leaves the one-time key in place.
	_, _, err = bob.sessions.Decrypt(passphrase, "alice", bob.key, typ, body)
	require.ErrorIs(t, err, olm.ErrDecryptionFailed)
	bob.recv(t, alice, typ, body, "hello")

	// A device that never published the one-time key cannot accept it.
	other := newDevice(t, hub, "carol")
	_, _, err = other.sessions.Decrypt(passphrase, "alice", alice.key, typ, body)
	require.ErrorIs(t, err, olm.ErrOneTimeKeyAlreadyUsed)
}

func TestInitiateRejectsForgedBundle(t *testing.T) {
	hub := relay.NewHub(0)
	alice := newDevice(t, hub, "alice")
	newDevice(t, hub, "bob")

	forger := &forgingRelay{Hub: hub}
	svc := session.New(alice.accounts, alice.store, forger, log.Discard().GetLogger("session"))
	_, err := svc.InitiateSession(context.Background(), passphrase, "bob")
	require.ErrorIs(t, err, session.ErrBundleMismatch)
}

// forgingRelay swaps the claimed one-time key for one the peer never signed.
type forgingRelay struct {
	*relay.Hub
}

func (f *forgingRelay) ClaimKeys(ctx context.Context, u domain.Username) (domain.ClaimedKeys, error) {
	c, err := f.Hub.ClaimKeys(ctx, u)
	c.OneTimeKey.Key[0] ^= 0xff
	return c, err
}
