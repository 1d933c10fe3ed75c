package message_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"commcore/internal/domain"
	"commcore/internal/log"
	"commcore/internal/relay"
	"commcore/internal/services/account"
	"commcore/internal/services/message"
	"commcore/internal/services/session"
	"commcore/internal/store"
)

const passphrase = "Correct-Horse-9"

type device struct {
	name     domain.Username
	sessions *session.Service
	messages *message.Service
}

func newDevice(t *testing.T, hub *relay.Hub, name domain.Username) *device {
	t.Helper()
	dir := t.TempDir()
	backend := log.Discard()
	keys := store.NewPickleKeyFileStore(dir).WithScrypt(store.ScryptParams{N: 1 << 10, R: 8, P: 1})
	accounts := account.New(keys, store.NewAccountFileStore(dir), hub, backend.GetLogger("account"))
	_, _, err := accounts.CreateAccount(passphrase, domain.AccountProfile{Username: name})
	require.NoError(t, err)
	_, err = accounts.PublishKeys(context.Background(), passphrase)
	require.NoError(t, err)

	sessions := session.New(accounts, store.NewSessionFileStore(dir), hub, backend.GetLogger("session"))
	return &device{
		name:     name,
		sessions: sessions,
		messages: message.New(accounts, sessions, hub, backend.GetLogger("message")),
	}
}

func texts(msgs []domain.DecryptedMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = string(m.Plaintext)
	}
	return out
}

func TestSendStartsSessionAndReceiveAcks(t *testing.T) {
	ctx := context.Background()
	hub := relay.NewHub(0)
	alice := newDevice(t, hub, "alice")
	bob := newDevice(t, hub, "bob")

	require.NoError(t, alice.messages.SendMessage(ctx, passphrase, "alice", "bob", []byte("one")))
	require.NoError(t, alice.messages.SendMessage(ctx, passphrase, "alice", "bob", []byte("two")))

	got, err := bob.messages.ReceiveMessage(ctx, passphrase, "bob", 0)
	require.NoError(t, err)
	require.Equal(t, []string{"one", "two"}, texts(got))
	require.Equal(t, got[0].SessionID, got[1].SessionID)
	_, queued := hub.Stats()
	require.Zero(t, queued)

	require.NoError(t, bob.messages.SendMessage(ctx, passphrase, "bob", "alice", []byte("back")))
	got, err = alice.messages.ReceiveMessage(ctx, passphrase, "alice", 10)
	require.NoError(t, err)
	require.Equal(t, []string{"back"}, texts(got))
}

func TestReceiveDropsUndecryptable(t *testing.T) {
	ctx := context.Background()
	hub := relay.NewHub(0)
	alice := newDevice(t, hub, "alice")
	bob := newDevice(t, hub, "bob")

	require.NoError(t, hub.SendMessage(ctx, domain.Envelope{From: "mallory", To: "bob", MessageType: 9, Body: "AAAA"}))
	require.NoError(t, alice.messages.SendMessage(ctx, passphrase, "alice", "bob", []byte("real")))

	got, err := bob.messages.ReceiveMessage(ctx, passphrase, "bob", 0)
	require.NoError(t, err)
	require.Equal(t, []string{"real"}, texts(got))
	_, queued := hub.Stats()
	require.Zero(t, queued)
}

// flakyDecrypt fails every Decrypt with a transient error.
type flakyDecrypt struct {
	domain.SessionService
}

var errDisk = errors.New("disk on fire")

func (flakyDecrypt) Decrypt(string, domain.Username, domain.X25519Public, int, string) (domain.SessionID, []byte, error) {
	return "", nil, errDisk
}

func TestReceiveStopsOnTransientError(t *testing.T) {
	ctx := context.Background()
	hub := relay.NewHub(0)
	alice := newDevice(t, hub, "alice")
	bob := newDevice(t, hub, "bob")
	require.NoError(t, alice.messages.SendMessage(ctx, passphrase, "alice", "bob", []byte("kept")))

	broken := message.New(nil, flakyDecrypt{bob.sessions}, hub, log.Discard().GetLogger("message"))
	_, err := broken.ReceiveMessage(ctx, passphrase, "bob", 0)
	require.ErrorIs(t, err, errDisk)
	_, queued := hub.Stats()
	require.Equal(t, 1, queued)

	got, err := bob.messages.ReceiveMessage(ctx, passphrase, "bob", 0)
	require.NoError(t, err)
	require.Equal(t, []string{"kept"}, texts(got))
}

func TestSendToUnknownPeer(t *testing.T) {
	hub := relay.NewHub(0)
	alice := newDevice(t, hub, "alice")
	err := alice.messages.SendMessage(context.Background(), passphrase, "alice", "nobody", []byte("x"))
	require.ErrorIs(t, err, relay.ErrUnknownUser)
}
