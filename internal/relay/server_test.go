package relay_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"commcore/internal/domain"
	"commcore/internal/log"
	"commcore/internal/protocol/opaque"
	"commcore/internal/relay"
	"commcore/internal/services/account"
	"commcore/internal/services/auth"
	"commcore/internal/services/message"
	"commcore/internal/services/session"
	"commcore/internal/store"
)

const passphrase = "Correct-Horse-9"

func opaqueConfig() opaque.Config {
	cfg := opaque.DefaultConfig("commcore-test")
	cfg.KSF = opaque.KSFParams{Time: 1, MemoryKiB: 64, Threads: 1}
	return cfg
}

type testRelay struct {
	hub *relay.Hub
	url string
}

func newTestRelay(t *testing.T) *testRelay {
	t.Helper()
	setup, err := opaque.NewServerSetup(opaqueConfig())
	require.NoError(t, err)
	files, err := store.OpenBoltPasswordStore(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = files.Close() })

	backend := log.Discard()
	tokens := auth.NewTokens([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	hub := relay.NewHub(0)
	srv := relay.NewServer(
		hub,
		auth.NewServer(setup, files, tokens, 0, backend.GetLogger("auth")),
		tokens,
		prometheus.NewRegistry(),
		backend.GetLogger("relay"),
	)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return &testRelay{hub: hub, url: ts.URL}
}

type user struct {
	name     domain.Username
	client   *relay.HTTPClient
	messages *message.Service
}

// signup registers and logs name in over HTTP, then creates and publishes
// a device account through the same client.
func (r *testRelay) signup(t *testing.T, name domain.Username) *user {
	t.Helper()
	ctx := context.Background()
	backend := log.Discard()
	client := relay.NewHTTPClient(r.url)

	authSvc := auth.New(client, opaqueConfig(), backend.GetLogger("auth"))
	require.NoError(t, authSvc.Register(ctx, name, []byte("pw-"+string(name))))
	creds, err := authSvc.Login(ctx, name, []byte("pw-"+string(name)))
	require.NoError(t, err)
	client.SetToken(creds.AccessToken)

	dir := t.TempDir()
	keys := store.NewPickleKeyFileStore(dir).WithScrypt(store.ScryptParams{N: 1 << 10, R: 8, P: 1})
	accounts := account.New(keys, store.NewAccountFileStore(dir), client, backend.GetLogger("account"))
	_, _, err = accounts.CreateAccount(passphrase, domain.AccountProfile{ServerURL: r.url, Username: name})
	require.NoError(t, err)
	_, err = accounts.PublishKeys(ctx, passphrase)
	require.NoError(t, err)

	sessions := session.New(accounts, store.NewSessionFileStore(dir), client, backend.GetLogger("session"))
	return &user{
		name:     name,
		client:   client,
		messages: message.New(accounts, sessions, client, backend.GetLogger("message")),
	}
}

func TestEndToEndOverHTTP(t *testing.T) {
	ctx := context.Background()
	r := newTestRelay(t)
	alice, bob := r.signup(t, "alice"), r.signup(t, "bob")

	require.NoError(t, alice.messages.SendMessage(ctx, passphrase, "alice", "bob", []byte("hello bob")))
	got, err := bob.messages.ReceiveMessage(ctx, passphrase, "bob", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "hello bob", string(got[0].Plaintext))
	require.Equal(t, domain.Username("alice"), got[0].From)

	require.NoError(t, bob.messages.SendMessage(ctx, passphrase, "bob", "alice", []byte("hi alice")))
	got, err = alice.messages.ReceiveMessage(ctx, passphrase, "alice", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "hi alice", string(got[0].Plaintext))

	_, queued := r.hub.Stats()
	require.Zero(t, queued)
}

func TestAuthorization(t *testing.T) {
	ctx := context.Background()
	r := newTestRelay(t)
	alice := r.signup(t, "alice")
	r.signup(t, "bob")

	anon := relay.NewHTTPClient(r.url)
	_, err := anon.ClaimKeys(ctx, "bob")
	require.ErrorIs(t, err, relay.ErrUnauthorized)

	anon.SetToken("not-a-token")
	_, err = anon.FetchMessages(ctx, "bob", 0)
	require.ErrorIs(t, err, relay.ErrUnauthorized)

	// A valid token only opens its own mailbox.
	_, err = alice.client.FetchMessages(ctx, "bob", 0)
	require.ErrorIs(t, err, relay.ErrUnauthorized)
	require.ErrorIs(t, alice.client.AckMessages(ctx, "bob", 0), relay.ErrUnauthorized)

	// And cannot send as someone else.
	err = alice.client.SendMessage(ctx, domain.Envelope{From: "bob", To: "alice", Body: "x"})
	require.ErrorIs(t, err, relay.ErrUnauthorized)

	_, err = alice.client.ClaimKeys(ctx, "nobody")
	require.ErrorIs(t, err, relay.ErrUnknownUser)
}

func TestAuthErrorsCrossTheWire(t *testing.T) {
	ctx := context.Background()
	r := newTestRelay(t)
	r.signup(t, "alice")

	client := relay.NewHTTPClient(r.url)
	svc := auth.New(client, opaqueConfig(), log.Discard().GetLogger("auth"))
	require.ErrorIs(t, svc.Register(ctx, "alice", []byte("other")), auth.ErrUsernameTaken)

	_, err := svc.Login(ctx, "alice", []byte("wrong"))
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = client.LoginFinish(ctx, domain.LoginFinishRequest{LoginID: "nope", Finalization: []byte{1}})
	require.ErrorIs(t, err, auth.ErrUnknownLogin)

	_, err = client.LoginStart(ctx, domain.LoginStartRequest{Username: "alice", Request: []byte{1, 2}})
	require.ErrorIs(t, err, opaque.ErrMalformedMessage)
}

func TestHealthAndMetrics(t *testing.T) {
	r := newTestRelay(t)
	r.signup(t, "alice")

	resp, err := http.Get(r.url + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(r.url + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), `relay_logins_total{result="success"} 1`))
	require.True(t, strings.Contains(string(body), `route="/keys"`))
}
