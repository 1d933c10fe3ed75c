package auth_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"commcore/internal/domain"
	"commcore/internal/log"
	"commcore/internal/protocol/opaque"
	"commcore/internal/services/auth"
	"commcore/internal/store"
)

func opaqueConfig() opaque.Config {
	cfg := opaque.DefaultConfig("commcore-test")
	cfg.KSF = opaque.KSFParams{Time: 1, MemoryKiB: 64, Threads: 1}
	return cfg
}

type fixture struct {
	server *auth.Server
	client *auth.Service
	tokens *auth.Tokens
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	setup, err := opaque.NewServerSetup(opaqueConfig())
	require.NoError(t, err)
	files, err := store.OpenBoltPasswordStore(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = files.Close() })

	backend := log.Discard()
	tokens := auth.NewTokens([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	server := auth.NewServer(setup, files, tokens, time.Minute, backend.GetLogger("auth-server"))
	client := auth.New(server, opaqueConfig(), backend.GetLogger("auth"))
	return fixture{server: server, client: client, tokens: tokens}
}

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	password := []byte("correct horse battery staple")

	require.NoError(t, f.client.Register(ctx, "alice", password))

	creds, err := f.client.Login(ctx, "alice", password)
	require.NoError(t, err)
	require.Equal(t, domain.Username("alice"), creds.Username)
	require.Len(t, creds.SessionKey, 64)

	who, err := f.tokens.Verify(creds.AccessToken)
	require.NoError(t, err)
	require.Equal(t, domain.Username("alice"), who)
	require.Zero(t, f.server.Pending())
}

func TestLoginFailuresLookAlike(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.client.Register(ctx, "alice", []byte("right")))

	_, err := f.client.Login(ctx, "alice", []byte("wrong"))
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = f.client.Login(ctx, "nobody", []byte("right"))
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestRegisterTwiceFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.client.Register(ctx, "alice", []byte("pw")))
	require.ErrorIs(t, f.client.Register(ctx, "alice", []byte("pw2")), auth.ErrUsernameTaken)

	// The original password still works.
	_, err := f.client.Login(ctx, "alice", []byte("pw"))
	require.NoError(t, err)
}

func TestInputValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.ErrorIs(t, f.client.Register(ctx, "", []byte("pw")), auth.ErrInvalidUsername)
	require.ErrorIs(t, f.client.Register(ctx, "alice", nil), auth.ErrEmptyPassword)
	_, err := f.client.Login(ctx, "alice", nil)
	require.ErrorIs(t, err, auth.ErrEmptyPassword)
}

func TestLoginIDIsSingleUseAndExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.client.Register(ctx, "alice", []byte("pw")))

	st, ke1, err := opaque.ClientLoginStart(opaqueConfig(), []byte("pw"))
	require.NoError(t, err)
	resp, err := f.server.LoginStart(ctx, domain.LoginStartRequest{Username: "alice", Request: ke1})
	require.NoError(t, err)
	require.Equal(t, 1, f.server.Pending())

	res, err := st.Finish(resp.Response, opaque.Identifiers{Client: []byte("alice")})
	require.NoError(t, err)
	req := domain.LoginFinishRequest{LoginID: resp.LoginID, Finalization: res.Finalization}
	_, err = f.server.LoginFinish(ctx, req)
	require.NoError(t, err)
	_, err = f.server.LoginFinish(ctx, req)
	require.ErrorIs(t, err, auth.ErrUnknownLogin)
}

func TestTokens(t *testing.T) {
	tokens := auth.NewTokens([]byte("k1k1k1k1k1k1k1k1k1k1k1k1k1k1k1k1"), time.Minute)
	tok, exp, err := tokens.Issue("bob")
	require.NoError(t, err)
	require.True(t, exp.After(time.Now()))

	who, err := tokens.Verify(tok)
	require.NoError(t, err)
	require.Equal(t, domain.Username("bob"), who)

	other := auth.NewTokens([]byte("k2k2k2k2k2k2k2k2k2k2k2k2k2k2k2k2"), time.Minute)
	_, err = other.Verify(tok)
	require.ErrorIs(t, err, auth.ErrInvalidToken)

	expired := auth.NewTokens([]byte("k1k1k1k1k1k1k1k1k1k1k1k1k1k1k1k1"), -time.Minute)
	old, _, err := expired.Issue("bob")
	require.NoError(t, err)
	_, err = tokens.Verify(old)
	require.ErrorIs(t, err, auth.ErrInvalidToken)
}
