package relay_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"commcore/internal/domain"
	"commcore/internal/protocol/olm"
	"commcore/internal/relay"
	"commcore/internal/services/account"
)

func newBundle(t *testing.T, user domain.Username, otks int) (*olm.Account, domain.KeyBundle) {
	t.Helper()
	acc, err := olm.NewAccount()
	require.NoError(t, err)
	require.NoError(t, acc.GenerateFallbackKey())
	require.NoError(t, acc.GenerateOneTimeKeys(otks))
	return acc, account.BuildBundle(acc, user)
}

func TestHubClaimOrderAndFallback(t *testing.T) {
	ctx := context.Background()
	hub := relay.NewHub(0)
	_, bundle := newBundle(t, "bob", 2)
	require.NoError(t, hub.UploadKeys(ctx, bundle))
	require.Equal(t, 2, hub.RemainingKeys("bob"))

	for i := 0; i < 2; i++ {
		c, err := hub.ClaimKeys(ctx, "bob")
		require.NoError(t, err)
		require.False(t, c.Fallback)
		require.Equal(t, bundle.OneTimeKeys[i], c.OneTimeKey)
		require.True(t, c.Bundle.Contains(c.OneTimeKey))
	}

	c, err := hub.ClaimKeys(ctx, "bob")
	require.NoError(t, err)
	require.True(t, c.Fallback)
	require.Equal(t, *bundle.FallbackKey, c.OneTimeKey)

	_, err = hub.ClaimKeys(ctx, "nobody")
	require.ErrorIs(t, err, relay.ErrUnknownUser)
}

func TestHubUploadChecks(t *testing.T) {
	ctx := context.Background()
	hub := relay.NewHub(0)
	acc, bundle := newBundle(t, "bob", 3)

	forged := bundle
	forged.Username = "mallory"
	require.Error(t, hub.UploadKeys(ctx, forged))

	require.NoError(t, hub.UploadKeys(ctx, bundle))
	// Re-uploading the same keys does not queue them twice.
	require.NoError(t, hub.UploadKeys(ctx, bundle))
	require.Equal(t, 3, hub.RemainingKeys("bob"))

	// Claims keep the bundle the key was signed in after a newer upload.
	acc.MarkKeysAsPublished()
	require.NoError(t, acc.GenerateOneTimeKeys(1))
	require.NoError(t, hub.UploadKeys(ctx, account.BuildBundle(acc, "bob")))
	require.Equal(t, 4, hub.RemainingKeys("bob"))
	c, err := hub.ClaimKeys(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, bundle.Signature, c.Bundle.Signature)

	_, other := newBundle(t, "bob", 1)
	require.ErrorIs(t, hub.UploadKeys(ctx, other), relay.ErrIdentityChanged)
}

func TestHubMailbox(t *testing.T) {
	ctx := context.Background()
	hub := relay.NewHub(2)
	_, bundle := newBundle(t, "bob", 1)
	require.NoError(t, hub.UploadKeys(ctx, bundle))

	require.ErrorIs(t, hub.SendMessage(ctx, domain.Envelope{To: "nobody"}), relay.ErrUnknownUser)
	require.NoError(t, hub.SendMessage(ctx, domain.Envelope{From: "alice", To: "bob", Body: "1"}))
	require.NoError(t, hub.SendMessage(ctx, domain.Envelope{From: "alice", To: "bob", Body: "2"}))
	require.ErrorIs(t, hub.SendMessage(ctx, domain.Envelope{From: "alice", To: "bob", Body: "3"}), relay.ErrMailboxFull)

	envs, err := hub.FetchMessages(ctx, "bob", 1)
	require.NoError(t, err)
	require.Len(t, envs, 1)
	require.Equal(t, "1", envs[0].Body)
	require.NotZero(t, envs[0].Timestamp)

	require.ErrorIs(t, hub.AckMessages(ctx, "bob", 3), relay.ErrBadAck)
	require.NoError(t, hub.AckMessages(ctx, "bob", 1))
	envs, err = hub.FetchMessages(ctx, "bob", 0)
	require.NoError(t, err)
	require.Len(t, envs, 1)
	require.Equal(t, "2", envs[0].Body)
}
