package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"commcore/internal/domain"
	"commcore/internal/protocol/x3dh"
)

var (
	// ErrUnknownUser is returned for users that never uploaded keys.
	ErrUnknownUser = errors.New("relay: unknown user")

	// ErrNoKeys is returned when a user has no one-time or fallback key left.
	ErrNoKeys = errors.New("relay: no keys available")

	// ErrIdentityChanged is returned when an upload carries different
	// identity keys than the ones already on file.
	ErrIdentityChanged = errors.New("relay: identity keys changed")

	// ErrMailboxFull is returned when a recipient's queue is at capacity.
	ErrMailboxFull = errors.New("relay: mailbox full")

	// ErrBadAck is returned when acking more messages than are queued.
	ErrBadAck = errors.New("relay: ack count exceeds queue")
)

// DefaultMailboxSize caps each user's queue.
const DefaultMailboxSize = 1000

type claimable struct {
	key    domain.OneTimeKey
	bundle *domain.KeyBundle
}

type directoryEntry struct {
	latest    *domain.KeyBundle
	remaining []claimable
}

// Hub is the relay's in-memory key directory and mailbox. Each one-time
// key is remembered with the signed bundle it arrived in, so a claim can
// always be checked against the peer's signature.
type Hub struct {
	mu        sync.Mutex
	directory map[domain.Username]*directoryEntry
	mailboxes map[domain.Username][]domain.Envelope
	maxQueue  int
	now       func() time.Time
}

// NewHub returns an empty hub. maxQueue of zero means DefaultMailboxSize.
func NewHub(maxQueue int) *Hub {
	if maxQueue <= 0 {
		maxQueue = DefaultMailboxSize
	}
	return &Hub{
		directory: make(map[domain.Username]*directoryEntry),
		mailboxes: make(map[domain.Username][]domain.Envelope),
		maxQueue:  maxQueue,
		now:       time.Now,
	}
}

// UploadKeys verifies and stores a bundle. New one-time keys join the end
// of the queue; keys already queued are not duplicated.
func (h *Hub) UploadKeys(ctx context.Context, bundle domain.KeyBundle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := x3dh.VerifyBundle(bundle); err != nil {
		return err
	}
	b := bundle
	b.OneTimeKeys = append([]domain.OneTimeKey(nil), bundle.OneTimeKeys...)

	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.directory[b.Username]
	if !ok {
		e = &directoryEntry{}
		h.directory[b.Username] = e
	} else if e.latest.IdentityKeys != b.IdentityKeys {
		return ErrIdentityChanged
	}
	seen := make(map[domain.KeyID]bool, len(e.remaining))
	for _, c := range e.remaining {
		seen[c.key.ID] = true
	}
	for _, k := range b.OneTimeKeys {
		if !seen[k.ID] {
			e.remaining = append(e.remaining, claimable{key: k, bundle: &b})
			seen[k.ID] = true
		}
	}
	e.latest = &b
	return nil
}

// ClaimKeys hands out the oldest one-time key, or the fallback key once
// the pool is empty.
func (h *Hub) ClaimKeys(ctx context.Context, username domain.Username) (domain.ClaimedKeys, error) {
	if err := ctx.Err(); err != nil {
		return domain.ClaimedKeys{}, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.directory[username]
	if !ok {
		return domain.ClaimedKeys{}, ErrUnknownUser
	}
	if len(e.remaining) > 0 {
		c := e.remaining[0]
		e.remaining = e.remaining[1:]
		return domain.ClaimedKeys{Bundle: *c.bundle, OneTimeKey: c.key}, nil
	}
	if e.latest.FallbackKey != nil {
		return domain.ClaimedKeys{Bundle: *e.latest, OneTimeKey: *e.latest.FallbackKey, Fallback: true}, nil
	}
	return domain.ClaimedKeys{}, ErrNoKeys
}

// SendMessage queues env for env.To.
func (h *Hub) SendMessage(ctx context.Context, env domain.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.directory[env.To]; !ok {
		return ErrUnknownUser
	}
	if len(h.mailboxes[env.To]) >= h.maxQueue {
		return ErrMailboxFull
	}
	if env.Timestamp == 0 {
		env.Timestamp = h.now().Unix()
	}
	h.mailboxes[env.To] = append(h.mailboxes[env.To], env)
	return nil
}

// FetchMessages returns up to limit queued envelopes without removing
// them. limit <= 0 returns everything.
func (h *Hub) FetchMessages(ctx context.Context, username domain.Username, limit int) ([]domain.Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	q := h.mailboxes[username]
	if limit <= 0 || limit > len(q) {
		limit = len(q)
	}
	return append([]domain.Envelope(nil), q[:limit]...), nil
}

// AckMessages removes the first count envelopes from the queue.
func (h *Hub) AckMessages(ctx context.Context, username domain.Username, count int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	q := h.mailboxes[username]
	if count < 0 || count > len(q) {
		return ErrBadAck
	}
	h.mailboxes[username] = append([]domain.Envelope(nil), q[count:]...)
	return nil
}

// Stats reports the number of known users and queued envelopes.
func (h *Hub) Stats() (users, queued int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, q := range h.mailboxes {
		queued += len(q)
	}
	return len(h.directory), queued
}

// RemainingKeys reports how many one-time keys username has left.
func (h *Hub) RemainingKeys(username domain.Username) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e, ok := h.directory[username]; ok {
		return len(e.remaining)
	}
	return 0
}

// Compile-time assertion that Hub implements domain.RelayClient.
var _ domain.RelayClient = (*Hub)(nil)
