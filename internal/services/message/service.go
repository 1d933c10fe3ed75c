package message

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/op/go-logging.v1"

	"commcore/internal/domain"
	"commcore/internal/protocol/olm"
	"commcore/internal/services/session"
)

// Service sends and receives messages over the relay through Olm sessions.
//
//   - Send: encrypt with the newest session to the peer, starting one first
//     if there is none, and post the envelope.
//   - Receive: fetch envelopes, decrypt them in order, then ack the ones
//     that were handled.
type Service struct {
	accounts domain.AccountService
	sessions domain.SessionService
	relay    domain.RelayClient
	log      *logging.Logger
}

// New constructs a Message Service.
func New(
	accounts domain.AccountService,
	sessions domain.SessionService,
	relay domain.RelayClient,
	log *logging.Logger,
) *Service {
	return &Service{
		accounts: accounts,
		sessions: sessions,
		relay:    relay,
		log:      log,
	}
}

// SendMessage encrypts plaintext for to and posts it. The first message to
// a peer claims one of their one-time keys and goes out as a pre-key
// message.
func (s *Service) SendMessage(
	ctx context.Context,
	passphrase string,
	from domain.Username,
	to domain.Username,
	plaintext []byte,
) error {
	ids, err := s.accounts.IdentityKeys(passphrase)
	if err != nil {
		return err
	}

	typ, body, err := s.sessions.Encrypt(passphrase, to, plaintext)
	if errors.Is(err, session.ErrNoSession) {
		if _, err = s.sessions.InitiateSession(ctx, passphrase, to); err != nil {
			return err
		}
		typ, body, err = s.sessions.Encrypt(passphrase, to, plaintext)
	}
	if err != nil {
		return err
	}

	return s.relay.SendMessage(ctx, domain.Envelope{
		From:        from,
		To:          to,
		SenderKey:   ids.Curve25519,
		MessageType: typ,
		Body:        body,
	})
}

// ReceiveMessage fetches up to limit pending messages and decrypts them.
//
// Envelopes that can never decrypt are dropped with a warning so they do not
// block the mailbox. Any other failure stops processing; the envelopes
// handled so far are acked and the rest stay queued.
func (s *Service) ReceiveMessage(
	ctx context.Context,
	passphrase string,
	me domain.Username,
	limit int,
) ([]domain.DecryptedMessage, error) {
	envs, err := s.relay.FetchMessages(ctx, me, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.DecryptedMessage, 0, len(envs))
	processed := 0

	var runErr error
	for i, env := range envs {
		sid, plain, err := s.sessions.Decrypt(passphrase, env.From, env.SenderKey, env.MessageType, env.Body)
		if err != nil {
			if !permanent(err) {
				runErr = fmt.Errorf("decrypt from %q: %w", env.From, err)
				break
			}
			s.log.Warningf("dropping message %d from %s: %v", i, env.From, err)
			processed = i + 1
			continue
		}

		out = append(out, domain.DecryptedMessage{
			From:      env.From,
			To:        env.To,
			SessionID: sid,
			Plaintext: plain,
			Timestamp: env.Timestamp,
		})
		processed = i + 1
	}

	if processed > 0 {
		if err := s.relay.AckMessages(ctx, me, processed); err != nil {
			return out, fmt.Errorf("ack %d messages: %w", processed, err)
		}
	}
	return out, runErr
}

func permanent(err error) bool {
	if errors.Is(err, session.ErrNoSession) {
		return true
	}
	switch olm.KindOf(err) {
	case olm.KindInvalidMessageType, olm.KindDecryptionFailed, olm.KindOneTimeKeyAlreadyUsed:
		return true
	}
	return false
}

// Compile-time assertion that Service implements domain.MessageService.
var _ domain.MessageService = (*Service)(nil)
