package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gopkg.in/op/go-logging.v1"

	"commcore/internal/domain"
	"commcore/internal/protocol/olm"
	"commcore/internal/protocol/x3dh"
)

var (
	// ErrNoSession indicates there is no stored session with the peer.
	ErrNoSession = errors.New("no session with peer; run start-session first")

	// ErrBundleMismatch is returned when the relay hands out keys that the
	// peer did not sign.
	ErrBundleMismatch = errors.New("claimed keys do not match the signed bundle")
)

// AccountKeeper gives scoped access to the unpickled account and the pickle
// key. account.Service implements it.
type AccountKeeper interface {
	WithAccount(
		passphrase string,
		fn func(acc *olm.Account, key olm.PickleKey) (changed bool, err error),
	) error
}

// Service creates, stores and uses Olm sessions.
type Service struct {
	accounts AccountKeeper
	sessions domain.SessionStore
	relay    domain.RelayClient
	log      *logging.Logger
	now      func() time.Time
}

// New constructs a Session Service.
func New(
	accounts AccountKeeper,
	sessions domain.SessionStore,
	relay domain.RelayClient,
	log *logging.Logger,
) *Service {
	return &Service{
		accounts: accounts,
		sessions: sessions,
		relay:    relay,
		log:      log,
		now:      time.Now,
	}
}

// InitiateSession claims one of the peer's one-time keys, checks it against
// the peer's signed bundle, and stores a new outbound session.
func (s *Service) InitiateSession(
	ctx context.Context,
	passphrase string,
	peer domain.Username,
) (domain.SessionRecord, error) {
	claimed, err := s.relay.ClaimKeys(ctx, peer)
	if err != nil {
		return domain.SessionRecord{}, fmt.Errorf("claim keys for %s: %w", peer, err)
	}
	if claimed.Bundle.Username != peer || !claimed.Bundle.Contains(claimed.OneTimeKey) {
		return domain.SessionRecord{}, ErrBundleMismatch
	}
	if err := x3dh.VerifyBundle(claimed.Bundle); err != nil {
		return domain.SessionRecord{}, fmt.Errorf("bundle for %s: %w", peer, err)
	}
	peerKey := claimed.Bundle.IdentityKeys.Curve25519

	var rec domain.SessionRecord
	err = s.accounts.WithAccount(passphrase, func(acc *olm.Account, key olm.PickleKey) (bool, error) {
		sess, err := acc.CreateOutboundSession(peerKey, claimed.OneTimeKey.Key)
		if err != nil {
			return false, err
		}
		rec, err = s.save(peer, peerKey, sess, key, domain.SessionRecord{})
		return false, err
	})
	if err != nil {
		return domain.SessionRecord{}, err
	}
	s.log.Infof("started session %s with %s (fallback key: %v)", rec.SessionID, peer, claimed.Fallback)
	return rec, nil
}

// Encrypt runs plaintext through the most recently used session with peer.
func (s *Service) Encrypt(
	passphrase string,
	peer domain.Username,
	plaintext []byte,
) (int, string, error) {
	var msg *olm.Message
	err := s.accounts.WithAccount(passphrase, func(_ *olm.Account, key olm.PickleKey) (bool, error) {
		recs, err := s.sessions.LoadSessions(peer)
		if err != nil {
			return false, err
		}
		if len(recs) == 0 {
			return false, ErrNoSession
		}
		sess, err := olm.UnpickleSessionAuto(recs[0].Pickle, key[:])
		if err != nil {
			return false, fmt.Errorf("load session %s: %w", recs[0].SessionID, err)
		}
		msg, err = sess.Encrypt(plaintext)
		if err != nil {
			return false, err
		}
		_, err = s.save(peer, recs[0].PeerKey, sess, key, recs[0])
		return false, err
	})
	if err != nil {
		return 0, "", err
	}
	return int(msg.Type), msg.EncodedBody(), nil
}

// Decrypt parses and decrypts a message from peer. A pre-key message goes
// to the stored session it belongs to, or else creates a new inbound
// session and consumes the one-time key. A normal message is tried against
// the peer's sessions, newest first.
func (s *Service) Decrypt(
	passphrase string,
	peer domain.Username,
	senderKey domain.X25519Public,
	messageType int,
	body string,
) (domain.SessionID, []byte, error) {
	msg, err := olm.ParseMessage(messageType, body)
	if err != nil {
		return "", nil, err
	}

	var (
		sid domain.SessionID
		pt  []byte
	)
	err = s.accounts.WithAccount(passphrase, func(acc *olm.Account, key olm.PickleKey) (bool, error) {
		recs, err := s.sessions.LoadSessions(peer)
		if err != nil {
			return false, err
		}

		if msg.Type == olm.MessageTypePreKey {
			pre, err := msg.PreKey()
			if err != nil {
				return false, err
			}
			for _, rec := range recs {
				sess, err := olm.UnpickleSessionAuto(rec.Pickle, key[:])
				if err != nil {
					s.log.Warningf("skipping unreadable session %s: %v", rec.SessionID, err)
					continue
				}
				if !sess.Matches(pre) {
					continue
				}
				if pt, err = sess.Decrypt(msg); err != nil {
					return false, err
				}
				sid = sess.SessionID()
				_, err = s.save(peer, rec.PeerKey, sess, key, rec)
				return false, err
			}

			sess, plain, err := acc.CreateInboundSession(senderKey, pre)
			if err != nil {
				return false, err
			}
			if _, err := s.save(peer, senderKey, sess, key, domain.SessionRecord{}); err != nil {
				return false, err
			}
			sid, pt = sess.SessionID(), plain
			s.log.Infof("accepted new session %s from %s", sid, peer)
			return true, nil
		}

		lastErr := error(ErrNoSession)
		for _, rec := range recs {
			if rec.PeerKey != senderKey {
				continue
			}
			sess, err := olm.UnpickleSessionAuto(rec.Pickle, key[:])
			if err != nil {
				s.log.Warningf("skipping unreadable session %s: %v", rec.SessionID, err)
				continue
			}
			plain, err := sess.Decrypt(msg)
			if err != nil {
				lastErr = err
				continue
			}
			sid, pt = sess.SessionID(), plain
			_, err = s.save(peer, rec.PeerKey, sess, key, rec)
			return false, err
		}
		return false, lastErr
	})
	if err != nil {
		return "", nil, err
	}
	return sid, pt, nil
}

// save pickles sess and upserts its record. prev carries CreatedUTC for
// existing sessions.
func (s *Service) save(
	peer domain.Username,
	peerKey domain.X25519Public,
	sess *olm.Session,
	key olm.PickleKey,
	prev domain.SessionRecord,
) (domain.SessionRecord, error) {
	pickle, err := sess.Pickle(key)
	if err != nil {
		return domain.SessionRecord{}, err
	}
	now := s.now()
	rec := domain.SessionRecord{
		PeerUsername: peer,
		PeerKey:      peerKey,
		SessionID:    sess.SessionID(),
		Pickle:       pickle,
		CreatedUTC:   prev.CreatedUTC,
		LastUsed:     now.UnixNano(),
	}
	if rec.CreatedUTC == 0 {
		rec.CreatedUTC = now.Unix()
	}
	return rec, s.sessions.SaveSession(rec)
}

// Compile-time assertion that Service implements domain.SessionService.
var _ domain.SessionService = (*Service)(nil)
