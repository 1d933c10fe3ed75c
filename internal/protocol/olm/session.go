package olm

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"commcore/internal/crypto"
	"commcore/internal/domain"
	"commcore/internal/protocol/ratchet"
	"commcore/internal/protocol/wire"
	"commcore/internal/protocol/x3dh"
	"commcore/internal/util/memzero"
)

// sessionKeys are the public keys that identify a session: the initiator's
// identity and base keys and the responder's one-time key.
type sessionKeys struct {
	IdentityKey domain.X25519Public `cbor:"1,keyasint"`
	BaseKey     domain.X25519Public `cbor:"2,keyasint"`
	OneTimeKey  domain.X25519Public `cbor:"3,keyasint"`
}

func (k sessionKeys) sessionID() domain.SessionID {
	h := sha256.New()
	h.Write(k.IdentityKey[:])
	h.Write(k.BaseKey[:])
	h.Write(k.OneTimeKey[:])
	return domain.SessionID(crypto.B64(h.Sum(nil)))
}

// Session is one Olm channel between two devices.
type Session struct {
	keys            sessionKeys
	ratchet         *ratchet.State
	receivedMessage bool
	rand            io.Reader
}

// NewOutboundSession starts a session towards a peer, given our identity key
// and the peer's identity and claimed one-time key. r supplies the base and
// ratchet keys; nil means crypto/rand.
func NewOutboundSession(
	identity domain.X25519KeyPair,
	peerIdentity domain.X25519Public,
	peerOneTimeKey domain.X25519Public,
	r io.Reader,
) (*Session, error) {
	if r == nil {
		r = rand.Reader
	}
	base, err := crypto.GenerateX25519(r)
	if err != nil {
		return nil, newError(KindRandomness, err)
	}
	defer memzero.Zero(base.Private[:])
	ratchetKey, err := crypto.GenerateX25519(r)
	if err != nil {
		return nil, newError(KindRandomness, err)
	}

	secret, err := x3dh.OutboundSecret(identity.Private, base.Private, peerIdentity, peerOneTimeKey)
	if err != nil {
		return nil, newError(KindInvalidKeyFormat, err)
	}
	defer memzero.Zero(secret)

	return &Session{
		keys: sessionKeys{
			IdentityKey: identity.Public,
			BaseKey:     base.Public,
			OneTimeKey:  peerOneTimeKey,
		},
		ratchet: ratchet.InitAsAlice(secret, ratchetKey),
		rand:    r,
	}, nil
}

// SessionID returns base64(SHA-256(IK_A || EK_A || OTK_B)). Both ends of a
// session compute the same value.
func (s *Session) SessionID() domain.SessionID { return s.keys.sessionID() }

// HasReceivedMessage reports whether a message from the peer has been
// decrypted, after which Encrypt stops emitting pre-key messages.
func (s *Session) HasReceivedMessage() bool { return s.receivedMessage }

// Matches reports whether a pre-key message belongs to this session.
func (s *Session) Matches(m *PreKeyMessage) bool {
	if m == nil {
		return false
	}
	return m.IdentityKey == s.keys.IdentityKey &&
		m.BaseKey == s.keys.BaseKey &&
		m.OneTimeKey == s.keys.OneTimeKey
}

// Encrypt advances the sending chain and returns the next message.
func (s *Session) Encrypt(plaintext []byte) (*Message, error) {
	body, err := ratchet.Encrypt(s.ratchet, s.rng(), plaintext)
	switch {
	case errors.Is(err, ratchet.ErrNoReceiverChain):
		return nil, newError(KindSerializationError, err)
	case err != nil:
		return nil, newError(KindRandomness, err)
	}
	if s.receivedMessage {
		return &Message{Type: MessageTypeNormal, Body: body}, nil
	}
	pre := wire.PreKeyMessage{
		OneTimeKey:  s.keys.OneTimeKey,
		BaseKey:     s.keys.BaseKey,
		IdentityKey: s.keys.IdentityKey,
		Message:     body,
	}
	return &Message{Type: MessageTypePreKey, Body: pre.Encode()}, nil
}

// Decrypt authenticates and decrypts m. A pre-key message must belong to
// this session. The session is unchanged when Decrypt fails.
func (s *Session) Decrypt(m *Message) ([]byte, error) {
	if m == nil {
		return nil, newError(KindInvalidMessageType, errors.New("nil message"))
	}
	var inner []byte
	switch m.Type {
	case MessageTypeNormal:
		inner = m.Body
	case MessageTypePreKey:
		p, err := m.PreKey()
		if err != nil {
			return nil, err
		}
		if !s.Matches(p) {
			return nil, newError(KindDecryptionFailed, errors.New("pre-key message belongs to another session"))
		}
		inner = p.inner
	default:
		return nil, newError(KindInvalidMessageType, nil)
	}

	pt, err := ratchet.Decrypt(s.ratchet, inner)
	if err != nil {
		return nil, mapRatchetError(err)
	}
	s.receivedMessage = true
	return pt, nil
}

func (s *Session) rng() io.Reader {
	if s.rand == nil {
		return rand.Reader
	}
	return s.rand
}

func mapRatchetError(err error) error {
	if errors.Is(err, ratchet.ErrBadMessage) {
		return newError(KindInvalidMessageType, err)
	}
	return newError(KindDecryptionFailed, err)
}
