package olm

import (
	"fmt"

	"commcore/internal/crypto"
	"commcore/internal/domain"
	"commcore/internal/protocol/wire"
)

// MessageType tells the receiver how to read a message body.
type MessageType int

const (
	MessageTypePreKey MessageType = 0
	MessageTypeNormal MessageType = 1
)

// Message is an Olm message as it travels: a type and a binary body.
type Message struct {
	Type MessageType
	Body []byte
}

// EncodedBody returns the body as unpadded base64.
func (m *Message) EncodedBody() string { return crypto.B64(m.Body) }

// PreKeyMessage is a decoded type 0 message.
type PreKeyMessage struct {
	OneTimeKey  domain.X25519Public
	BaseKey     domain.X25519Public
	IdentityKey domain.X25519Public
	inner       []byte
	ratchetKey  domain.X25519Public
}

// ParseMessage decodes a message received as (type, base64 body). The body
// must have the shape its type promises.
func ParseMessage(messageType int, body string) (*Message, error) {
	if messageType != int(MessageTypePreKey) && messageType != int(MessageTypeNormal) {
		return nil, newError(KindInvalidMessageType, fmt.Errorf("unknown type %d", messageType))
	}
	raw, err := crypto.UnB64(body)
	if err != nil {
		return nil, newError(KindInvalidMessageType, err)
	}
	m := &Message{Type: MessageType(messageType), Body: raw}
	if m.Type == MessageTypePreKey {
		if _, err := m.PreKey(); err != nil {
			return nil, err
		}
		return m, nil
	}
	if _, _, _, err := wire.DecodeMessage(raw); err != nil {
		return nil, newError(KindInvalidMessageType, err)
	}
	return m, nil
}

// PreKey decodes a type 0 message, including its inner message header.
func (m *Message) PreKey() (*PreKeyMessage, error) {
	if m.Type != MessageTypePreKey {
		return nil, newError(KindInvalidMessageType, fmt.Errorf("type %d is not a pre-key message", m.Type))
	}
	p, err := wire.DecodePreKeyMessage(m.Body)
	if err != nil {
		return nil, newError(KindInvalidMessageType, err)
	}
	inner, _, _, err := wire.DecodeMessage(p.Message)
	if err != nil {
		return nil, newError(KindInvalidMessageType, err)
	}
	return &PreKeyMessage{
		OneTimeKey:  p.OneTimeKey,
		BaseKey:     p.BaseKey,
		IdentityKey: p.IdentityKey,
		inner:       p.Message,
		ratchetKey:  inner.RatchetKey,
	}, nil
}

// SessionID returns the ID of the session this message would establish.
func (p *PreKeyMessage) SessionID() domain.SessionID {
	return sessionKeys{IdentityKey: p.IdentityKey, BaseKey: p.BaseKey, OneTimeKey: p.OneTimeKey}.sessionID()
}

// ParseCurve25519Key decodes an unpadded base64 Curve25519 public key.
func ParseCurve25519Key(s string) (domain.X25519Public, error) {
	var k domain.X25519Public
	raw, err := crypto.UnB64(s)
	if err != nil {
		return k, newError(KindInvalidKeyFormat, err)
	}
	if len(raw) != len(k) {
		return k, newError(KindInvalidKeyFormat, fmt.Errorf("key is %d bytes", len(raw)))
	}
	copy(k[:], raw)
	return k, nil
}
