package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"commcore/internal/crypto"
	"commcore/internal/domain"
)

// Version is the only Olm protocol version understood here.
const Version byte = 3

const (
	wireVarint = 0
	wireBytes  = 2

	keyLength = 32
)

var (
	ErrTooShort   = errors.New("wire: message too short")
	ErrVersion    = errors.New("wire: unsupported protocol version")
	ErrMalformed  = errors.New("wire: malformed field")
	ErrMissing    = errors.New("wire: required field missing")
	ErrKeyLength  = errors.New("wire: key has wrong length")
	ErrFieldShape = errors.New("wire: field has unexpected wire type")
)

// Message is a normal Olm message.
type Message struct {
	RatchetKey domain.X25519Public
	ChainIndex uint32
	Ciphertext []byte
}

// Encode returns the message bytes that the MAC covers, without the MAC.
func (m Message) Encode() []byte {
	out := make([]byte, 0, 1+2+keyLength+1+5+1+5+len(m.Ciphertext)+crypto.MACLength)
	out = append(out, Version)
	out = appendBytes(out, 1, m.RatchetKey[:])
	out = appendVarint(out, 2, uint64(m.ChainIndex))
	out = appendBytes(out, 4, m.Ciphertext)
	return out
}

// DecodeMessage parses a normal message including its trailing MAC. It
// returns the message, the authenticated prefix and the MAC.
func DecodeMessage(raw []byte) (msg Message, authenticated, mac []byte, err error) {
	if len(raw) < 1+crypto.MACLength {
		return msg, nil, nil, ErrTooShort
	}
	if raw[0] != Version {
		return msg, nil, nil, ErrVersion
	}
	authenticated = raw[:len(raw)-crypto.MACLength]
	mac = raw[len(raw)-crypto.MACLength:]

	var haveKey, haveIndex, haveCT bool
	err = walk(authenticated[1:], func(field int, wt int, v uint64, b []byte) error {
		switch field {
		case 1:
			if wt != wireBytes {
				return ErrFieldShape
			}
			if len(b) != keyLength {
				return ErrKeyLength
			}
			copy(msg.RatchetKey[:], b)
			haveKey = true
		case 2:
			if wt != wireVarint {
				return ErrFieldShape
			}
			if v > 0xFFFFFFFF {
				return ErrMalformed
			}
			msg.ChainIndex = uint32(v)
			haveIndex = true
		case 4:
			if wt != wireBytes {
				return ErrFieldShape
			}
			msg.Ciphertext = append([]byte(nil), b...)
			haveCT = true
		}
		return nil
	})
	if err != nil {
		return Message{}, nil, nil, err
	}
	if !haveKey || !haveIndex || !haveCT {
		return Message{}, nil, nil, ErrMissing
	}
	return msg, authenticated, mac, nil
}

// PreKeyMessage is the first message of an Olm session.
type PreKeyMessage struct {
	OneTimeKey  domain.X25519Public
	BaseKey     domain.X25519Public
	IdentityKey domain.X25519Public
	// Message is the encoded inner normal message including its MAC.
	Message []byte
}

// Encode returns the full pre-key message bytes.
func (p PreKeyMessage) Encode() []byte {
	out := make([]byte, 0, 1+3*(2+keyLength)+1+5+len(p.Message))
	out = append(out, Version)
	out = appendBytes(out, 1, p.OneTimeKey[:])
	out = appendBytes(out, 2, p.BaseKey[:])
	out = appendBytes(out, 3, p.IdentityKey[:])
	out = appendBytes(out, 4, p.Message)
	return out
}

// DecodePreKeyMessage parses a pre-key message. The inner message is not
// decoded here.
func DecodePreKeyMessage(raw []byte) (PreKeyMessage, error) {
	var p PreKeyMessage
	if len(raw) < 1 {
		return p, ErrTooShort
	}
	if raw[0] != Version {
		return p, ErrVersion
	}
	var seen [5]bool
	err := walk(raw[1:], func(field int, wt int, _ uint64, b []byte) error {
		var dst *domain.X25519Public
		switch field {
		case 1:
			dst = &p.OneTimeKey
		case 2:
			dst = &p.BaseKey
		case 3:
			dst = &p.IdentityKey
		case 4:
			if wt != wireBytes {
				return ErrFieldShape
			}
			p.Message = append([]byte(nil), b...)
			seen[4] = true
			return nil
		default:
			return nil
		}
		if wt != wireBytes {
			return ErrFieldShape
		}
		if len(b) != keyLength {
			return ErrKeyLength
		}
		copy(dst[:], b)
		seen[field] = true
		return nil
	})
	if err != nil {
		return PreKeyMessage{}, err
	}
	if !seen[1] || !seen[2] || !seen[3] || !seen[4] {
		return PreKeyMessage{}, ErrMissing
	}
	return p, nil
}

// walk iterates over tagged fields, handing varints and byte strings to fn.
func walk(buf []byte, fn func(field, wireType int, v uint64, b []byte) error) error {
	for len(buf) > 0 {
		tag, n := binary.Uvarint(buf)
		if n <= 0 {
			return ErrMalformed
		}
		buf = buf[n:]
		field, wt := int(tag>>3), int(tag&7)
		switch wt {
		case wireVarint:
			v, n := binary.Uvarint(buf)
			if n <= 0 {
				return ErrMalformed
			}
			buf = buf[n:]
			if err := fn(field, wt, v, nil); err != nil {
				return err
			}
		case wireBytes:
			l, n := binary.Uvarint(buf)
			if n <= 0 || l > uint64(len(buf)-n) {
				return ErrMalformed
			}
			b := buf[n : n+int(l)]
			buf = buf[n+int(l):]
			if err := fn(field, wt, 0, b); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: wire type %d", ErrMalformed, wt)
		}
	}
	return nil
}

func appendVarint(out []byte, field int, v uint64) []byte {
	out = binary.AppendUvarint(out, uint64(field<<3|wireVarint))
	return binary.AppendUvarint(out, v)
}

func appendBytes(out []byte, field int, b []byte) []byte {
	out = binary.AppendUvarint(out, uint64(field<<3|wireBytes))
	out = binary.AppendUvarint(out, uint64(len(b)))
	return append(out, b...)
}
