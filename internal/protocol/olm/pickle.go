package olm

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/chacha20poly1305"

	"commcore/internal/crypto"
	"commcore/internal/domain"
	"commcore/internal/protocol/ratchet"
	"commcore/internal/util/memzero"
)

// PickleKey encrypts pickles. It is always exactly 32 bytes.
type PickleKey [32]byte

// PickleKeyFromBytes checks the length of a stored key.
func PickleKeyFromBytes(b []byte) (PickleKey, error) {
	var k PickleKey
	if len(b) != len(k) {
		return k, newError(KindSerializationError, fmt.Errorf("pickle key is %d bytes, want %d", len(b), len(k)))
	}
	copy(k[:], b)
	return k, nil
}

// pickleVersion is the first byte of every pickle and is authenticated.
const pickleVersion byte = 1

type sessionPickle struct {
	Keys            sessionKeys    `cbor:"1,keyasint"`
	Ratchet         *ratchet.State `cbor:"2,keyasint"`
	ReceivedMessage bool           `cbor:"3,keyasint"`
}

type accountPickle struct {
	SigningKey   domain.Ed25519Private `cbor:"1,keyasint"`
	IdentityKey  domain.X25519Private  `cbor:"2,keyasint"`
	OneTimeKeys  []oneTimeKey          `cbor:"3,keyasint"`
	Fallback     *oneTimeKey           `cbor:"4,keyasint"`
	PrevFallback *oneTimeKey           `cbor:"5,keyasint"`
	NextKeyID    uint32                `cbor:"6,keyasint"`
}

// Pickle serialises and encrypts the session.
func (s *Session) Pickle(key PickleKey) (string, error) {
	return sealPickle(key, sessionPickle{
		Keys:            s.keys,
		Ratchet:         s.ratchet,
		ReceivedMessage: s.receivedMessage,
	})
}

// UnpickleSession restores a session written by Pickle.
func UnpickleSession(pickle string, key PickleKey) (*Session, error) {
	var p sessionPickle
	if err := openPickle(key, pickle, &p); err != nil {
		return nil, err
	}
	if p.Ratchet == nil || (p.Ratchet.SenderChain == nil && len(p.Ratchet.ReceiverChains) == 0) {
		return nil, newError(KindSerializationError, errors.New("session has no ratchet chains"))
	}
	return &Session{keys: p.Keys, ratchet: p.Ratchet, receivedMessage: p.ReceivedMessage}, nil
}

// UnpickleSessionAuto loads a session without knowing which format wrote
// it. The modern format is tried first; only an authentication failure
// falls back to the libolm format. Malformed input is reported as is.
func UnpickleSessionAuto(pickle string, key []byte) (*Session, error) {
	if k, err := PickleKeyFromBytes(key); err == nil {
		s, err := UnpickleSession(pickle, k)
		if err == nil || !errors.Is(err, ErrIncorrectPickleKey) {
			return s, err
		}
	}
	return UnpickleLegacySession(pickle, key)
}

// Pickle serialises and encrypts the account.
func (a *Account) Pickle(key PickleKey) (string, error) {
	return sealPickle(key, accountPickle{
		SigningKey:   a.signingPriv,
		IdentityKey:  a.identity.Private,
		OneTimeKeys:  a.oneTimeKeys,
		Fallback:     a.fallback,
		PrevFallback: a.prevFallback,
		NextKeyID:    a.nextKeyID,
	})
}

// UnpickleAccount restores an account written by (*Account).Pickle.
func UnpickleAccount(pickle string, key PickleKey) (*Account, error) {
	var p accountPickle
	if err := openPickle(key, pickle, &p); err != nil {
		return nil, err
	}
	signingPub, err := crypto.Ed25519PublicFromPrivate(p.SigningKey)
	if err != nil {
		return nil, newError(KindSerializationError, err)
	}
	identity, err := crypto.X25519FromPrivate(p.IdentityKey)
	if err != nil {
		return nil, newError(KindSerializationError, err)
	}
	return &Account{
		signingPriv:  p.SigningKey,
		signingPub:   signingPub,
		identity:     identity,
		oneTimeKeys:  p.OneTimeKeys,
		fallback:     p.Fallback,
		prevFallback: p.PrevFallback,
		nextKeyID:    p.NextKeyID,
	}, nil
}

// sealPickle frames CBOR(v) as version || nonce || XChaCha20-Poly1305
// ciphertext, authenticating the version byte, and encodes it as base64.
func sealPickle(key PickleKey, v any) (string, error) {
	data, err := cbor.Marshal(v)
	if err != nil {
		return "", newError(KindSerializationError, err)
	}
	defer memzero.Zero(data)

	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return "", newError(KindSerializationError, err)
	}
	out := make([]byte, 1+chacha20poly1305.NonceSizeX, 1+chacha20poly1305.NonceSizeX+len(data)+aead.Overhead())
	out[0] = pickleVersion
	nonce := out[1:]
	if _, err := rand.Read(nonce); err != nil {
		return "", newError(KindRandomness, err)
	}
	out = aead.Seal(out, nonce, data, out[:1])
	return crypto.B64(out), nil
}

func openPickle(key PickleKey, pickle string, v any) error {
	raw, err := crypto.UnB64(pickle)
	if err != nil {
		return newError(KindInvalidPickleFormat, err)
	}
	if len(raw) < 1+chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return newError(KindInvalidPickleFormat, errors.New("pickle too short"))
	}
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return newError(KindSerializationError, err)
	}
	nonce := raw[1 : 1+chacha20poly1305.NonceSizeX]
	data, err := aead.Open(nil, nonce, raw[1+chacha20poly1305.NonceSizeX:], raw[:1])
	if err != nil {
		return newError(KindIncorrectPickleKey, err)
	}
	defer memzero.Zero(data)
	if raw[0] != pickleVersion {
		return newError(KindSerializationError, fmt.Errorf("unsupported pickle version %d", raw[0]))
	}
	if err := cbor.Unmarshal(data, v); err != nil {
		return newError(KindSerializationError, err)
	}
	return nil
}
