package olm

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"commcore/internal/crypto"
	"commcore/internal/domain"
	"commcore/internal/protocol/ratchet"
	"commcore/internal/protocol/x3dh"
	"commcore/internal/util/memzero"
)

// MaxOneTimeKeys bounds the one-time key pool. Generating past it evicts
// the oldest keys.
const MaxOneTimeKeys = 100

type oneTimeKey struct {
	ID        uint32               `cbor:"1,keyasint"`
	Published bool                 `cbor:"2,keyasint"`
	Key       domain.X25519KeyPair `cbor:"3,keyasint"`
}

// Account is a device's long-term identity.
type Account struct {
	signingPriv  domain.Ed25519Private
	signingPub   domain.Ed25519Public
	identity     domain.X25519KeyPair
	oneTimeKeys  []oneTimeKey // oldest first
	fallback     *oneTimeKey
	prevFallback *oneTimeKey
	nextKeyID    uint32
	rand         io.Reader
}

// NewAccount creates an account with fresh identity keys from crypto/rand.
func NewAccount() (*Account, error) { return NewAccountFrom(rand.Reader) }

// NewAccountFrom creates an account reading all key material from r.
func NewAccountFrom(r io.Reader) (*Account, error) {
	priv, pub, err := crypto.GenerateEd25519(r)
	if err != nil {
		return nil, newError(KindRandomness, err)
	}
	id, err := crypto.GenerateX25519(r)
	if err != nil {
		return nil, newError(KindRandomness, err)
	}
	return &Account{signingPriv: priv, signingPub: pub, identity: id, rand: r}, nil
}

// KeyIDString renders a one-time key ID the way it is published.
func KeyIDString(id uint32) domain.KeyID {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], id)
	return domain.KeyID(crypto.B64(b[:]))
}

// IdentityKeys returns the public identity keys.
func (a *Account) IdentityKeys() domain.IdentityKeys {
	return domain.IdentityKeys{Curve25519: a.identity.Public, Ed25519: a.signingPub}
}

// Curve25519Key returns the public Curve25519 identity key.
func (a *Account) Curve25519Key() domain.X25519Public { return a.identity.Public }

// Ed25519Key returns the public signing key.
func (a *Account) Ed25519Key() domain.Ed25519Public { return a.signingPub }

// Sign signs message with the account's Ed25519 key.
func (a *Account) Sign(message []byte) []byte {
	return crypto.SignEd25519(a.signingPriv, message)
}

// MaxNumberOfOneTimeKeys is the pool size; publish at most half of it.
func (a *Account) MaxNumberOfOneTimeKeys() int { return MaxOneTimeKeys }

// GenerateOneTimeKeys adds count fresh unpublished keys to the pool. The
// pool never holds more than MaxOneTimeKeys, so larger counts are clamped.
func (a *Account) GenerateOneTimeKeys(count int) error {
	if count < 0 {
		return newError(KindSerializationError, fmt.Errorf("negative one-time key count %d", count))
	}
	count = min(count, MaxOneTimeKeys)
	fresh := make([]oneTimeKey, 0, count)
	for i := 0; i < count; i++ {
		kp, err := crypto.GenerateX25519(a.rng())
		if err != nil {
			return newError(KindRandomness, err)
		}
		fresh = append(fresh, oneTimeKey{ID: a.nextKeyID + 1 + uint32(i), Key: kp})
	}
	a.nextKeyID += uint32(len(fresh))
	a.oneTimeKeys = append(a.oneTimeKeys, fresh...)
	if over := len(a.oneTimeKeys) - MaxOneTimeKeys; over > 0 {
		for i := range a.oneTimeKeys[:over] {
			memzero.Zero(a.oneTimeKeys[i].Key.Private[:])
		}
		a.oneTimeKeys = append([]oneTimeKey(nil), a.oneTimeKeys[over:]...)
	}
	return nil
}

// OneTimeKeys returns the keys that have not been published yet.
func (a *Account) OneTimeKeys() map[domain.KeyID]domain.X25519Public {
	out := make(map[domain.KeyID]domain.X25519Public)
	for _, k := range a.oneTimeKeys {
		if !k.Published {
			out[KeyIDString(k.ID)] = k.Key.Public
		}
	}
	return out
}

// UnpublishedOneTimeKeys is OneTimeKeys as a slice, oldest first.
func (a *Account) UnpublishedOneTimeKeys() []domain.OneTimeKey {
	var out []domain.OneTimeKey
	for _, k := range a.oneTimeKeys {
		if !k.Published {
			out = append(out, domain.OneTimeKey{ID: KeyIDString(k.ID), Key: k.Key.Public})
		}
	}
	return out
}

// MarkKeysAsPublished flags all current one-time keys and the fallback key
// as published. Nothing is removed.
func (a *Account) MarkKeysAsPublished() {
	for i := range a.oneTimeKeys {
		a.oneTimeKeys[i].Published = true
	}
	if a.fallback != nil {
		a.fallback.Published = true
	}
}

// GenerateFallbackKey rotates in a new fallback key. The previous one stays
// usable until ForgetOldFallbackKey.
func (a *Account) GenerateFallbackKey() error {
	kp, err := crypto.GenerateX25519(a.rng())
	if err != nil {
		return newError(KindRandomness, err)
	}
	a.nextKeyID++
	if a.prevFallback != nil {
		memzero.Zero(a.prevFallback.Key.Private[:])
	}
	a.prevFallback = a.fallback
	a.fallback = &oneTimeKey{ID: a.nextKeyID, Key: kp}
	return nil
}

// FallbackKey returns the current fallback key if it is unpublished.
func (a *Account) FallbackKey() map[domain.KeyID]domain.X25519Public {
	out := make(map[domain.KeyID]domain.X25519Public)
	if a.fallback != nil && !a.fallback.Published {
		out[KeyIDString(a.fallback.ID)] = a.fallback.Key.Public
	}
	return out
}

// CurrentFallbackKey returns the current fallback key, published or not.
func (a *Account) CurrentFallbackKey() (domain.OneTimeKey, bool) {
	if a.fallback == nil {
		return domain.OneTimeKey{}, false
	}
	return domain.OneTimeKey{ID: KeyIDString(a.fallback.ID), Key: a.fallback.Key.Public}, true
}

// ForgetOldFallbackKey drops the previous fallback key, reporting whether
// there was one.
func (a *Account) ForgetOldFallbackKey() bool {
	if a.prevFallback == nil {
		return false
	}
	memzero.Zero(a.prevFallback.Key.Private[:])
	a.prevFallback = nil
	return true
}

// CreateOutboundSession starts a session with a peer's identity key and one
// of their one-time (or fallback) keys.
func (a *Account) CreateOutboundSession(peerIdentity, peerOneTimeKey domain.X25519Public) (*Session, error) {
	return NewOutboundSession(a.identity, peerIdentity, peerOneTimeKey, a.rng())
}

// CreateInboundSession builds a session from the peer's first pre-key
// message and returns it with the decrypted plaintext. The referenced
// one-time key is removed only when the message decrypts; fallback keys are
// kept.
func (a *Account) CreateInboundSession(peerIdentity domain.X25519Public, m *PreKeyMessage) (*Session, []byte, error) {
	if m == nil {
		return nil, nil, newError(KindInvalidMessageType, errors.New("nil pre-key message"))
	}
	if m.IdentityKey != peerIdentity {
		return nil, nil, newError(KindDecryptionFailed, errors.New("pre-key message is from a different identity key"))
	}

	otk, idx := a.findOneTimeKey(m.OneTimeKey)
	if otk == nil {
		return nil, nil, newError(KindOneTimeKeyAlreadyUsed, nil)
	}

	secret, err := x3dh.InboundSecret(a.identity.Private, otk.Key.Private, m.IdentityKey, m.BaseKey)
	if err != nil {
		return nil, nil, newError(KindInvalidKeyFormat, err)
	}
	defer memzero.Zero(secret)

	s := &Session{
		keys: sessionKeys{
			IdentityKey: m.IdentityKey,
			BaseKey:     m.BaseKey,
			OneTimeKey:  m.OneTimeKey,
		},
		ratchet: ratchet.InitAsBob(secret, m.ratchetKey),
		rand:    a.rng(),
	}
	pt, err := ratchet.Decrypt(s.ratchet, m.inner)
	if err != nil {
		return nil, nil, mapRatchetError(err)
	}
	s.receivedMessage = true

	if idx >= 0 {
		memzero.Zero(a.oneTimeKeys[idx].Key.Private[:])
		a.oneTimeKeys = append(a.oneTimeKeys[:idx:idx], a.oneTimeKeys[idx+1:]...)
	}
	return s, pt, nil
}

// findOneTimeKey looks pub up in the pool, then in the fallback keys. idx is
// -1 for fallback keys.
func (a *Account) findOneTimeKey(pub domain.X25519Public) (*oneTimeKey, int) {
	for i := range a.oneTimeKeys {
		if a.oneTimeKeys[i].Key.Public == pub {
			return &a.oneTimeKeys[i], i
		}
	}
	for _, fb := range []*oneTimeKey{a.fallback, a.prevFallback} {
		if fb != nil && fb.Key.Public == pub {
			return fb, -1
		}
	}
	return nil, -1
}

func (a *Account) rng() io.Reader {
	if a.rand == nil {
		return rand.Reader
	}
	return a.rand
}
