package olm

import (
	"encoding/binary"
	"errors"
	"fmt"

	"commcore/internal/crypto"
	"commcore/internal/protocol/ratchet"
	"commcore/internal/util/memzero"
)

// Layout versions written by libolm.
const (
	libolmSessionVersion    uint32 = 1
	libolmAccountVersion    uint32 = 4
	libolmAccountVersionMin uint32 = 2

	legacyInfo = "Pickle"
)

// UnpickleLegacySession reads a session pickled by libolm. Keys longer than
// 32 bytes are truncated to their first 32 bytes, as deployed clients did.
func UnpickleLegacySession(pickle string, key []byte) (*Session, error) {
	raw, err := legacyOpen(pickle, key)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(raw)

	r := &pickleReader{buf: raw}
	if v := r.u32(); r.err == nil && v != libolmSessionVersion {
		return nil, newError(KindSerializationError, fmt.Errorf("unsupported session pickle version %d", v))
	}
	s := &Session{ratchet: &ratchet.State{}}
	s.receivedMessage = r.bool()
	s.keys.IdentityKey = r.key32()
	s.keys.BaseKey = r.key32()
	s.keys.OneTimeKey = r.key32()
	s.ratchet.RootKey = r.key32()

	if n := r.count(1 + 1); n == 1 {
		var c ratchet.SenderChain
		c.RatchetKey.Public = r.key32()
		c.RatchetKey.Private = r.key32()
		c.ChainKey = r.chainKey()
		s.ratchet.SenderChain = &c
	}
	for i, n := 0, r.count(ratchet.MaxReceiverChains+1); i < n; i++ {
		var c ratchet.ReceiverChain
		c.RatchetKey = r.key32()
		c.ChainKey = r.chainKey()
		s.ratchet.ReceiverChains = append(s.ratchet.ReceiverChains, c)
	}
	for i, n := 0, r.count(ratchet.MaxSkippedKeys+1); i < n; i++ {
		var k ratchet.SkippedKey
		k.RatchetKey = r.key32()
		ck := r.chainKey()
		k.MessageKey = ratchet.MessageKey{Key: ck.Key, Index: ck.Index}
		s.ratchet.SkippedKeys = append(s.ratchet.SkippedKeys, k)
	}
	if err := r.finish(); err != nil {
		return nil, err
	}
	if s.ratchet.SenderChain == nil && len(s.ratchet.ReceiverChains) == 0 {
		return nil, newError(KindSerializationError, errors.New("session has no ratchet chains"))
	}
	return s, nil
}

// PickleLegacy writes the session in libolm's format. New data should use
// Pickle; this exists for migration tooling and tests.
func (s *Session) PickleLegacy(key []byte) (string, error) {
	var w pickleWriter
	w.u32(libolmSessionVersion)
	w.bool(s.receivedMessage)
	w.bytes(s.keys.IdentityKey[:])
	w.bytes(s.keys.BaseKey[:])
	w.bytes(s.keys.OneTimeKey[:])
	w.bytes(s.ratchet.RootKey[:])
	if c := s.ratchet.SenderChain; c != nil {
		w.u32(1)
		w.bytes(c.RatchetKey.Public[:])
		w.bytes(c.RatchetKey.Private[:])
		w.chainKey(c.ChainKey)
	} else {
		w.u32(0)
	}
	w.u32(uint32(len(s.ratchet.ReceiverChains)))
	for _, c := range s.ratchet.ReceiverChains {
		w.bytes(c.RatchetKey[:])
		w.chainKey(c.ChainKey)
	}
	w.u32(uint32(len(s.ratchet.SkippedKeys)))
	for _, k := range s.ratchet.SkippedKeys {
		w.bytes(k.RatchetKey[:])
		w.chainKey(ratchet.ChainKey{Key: k.MessageKey.Key, Index: k.MessageKey.Index})
	}
	defer memzero.Zero(w.buf)
	return legacySeal(w.buf, key)
}

// UnpickleLegacyAccount reads an account pickled by libolm, versions 2 to 4.
// Version 2 has no fallback keys. Version 3 always stores two fallback slots
// and marks the occupied ones as published.
func UnpickleLegacyAccount(pickle string, key []byte) (*Account, error) {
	raw, err := legacyOpen(pickle, key)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(raw)

	r := &pickleReader{buf: raw}
	version := r.u32()
	if r.err == nil && (version < libolmAccountVersionMin || version > libolmAccountVersion) {
		return nil, newError(KindSerializationError, fmt.Errorf("unsupported account pickle version %d", version))
	}
	a := &Account{}
	a.signingPub = r.key32()
	copy(a.signingPriv[:], r.take(64))
	a.identity.Public = r.key32()
	a.identity.Private = r.key32()
	for i, n := 0, r.count(MaxOneTimeKeys+1); i < n; i++ {
		k := r.oneTimeKey()
		a.oneTimeKeys = append(a.oneTimeKeys, k)
	}
	switch version {
	case 3:
		cur, prev := r.oneTimeKey(), r.oneTimeKey()
		if cur.Published {
			a.fallback = &cur
			if prev.Published {
				a.prevFallback = &prev
			}
		}
	case 4:
		switch fallbacks := r.u8(); {
		case fallbacks > 2:
			r.fail(fmt.Errorf("%d fallback keys", fallbacks))
		case fallbacks >= 1:
			fb := r.oneTimeKey()
			a.fallback = &fb
			if fallbacks == 2 {
				prev := r.oneTimeKey()
				a.prevFallback = &prev
			}
		}
	}
	a.nextKeyID = r.u32()
	if err := r.finish(); err != nil {
		return nil, err
	}
	return a, nil
}

// PickleLegacy writes the account in libolm's version 4 format.
func (a *Account) PickleLegacy(key []byte) (string, error) {
	var w pickleWriter
	w.u32(libolmAccountVersion)
	w.bytes(a.signingPub[:])
	w.bytes(a.signingPriv[:])
	w.bytes(a.identity.Public[:])
	w.bytes(a.identity.Private[:])
	w.u32(uint32(len(a.oneTimeKeys)))
	for _, k := range a.oneTimeKeys {
		w.oneTimeKey(k)
	}
	switch {
	case a.fallback == nil:
		w.u8(0)
	case a.prevFallback == nil:
		w.u8(1)
		w.oneTimeKey(*a.fallback)
	default:
		w.u8(2)
		w.oneTimeKey(*a.fallback)
		w.oneTimeKey(*a.prevFallback)
	}
	w.u32(a.nextKeyID)
	defer memzero.Zero(w.buf)
	return legacySeal(w.buf, key)
}

// --- libolm pickle cipher: AES-256-CBC, HMAC-SHA256 over the ciphertext ---

func legacyKey(key []byte) []byte {
	if len(key) > 32 {
		return key[:32]
	}
	return key
}

func legacySeal(plaintext, key []byte) (string, error) {
	keys := crypto.DeriveCBCKeys(legacyKey(key), legacyInfo)
	defer keys.Wipe()
	ct := keys.EncryptCBC(plaintext)
	return crypto.B64(append(ct, keys.MAC(ct)...)), nil
}

func legacyOpen(pickle string, key []byte) ([]byte, error) {
	raw, err := crypto.UnB64(pickle)
	if err != nil {
		return nil, newError(KindInvalidPickleFormat, err)
	}
	if len(raw) < crypto.MACLength+1 {
		return nil, newError(KindInvalidPickleFormat, errors.New("pickle too short"))
	}
	keys := crypto.DeriveCBCKeys(legacyKey(key), legacyInfo)
	defer keys.Wipe()
	ct, mac := raw[:len(raw)-crypto.MACLength], raw[len(raw)-crypto.MACLength:]
	if err := keys.VerifyMAC(ct, mac); err != nil {
		return nil, newError(KindIncorrectPickleKey, err)
	}
	pt, err := keys.DecryptCBC(ct)
	if err != nil {
		return nil, newError(KindSerializationError, err)
	}
	return pt, nil
}

// --- libolm binary layout: big-endian integers, raw fixed-size keys ---

type pickleWriter struct{ buf []byte }

func (w *pickleWriter) u8(v uint8)     { w.buf = append(w.buf, v) }
func (w *pickleWriter) u32(v uint32)   { w.buf = binary.BigEndian.AppendUint32(w.buf, v) }
func (w *pickleWriter) bytes(b []byte) { w.buf = append(w.buf, b...) }

func (w *pickleWriter) bool(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w *pickleWriter) chainKey(c ratchet.ChainKey) {
	w.bytes(c.Key[:])
	w.u32(c.Index)
}

func (w *pickleWriter) oneTimeKey(k oneTimeKey) {
	w.u32(k.ID)
	w.bool(k.Published)
	w.bytes(k.Key.Public[:])
	w.bytes(k.Key.Private[:])
}

// pickleReader consumes a layout with a sticky error, so callers check once
// at the end.
type pickleReader struct {
	buf []byte
	err error
}

func (r *pickleReader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *pickleReader) take(n int) []byte {
	if r.err != nil {
		return make([]byte, n)
	}
	if len(r.buf) < n {
		r.fail(errors.New("pickle truncated"))
		return make([]byte, n)
	}
	b := r.buf[:n]
	r.buf = r.buf[n:]
	return b
}

func (r *pickleReader) u8() uint8   { return r.take(1)[0] }
func (r *pickleReader) u32() uint32 { return binary.BigEndian.Uint32(r.take(4)) }

func (r *pickleReader) bool() bool {
	switch v := r.u8(); v {
	case 0:
		return false
	case 1:
		return true
	default:
		r.fail(fmt.Errorf("bad bool %d", v))
		return false
	}
}

func (r *pickleReader) key32() (k [32]byte) {
	copy(k[:], r.take(32))
	return k
}

// count reads a list length and rejects anything at or above limit.
func (r *pickleReader) count(limit int) int {
	n := r.u32()
	if uint64(n) >= uint64(limit) {
		r.fail(fmt.Errorf("list of %d entries", n))
		return 0
	}
	return int(n)
}

func (r *pickleReader) chainKey() ratchet.ChainKey {
	var c ratchet.ChainKey
	c.Key = r.key32()
	c.Index = r.u32()
	return c
}

func (r *pickleReader) oneTimeKey() oneTimeKey {
	var k oneTimeKey
	k.ID = r.u32()
	k.Published = r.bool()
	k.Key.Public = r.key32()
	k.Key.Private = r.key32()
	return k
}

func (r *pickleReader) finish() error {
	if r.err == nil && len(r.buf) != 0 {
		r.err = fmt.Errorf("%d trailing bytes", len(r.buf))
	}
	if r.err != nil {
		return newError(KindSerializationError, r.err)
	}
	return nil
}
