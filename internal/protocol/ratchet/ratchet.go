package ratchet

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"commcore/internal/crypto"
	"commcore/internal/domain"
	"commcore/internal/protocol/wire"
	"commcore/internal/util/memzero"
)

const (
	MaxReceiverChains = 5
	MaxSkippedKeys    = 40
	MaxMessageGap     = 2000
)

const (
	infoRoot    = "OLM_ROOT"
	infoRatchet = "OLM_RATCHET"
	infoKeys    = "OLM_KEYS"
)

var (
	ErrBadMessage          = errors.New("ratchet: malformed message")
	ErrDecrypt             = errors.New("ratchet: message failed to authenticate")
	ErrUnknownMessageIndex = errors.New("ratchet: message key not available")
	ErrMessageTooFarAhead  = errors.New("ratchet: message too far ahead in chain")
	ErrNoSenderChain       = errors.New("ratchet: no sender chain to ratchet from")
	ErrNoReceiverChain     = errors.New("ratchet: no receiver chain to ratchet from")
)

// ChainKey is one step of a symmetric chain.
type ChainKey struct {
	Key   [32]byte
	Index uint32
}

func (c ChainKey) advance() ChainKey {
	return ChainKey{Key: hmacByte(c.Key[:], 0x02), Index: c.Index + 1}
}

func (c ChainKey) messageKey() MessageKey {
	return MessageKey{Key: hmacByte(c.Key[:], 0x01), Index: c.Index}
}

// MessageKey seeds the cipher keys of exactly one message.
type MessageKey struct {
	Key   [32]byte
	Index uint32
}

// SenderChain is our current ratchet key and sending chain.
type SenderChain struct {
	RatchetKey domain.X25519KeyPair
	ChainKey   ChainKey
}

// ReceiverChain follows one of the peer's ratchet keys.
type ReceiverChain struct {
	RatchetKey domain.X25519Public
	ChainKey   ChainKey
}

// SkippedKey is a message key derived ahead of an out-of-order message.
type SkippedKey struct {
	RatchetKey domain.X25519Public
	MessageKey MessageKey
}

// State is the full ratchet state of one session.
type State struct {
	RootKey        [32]byte
	SenderChain    *SenderChain
	ReceiverChains []ReceiverChain // newest first
	SkippedKeys    []SkippedKey    // oldest first
}

// InitAsAlice seeds the sending chain from the handshake secret.
func InitAsAlice(secret []byte, ratchetKey domain.X25519KeyPair) *State {
	root, ck := deriveRoot(secret)
	return &State{
		RootKey:     root,
		SenderChain: &SenderChain{RatchetKey: ratchetKey, ChainKey: ChainKey{Key: ck}},
	}
}

// InitAsBob seeds a receiving chain for the ratchet key the initiator used.
func InitAsBob(secret []byte, theirRatchetKey domain.X25519Public) *State {
	root, ck := deriveRoot(secret)
	return &State{
		RootKey:        root,
		ReceiverChains: []ReceiverChain{{RatchetKey: theirRatchetKey, ChainKey: ChainKey{Key: ck}}},
	}
}

// Encrypt returns an encoded normal message with its MAC, stepping the DH
// ratchet first when we have no sender chain.
func Encrypt(st *State, r io.Reader, plaintext []byte) ([]byte, error) {
	if st.SenderChain == nil {
		if len(st.ReceiverChains) == 0 {
			return nil, ErrNoReceiverChain
		}
		kp, err := crypto.GenerateX25519(r)
		if err != nil {
			return nil, err
		}
		root, ck, err := kdfRK(st.RootKey, kp.Private, st.ReceiverChains[0].RatchetKey)
		if err != nil {
			return nil, err
		}
		st.RootKey = root
		st.SenderChain = &SenderChain{RatchetKey: kp, ChainKey: ChainKey{Key: ck}}
	}

	chain := st.SenderChain
	mk := chain.ChainKey.messageKey()
	chain.ChainKey = chain.ChainKey.advance()

	keys := crypto.DeriveCBCKeys(mk.Key[:], infoKeys)
	defer keys.Wipe()
	memzero.Zero(mk.Key[:])

	msg := wire.Message{
		RatchetKey: chain.RatchetKey.Public,
		ChainIndex: mk.Index,
		Ciphertext: keys.EncryptCBC(plaintext),
	}
	out := msg.Encode()
	return append(out, keys.MAC(out)...), nil
}

// Decrypt authenticates and decrypts an encoded normal message. The state is
// left untouched on any error.
func Decrypt(st *State, raw []byte) ([]byte, error) {
	msg, authed, mac, err := wire.DecodeMessage(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadMessage, err)
	}

	idx := -1
	for i := range st.ReceiverChains {
		if st.ReceiverChains[i].RatchetKey == msg.RatchetKey {
			idx = i
			break
		}
	}

	if idx < 0 {
		if st.SenderChain == nil {
			return nil, ErrNoSenderChain
		}
		if msg.ChainIndex > MaxMessageGap {
			return nil, ErrMessageTooFarAhead
		}
		root, ck, err := kdfRK(st.RootKey, st.SenderChain.RatchetKey.Private, msg.RatchetKey)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecrypt, err)
		}
		chain := ReceiverChain{RatchetKey: msg.RatchetKey, ChainKey: ChainKey{Key: ck}}
		skipped, mk := advanceTo(&chain, msg.ChainIndex)
		pt, err := open(mk, authed, mac, msg.Ciphertext)
		if err != nil {
			return nil, err
		}

		st.RootKey = root
		chains := make([]ReceiverChain, 0, MaxReceiverChains)
		chains = append(chains, chain)
		for _, c := range st.ReceiverChains {
			if len(chains) == MaxReceiverChains {
				break
			}
			chains = append(chains, c)
		}
		st.ReceiverChains = chains
		st.SenderChain = nil
		st.addSkipped(skipped)
		return pt, nil
	}

	chain := st.ReceiverChains[idx]
	if msg.ChainIndex < chain.ChainKey.Index {
		for i, sk := range st.SkippedKeys {
			if sk.RatchetKey != msg.RatchetKey || sk.MessageKey.Index != msg.ChainIndex {
				continue
			}
			pt, err := open(sk.MessageKey, authed, mac, msg.Ciphertext)
			if err != nil {
				return nil, err
			}
			st.SkippedKeys = append(st.SkippedKeys[:i:i], st.SkippedKeys[i+1:]...)
			return pt, nil
		}
		return nil, ErrUnknownMessageIndex
	}
	if msg.ChainIndex-chain.ChainKey.Index > MaxMessageGap {
		return nil, ErrMessageTooFarAhead
	}

	skipped, mk := advanceTo(&chain, msg.ChainIndex)
	pt, err := open(mk, authed, mac, msg.Ciphertext)
	if err != nil {
		return nil, err
	}
	st.ReceiverChains[idx] = chain
	st.addSkipped(skipped)
	return pt, nil
}

// addSkipped appends keys and evicts the oldest beyond MaxSkippedKeys.
func (st *State) addSkipped(keys []SkippedKey) {
	if len(keys) == 0 {
		return
	}
	all := make([]SkippedKey, 0, len(st.SkippedKeys)+len(keys))
	all = append(all, st.SkippedKeys...)
	all = append(all, keys...)
	if len(all) > MaxSkippedKeys {
		all = all[len(all)-MaxSkippedKeys:]
	}
	st.SkippedKeys = all
}

// advanceTo steps chain to index, returning the message keys passed over and
// the key for index. The chain ends one past index.
func advanceTo(chain *ReceiverChain, index uint32) ([]SkippedKey, MessageKey) {
	var skipped []SkippedKey
	for chain.ChainKey.Index < index {
		if index-chain.ChainKey.Index <= MaxSkippedKeys {
			skipped = append(skipped, SkippedKey{
				RatchetKey: chain.RatchetKey,
				MessageKey: chain.ChainKey.messageKey(),
			})
		}
		chain.ChainKey = chain.ChainKey.advance()
	}
	mk := chain.ChainKey.messageKey()
	chain.ChainKey = chain.ChainKey.advance()
	return skipped, mk
}

func open(mk MessageKey, authed, mac, ciphertext []byte) ([]byte, error) {
	keys := crypto.DeriveCBCKeys(mk.Key[:], infoKeys)
	defer keys.Wipe()
	if err := keys.VerifyMAC(authed, mac); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecrypt, err)
	}
	pt, err := keys.DecryptCBC(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecrypt, err)
	}
	return pt, nil
}

// --- KDFs ---

func deriveRoot(secret []byte) (root, ck [32]byte) {
	r := hkdf.New(sha256.New, secret, nil, []byte(infoRoot))
	_, _ = io.ReadFull(r, root[:])
	_, _ = io.ReadFull(r, ck[:])
	return
}

func kdfRK(rk [32]byte, priv domain.X25519Private, pub domain.X25519Public) (newRK, ck [32]byte, err error) {
	dh, err := crypto.DH(priv, pub)
	if err != nil {
		return newRK, ck, err
	}
	r := hkdf.New(sha256.New, dh[:], rk[:], []byte(infoRatchet))
	_, _ = io.ReadFull(r, newRK[:])
	_, _ = io.ReadFull(r, ck[:])
	memzero.Zero(dh[:])
	return newRK, ck, nil
}

func hmacByte(key []byte, b byte) (out [32]byte) {
	h := hmac.New(sha256.New, key)
	h.Write([]byte{b})
	copy(out[:], h.Sum(nil))
	return out
}
