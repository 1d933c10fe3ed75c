package store

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const envelopeVersion = 3

// ErrWrongPassphrase is returned when the passphrase is incorrect or the
// sealed file has been modified.
var ErrWrongPassphrase = errors.New("store: wrong passphrase or corrupted keystore")

// ScryptParams tunes the passphrase KDF.
type ScryptParams struct {
	N, R, P int
}

// DefaultScrypt is used by NewPickleKeyFileStore.
var DefaultScrypt = ScryptParams{N: 1 << 15, R: 8, P: 1}

// envelopeHeader carries everything needed to re-derive the key. Its encoded
// bytes are the AEAD associated data, so the cost parameters cannot be
// lowered without the open failing.
type envelopeHeader struct {
	_      struct{} `cbor:",toarray"`
	V      uint8
	Salt   []byte
	Params ScryptParams
	Nonce  []byte
}

type envelope struct {
	_      struct{} `cbor:",toarray"`
	Header cbor.RawMessage
	Sealed []byte
}

func deriveKey(passphrase string, salt []byte, p ScryptParams) ([]byte, error) {
	key, err := scrypt.Key([]byte(passphrase), salt, p.N, p.R, p.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, fmt.Errorf("store: derive key: %w", err)
	}
	return key, nil
}

// seal encrypts raw under a key derived from passphrase.
func seal(passphrase string, raw []byte, params ScryptParams) ([]byte, error) {
	hdr := envelopeHeader{
		V:      envelopeVersion,
		Salt:   make([]byte, 16),
		Params: params,
		Nonce:  make([]byte, chacha20poly1305.NonceSizeX),
	}
	if _, err := rand.Read(hdr.Salt); err != nil {
		return nil, err
	}
	if _, err := rand.Read(hdr.Nonce); err != nil {
		return nil, err
	}
	ad, err := cbor.Marshal(hdr)
	if err != nil {
		return nil, err
	}
	key, err := deriveKey(passphrase, hdr.Salt, params)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(envelope{Header: ad, Sealed: aead.Seal(nil, hdr.Nonce, raw, ad)})
}

// open reverses seal.
func open(passphrase string, data []byte) ([]byte, error) {
	var env envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("store: parse keystore: %w", err)
	}
	var hdr envelopeHeader
	if err := cbor.Unmarshal(env.Header, &hdr); err != nil {
		return nil, fmt.Errorf("store: parse keystore header: %w", err)
	}
	if hdr.V != envelopeVersion {
		return nil, fmt.Errorf("store: unsupported keystore version %d", hdr.V)
	}
	if len(hdr.Nonce) != chacha20poly1305.NonceSizeX {
		return nil, ErrWrongPassphrase
	}
	key, err := deriveKey(passphrase, hdr.Salt, hdr.Params)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	raw, err := aead.Open(nil, hdr.Nonce, env.Sealed, env.Header)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return raw, nil
}
