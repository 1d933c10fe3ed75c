package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"

	"commcore/internal/util/memzero"
)

// MACLength is the truncated HMAC-SHA256 tag length used by Olm.
const MACLength = 8

var (
	ErrBadPadding = errors.New("crypto: bad cbc padding")
	ErrBadMAC     = errors.New("crypto: mac mismatch")
)

// CBCKeys is the AES-256-CBC + HMAC-SHA256 key set Olm derives per message
// and per pickle.
type CBCKeys struct {
	AESKey [32]byte
	MACKey [32]byte
	IV     [16]byte
}

// DeriveCBCKeys expands secret with HKDF-SHA256 (zero salt) under info into
// 80 bytes: AES key, MAC key, IV.
func DeriveCBCKeys(secret []byte, info string) CBCKeys {
	var k CBCKeys
	r := hkdf.New(sha256.New, secret, nil, []byte(info))
	buf := make([]byte, 80)
	_, _ = io.ReadFull(r, buf)
	copy(k.AESKey[:], buf[:32])
	copy(k.MACKey[:], buf[32:64])
	copy(k.IV[:], buf[64:])
	memzero.Zero(buf)
	return k
}

// Wipe zeroes the key set.
func (k *CBCKeys) Wipe() {
	memzero.Zero(k.AESKey[:])
	memzero.Zero(k.MACKey[:])
	memzero.Zero(k.IV[:])
}

// EncryptCBC pads plaintext with PKCS#7 and encrypts it.
func (k *CBCKeys) EncryptCBC(plaintext []byte) []byte {
	block, _ := aes.NewCipher(k.AESKey[:])
	pad := aes.BlockSize - len(plaintext)%aes.BlockSize
	buf := make([]byte, len(plaintext)+pad)
	copy(buf, plaintext)
	for i := len(plaintext); i < len(buf); i++ {
		buf[i] = byte(pad)
	}
	cipher.NewCBCEncrypter(block, k.IV[:]).CryptBlocks(buf, buf)
	return buf
}

// DecryptCBC decrypts and strips PKCS#7 padding.
func (k *CBCKeys) DecryptCBC(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrBadPadding
	}
	block, _ := aes.NewCipher(k.AESKey[:])
	buf := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, k.IV[:]).CryptBlocks(buf, ciphertext)
	pad := int(buf[len(buf)-1])
	if pad == 0 || pad > aes.BlockSize {
		return nil, ErrBadPadding
	}
	for _, b := range buf[len(buf)-pad:] {
		if int(b) != pad {
			return nil, ErrBadPadding
		}
	}
	return buf[:len(buf)-pad], nil
}

// MAC returns the truncated HMAC-SHA256 of data.
func (k *CBCKeys) MAC(data []byte) []byte {
	h := hmac.New(sha256.New, k.MACKey[:])
	h.Write(data)
	return h.Sum(nil)[:MACLength]
}

// VerifyMAC compares tag against the MAC of data in constant time.
func (k *CBCKeys) VerifyMAC(data, tag []byte) error {
	if subtle.ConstantTimeCompare(k.MAC(data), tag) != 1 {
		return ErrBadMAC
	}
	return nil
}
