package opaque

import (
	"crypto/hmac"
	"crypto/sha512"
	"io"

	"golang.org/x/crypto/hkdf"
)

func extract(salt, ikm []byte) []byte {
	return hkdf.Extract(sha512.New, ikm, salt)
}

func expand(prk []byte, info []byte, length int) []byte {
	out := make([]byte, length)
	_, _ = io.ReadFull(hkdf.Expand(sha512.New, prk, info), out)
	return out
}

func expandString(prk, prefix []byte, label string, length int) []byte {
	info := make([]byte, 0, len(prefix)+len(label))
	info = append(info, prefix...)
	info = append(info, label...)
	return expand(prk, info, length)
}

// expandLabel is Expand-Label with the "OPAQUE-" prefix.
func expandLabel(secret []byte, label string, context []byte, length int) []byte {
	full := "OPAQUE-" + label
	info := make([]byte, 0, 2+1+len(full)+1+len(context))
	info = append(info, i2osp2(length)...)
	info = append(info, byte(len(full)))
	info = append(info, full...)
	info = append(info, byte(len(context)))
	info = append(info, context...)
	return expand(secret, info, length)
}

func deriveSecret(secret []byte, label string, transcriptHash []byte) []byte {
	return expandLabel(secret, label, transcriptHash, Nx)
}

func mac(key []byte, parts ...[]byte) []byte {
	h := hmac.New(sha512.New, key)
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

func hash(parts ...[]byte) []byte {
	h := sha512.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

func xor(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}
