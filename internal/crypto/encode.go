package crypto

import (
	"encoding/base64"
	"strings"
)

// B64 returns standard base64 without padding, the protocol's text form.
func B64(b []byte) string { return base64.RawStdEncoding.EncodeToString(b) }

// UnB64 decodes standard base64, with or without trailing padding.
func UnB64(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
