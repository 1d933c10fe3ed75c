package auth

import (
	"crypto/hmac"
	"crypto/sha512"
)

const confirmLabel = "commcore login confirmation"

// confirmation proves to the client that the server holds the same OPAQUE
// session key. The session key itself never crosses the wire.
func confirmation(sessionKey []byte) []byte {
	m := hmac.New(sha512.New, sessionKey)
	m.Write([]byte(confirmLabel))
	return m.Sum(nil)
}

func verifyConfirmation(sessionKey, got []byte) bool {
	return hmac.Equal(confirmation(sessionKey), got)
}
