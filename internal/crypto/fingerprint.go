package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"commcore/internal/domain"
)

const fingerprintBytes = 10

// FingerprintIdentity renders a device's identity keys as five groups of
// four hex digits for out-of-band comparison. Both keys are covered, so a
// swapped signing key changes the fingerprint too.
func FingerprintIdentity(keys domain.IdentityKeys) domain.Fingerprint {
	h := sha256.New()
	h.Write([]byte("commcore fingerprint"))
	h.Write(keys.Ed25519[:])
	h.Write(keys.Curve25519[:])
	digits := hex.EncodeToString(h.Sum(nil)[:fingerprintBytes])

	var sb strings.Builder
	for i := 0; i < len(digits); i += 4 {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(digits[i : i+4])
	}
	return domain.Fingerprint(sb.String())
}
