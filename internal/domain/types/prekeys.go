package types

// OneTimeKey is a published Curve25519 one-time (or fallback) key.
type OneTimeKey struct {
	ID  KeyID        `json:"id"`
	Key X25519Public `json:"key"`
}

// KeyBundle is the set of public keys a device uploads to the relay.
// Signature is an Ed25519 signature over SignedBytes().
type KeyBundle struct {
	Username     Username     `json:"username"`
	IdentityKeys IdentityKeys `json:"identity_keys"`
	OneTimeKeys  []OneTimeKey `json:"one_time_keys,omitempty"`
	FallbackKey  *OneTimeKey  `json:"fallback_key,omitempty"`
	Signature    []byte       `json:"signature"`
}

// SignedBytes returns the canonical byte string covered by Signature.
func (b KeyBundle) SignedBytes() []byte {
	out := make([]byte, 0, 64+len(b.Username)+len(b.OneTimeKeys)*40)
	out = append(out, b.Username...)
	out = append(out, 0)
	out = append(out, b.IdentityKeys.Curve25519[:]...)
	out = append(out, b.IdentityKeys.Ed25519[:]...)
	for _, k := range b.OneTimeKeys {
		out = append(out, k.ID...)
		out = append(out, 0)
		out = append(out, k.Key[:]...)
	}
	if b.FallbackKey != nil {
		out = append(out, 'F')
		out = append(out, b.FallbackKey.ID...)
		out = append(out, 0)
		out = append(out, b.FallbackKey.Key[:]...)
	}
	return out
}

// ClaimedKeys is what the relay hands out to a session initiator: the
// peer's bundle as signed at upload time plus exactly one of its one-time
// (or fallback) keys, which the relay has since removed from circulation.
type ClaimedKeys struct {
	Bundle     KeyBundle  `json:"bundle"`
	OneTimeKey OneTimeKey `json:"one_time_key"`
	Fallback   bool       `json:"fallback,omitempty"`
}

// Contains reports whether k was advertised in the bundle.
func (b KeyBundle) Contains(k OneTimeKey) bool {
	for _, o := range b.OneTimeKeys {
		if o == k {
			return true
		}
	}
	return b.FallbackKey != nil && *b.FallbackKey == k
}
