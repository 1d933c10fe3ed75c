package types

// Username represents a relay-registered identity.
type Username string

// String returns the string form of the username.
func (u Username) String() string { return string(u) }

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }

// SessionID identifies one Olm session between two devices.
type SessionID string

// String returns the string form of the session identifier.
func (id SessionID) String() string { return string(id) }

// KeyID is the base64 form of an account-assigned one-time key identifier.
type KeyID string

// String returns the string form of the key identifier.
func (id KeyID) String() string { return string(id) }
