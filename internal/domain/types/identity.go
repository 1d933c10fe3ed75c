package types

// IdentityKeys are the long-term public keys of one device.
type IdentityKeys struct {
	Curve25519 X25519Public  `json:"curve25519"`
	Ed25519    Ed25519Public `json:"ed25519"`
}
