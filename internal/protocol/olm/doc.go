// Package olm implements the Olm v1 session engine and the device account
// that owns the long-term keys.
//
// # Overview
//
// An Account holds an Ed25519 signing key, a Curve25519 identity key, a pool
// of one-time keys and an optional fallback key. Sessions are created from
// an account: outbound from a peer's identity key and one of their one-time
// keys, inbound from the first pre-key message the peer sent.
//
// A Session wraps the double ratchet (internal/protocol/ratchet) and frames
// its output as pre-key messages until the first reply has been decrypted,
// then as normal messages. Message bodies use the libolm binary layout
// (internal/protocol/wire) and travel as unpadded base64.
//
// # Persistence
//
// Sessions and accounts are pickled with a 32-byte key into a versioned,
// authenticated blob (CBOR inside XChaCha20-Poly1305). Pickles written by
// libolm are still readable through UnpickleLegacySession and
// UnpickleLegacyAccount, and UnpickleSessionAuto picks the right path.
//
// # Errors
//
// Every failure is an *Error carrying a Kind. Use errors.Is against the
// Err* sentinels or KindOf to branch on it. Nothing in this package panics
// on malformed input.
//
// Concurrency: Account and Session are NOT safe for concurrent use.
package olm
