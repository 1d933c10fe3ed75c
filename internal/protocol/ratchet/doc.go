// Package ratchet implements the Olm v1 double ratchet, compatible with libolm.
//
// The state holds a root key, at most one sender chain, a short list of
// receiver chains (newest first) and a bounded list of skipped message keys.
// Each message advances an HMAC-SHA256 chain so that keys are forward secure.
// When the peer presents a new ratchet key, a fresh receiver chain is derived
// from the root via DH and our sender chain is discarded so the next Encrypt
// starts a new one.
//
// Decrypt only commits changes to the state once the message has
// authenticated, so a forged or corrupted message leaves the session usable.
//
// Concurrency: State is NOT safe for concurrent use. Callers must serialise
// access per session.
package ratchet
