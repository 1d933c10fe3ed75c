// Package crypto exposes the minimal primitives used by commcore.
//
// Contents
//
//   - X25519 key generation and Diffie–Hellman (GenerateX25519,
//     X25519FromPrivate, DH)
//   - Ed25519 with expanded private keys, the form libolm stores
//     (GenerateEd25519, SignEd25519, VerifyEd25519)
//   - Short public-key fingerprints for display/logging (Fingerprint)
//   - Unpadded base64 used by every text encoding in the protocol (B64, UnB64)
//
// # Notes
//
// All functions take their randomness source explicitly so protocol code can
// surface a failing source as an error instead of crashing. Secrets are
// returned as fixed-size arrays defined in internal/domain; wipe them with
// internal/util/memzero when practical.
package crypto
