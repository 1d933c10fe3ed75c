// Package opaque implements the OPAQUE augmented PAKE (RFC 9807) with the
// ristretto255-SHA512 ciphersuite: an OPRF over ristretto255, HKDF-SHA512,
// HMAC-SHA512, a 3DH key exchange and Argon2id as the key stretching
// function.
//
// # Flows
//
// Registration (two messages):
//
//	client: ClientRegistrationStart  -> request
//	server: ServerRegistrationStart  -> response
//	client: (*ClientRegistration).Finish -> upload, export key
//	server: ServerRegistrationFinish -> password file (store it)
//
// Login (three messages):
//
//	client: ClientLoginStart        -> KE1
//	server: ServerLoginStart        -> KE2
//	client: (*ClientLogin).Finish   -> KE3, session key, export key
//	server: (*ServerLogin).Finish   -> session key
//
// The server never sees the password. A login for an unknown user runs
// against a fake password file derived from the server's OPRF seed, so the
// response looks like any other; the attempt only fails at Finish.
//
// # State
//
// Every client and server state object is single use. A second Finish, or
// a Finish after a failed one, returns ErrStateConsumed.
//
// # Wire format
//
// Each message is a tag byte followed by fields with a 2-byte big-endian
// length prefix. Callers treat the bytes as opaque.
package opaque
