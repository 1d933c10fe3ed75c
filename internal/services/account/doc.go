// Package account manages the local Olm account: creation, the passphrase
// protected pickle key, one-time and fallback keys, and publishing the
// signed key bundle to the relay.
package account
