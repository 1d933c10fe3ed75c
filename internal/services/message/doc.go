// Package message sends and receives encrypted messages.
//
// It wraps the session service: outgoing plaintext becomes an Olm message
// inside a relay Envelope, and incoming envelopes are decrypted in mailbox
// order and acknowledged once handled.
package message
