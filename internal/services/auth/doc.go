// Package auth runs OPAQUE registration and login between a device and the
// relay.
//
// Service is the device side; it drives the opaque client state machines
// over a domain.AuthClient. Server is the relay side; it keeps pending
// logins in memory, stores password files through a
// domain.PasswordFileStore, and issues a short-lived access token once a
// login authenticates. Server itself satisfies domain.AuthClient, so the
// two can be wired together directly in tests.
package auth
