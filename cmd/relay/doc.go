// Package main runs the commcore relay: the OPAQUE identity server, the
// one-time key directory and the message mailbox, behind one HTTP listener.
//
// Usage
//
//	relay -c relay.toml
//
// A minimal config:
//
//	[Logging]
//	Level = "INFO"
//
//	[Server]
//	Address = "127.0.0.1:8080"
//	DataDir = "/var/lib/commcore-relay"
//
// On first start the relay creates DataDir/opaque_setup.bin (the OPRF seed
// and server key pair) and DataDir/token.key. Losing the setup file
// invalidates every registered password. Password files live in
// DataDir/passwords.db; keys and mailboxes are held in memory.
//
// SIGHUP reopens the log file. SIGINT and SIGTERM shut the server down
// gracefully.
//
// The relay never sees plaintext, passwords or private keys; it stores
// ciphertext, public key bundles and OPAQUE password files.
package main
