// Package commands defines the commcore CLI and wires dependencies for
// subcommands.
//
// Commands
//
//   - signup         Register a username and password with the relay (OPAQUE)
//   - login          Log in and save the relay access token
//   - init           Create the local Olm account
//   - fingerprint    Print the identity fingerprint
//   - keys publish   Upload one-time keys and the fallback key
//   - keys rotate    Replace the fallback key
//   - start-session  Claim a peer's one-time key and open a session
//   - send           Encrypt and send a message
//   - recv           Fetch and decrypt queued messages
//
// # Implementation
//
// The root command loads the TOML config, applies flag overrides and builds
// the app (stores, services, relay client) before any subcommand runs.
package commands
