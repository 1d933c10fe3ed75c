// Package app wires application dependencies for the CLI.
//
// LoadConfig merges the TOML config with command-line overrides. New builds
// the file stores, the relay client and the account, session, message and
// auth services on top of them, exposing the result as an App.
package app
