// Package session establishes Olm sessions with peers and runs messages
// through them.
//
// Sessions are stored as pickles, several per peer. Incoming pre-key
// messages are routed to an existing session with Matches before a new
// inbound session is created, so a resent first message does not fork the
// conversation. Sessions written by older libolm builds load through
// UnpickleSessionAuto and are rewritten in the current format on save.
package session
