package types

// SessionRecord is a pickled Olm session with a peer. LastUsed is in Unix
// nanoseconds.
type SessionRecord struct {
	PeerUsername Username     `json:"peer_username"`
	PeerKey      X25519Public `json:"peer_key"`
	SessionID    SessionID    `json:"session_id"`
	Pickle       string       `json:"pickle"`
	CreatedUTC   int64        `json:"created_utc"`
	LastUsed     int64        `json:"last_used"`
}
