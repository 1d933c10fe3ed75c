package types

// Envelope is the wire-format message you post/get from the relay.
// Body is the unpadded base64 Olm message of type MessageType.
type Envelope struct {
	From        Username     `json:"from"`
	To          Username     `json:"to"`
	SenderKey   X25519Public `json:"sender_key"`
	MessageType int          `json:"message_type"`
	Body        string       `json:"body"`
	Timestamp   int64        `json:"timestamp"`
}

// DecryptedMessage is what MessageService.ReceiveMessage returns.
type DecryptedMessage struct {
	From      Username  `json:"from"`
	To        Username  `json:"to"`
	SessionID SessionID `json:"session_id"`
	Plaintext []byte    `json:"plaintext"`
	Timestamp int64     `json:"timestamp"`
}
