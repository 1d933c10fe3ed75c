// Package wire encodes and decodes Olm v1 messages in the libolm binary
// layout.
//
// Both message kinds start with the version byte 0x03 followed by
// protobuf-style tagged fields. A normal message carries the sender's
// ratchet key (0x0A), the chain index as a varint (0x10) and the ciphertext
// (0x22), and is followed by an 8-byte truncated MAC over everything before
// it. A pre-key message carries the one-time key (0x0A), base key (0x12),
// identity key (0x1A) and the complete inner normal message (0x22).
//
// Decoders skip unknown fields, reject known fields with the wrong wire type
// and never panic on short or hostile input.
package wire
