package opaque

import (
	"encoding/binary"
	"fmt"
)

const (
	tagRegistrationRequest  byte = 0x01
	tagRegistrationResponse byte = 0x02
	tagRegistrationRecord   byte = 0x03
	tagKE1                  byte = 0x04
	tagKE2                  byte = 0x05
	tagKE3                  byte = 0x06
	tagPasswordFile         byte = 0x07
)

type registrationRequest struct {
	BlindedMessage []byte
}

type registrationResponse struct {
	EvaluatedMessage []byte
	ServerPublicKey  []byte
}

// registrationRecord is the client's upload; the server stores it as the
// password file.
type registrationRecord struct {
	ClientPublicKey []byte
	MaskingKey      []byte
	Envelope        []byte
}

type ke1 struct {
	BlindedMessage []byte
	ClientNonce    []byte
	ClientKeyshare []byte
}

type credentialResponse struct {
	EvaluatedMessage []byte
	MaskingNonce     []byte
	MaskedResponse   []byte
}

type ke2 struct {
	credentialResponse
	ServerNonce    []byte
	ServerKeyshare []byte
	ServerMAC      []byte
}

type ke3 struct {
	ClientMAC []byte
}

// encode frames fields after tag, each with a 2-byte length.
func encode(tag byte, fields ...[]byte) []byte {
	n := 1
	for _, f := range fields {
		n += 2 + len(f)
	}
	out := make([]byte, 0, n)
	out = append(out, tag)
	for _, f := range fields {
		out = binary.BigEndian.AppendUint16(out, uint16(len(f)))
		out = append(out, f...)
	}
	return out
}

// decode checks the tag and splits exactly len(sizes) fields of the given
// sizes, rejecting anything left over.
func decode(raw []byte, tag byte, sizes ...int) ([][]byte, error) {
	if len(raw) < 1 || raw[0] != tag {
		return nil, protocolError(KindMalformedMessage, fmt.Errorf("expected message tag %#x", tag))
	}
	buf := raw[1:]
	out := make([][]byte, 0, len(sizes))
	for i, size := range sizes {
		if len(buf) < 2 {
			return nil, protocolError(KindMalformedMessage, fmt.Errorf("field %d truncated", i))
		}
		l := int(binary.BigEndian.Uint16(buf))
		buf = buf[2:]
		if l != size || len(buf) < l {
			return nil, protocolError(KindMalformedMessage, fmt.Errorf("field %d has bad length %d", i, l))
		}
		out = append(out, append([]byte(nil), buf[:l]...))
		buf = buf[l:]
	}
	if len(buf) != 0 {
		return nil, protocolError(KindMalformedMessage, fmt.Errorf("%d trailing bytes", len(buf)))
	}
	return out, nil
}

func (m *registrationRequest) marshal() []byte {
	return encode(tagRegistrationRequest, m.BlindedMessage)
}

func unmarshalRegistrationRequest(raw []byte) (*registrationRequest, error) {
	f, err := decode(raw, tagRegistrationRequest, Noe)
	if err != nil {
		return nil, err
	}
	return &registrationRequest{BlindedMessage: f[0]}, nil
}

func (m *registrationResponse) marshal() []byte {
	return encode(tagRegistrationResponse, m.EvaluatedMessage, m.ServerPublicKey)
}

func unmarshalRegistrationResponse(raw []byte) (*registrationResponse, error) {
	f, err := decode(raw, tagRegistrationResponse, Noe, Npk)
	if err != nil {
		return nil, err
	}
	return &registrationResponse{EvaluatedMessage: f[0], ServerPublicKey: f[1]}, nil
}

func (m *registrationRecord) marshal(tag byte) []byte {
	return encode(tag, m.ClientPublicKey, m.MaskingKey, m.Envelope)
}

func unmarshalRegistrationRecord(raw []byte, tag byte) (*registrationRecord, error) {
	f, err := decode(raw, tag, Npk, Nh, envelopeSize)
	if err != nil {
		return nil, err
	}
	return &registrationRecord{ClientPublicKey: f[0], MaskingKey: f[1], Envelope: f[2]}, nil
}

func (m *ke1) marshal() []byte {
	return encode(tagKE1, m.BlindedMessage, m.ClientNonce, m.ClientKeyshare)
}

// serialize is the raw concatenation used inside the transcript.
func (m *ke1) serialize() []byte {
	return concat(m.BlindedMessage, m.ClientNonce, m.ClientKeyshare)
}

func unmarshalKE1(raw []byte) (*ke1, error) {
	f, err := decode(raw, tagKE1, Noe, Nn, Npk)
	if err != nil {
		return nil, err
	}
	return &ke1{BlindedMessage: f[0], ClientNonce: f[1], ClientKeyshare: f[2]}, nil
}

func (m *credentialResponse) serialize() []byte {
	return concat(m.EvaluatedMessage, m.MaskingNonce, m.MaskedResponse)
}

func (m *ke2) marshal() []byte {
	return encode(tagKE2,
		m.EvaluatedMessage, m.MaskingNonce, m.MaskedResponse,
		m.ServerNonce, m.ServerKeyshare, m.ServerMAC)
}

func unmarshalKE2(raw []byte) (*ke2, error) {
	f, err := decode(raw, tagKE2, Noe, Nn, Npk+envelopeSize, Nn, Npk, Nm)
	if err != nil {
		return nil, err
	}
	return &ke2{
		credentialResponse: credentialResponse{
			EvaluatedMessage: f[0],
			MaskingNonce:     f[1],
			MaskedResponse:   f[2],
		},
		ServerNonce:    f[3],
		ServerKeyshare: f[4],
		ServerMAC:      f[5],
	}, nil
}

func (m *ke3) marshal() []byte { return encode(tagKE3, m.ClientMAC) }

func unmarshalKE3(raw []byte) (*ke3, error) {
	f, err := decode(raw, tagKE3, Nm)
	if err != nil {
		return nil, err
	}
	return &ke3{ClientMAC: f[0]}, nil
}

func concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// lengthPrefixed returns I2OSP(len(b), 2) || b.
func lengthPrefixed(b []byte) []byte {
	return append(i2osp2(len(b)), b...)
}
