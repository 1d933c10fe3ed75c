package opaque

import "errors"

// Kind classifies a ProtocolError.
type Kind int

const (
	KindInvalidLogin Kind = iota + 1
	KindMalformedMessage
	KindInvalidPublicKey
	KindStateConsumed
	KindRandomness
)

func (k Kind) String() string {
	switch k {
	case KindInvalidLogin:
		return "invalid login"
	case KindMalformedMessage:
		return "malformed message"
	case KindInvalidPublicKey:
		return "invalid public key"
	case KindStateConsumed:
		return "state already consumed"
	case KindRandomness:
		return "randomness source failed"
	default:
		return "unknown"
	}
}

// ProtocolError is returned by every operation in this package.
type ProtocolError struct {
	Kind Kind
	Err  error
}

func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return "opaque: " + e.Kind.String()
	}
	return "opaque: " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Is matches any ProtocolError of the same kind.
func (e *ProtocolError) Is(target error) bool {
	t, ok := target.(*ProtocolError)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidLogin     = &ProtocolError{Kind: KindInvalidLogin}
	ErrMalformedMessage = &ProtocolError{Kind: KindMalformedMessage}
	ErrInvalidPublicKey = &ProtocolError{Kind: KindInvalidPublicKey}
	ErrStateConsumed    = &ProtocolError{Kind: KindStateConsumed}
	ErrRandomness       = &ProtocolError{Kind: KindRandomness}
)

// KindOf returns the Kind of err, or 0 if err is not a ProtocolError.
func KindOf(err error) Kind {
	var e *ProtocolError
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func protocolError(kind Kind, err error) error {
	return &ProtocolError{Kind: kind, Err: err}
}
