package olm

import (
	"errors"
	"fmt"
)

// Kind classifies an olm failure.
type Kind int

const (
	KindInvalidKeyFormat Kind = iota + 1
	KindInvalidMessageType
	KindDecryptionFailed
	KindInvalidPickleFormat
	KindIncorrectPickleKey
	KindSerializationError
	KindOneTimeKeyAlreadyUsed
	KindRandomness
)

func (k Kind) String() string {
	switch k {
	case KindInvalidKeyFormat:
		return "invalid key format"
	case KindInvalidMessageType:
		return "invalid message type"
	case KindDecryptionFailed:
		return "decryption failed"
	case KindInvalidPickleFormat:
		return "invalid pickle format"
	case KindIncorrectPickleKey:
		return "incorrect pickle key"
	case KindSerializationError:
		return "serialization error"
	case KindOneTimeKeyAlreadyUsed:
		return "one-time key not found or already used"
	case KindRandomness:
		return "randomness source failed"
	default:
		return fmt.Sprintf("olm error %d", int(k))
	}
}

// Error is the error type returned by this package.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "olm: " + e.Kind.String()
	}
	return "olm: " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the bare sentinels below work
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidKeyFormat      = &Error{Kind: KindInvalidKeyFormat}
	ErrInvalidMessageType    = &Error{Kind: KindInvalidMessageType}
	ErrDecryptionFailed      = &Error{Kind: KindDecryptionFailed}
	ErrInvalidPickleFormat   = &Error{Kind: KindInvalidPickleFormat}
	ErrIncorrectPickleKey    = &Error{Kind: KindIncorrectPickleKey}
	ErrSerialization         = &Error{Kind: KindSerializationError}
	ErrOneTimeKeyAlreadyUsed = &Error{Kind: KindOneTimeKeyAlreadyUsed}
	ErrRandomness            = &Error{Kind: KindRandomness}
)

// KindOf returns the Kind of err, or 0 if err is not from this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func newError(kind Kind, err error) error {
	return &Error{Kind: kind, Err: err}
}
