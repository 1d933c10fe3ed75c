package relay

import (
	"errors"
	"net/http"

	"commcore/internal/protocol/opaque"
	"commcore/internal/protocol/x3dh"
	"commcore/internal/services/auth"
)

var (
	// ErrUnauthorized is returned when a request lacks a valid access token
	// for the user it acts on.
	ErrUnauthorized = errors.New("relay: unauthorized")

	// ErrBadRequest is returned for bodies or parameters the relay cannot
	// parse.
	ErrBadRequest = errors.New("relay: bad request")
)

// errorBody is the JSON body of every non-2xx response.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type wireError struct {
	code   string
	status int
	err    error
}

// wireErrors maps the errors the client needs to tell apart to stable codes.
// Anything else is reported as "internal".
var wireErrors = []wireError{
	{"unknown_user", http.StatusNotFound, ErrUnknownUser},
	{"no_keys", http.StatusConflict, ErrNoKeys},
	{"identity_changed", http.StatusConflict, ErrIdentityChanged},
	{"mailbox_full", http.StatusTooManyRequests, ErrMailboxFull},
	{"bad_ack", http.StatusBadRequest, ErrBadAck},
	{"unauthorized", http.StatusUnauthorized, ErrUnauthorized},
	{"bad_request", http.StatusBadRequest, ErrBadRequest},
	{"bad_bundle", http.StatusBadRequest, x3dh.ErrBadBundle},
	{"malformed_message", http.StatusBadRequest, opaque.ErrMalformedMessage},
	{"username_taken", http.StatusConflict, auth.ErrUsernameTaken},
	{"invalid_username", http.StatusBadRequest, auth.ErrInvalidUsername},
	{"unknown_login", http.StatusNotFound, auth.ErrUnknownLogin},
	{"invalid_credentials", http.StatusUnauthorized, auth.ErrInvalidCredentials},
}

func errorFor(err error) (int, errorBody) {
	for _, we := range wireErrors {
		if errors.Is(err, we.err) {
			return we.status, errorBody{Code: we.code, Message: we.err.Error()}
		}
	}
	return http.StatusInternalServerError, errorBody{Code: "internal", Message: "internal error"}
}

func errorFromCode(code string) error {
	for _, we := range wireErrors {
		if we.code == code {
			return we.err
		}
	}
	return nil
}
