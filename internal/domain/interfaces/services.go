package interfaces

import (
	"context"

	domaintypes "commcore/internal/domain/types"
)

// AccountService creates the local account and manages its one-time keys.
type AccountService interface {
	CreateAccount(passphrase string, profile domaintypes.AccountProfile) (
		domaintypes.IdentityKeys,
		domaintypes.Fingerprint,
		error,
	)
	IdentityKeys(passphrase string) (domaintypes.IdentityKeys, error)
	FingerprintIdentity(passphrase string) (domaintypes.Fingerprint, error)
	GenerateOneTimeKeys(passphrase string, count int) ([]domaintypes.OneTimeKey, error)
	PublishKeys(ctx context.Context, passphrase string) (domaintypes.KeyBundle, error)
}

// SessionService establishes Olm sessions and runs messages through them.
type SessionService interface {
	InitiateSession(
		ctx context.Context,
		passphrase string,
		peer domaintypes.Username,
	) (domaintypes.SessionRecord, error)
	Encrypt(
		passphrase string,
		peer domaintypes.Username,
		plaintext []byte,
	) (messageType int, body string, err error)
	Decrypt(
		passphrase string,
		peer domaintypes.Username,
		senderKey domaintypes.X25519Public,
		messageType int,
		body string,
	) (domaintypes.SessionID, []byte, error)
}

// MessageService encrypts, sends, fetches and decrypts messages.
type MessageService interface {
	SendMessage(
		ctx context.Context,
		passphrase string,
		from domaintypes.Username,
		to domaintypes.Username,
		plaintext []byte,
	) error
	ReceiveMessage(
		ctx context.Context,
		passphrase string,
		me domaintypes.Username,
		limit int,
	) ([]domaintypes.DecryptedMessage, error)
}

// AuthService runs the client side of OPAQUE registration and login.
type AuthService interface {
	Register(ctx context.Context, username domaintypes.Username, password []byte) error
	Login(
		ctx context.Context,
		username domaintypes.Username,
		password []byte,
	) (domaintypes.Credentials, error)
}
