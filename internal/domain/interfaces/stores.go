package interfaces

import domaintypes "commcore/internal/domain/types"

// PickleKeyStore keeps the device pickle key encrypted under a passphrase.
type PickleKeyStore interface {
	SavePickleKey(passphrase string, key []byte) error
	LoadPickleKey(passphrase string) ([]byte, error)
}

// AccountStore persists the pickled Olm account.
type AccountStore interface {
	SaveAccount(record domaintypes.AccountRecord) error
	LoadAccount() (domaintypes.AccountRecord, bool, error)
}

// SessionStore persists pickled Olm sessions, several per peer.
type SessionStore interface {
	SaveSession(record domaintypes.SessionRecord) error
	// LoadSessions returns the peer's sessions, most recently used first.
	LoadSessions(peer domaintypes.Username) ([]domaintypes.SessionRecord, error)
}

// PasswordFileStore persists OPAQUE password files on the server.
type PasswordFileStore interface {
	SavePasswordFile(username domaintypes.Username, file []byte) error
	LoadPasswordFile(username domaintypes.Username) ([]byte, bool, error)
}

// CredentialStore keeps the relay access token from the last login.
type CredentialStore interface {
	SaveCredentials(creds domaintypes.Credentials) error
	LoadCredentials() (domaintypes.Credentials, bool, error)
}
