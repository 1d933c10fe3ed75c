package store

import (
	"path/filepath"
	"sync"

	"commcore/internal/domain"
)

const credentialsFilename = "credentials.json"

// CredentialFileStore keeps the relay access token from the last login.
type CredentialFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewCredentialFileStore returns a CredentialFileStore rooted at dir.
func NewCredentialFileStore(dir string) *CredentialFileStore {
	return &CredentialFileStore{dir: dir}
}

// SaveCredentials replaces the stored credentials. The OPAQUE session key
// is not written to disk.
func (s *CredentialFileStore) SaveCredentials(creds domain.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	creds.SessionKey = nil
	return writeJSON(filepath.Join(s.dir, credentialsFilename), creds, 0o600)
}

// LoadCredentials returns the stored credentials, or false if there are none.
func (s *CredentialFileStore) LoadCredentials() (domain.Credentials, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var creds domain.Credentials
	found, err := readJSON(filepath.Join(s.dir, credentialsFilename), &creds)
	if err != nil || !found {
		return domain.Credentials{}, false, err
	}
	return creds, true, nil
}

// Compile-time assertion that CredentialFileStore implements domain.CredentialStore.
var _ domain.CredentialStore = (*CredentialFileStore)(nil)
