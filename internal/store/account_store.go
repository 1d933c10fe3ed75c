package store

import (
	"path/filepath"
	"sync"

	"commcore/internal/domain"
)

const accountFilename = "account.json"

// AccountFileStore persists the pickled Olm account to disk. The pickle is
// already encrypted, so the file is plain JSON.
type AccountFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewAccountFileStore returns an AccountFileStore rooted at dir.
func NewAccountFileStore(dir string) *AccountFileStore {
	return &AccountFileStore{dir: dir}
}

// SaveAccount replaces the stored account record.
func (s *AccountFileStore) SaveAccount(record domain.AccountRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return writeJSON(filepath.Join(s.dir, accountFilename), record, 0o600)
}

// LoadAccount returns the stored record, or false if none exists yet.
func (s *AccountFileStore) LoadAccount() (domain.AccountRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var record domain.AccountRecord
	found, err := readJSON(filepath.Join(s.dir, accountFilename), &record)
	if err != nil || !found {
		return domain.AccountRecord{}, false, err
	}
	return record, true, nil
}

// Compile-time assertion that AccountFileStore implements domain.AccountStore.
var _ domain.AccountStore = (*AccountFileStore)(nil)
