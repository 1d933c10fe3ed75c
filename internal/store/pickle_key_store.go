package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"commcore/internal/domain"
)

const pickleKeyFilename = "pickle_key.sealed"

// ErrNoPickleKey is returned before the device has been initialised.
var ErrNoPickleKey = errors.New("store: no pickle key; run init first")

// PickleKeyFileStore keeps the device pickle key on disk, sealed under the
// user's passphrase.
type PickleKeyFileStore struct {
	dir    string
	params ScryptParams
	mu     sync.Mutex
}

// NewPickleKeyFileStore returns a PickleKeyFileStore rooted at dir.
func NewPickleKeyFileStore(dir string) *PickleKeyFileStore {
	return &PickleKeyFileStore{dir: dir, params: DefaultScrypt}
}

// WithScrypt overrides the KDF cost, mainly for tests.
func (s *PickleKeyFileStore) WithScrypt(p ScryptParams) *PickleKeyFileStore {
	s.params = p
	return s
}

// SavePickleKey encrypts key under passphrase and writes it to disk.
func (s *PickleKeyFileStore) SavePickleKey(passphrase string, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ct, err := seal(passphrase, key, s.params)
	if err != nil {
		return err
	}
	return writeFile(filepath.Join(s.dir, pickleKeyFilename), ct, 0o600)
}

// LoadPickleKey reads and decrypts the pickle key.
func (s *PickleKeyFileStore) LoadPickleKey(passphrase string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := readFile(filepath.Join(s.dir, pickleKeyFilename))
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrNoPickleKey
	}
	key, err := open(passphrase, b)
	if err != nil {
		return nil, fmt.Errorf("load pickle key: %w", err)
	}
	return key, nil
}

// Exists reports whether a pickle key has been written.
func (s *PickleKeyFileStore) Exists() bool {
	_, err := os.Stat(filepath.Join(s.dir, pickleKeyFilename))
	return err == nil
}

// Compile-time assertion that PickleKeyFileStore implements domain.PickleKeyStore.
var _ domain.PickleKeyStore = (*PickleKeyFileStore)(nil)
