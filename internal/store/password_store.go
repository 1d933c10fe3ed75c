package store

import (
	"errors"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"commcore/internal/domain"
)

const (
	metadataBucket      = "metadata"
	passwordFilesBucket = "password_files"
	versionKey          = "version"

	boltFormatVersion byte = 1
	maxUsernameSize        = 256
)

// ErrInvalidUsername is returned for empty or oversized usernames.
var ErrInvalidUsername = errors.New("store: invalid username")

// BoltPasswordStore keeps OPAQUE password files in a bbolt database.
type BoltPasswordStore struct {
	db *bolt.DB
}

// OpenBoltPasswordStore creates (or loads) the database at path.
func OpenBoltPasswordStore(path string) (*BoltPasswordStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, err
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(passwordFilesBucket)); err != nil {
			return err
		}
		if v := meta.Get([]byte(versionKey)); v != nil {
			if len(v) != 1 || v[0] != boltFormatVersion {
				return fmt.Errorf("store: incompatible password database version %v", v)
			}
			return nil
		}
		return meta.Put([]byte(versionKey), []byte{boltFormatVersion})
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltPasswordStore{db: db}, nil
}

// SavePasswordFile stores file for username, replacing any previous one.
func (s *BoltPasswordStore) SavePasswordFile(username domain.Username, file []byte) error {
	if !usernameOk(username) {
		return ErrInvalidUsername
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(passwordFilesBucket)).Put([]byte(username), file)
	})
}

// LoadPasswordFile returns the stored file, or false if the user is unknown.
func (s *BoltPasswordStore) LoadPasswordFile(username domain.Username) ([]byte, bool, error) {
	if !usernameOk(username) {
		return nil, false, ErrInvalidUsername
	}
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		// Values are only valid inside the transaction.
		if v := tx.Bucket([]byte(passwordFilesBucket)).Get([]byte(username)); v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

// Close flushes and closes the database.
func (s *BoltPasswordStore) Close() error {
	_ = s.db.Sync()
	return s.db.Close()
}

func usernameOk(u domain.Username) bool {
	return len(u) > 0 && len(u) <= maxUsernameSize
}

// Compile-time assertion that BoltPasswordStore implements domain.PasswordFileStore.
var _ domain.PasswordFileStore = (*BoltPasswordStore)(nil)
