package account

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"time"
	"unicode"

	"gopkg.in/op/go-logging.v1"

	"commcore/internal/crypto"
	"commcore/internal/domain"
	"commcore/internal/protocol/olm"
	"commcore/internal/util/memzero"
)

const (
	// minPassphraseLength defines the minimum number of characters required for a passphrase.
	minPassphraseLength = 12

	// DefaultOneTimeKeys is how many keys PublishKeys tops the pool up to.
	DefaultOneTimeKeys = 20
)

var (
	// ErrWeakPassphrase is returned when the passphrase fails the strength policy.
	ErrWeakPassphrase = fmt.Errorf(
		"passphrase is too weak (must be at least %d characters and include upper, lower, "+
			"number, and symbol)",
		minPassphraseLength,
	)

	// ErrAccountExists is returned by CreateAccount on an initialised device.
	ErrAccountExists = errors.New("account already exists on this device")

	// ErrNoAccount is returned before CreateAccount has run.
	ErrNoAccount = errors.New("no account on this device; run init first")
)

// Service owns the device's Olm account.
//
// The account is stored as a modern pickle under a random 32-byte pickle
// key. The pickle key is itself sealed under the user's passphrase by the
// PickleKeyStore, so every operation takes the passphrase.
type Service struct {
	keys     domain.PickleKeyStore
	accounts domain.AccountStore
	relay    domain.RelayClient
	log      *logging.Logger
	rand     io.Reader
	now      func() time.Time
}

// New returns an account service. relay may be nil for offline use.
func New(
	keys domain.PickleKeyStore,
	accounts domain.AccountStore,
	relay domain.RelayClient,
	log *logging.Logger,
) *Service {
	return &Service{
		keys:     keys,
		accounts: accounts,
		relay:    relay,
		log:      log,
		rand:     rand.Reader,
		now:      time.Now,
	}
}

// CreateAccount creates a new account with a fresh fallback key and saves
// it. It returns the public identity keys and their fingerprint.
func (s *Service) CreateAccount(
	passphrase string,
	profile domain.AccountProfile,
) (domain.IdentityKeys, domain.Fingerprint, error) {
	if !isSecurePassphrase(passphrase) {
		return domain.IdentityKeys{}, "", ErrWeakPassphrase
	}
	if _, ok, err := s.accounts.LoadAccount(); err != nil {
		return domain.IdentityKeys{}, "", err
	} else if ok {
		return domain.IdentityKeys{}, "", ErrAccountExists
	}

	var key olm.PickleKey
	if _, err := io.ReadFull(s.rand, key[:]); err != nil {
		return domain.IdentityKeys{}, "", fmt.Errorf("generate pickle key: %w", err)
	}
	defer memzero.Zero(key[:])

	acc, err := olm.NewAccountFrom(s.rand)
	if err != nil {
		return domain.IdentityKeys{}, "", err
	}
	if err := acc.GenerateFallbackKey(); err != nil {
		return domain.IdentityKeys{}, "", err
	}

	if err := s.keys.SavePickleKey(passphrase, key[:]); err != nil {
		return domain.IdentityKeys{}, "", err
	}
	if err := s.save(acc, key, profile); err != nil {
		return domain.IdentityKeys{}, "", err
	}

	ids := acc.IdentityKeys()
	s.log.Noticef("created account %s for %s", crypto.FingerprintIdentity(ids), profile.Username)
	return ids, crypto.FingerprintIdentity(ids), nil
}

// Profile returns the relay profile stored with the account.
func (s *Service) Profile() (domain.AccountProfile, error) {
	rec, ok, err := s.accounts.LoadAccount()
	if err != nil {
		return domain.AccountProfile{}, err
	}
	if !ok {
		return domain.AccountProfile{}, ErrNoAccount
	}
	return rec.Profile, nil
}

// IdentityKeys returns the account's public identity keys.
func (s *Service) IdentityKeys(passphrase string) (domain.IdentityKeys, error) {
	var ids domain.IdentityKeys
	err := s.WithAccount(passphrase, func(acc *olm.Account, _ olm.PickleKey) (bool, error) {
		ids = acc.IdentityKeys()
		return false, nil
	})
	return ids, err
}

// FingerprintIdentity returns a short fingerprint of the identity keys.
func (s *Service) FingerprintIdentity(passphrase string) (domain.Fingerprint, error) {
	ids, err := s.IdentityKeys(passphrase)
	if err != nil {
		return "", err
	}
	return crypto.FingerprintIdentity(ids), nil
}

// GenerateOneTimeKeys adds count keys to the pool and returns every key not
// yet published.
func (s *Service) GenerateOneTimeKeys(passphrase string, count int) ([]domain.OneTimeKey, error) {
	var out []domain.OneTimeKey
	err := s.WithAccount(passphrase, func(acc *olm.Account, _ olm.PickleKey) (bool, error) {
		if err := acc.GenerateOneTimeKeys(count); err != nil {
			return false, err
		}
		out = acc.UnpublishedOneTimeKeys()
		return true, nil
	})
	return out, err
}

// PublishKeys uploads a signed bundle of the unpublished keys and marks them
// as published. If the pool has no unpublished keys it is topped up first.
func (s *Service) PublishKeys(ctx context.Context, passphrase string) (domain.KeyBundle, error) {
	if s.relay == nil {
		return domain.KeyBundle{}, errors.New("no relay configured")
	}
	profile, err := s.Profile()
	if err != nil {
		return domain.KeyBundle{}, err
	}

	var bundle domain.KeyBundle
	err = s.WithAccount(passphrase, func(acc *olm.Account, _ olm.PickleKey) (bool, error) {
		if len(acc.UnpublishedOneTimeKeys()) == 0 {
			if err := acc.GenerateOneTimeKeys(DefaultOneTimeKeys); err != nil {
				return false, err
			}
		}
		bundle = BuildBundle(acc, profile.Username)
		if err := s.relay.UploadKeys(ctx, bundle); err != nil {
			return false, fmt.Errorf("upload keys: %w", err)
		}
		acc.MarkKeysAsPublished()
		return true, nil
	})
	if err != nil {
		return domain.KeyBundle{}, err
	}
	s.log.Infof("published %d one-time keys for %s", len(bundle.OneTimeKeys), profile.Username)
	return bundle, nil
}

// RotateFallbackKey replaces the fallback key. The previous one is kept
// until the next rotation so in-flight pre-key messages still decrypt.
func (s *Service) RotateFallbackKey(passphrase string) error {
	return s.WithAccount(passphrase, func(acc *olm.Account, _ olm.PickleKey) (bool, error) {
		acc.ForgetOldFallbackKey()
		return true, acc.GenerateFallbackKey()
	})
}

// WithAccount loads the account, runs fn, and saves the account again if fn
// reports a change. fn also receives the pickle key for session storage.
func (s *Service) WithAccount(
	passphrase string,
	fn func(acc *olm.Account, key olm.PickleKey) (changed bool, err error),
) error {
	rec, ok, err := s.accounts.LoadAccount()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoAccount
	}
	raw, err := s.keys.LoadPickleKey(passphrase)
	if err != nil {
		return err
	}
	key, err := olm.PickleKeyFromBytes(raw)
	defer memzero.ZeroAll(raw, key[:])
	if err != nil {
		return err
	}

	acc, err := olm.UnpickleAccount(rec.Pickle, key)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	changed, err := fn(acc, key)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return s.save(acc, key, rec.Profile)
}

func (s *Service) save(acc *olm.Account, key olm.PickleKey, profile domain.AccountProfile) error {
	pickle, err := acc.Pickle(key)
	if err != nil {
		return err
	}
	return s.accounts.SaveAccount(domain.AccountRecord{
		Profile:    profile,
		Pickle:     pickle,
		UpdatedUTC: s.now().Unix(),
	})
}

// BuildBundle assembles and signs the bundle of unpublished keys.
func BuildBundle(acc *olm.Account, username domain.Username) domain.KeyBundle {
	b := domain.KeyBundle{
		Username:     username,
		IdentityKeys: acc.IdentityKeys(),
		OneTimeKeys:  acc.UnpublishedOneTimeKeys(),
	}
	if fb, ok := acc.CurrentFallbackKey(); ok {
		b.FallbackKey = &fb
	}
	b.Signature = acc.Sign(b.SignedBytes())
	return b
}

// isSecurePassphrase enforces a basic strength policy.
func isSecurePassphrase(passphrase string) bool {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	if len(passphrase) < minPassphraseLength {
		return false
	}
	for _, r := range passphrase {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	return hasUpper && hasLower && hasDigit && hasSymbol
}

// Compile-time assertion that Service implements domain.AccountService.
var _ domain.AccountService = (*Service)(nil)
