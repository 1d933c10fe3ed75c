// Package store provides persistence for commcore's device and relay data.
//
// Device state lives in files under the user's home directory. The Olm
// account and sessions are stored as pickles, which are already encrypted
// under the device pickle key; the pickle key itself is sealed under the
// user's passphrase with scrypt and XChaCha20-Poly1305. All file stores are
// concurrency-safe via internal locking.
//
// The relay keeps OPAQUE password files in a bbolt database.
//
// The package includes stores for:
//   - The device pickle key (PickleKeyFileStore)
//   - The pickled Olm account (AccountFileStore)
//   - Pickled Olm sessions (SessionFileStore)
//   - OPAQUE password files (BoltPasswordStore)
package store
