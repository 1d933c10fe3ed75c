package store

import (
	"cmp"
	"maps"
	"path/filepath"
	"slices"
	"sync"

	"commcore/internal/domain"
)

const sessionsFilename = "sessions.json"

// SessionFileStore keeps every pickled session in one file, grouped by peer.
type SessionFileStore struct {
	path string
	mu   sync.Mutex
}

// NewSessionFileStore returns a SessionFileStore rooted at dir.
func NewSessionFileStore(dir string) *SessionFileStore {
	return &SessionFileStore{path: filepath.Join(dir, sessionsFilename)}
}

type sessionFile map[domain.Username]map[domain.SessionID]domain.SessionRecord

func (s *SessionFileStore) load() (sessionFile, error) {
	sessions := sessionFile{}
	_, err := readJSON(s.path, &sessions)
	return sessions, err
}

// SaveSession inserts or replaces the record with the same session ID.
func (s *SessionFileStore) SaveSession(record domain.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.load()
	if err != nil {
		return err
	}
	if sessions[record.PeerUsername] == nil {
		sessions[record.PeerUsername] = map[domain.SessionID]domain.SessionRecord{}
	}
	sessions[record.PeerUsername][record.SessionID] = record
	return writeJSON(s.path, sessions, 0o600)
}

// LoadSessions returns the peer's sessions, most recently used first. Ties
// are broken by session ID so the order is stable.
func (s *SessionFileStore) LoadSessions(peer domain.Username) ([]domain.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.load()
	if err != nil {
		return nil, err
	}
	out := slices.Collect(maps.Values(sessions[peer]))
	slices.SortFunc(out, func(a, b domain.SessionRecord) int {
		if c := cmp.Compare(b.LastUsed, a.LastUsed); c != 0 {
			return c
		}
		return cmp.Compare(a.SessionID, b.SessionID)
	})
	if out == nil {
		out = []domain.SessionRecord{}
	}
	return out, nil
}

var _ domain.SessionStore = (*SessionFileStore)(nil)
