package search

import "sync"

// Store is the process-scoped session registry. Sessions are created lazily
// on first contact and live for the process lifetime; there is no deletion.
type Store struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

// NewStore constructs an empty session registry.
func NewStore() *Store {
	return &Store{
		sessions: make(map[int64]*Session),
	}
}

// GetOrCreate returns the session for a user, creating it with StepDefault
// if the user has not been seen before. The second return value reports
// whether a new session was created.
func (s *Store) GetOrCreate(userID int64, displayName string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[userID]; ok {
		return sess, false
	}

	sess := &Session{
		ID:          userID,
		DisplayName: displayName,
		Step:        StepDefault,
	}
	s.sessions[userID] = sess
	return sess, true
}

// Get returns the session for a user without creating one.
func (s *Store) Get(userID int64) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userID]
	return sess, ok
}

// Count returns the number of known sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
