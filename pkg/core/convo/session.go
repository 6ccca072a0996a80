package convo

import "sync"

// SessionRef holds the server-issued conversation identifier. It starts
// absent, is adopted exactly once from the first successful reply that
// carries one, and is never reset for the life of the conversation.
type SessionRef struct {
	mu  sync.Mutex
	id  string
	set bool
}

// NewSessionRef creates an unset session reference.
func NewSessionRef() *SessionRef {
	return &SessionRef{}
}

// Adopt stores id if no identity has been adopted yet. It returns true only
// when this call set the identity. Empty ids are ignored.
func (s *SessionRef) Adopt(id string) bool {
	if id == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set {
		return false
	}
	s.id = id
	s.set = true
	return true
}

// ID returns the adopted identity and whether one has been adopted.
func (s *SessionRef) ID() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, s.set
}
