package negotiate

import "sync"

// Session remembers which warnings were shown during this process. It is
// never persisted.
type Session struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{seen: make(map[string]struct{})}
}

// Seen reports whether key was observed.
func (s *Session) Seen(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[key]
	return ok
}

// Observe records key. Empty keys are ignored.
func (s *Session) Observe(key string) {
	if key == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[key] = struct{}{}
}
