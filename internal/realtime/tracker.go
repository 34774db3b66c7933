package realtime

import "sync"

// Tracker indexes live sessions by the login token they were opened with.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]map[*Session]struct{}
}

func NewTracker() *Tracker {
	return &Tracker{sessions: make(map[string]map[*Session]struct{})}
}

// Track records s under token. The returned func forgets it again.
func (t *Tracker) Track(token string, s *Session) func() {
	t.mu.Lock()
	set, ok := t.sessions[token]
	if !ok {
		set = make(map[*Session]struct{})
		t.sessions[token] = set
	}
	set[s] = struct{}{}
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if set, ok := t.sessions[token]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(t.sessions, token)
			}
		}
	}
}

// CloseAll closes every session opened with token and reports how many
// were closed.
func (t *Tracker) CloseAll(token, reason string) int {
	t.mu.Lock()
	set := t.sessions[token]
	delete(t.sessions, token)
	t.mu.Unlock()

	// Close disposes the registry, which calls back into Track's func.
	for s := range set {
		s.Close(reason)
	}
	return len(set)
}

// Len returns the number of tracked sessions.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, set := range t.sessions {
		n += len(set)
	}
	return n
}
