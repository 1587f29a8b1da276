package state

import (
	"sync"
	"time"
)

type sessionEntry[S any] struct {
	v       S
	touched time.Time
}

// SessionStore keeps at most one open dialog per admin id.
type SessionStore[S any] struct {
	mu  sync.Mutex
	m   map[int64]sessionEntry[S]
	now func() time.Time
}

func NewSessionStore[S any]() *SessionStore[S] {
	return &SessionStore[S]{m: map[int64]sessionEntry[S]{}, now: time.Now}
}

func (s *SessionStore[S]) Get(admin int64) (S, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[admin]
	return e.v, ok
}

// Set stores v for admin, replacing any open session.
func (s *SessionStore[S]) Set(admin int64, v S) {
	s.mu.Lock()
	s.m[admin] = sessionEntry[S]{v: v, touched: s.now()}
	s.mu.Unlock()
}

// Clear removes the session and reports whether one was open.
func (s *SessionStore[S]) Clear(admin int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.m[admin]
	delete(s.m, admin)
	return ok
}

func (s *SessionStore[S]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

// Sweep drops sessions not touched within ttl and returns the removed admin ids.
func (s *SessionStore[S]) Sweep(ttl time.Duration) []int64 {
	if ttl <= 0 {
		return nil
	}
	cutoff := s.now().Add(-ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int64
	for id, e := range s.m {
		if e.touched.Before(cutoff) {
			delete(s.m, id)
			out = append(out, id)
		}
	}
	return out
}
