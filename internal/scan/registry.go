package scan

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrSessionNotFound is returned for unknown or evicted session ids
var ErrSessionNotFound = errors.New("session not found")

type entry struct {
	mu      sync.Mutex
	session *Session
}

// Registry owns the live sessions. Each session has its own lock so
// requests against one session are serialized without blocking others.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	now      func() time.Time
}

// NewRegistry creates an empty registry. A nil clock defaults to time.Now.
func NewRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{sessions: make(map[string]*entry), now: now}
}

// Now returns the registry clock
func (r *Registry) Now() time.Time {
	return r.now()
}

// Start creates and registers a new session
func (r *Registry) Start(opts Options) View {
	s := NewSession(uuid.NewString(), opts, r.now())

	r.mu.Lock()
	r.sessions[s.ID] = &entry{session: s}
	r.mu.Unlock()

	return s.Snapshot(r.now())
}

// Use runs fn with exclusive access to the session
func (r *Registry) Use(id string, fn func(*Session) error) error {
	r.mu.RLock()
	e, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// evicted while waiting for the lock
	r.mu.RLock()
	_, ok = r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	return fn(e.session)
}

// Get returns a snapshot of the session
func (r *Registry) Get(id string) (View, error) {
	var view View
	err := r.Use(id, func(s *Session) error {
		view = s.Snapshot(r.now())
		return nil
	})
	return view, err
}

// Delete removes the session
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep evicts sessions idle for longer than idle and returns how many were removed
func (r *Registry) Sweep(idle time.Duration) int {
	cutoff := r.now().Add(-idle)

	r.mu.RLock()
	var stale []string
	for id, e := range r.sessions {
		if !e.mu.TryLock() {
			continue
		}
		if e.session.LastActivity.Before(cutoff) {
			stale = append(stale, id)
		}
		e.mu.Unlock()
	}
	r.mu.RUnlock()

	removed := 0
	for _, id := range stale {
		if r.Delete(id) {
			removed++
		}
	}
	return removed
}
