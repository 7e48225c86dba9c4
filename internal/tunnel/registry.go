package tunnel

import "sync"

// Registry tracks the live sessions of one listener. Add and Remove are its
// only guarded operations; the lock is never held across I/O.
type Registry struct {
	mu       sync.Mutex
	closed   bool
	sessions map[string]*Session
}

// NewRegistry returns an empty, open registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers s. It returns false once the registry has been closed, in
// which case the caller owns s and must close it.
func (r *Registry) Add(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.sessions[s.ID()] = s
	return true
}

// Remove deregisters the session with the given id. Only the first call for
// an id reports true.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close refuses further Adds and returns a snapshot of the sessions still
// registered. The sessions stay registered until they remove themselves.
func (r *Registry) Close() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
