package call

import "sync"

// Registry tracks the engine's active calls.
type Registry struct {
	mu    sync.RWMutex
	calls map[string]*Call
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{calls: make(map[string]*Call)}
}

// Add registers a call.
func (r *Registry) Add(c *Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[c.ID()] = c
}

// Remove drops a call by ID.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.calls, id)
}

// Find returns a call by ID.
func (r *Registry) Find(id string) (*Call, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.calls[id]
	return c, ok
}

// Calls returns a snapshot of all active calls.
func (r *Registry) Calls() []*Call {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Call, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c)
	}
	return out
}

// Count returns the number of active calls.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.calls)
}

// FindPeerBySID locates a peer across all active calls by its session
// identifier.
func (r *Registry) FindPeerBySID(sid string) (*Call, *Peer) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.calls {
		if p := c.PeerBySID(sid); p != nil {
			return c, p
		}
	}
	return nil, nil
}
