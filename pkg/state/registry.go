package state

import "sync"

// Registry tracks the live participants. Iteration follows registration order.
// Ids are not checked for uniqueness; registering two participants with the
// same id is left to the caller to avoid.
type Registry struct {
	mu      sync.RWMutex
	members []*Participant
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds p. Nil participants are ignored.
func (r *Registry) Register(p *Participant) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members = append(r.members, p)
}

// Unregister removes p and reports whether it was registered.
func (r *Registry) Unregister(p *Participant) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, m := range r.members {
		if m == p {
			r.members = append(r.members[:i], r.members[i+1:]...)
			return true
		}
	}
	return false
}

// Participants returns a snapshot of the live participants.
func (r *Registry) Participants() []*Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Participant(nil), r.members...)
}

// Len returns the number of registered participants.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
