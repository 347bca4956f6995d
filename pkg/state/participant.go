// Package state holds the participants whose state is captured into a save
// slot and the registry that tracks which of them are live.
//
// A Participant has a stable identity and hosts any number of Capabilities.
// Each capability is addressed by an assigned key, never by its Go type, so
// two capabilities of the same shape can live side by side on one
// participant.
package state

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Capability serializes and restores one piece of a participant's state.
type Capability interface {
	// CapabilityKey identifies the capability within its participant.
	CapabilityKey() string
	CaptureState() ([]byte, error)
	RestoreState(data []byte) error
}

// Participant is a stable-identity holder of capabilities.
type Participant struct {
	id   string
	name string

	mu    sync.RWMutex
	order []string
	caps  map[string]Capability
}

// NewParticipant creates a participant with a freshly generated id.
func NewParticipant(name string, caps ...Capability) *Participant {
	return NewParticipantWithID(uuid.NewString(), name, caps...)
}

// NewParticipantWithID creates a participant with a caller-assigned id.
// Use it to restore a participant whose id was persisted earlier.
func NewParticipantWithID(id, name string, caps ...Capability) *Participant {
	p := &Participant{
		id:   id,
		name: name,
		caps: make(map[string]Capability),
	}
	for _, c := range caps {
		p.Attach(c)
	}
	return p
}

// ID returns the aggregation key of the participant.
func (p *Participant) ID() string { return p.id }

// Name returns the human-readable label used in logs.
func (p *Participant) Name() string { return p.name }

// Attach adds c, replacing any capability with the same key.
func (p *Participant) Attach(c Capability) {
	if c == nil {
		return
	}
	key := c.CapabilityKey()
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.caps[key]; !exists {
		p.order = append(p.order, key)
	}
	p.caps[key] = c
}

// Detach removes the capability with key. Unknown keys are ignored.
func (p *Participant) Detach(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.caps[key]; !ok {
		return
	}
	delete(p.caps, key)
	for i, k := range p.order {
		if k == key {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// Capabilities returns the attached capability keys in attach order.
func (p *Participant) Capabilities() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.order...)
}

// snapshotCaps returns the attached capabilities in attach order. Callers
// run capability callbacks on the copy so a callback may Attach or Detach on
// its own participant.
func (p *Participant) snapshotCaps() []Capability {
	p.mu.RLock()
	defer p.mu.RUnlock()
	caps := make([]Capability, 0, len(p.order))
	for _, key := range p.order {
		caps = append(caps, p.caps[key])
	}
	return caps
}

// CaptureState collects the state of every capability under its key.
func (p *Participant) CaptureState() (map[string][]byte, error) {
	caps := p.snapshotCaps()
	out := make(map[string][]byte, len(caps))
	for _, c := range caps {
		key := c.CapabilityKey()
		data, err := c.CaptureState()
		if err != nil {
			return nil, fmt.Errorf("capability %q: %w", key, err)
		}
		out[key] = data
	}
	return out, nil
}

// RestoreState applies previously captured states. When ok is false there
// was no saved state and every capability keeps its current (default) state.
// Capabilities without a saved entry are left untouched as well.
func (p *Participant) RestoreState(states map[string][]byte, ok bool) error {
	if !ok {
		return nil
	}
	for _, c := range p.snapshotCaps() {
		key := c.CapabilityKey()
		data, found := states[key]
		if !found {
			continue
		}
		if err := c.RestoreState(data); err != nil {
			return fmt.Errorf("capability %q: %w", key, err)
		}
	}
	return nil
}
