// Package aggregate merges live participant and key-value state into a slot
// container and applies a loaded container back onto the live state.
package aggregate

import (
	"context"

	saveerrors "github.com/jllopis/slotsave/pkg/errors"
	"github.com/jllopis/slotsave/pkg/kv"
	"github.com/jllopis/slotsave/pkg/slot"
	"github.com/jllopis/slotsave/pkg/state"
)

// Aggregator moves state between a Registry, a kv.Store and slot containers.
type Aggregator struct {
	registry *state.Registry
	values   *kv.Store
	ext      string
}

// New creates an aggregator. ext is the slot extension used to build the
// metadata key.
func New(registry *state.Registry, values *kv.Store, ext string) *Aggregator {
	return &Aggregator{registry: registry, values: values, ext: ext}
}

// Collect returns base merged with the live state. Entries in base that no
// live participant produces are kept, so participants that are not
// registered right now keep their saved state.
//
// Participant ids, the metadata key and kv keys share one key space. A kv
// key naming a registered participant, the metadata key or a stored
// non-value entry is rejected with CodeInvalidInput and nothing is merged.
func (a *Aggregator) Collect(_ context.Context, base slot.Container, meta slot.Metadata) (slot.Container, error) {
	metaKey := slot.FileName(meta.SlotName, a.ext)
	participants := a.registry.Participants()
	values := a.values.Snapshot()

	ids := make(map[string]struct{}, len(participants))
	for _, p := range participants {
		if p.ID() == metaKey {
			return nil, keyConflict(metaKey, "participant id equals the slot metadata key").
				WithContext("participant", p.Name())
		}
		ids[p.ID()] = struct{}{}
	}
	for key := range values {
		if key == metaKey {
			return nil, keyConflict(key, "kv key equals the slot metadata key")
		}
		if _, ok := ids[key]; ok {
			return nil, keyConflict(key, "kv key equals a registered participant id")
		}
		if e, ok := base[key]; ok && e.Kind != slot.KindValue {
			return nil, keyConflict(key, "kv key would overwrite a stored "+string(e.Kind)+" entry")
		}
	}

	out := base.Clone()

	for _, p := range participants {
		states, err := p.CaptureState()
		if err != nil {
			return nil, saveerrors.New(saveerrors.CodeCapability, "capture participant state", err).
				WithContext("participant", p.ID()).
				WithContext("name", p.Name())
		}
		out[p.ID()] = slot.ParticipantEntry(states)
	}

	for key, v := range values {
		out[key] = slot.ValueEntry(v)
	}
	for _, key := range a.values.Deleted() {
		if e, ok := out[key]; ok && e.Kind == slot.KindValue {
			delete(out, key)
		}
	}

	out[metaKey] = slot.MetadataEntry(meta)
	return out, nil
}

func keyConflict(key, reason string) *saveerrors.SaveError {
	return saveerrors.New(saveerrors.CodeInvalidInput, reason, nil).WithContext("key", key)
}

// Apply restores every registered participant from c and replaces the
// key-value store with the values c holds. A participant without an entry
// is handed "none" and keeps its defaults.
func (a *Aggregator) Apply(_ context.Context, c slot.Container) error {
	for _, p := range a.registry.Participants() {
		states, ok := c.Participant(p.ID())
		if err := p.RestoreState(states, ok); err != nil {
			return saveerrors.New(saveerrors.CodeCapability, "restore participant state", err).
				WithContext("participant", p.ID()).
				WithContext("name", p.Name())
		}
	}
	a.values.Replace(c.Values())
	return nil
}
