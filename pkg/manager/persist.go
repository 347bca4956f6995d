package manager

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/slotsave/pkg/slot"
	"github.com/jllopis/slotsave/pkg/telemetry"
)

// Save merges the live state into the active slot's container and writes
// it. With no active slot it logs a warning and returns nil without touching
// storage.
func (m *Manager) Save(ctx context.Context) error {
	ctx, span := m.startSpan(ctx, "Manager.Save")
	defer span.End()

	m.mu.Lock()
	ev, err := m.saveLocked(ctx)
	m.mu.Unlock()
	if err != nil {
		return m.fail(ctx, span, "save", err)
	}
	if ev != nil {
		m.listeners.emit([]Event{*ev})
	}
	return nil
}

// Load reads the active slot's container and applies it to the registered
// participants and the key-value store. With no active slot it logs a
// warning and returns nil without touching storage.
func (m *Manager) Load(ctx context.Context) error {
	ctx, span := m.startSpan(ctx, "Manager.Load")
	defer span.End()

	m.mu.Lock()
	ev, err := m.loadLocked(ctx)
	m.mu.Unlock()
	if err != nil {
		return m.fail(ctx, span, "load", err)
	}
	if ev != nil {
		m.listeners.emit([]Event{*ev})
	}
	return nil
}

// saveLocked returns the event to emit once m.mu is released, or nil when
// there was nothing to save.
func (m *Manager) saveLocked(ctx context.Context) (*Event, error) {
	if m.active == nil {
		m.logger.WarnContext(ctx, "save skipped: no active slot")
		return nil, nil
	}

	now := m.clock()
	meta := m.active.AddPlayed(now.Sub(m.activeSince))
	meta.CurrentSceneIndex = m.scene()

	base, err := m.store.Read(ctx, meta.SlotName)
	if err != nil {
		return nil, err
	}
	merged, err := m.agg.Collect(ctx, base, meta)
	if err != nil {
		return nil, err
	}
	if err := m.store.Write(ctx, meta.SlotName, merged); err != nil {
		return nil, err
	}

	m.active = &meta
	m.activeSince = now
	m.values.MarkSynced()

	attrs := telemetry.SlotAttributes(meta.SlotName, meta.CurrentSceneIndex, meta.TimePlayed)
	attrs = append(attrs, telemetry.ContainerAttributes(len(merged), m.registry.Len())...)
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
	m.metrics.RecordSave(ctx, meta.SlotName, len(merged))
	m.logger.InfoContext(ctx, "slot saved", "slot", meta.SlotName, "entries", len(merged), "time_played", meta.TimePlayed)

	ev := m.newEvent(EventSlotSaved, meta.SlotName)
	return &ev, nil
}

func (m *Manager) loadLocked(ctx context.Context) (*Event, error) {
	if m.active == nil {
		m.logger.WarnContext(ctx, "load skipped: no active slot")
		return nil, nil
	}

	name := m.active.SlotName
	c, err := m.store.Read(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(c) == 0 {
		m.logger.WarnContext(ctx, "slot has no saved state", "slot", name)
	}
	if err := m.agg.Apply(ctx, c); err != nil {
		return nil, err
	}
	if meta, ok := c.Metadata(m.metaKey(name)); ok {
		m.active = &meta
	}
	m.activeSince = m.clock()

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String(telemetry.AttrSlotName, name),
		attribute.Int(telemetry.AttrEntriesCount, len(c)),
	)
	m.metrics.RecordLoad(ctx, name)
	m.logger.InfoContext(ctx, "slot loaded", "slot", name, "entries", len(c))

	ev := m.newEvent(EventSlotLoaded, name)
	return &ev, nil
}

// SlotEntries returns how many entries the container of name holds, by kind.
func (m *Manager) SlotEntries(ctx context.Context, name string) (map[slot.EntryKind]int, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	c, err := m.store.Read(ctx, name)
	if err != nil {
		return nil, err
	}
	counts := make(map[slot.EntryKind]int)
	for _, e := range c {
		counts[e.Kind]++
	}
	return counts, nil
}
