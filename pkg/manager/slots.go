package manager

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jllopis/slotsave/pkg/slot"
	"github.com/jllopis/slotsave/pkg/telemetry"
)

// CreateSlot writes a fresh container for name holding only its metadata.
// The active slot is left as it was and no event fires. Creating a slot
// that already exists overwrites it.
func (m *Manager) CreateSlot(ctx context.Context, name string) (slot.Metadata, error) {
	ctx, span := m.startSpan(ctx, "Manager.CreateSlot")
	defer span.End()

	name, err := normalizeName(name)
	if err != nil {
		return slot.Metadata{}, m.fail(ctx, span, "create", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	meta := slot.NewMetadata(name, m.scene(), m.clock())
	c := slot.Container{m.metaKey(name): slot.MetadataEntry(meta)}
	if err := m.store.Write(ctx, name, c); err != nil {
		return slot.Metadata{}, m.fail(ctx, span, "create", err)
	}

	span.SetAttributes(telemetry.SlotAttributes(name, meta.CurrentSceneIndex, meta.TimePlayed)...)
	span.SetAttributes(attribute.Bool(telemetry.AttrSlotCreated, true))
	m.logger.InfoContext(ctx, "slot created", "slot", name, "creation_date", meta.CreationDate)
	return meta, nil
}

// DeleteSlot removes the slot's stored container. Deleting a slot that does
// not exist is a no-op. If name is the active slot the pointer is kept; the
// caller decides what to activate next.
func (m *Manager) DeleteSlot(ctx context.Context, name string) error {
	ctx, span := m.startSpan(ctx, "Manager.DeleteSlot")
	defer span.End()
	span.SetAttributes(attribute.String(telemetry.AttrSlotName, name))

	name, err := normalizeName(name)
	if err != nil {
		return m.fail(ctx, span, "delete", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Delete(ctx, name); err != nil {
		return m.fail(ctx, span, "delete", err)
	}
	m.logger.InfoContext(ctx, "slot deleted", "slot", name)
	return nil
}

// ListSlots returns the metadata of every stored slot, read from each
// slot's own container. Slots whose container lacks its metadata entry are
// skipped.
func (m *Manager) ListSlots(ctx context.Context) ([]slot.Metadata, error) {
	ctx, span := m.startSpan(ctx, "Manager.ListSlots")
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	names, err := m.store.List(ctx)
	if err != nil {
		return nil, m.fail(ctx, span, "list", err)
	}
	out := make([]slot.Metadata, 0, len(names))
	for _, name := range names {
		meta, ok, err := m.getSlotLocked(ctx, name)
		if err != nil {
			return nil, m.fail(ctx, span, "list", err)
		}
		if !ok {
			m.logger.WarnContext(ctx, "slot has no metadata entry", "slot", name)
			continue
		}
		out = append(out, meta)
	}
	return out, nil
}

// GetSlot reads name's container and returns its metadata entry. ok is
// false when the slot does not exist or holds no metadata for itself.
func (m *Manager) GetSlot(ctx context.Context, name string) (slot.Metadata, bool, error) {
	ctx, span := m.startSpan(ctx, "Manager.GetSlot")
	defer span.End()

	name, err := normalizeName(name)
	if err != nil {
		return slot.Metadata{}, false, m.fail(ctx, span, "get", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	meta, ok, err := m.getSlotLocked(ctx, name)
	if err != nil {
		return slot.Metadata{}, false, m.fail(ctx, span, "get", err)
	}
	return meta, ok, nil
}

func (m *Manager) getSlotLocked(ctx context.Context, name string) (slot.Metadata, bool, error) {
	c, err := m.store.Read(ctx, name)
	if err != nil {
		return slot.Metadata{}, false, err
	}
	meta, ok := c.Metadata(m.metaKey(name))
	return meta, ok, nil
}

// SlotExists reports whether name has a stored container.
func (m *Manager) SlotExists(ctx context.Context, name string) (bool, error) {
	name, err := normalizeName(name)
	if err != nil {
		return false, err
	}
	return m.store.Exists(ctx, name)
}

// SetActiveSlot makes name the active slot. It returns false, without
// changing anything or firing events, when name has no metadata. Otherwise
// it optionally saves the previous slot, switches the pointer, fires
// EventSlotSwitched and optionally loads the new slot. Failures of the
// optional save or load are logged and do not change the result.
func (m *Manager) SetActiveSlot(ctx context.Context, name string, savePrevious, loadNew bool) (bool, error) {
	ctx, span := m.startSpan(ctx, "Manager.SetActiveSlot")
	defer span.End()

	name, err := normalizeName(name)
	if err != nil {
		return false, m.fail(ctx, span, "switch", err)
	}

	var events []Event
	ok, err := func() (bool, error) {
		m.mu.Lock()
		defer m.mu.Unlock()

		meta, found, err := m.getSlotLocked(ctx, name)
		if err != nil {
			return false, err
		}
		if !found {
			m.logger.WarnContext(ctx, "slot not found", "slot", name)
			return false, nil
		}

		previous := ""
		if m.active != nil {
			previous = m.active.SlotName
		}
		span.SetAttributes(telemetry.SwitchAttributes(previous, name, savePrevious, loadNew)...)

		if savePrevious {
			ev, err := m.saveLocked(ctx)
			if err != nil {
				m.metrics.RecordError(ctx, "save", err)
				m.logger.ErrorContext(ctx, "save of previous slot failed", "slot", previous, "error", err)
			} else if ev != nil {
				events = append(events, *ev)
			}
		}

		m.active = &meta
		m.activeSince = m.clock()
		events = append(events, m.newEvent(EventSlotSwitched, name))
		m.logger.InfoContext(ctx, "active slot changed", "slot", name, "previous", previous)

		if loadNew {
			ev, err := m.loadLocked(ctx)
			if err != nil {
				m.metrics.RecordError(ctx, "load", err)
				m.logger.ErrorContext(ctx, "load of new slot failed", "slot", name, "error", err)
			} else if ev != nil {
				events = append(events, *ev)
			}
		}
		return true, nil
	}()

	span.SetAttributes(attribute.Bool(telemetry.AttrSwitchSuccess, ok))
	if err != nil {
		return false, m.fail(ctx, span, "switch", err)
	}
	m.listeners.emit(events)
	return ok, nil
}
