// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Span and metric attribute keys for slot operations.
const (
	// Slot attributes
	AttrSlotName      = "slotsave.slot.name"
	AttrSlotScene     = "slotsave.slot.scene_index"
	AttrSlotPlayed    = "slotsave.slot.time_played"
	AttrSlotPrevious  = "slotsave.slot.previous"
	AttrSlotCreated   = "slotsave.slot.created"
	AttrEntriesCount  = "slotsave.container.entry_count"
	AttrParticipants  = "slotsave.participants.count"
	AttrOperation     = "slotsave.operation"
	AttrErrorCode     = "slotsave.error.code"
	AttrStorageKind   = "slotsave.storage.backend"
	AttrCodecName     = "slotsave.storage.codec"
	AttrSwitchSave    = "slotsave.switch.save_previous"
	AttrSwitchLoad    = "slotsave.switch.load_new"
	AttrSwitchSuccess = "slotsave.switch.success"
)

// SlotAttributes returns common attributes for a slot span.
func SlotAttributes(name string, scene int, played string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrSlotName, name),
		attribute.Int(AttrSlotScene, scene),
	}
	if played != "" {
		attrs = append(attrs, attribute.String(AttrSlotPlayed, played))
	}
	return attrs
}

// ContainerAttributes describes the container produced or consumed by an operation.
func ContainerAttributes(entries, participants int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrEntriesCount, entries),
		attribute.Int(AttrParticipants, participants),
	}
}

// StorageAttributes names the backend and codec behind a manager.
func StorageAttributes(backend, codec string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{}
	if backend != "" {
		attrs = append(attrs, attribute.String(AttrStorageKind, backend))
	}
	if codec != "" {
		attrs = append(attrs, attribute.String(AttrCodecName, codec))
	}
	return attrs
}

// SwitchAttributes returns attributes for an active slot switch.
func SwitchAttributes(previous, next string, savePrevious, loadNew bool) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrSlotName, next),
		attribute.Bool(AttrSwitchSave, savePrevious),
		attribute.Bool(AttrSwitchLoad, loadNew),
	}
	if previous != "" {
		attrs = append(attrs, attribute.String(AttrSlotPrevious, previous))
	}
	return attrs
}
