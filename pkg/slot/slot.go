// Package slot defines the on-disk data model of a save slot: its metadata,
// the tagged entries a slot container holds and the time-played arithmetic
// applied at save time.
//
// A Container for slot N always holds exactly one metadata entry keyed by
// FileName(N, ext). Every other entry is either a participant's composite
// state or a key-value scalar.
package slot

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"
)

// ZeroTimePlayed is the time played of a freshly created slot.
const ZeroTimePlayed = "00:00:00"

// Metadata describes one save slot.
type Metadata struct {
	SlotName          string `json:"slot_name" yaml:"slot_name"`
	CurrentSceneIndex int    `json:"current_scene_index" yaml:"current_scene_index"`
	CreationDate      string `json:"creation_date" yaml:"creation_date"`
	TimePlayed        string `json:"time_played" yaml:"time_played"`
}

// NewMetadata builds metadata for a slot created at now.
func NewMetadata(name string, sceneIndex int, now time.Time) Metadata {
	return Metadata{
		SlotName:          name,
		CurrentSceneIndex: sceneIndex,
		CreationDate:      now.Format(time.RFC3339),
		TimePlayed:        ZeroTimePlayed,
	}
}

// AddPlayed returns the metadata with elapsed added to its time played.
func (m Metadata) AddPlayed(elapsed time.Duration) Metadata {
	if elapsed < 0 {
		elapsed = 0
	}
	m.TimePlayed = FormatPlayed(ParsePlayed(m.TimePlayed) + elapsed)
	return m
}

// FileName is the container key (and file name) of a slot's metadata entry.
func FileName(name, ext string) string {
	return name + ext
}

// FormatPlayed renders d as HH:MM:SS. Hours grow past two digits when needed.
func FormatPlayed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// ParsePlayed parses an HH:MM:SS value. Malformed values count as zero.
func ParsePlayed(s string) time.Duration {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0
	}
	var out time.Duration
	units := []time.Duration{time.Hour, time.Minute, time.Second}
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil || n < 0 {
			return 0
		}
		out += time.Duration(n) * units[i]
	}
	return out
}

// EntryKind tags the variant held by an Entry.
type EntryKind string

const (
	KindParticipant EntryKind = "participant"
	KindMetadata    EntryKind = "metadata"
	KindValue       EntryKind = "value"
)

// ScalarType tags the variant held by a Scalar.
type ScalarType string

const (
	ScalarInt    ScalarType = "int"
	ScalarFloat  ScalarType = "float"
	ScalarString ScalarType = "string"
)

// Scalar is a typed key-value store value.
type Scalar struct {
	Type   ScalarType `json:"type" yaml:"type"`
	Int    int64      `json:"int,omitempty" yaml:"int,omitempty"`
	Float  float64    `json:"float,omitempty" yaml:"float,omitempty"`
	String string     `json:"string,omitempty" yaml:"string,omitempty"`
}

func IntScalar(v int64) Scalar     { return Scalar{Type: ScalarInt, Int: v} }
func FloatScalar(v float64) Scalar { return Scalar{Type: ScalarFloat, Float: v} }
func StringScalar(v string) Scalar { return Scalar{Type: ScalarString, String: v} }

// Entry is one keyed value of a Container.
type Entry struct {
	Kind   EntryKind         `json:"kind" yaml:"kind"`
	States map[string][]byte `json:"states,omitempty" yaml:"states,omitempty"`
	Slot   *Metadata         `json:"slot,omitempty" yaml:"slot,omitempty"`
	Value  *Scalar           `json:"value,omitempty" yaml:"value,omitempty"`
}

// ParticipantEntry wraps a participant's capability states.
func ParticipantEntry(states map[string][]byte) Entry {
	return Entry{Kind: KindParticipant, States: states}
}

// MetadataEntry wraps slot metadata.
func MetadataEntry(m Metadata) Entry {
	return Entry{Kind: KindMetadata, Slot: &m}
}

// ValueEntry wraps a key-value scalar.
func ValueEntry(v Scalar) Entry {
	return Entry{Kind: KindValue, Value: &v}
}

// Validate checks that the payload matches the kind.
func (e Entry) Validate() error {
	switch e.Kind {
	case KindParticipant:
		return nil
	case KindMetadata:
		if e.Slot == nil {
			return fmt.Errorf("slot: metadata entry without metadata")
		}
	case KindValue:
		if e.Value == nil {
			return fmt.Errorf("slot: value entry without value")
		}
		switch e.Value.Type {
		case ScalarInt, ScalarFloat, ScalarString:
		default:
			return fmt.Errorf("slot: unknown scalar type %q", e.Value.Type)
		}
	default:
		return fmt.Errorf("slot: unknown entry kind %q", e.Kind)
	}
	return nil
}

// Container is the full content of one slot.
type Container map[string]Entry

// Clone returns a shallow copy; entry payload maps are copied one level deep.
func (c Container) Clone() Container {
	out := make(Container, len(c))
	for k, e := range c {
		if e.States != nil {
			e.States = maps.Clone(e.States)
		}
		if e.Slot != nil {
			m := *e.Slot
			e.Slot = &m
		}
		if e.Value != nil {
			v := *e.Value
			e.Value = &v
		}
		out[k] = e
	}
	return out
}

// Metadata returns the metadata entry stored under key.
func (c Container) Metadata(key string) (Metadata, bool) {
	e, ok := c[key]
	if !ok || e.Kind != KindMetadata || e.Slot == nil {
		return Metadata{}, false
	}
	return *e.Slot, true
}

// Participant returns the composite state stored under id.
func (c Container) Participant(id string) (map[string][]byte, bool) {
	e, ok := c[id]
	if !ok || e.Kind != KindParticipant {
		return nil, false
	}
	return e.States, true
}

// Values returns every key-value scalar in the container.
func (c Container) Values() map[string]Scalar {
	out := make(map[string]Scalar)
	for k, e := range c {
		if e.Kind == KindValue && e.Value != nil {
			out[k] = *e.Value
		}
	}
	return out
}

// Validate checks every entry.
func (c Container) Validate() error {
	for k, e := range c {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("%w (key %q)", err, k)
		}
	}
	return nil
}
