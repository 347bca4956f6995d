package state

import (
	"encoding/json"
	"errors"
)

// Bound is a Capability backed by a Go value encoded as JSON.
type Bound[T any] struct {
	key    string
	target *T
}

// Bind exposes *target as a capability under key. Restoring decodes into a
// fresh T and only then replaces *target, so a failed decode leaves the live
// value untouched.
func Bind[T any](key string, target *T) *Bound[T] {
	return &Bound[T]{key: key, target: target}
}

func (b *Bound[T]) CapabilityKey() string { return b.key }

func (b *Bound[T]) CaptureState() ([]byte, error) {
	if b.target == nil {
		return nil, errors.New("state: bound capability has no target")
	}
	return json.Marshal(b.target)
}

func (b *Bound[T]) RestoreState(data []byte) error {
	if b.target == nil {
		return errors.New("state: bound capability has no target")
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*b.target = v
	return nil
}
