// Package kv is the typed scalar store persisted alongside participant state
// in the active save slot.
package kv

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"sort"
	"sync"

	"github.com/jllopis/slotsave/pkg/slot"
)

var (
	// ErrKeyNotFound is returned by the getters when the key is absent.
	ErrKeyNotFound = errors.New("kv: key not found")
	// ErrTypeMismatch is returned when the key holds a value of another type.
	ErrTypeMismatch = errors.New("kv: type mismatch")
	// ErrNonFinite is returned by SetFloat for NaN and infinite values,
	// which slot codecs cannot represent.
	ErrNonFinite = errors.New("kv: non-finite float")
)

// Store holds scalars in memory between saves. Keys removed with DeleteKey
// are remembered until the next sync so a save also drops them from the slot.
type Store struct {
	mu      sync.RWMutex
	values  map[string]slot.Scalar
	deleted map[string]struct{}
}

// New creates an empty store.
func New() *Store {
	return &Store{
		values:  make(map[string]slot.Scalar),
		deleted: make(map[string]struct{}),
	}
}

func (s *Store) set(key string, v slot.Scalar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = v
	delete(s.deleted, key)
}

func (s *Store) get(key string, want slot.ScalarType) (slot.Scalar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return slot.Scalar{}, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	if v.Type != want {
		return slot.Scalar{}, fmt.Errorf("%w: %q holds %s, not %s", ErrTypeMismatch, key, v.Type, want)
	}
	return v, nil
}

func (s *Store) SetInt(key string, v int64) { s.set(key, slot.IntScalar(v)) }

func (s *Store) GetInt(key string) (int64, error) {
	v, err := s.get(key, slot.ScalarInt)
	return v.Int, err
}

// SetFloat stores v under key. NaN and infinities are rejected and leave
// the store unchanged.
func (s *Store) SetFloat(key string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %q", ErrNonFinite, key)
	}
	s.set(key, slot.FloatScalar(v))
	return nil
}

func (s *Store) GetFloat(key string) (float64, error) {
	v, err := s.get(key, slot.ScalarFloat)
	return v.Float, err
}

func (s *Store) SetString(key, v string) { s.set(key, slot.StringScalar(v)) }

func (s *Store) GetString(key string) (string, error) {
	v, err := s.get(key, slot.ScalarString)
	return v.String, err
}

// HasKey reports whether key holds a value.
func (s *Store) HasKey(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.values[key]
	return ok
}

// DeleteKey removes key. Deleting an absent key is a no-op.
func (s *Store) DeleteKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		return
	}
	delete(s.values, key)
	s.deleted[key] = struct{}{}
}

// Keys returns the stored keys, sorted.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a copy of every stored value.
func (s *Store) Snapshot() map[string]slot.Scalar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values)
}

// Deleted returns the keys removed since the last sync.
func (s *Store) Deleted() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.deleted))
	for k := range s.deleted {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarkSynced forgets pending deletions once they reached storage.
func (s *Store) MarkSynced() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.deleted)
}

// Replace swaps the whole content for values loaded from a slot.
func (s *Store) Replace(values map[string]slot.Scalar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = maps.Clone(values)
	if s.values == nil {
		s.values = make(map[string]slot.Scalar)
	}
	clear(s.deleted)
}
