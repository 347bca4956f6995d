package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/jllopis/slotsave/pkg/codec"
	saveerrors "github.com/jllopis/slotsave/pkg/errors"
	"github.com/jllopis/slotsave/pkg/slot"
)

// Memory is an in-process storage. Containers are kept encoded so callers
// never share maps with the store, and the codec path is exercised exactly
// as with the durable backends.
type Memory struct {
	mu     sync.RWMutex
	codec  codec.Codec
	data   map[string][]byte
	writes int
	reads  int
}

// NewMemory creates an empty in-memory storage.
func NewMemory() *Memory {
	return &Memory{codec: codec.JSON{}, data: make(map[string][]byte)}
}

func (m *Memory) Read(_ context.Context, name string) (slot.Container, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	raw, ok := m.data[name]
	if !ok {
		return slot.Container{}, nil
	}
	c, err := m.codec.Decode(raw)
	if err != nil {
		return nil, saveerrors.New(saveerrors.CodeCorrupt, "decode slot", err).WithContext("slot", name)
	}
	return c, nil
}

func (m *Memory) Write(_ context.Context, name string, c slot.Container) error {
	raw, err := m.codec.Encode(c)
	if err != nil {
		return saveerrors.New(saveerrors.CodeInternal, "encode slot", err).WithContext("slot", name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.data[name] = raw
	return nil
}

func (m *Memory) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, name)
	return nil
}

func (m *Memory) Exists(_ context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[name]
	return ok, nil
}

func (m *Memory) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.data))
	for name := range m.data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// PutRaw stores raw bytes for a slot, bypassing the codec.
func (m *Memory) PutRaw(name string, raw []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[name] = raw
}

// Ops returns how many reads and writes have been served.
func (m *Memory) Ops() (reads, writes int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reads, m.writes
}
