// Package storage reads and writes slot containers.
//
// Every backend honours the same contract: reading a slot that does not
// exist yields an empty container, writing fully overwrites the slot,
// deleting a missing slot is a no-op, and a container that cannot be decoded
// is reported as a CORRUPT_SLOT error.
package storage

import (
	"context"

	"github.com/jllopis/slotsave/pkg/slot"
)

// Storage persists one container per slot name.
type Storage interface {
	Read(ctx context.Context, name string) (slot.Container, error)
	Write(ctx context.Context, name string, c slot.Container) error
	Delete(ctx context.Context, name string) error
	Exists(ctx context.Context, name string) (bool, error)
	// List returns the names of all stored slots, sorted.
	List(ctx context.Context) ([]string, error)
}
