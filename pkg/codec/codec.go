// Package codec encodes slot containers to bytes and back.
//
// The container is a tagged union (see package slot), so every codec is
// schema-aware: capability states stay opaque byte blobs produced by the
// capabilities themselves and are never reflected over.
package codec

import (
	"fmt"
	"strings"

	"github.com/jllopis/slotsave/pkg/slot"
)

// Codec converts a slot container to and from its serialized form.
type Codec interface {
	Name() string
	Encode(c slot.Container) ([]byte, error)
	Decode(data []byte) (slot.Container, error)
}

// ByName resolves a configured codec name. Empty selects JSON.
func ByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return JSON{}, nil
	case "yaml", "yml":
		return YAML{}, nil
	case "proto", "protobuf", "binary":
		return Proto{}, nil
	default:
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
}

func finish(c slot.Container) (slot.Container, error) {
	if c == nil {
		c = slot.Container{}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
