package codec

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/jllopis/slotsave/pkg/slot"
	"gopkg.in/yaml.v3"
)

// YAML renders containers as human-editable YAML documents.
type YAML struct{}

type yamlEntry struct {
	Kind   slot.EntryKind    `yaml:"kind"`
	States map[string]string `yaml:"states,omitempty"`
	Slot   *slot.Metadata    `yaml:"slot,omitempty"`
	Value  *slot.Scalar      `yaml:"value,omitempty"`
}

func (YAML) Name() string { return "yaml" }

func (YAML) Encode(c slot.Container) ([]byte, error) {
	doc := make(map[string]yamlEntry, len(c))
	for key, e := range c {
		ye := yamlEntry{Kind: e.Kind, Slot: e.Slot, Value: e.Value}
		if e.States != nil {
			ye.States = make(map[string]string, len(e.States))
			for k, v := range e.States {
				ye.States[k] = base64.StdEncoding.EncodeToString(v)
			}
		}
		doc[key] = ye
	}
	return yaml.Marshal(doc)
}

func (YAML) Decode(data []byte) (slot.Container, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return slot.Container{}, nil
	}
	var doc map[string]yamlEntry
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	c := make(slot.Container, len(doc))
	for key, ye := range doc {
		e := slot.Entry{Kind: ye.Kind, Slot: ye.Slot, Value: ye.Value}
		if ye.States != nil {
			e.States = make(map[string][]byte, len(ye.States))
			for k, v := range ye.States {
				raw, err := base64.StdEncoding.DecodeString(v)
				if err != nil {
					return nil, fmt.Errorf("codec: state %q of %q: %w", k, key, err)
				}
				e.States[k] = raw
			}
		}
		c[key] = e
	}
	return finish(c)
}
