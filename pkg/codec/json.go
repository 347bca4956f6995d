package codec

import (
	"bytes"
	"encoding/json"

	"github.com/jllopis/slotsave/pkg/slot"
)

// JSON is the default codec. Capability states are base64 strings.
type JSON struct {
	Indent bool
}

func (JSON) Name() string { return "json" }

func (j JSON) Encode(c slot.Container) ([]byte, error) {
	if c == nil {
		c = slot.Container{}
	}
	if j.Indent {
		return json.MarshalIndent(c, "", "  ")
	}
	return json.Marshal(c)
}

func (JSON) Decode(data []byte) (slot.Container, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return slot.Container{}, nil
	}
	var c slot.Container
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return finish(c)
}
