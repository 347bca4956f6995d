package codec

import (
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/jllopis/slotsave/pkg/slot"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Proto encodes containers as a binary google.protobuf.Struct.
// Integers are carried as decimal strings so int64 values survive the
// float64 number representation of structpb.
type Proto struct{}

func (Proto) Name() string { return "proto" }

func (Proto) Encode(c slot.Container) ([]byte, error) {
	fields := make(map[string]any, len(c))
	for key, e := range c {
		fields[key] = entryToMap(e)
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	return proto.MarshalOptions{Deterministic: true}.Marshal(s)
}

func (Proto) Decode(data []byte) (slot.Container, error) {
	if len(data) == 0 {
		return slot.Container{}, nil
	}
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	c := make(slot.Container, len(s.GetFields()))
	for key, v := range s.GetFields() {
		e, err := entryFromStruct(v.GetStructValue())
		if err != nil {
			return nil, fmt.Errorf("codec: entry %q: %w", key, err)
		}
		c[key] = e
	}
	return finish(c)
}

func entryToMap(e slot.Entry) map[string]any {
	out := map[string]any{"kind": string(e.Kind)}
	if e.States != nil {
		states := make(map[string]any, len(e.States))
		for k, v := range e.States {
			states[k] = base64.StdEncoding.EncodeToString(v)
		}
		out["states"] = states
	}
	if e.Slot != nil {
		out["slot"] = map[string]any{
			"slot_name":           e.Slot.SlotName,
			"current_scene_index": strconv.Itoa(e.Slot.CurrentSceneIndex),
			"creation_date":       e.Slot.CreationDate,
			"time_played":         e.Slot.TimePlayed,
		}
	}
	if e.Value != nil {
		out["value"] = map[string]any{
			"type":   string(e.Value.Type),
			"int":    strconv.FormatInt(e.Value.Int, 10),
			"float":  e.Value.Float,
			"string": e.Value.String,
		}
	}
	return out
}

func entryFromStruct(s *structpb.Struct) (slot.Entry, error) {
	if s == nil {
		return slot.Entry{}, fmt.Errorf("entry is not a struct")
	}
	f := s.GetFields()
	e := slot.Entry{Kind: slot.EntryKind(f["kind"].GetStringValue())}

	if states := f["states"].GetStructValue(); states != nil {
		e.States = make(map[string][]byte, len(states.GetFields()))
		for k, v := range states.GetFields() {
			raw, err := base64.StdEncoding.DecodeString(v.GetStringValue())
			if err != nil {
				return slot.Entry{}, fmt.Errorf("state %q: %w", k, err)
			}
			e.States[k] = raw
		}
	}

	if m := f["slot"].GetStructValue(); m != nil {
		mf := m.GetFields()
		scene, err := strconv.Atoi(mf["current_scene_index"].GetStringValue())
		if err != nil {
			return slot.Entry{}, fmt.Errorf("scene index: %w", err)
		}
		e.Slot = &slot.Metadata{
			SlotName:          mf["slot_name"].GetStringValue(),
			CurrentSceneIndex: scene,
			CreationDate:      mf["creation_date"].GetStringValue(),
			TimePlayed:        mf["time_played"].GetStringValue(),
		}
	}

	if v := f["value"].GetStructValue(); v != nil {
		vf := v.GetFields()
		n, err := strconv.ParseInt(vf["int"].GetStringValue(), 10, 64)
		if err != nil {
			return slot.Entry{}, fmt.Errorf("int value: %w", err)
		}
		e.Value = &slot.Scalar{
			Type:   slot.ScalarType(vf["type"].GetStringValue()),
			Int:    n,
			Float:  vf["float"].GetNumberValue(),
			String: vf["string"].GetStringValue(),
		}
	}
	return e, nil
}
