package main

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/jllopis/slotsave/pkg/slot"
)

// slotEnv is what a --where expression sees for each slot, e.g.
// `Scene >= 2 && PlayedSeconds > 3600` or `Name startsWith "auto"`.
type slotEnv struct {
	Name          string
	Scene         int
	Created       string
	Played        string
	PlayedSeconds int64
}

func newSlotEnv(m slot.Metadata) slotEnv {
	return slotEnv{
		Name:          m.SlotName,
		Scene:         m.CurrentSceneIndex,
		Created:       m.CreationDate,
		Played:        m.TimePlayed,
		PlayedSeconds: int64(slot.ParsePlayed(m.TimePlayed).Seconds()),
	}
}

type slotFilter struct {
	program *vm.Program
}

func compileSlotFilter(src string) (*slotFilter, error) {
	if src == "" {
		return nil, nil
	}
	program, err := expr.Compile(src, expr.Env(slotEnv{}), expr.AsBool())
	if err != nil {
		return nil, NewInvalidArgumentError("--where", err.Error())
	}
	return &slotFilter{program: program}, nil
}

// apply keeps the slots the expression accepts. A nil filter keeps all.
func (f *slotFilter) apply(slots []slot.Metadata) ([]slot.Metadata, error) {
	if f == nil {
		return slots, nil
	}
	out := slots[:0:0]
	for _, s := range slots {
		v, err := expr.Run(f.program, newSlotEnv(s))
		if err != nil {
			return nil, fmt.Errorf("evaluate filter for slot %q: %w", s.SlotName, err)
		}
		if keep, _ := v.(bool); keep {
			out = append(out, s)
		}
	}
	return out, nil
}
