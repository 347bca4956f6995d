// SPDX-License-Identifier: Apache-2.0
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	cause := errors.New("unexpected EOF")
	se := New(CodeCorrupt, "decode slot", cause)

	if se.Code != CodeCorrupt {
		t.Errorf("expected CodeCorrupt, got %v", se.Code)
	}
	if se.Message != "decode slot" {
		t.Errorf("expected message 'decode slot', got %q", se.Message)
	}
	if se.Err != cause {
		t.Errorf("expected cause to be preserved")
	}
	if !errors.Is(se, cause) {
		t.Errorf("expected errors.Is to work with wrapped error")
	}
}

func TestWithContext(t *testing.T) {
	se := New(CodeStorage, "write failed", nil)
	se.WithContext("slot", "save_1").WithContext("backend", "file")

	if se.Context["slot"] != "save_1" {
		t.Errorf("expected context slot to be 'save_1'")
	}
	if se.Context["backend"] != "file" {
		t.Errorf("expected context backend to be 'file'")
	}
}

func TestWithRecoverable(t *testing.T) {
	se := New(CodeStorage, "disk full", nil)
	if se.Recoverable {
		t.Errorf("expected recoverable to be false by default")
	}
	se.WithRecoverable(true)
	if !se.Recoverable {
		t.Errorf("expected recoverable to be true")
	}
}

func TestErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  *SaveError
		want string
	}{
		{"without cause", New(CodeNotFound, "slot missing", nil), "[NOT_FOUND] slot missing"},
		{"with cause", New(CodeStorage, "rename", errors.New("busy")), "[STORAGE_ERROR] rename: busy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestAsSaveError(t *testing.T) {
	if AsSaveError(nil) != nil {
		t.Fatal("expected nil for nil error")
	}

	se := New(CodeCapability, "capture", nil)
	wrapped := fmt.Errorf("save: %w", se)
	if got := AsSaveError(wrapped); got != se {
		t.Errorf("expected wrapped SaveError to be found in chain")
	}

	plain := errors.New("boom")
	got := AsSaveError(plain)
	if got.Code != CodeInternal {
		t.Errorf("expected CodeInternal, got %v", got.Code)
	}
	if !errors.Is(got, plain) {
		t.Errorf("expected cause to be preserved")
	}
}

func TestHasCodeAndCodeOf(t *testing.T) {
	err := fmt.Errorf("load: %w", New(CodeCorrupt, "decode", nil))
	if !HasCode(err, CodeCorrupt) {
		t.Errorf("expected HasCode to find CodeCorrupt")
	}
	if HasCode(err, CodeStorage) {
		t.Errorf("did not expect CodeStorage")
	}
	if CodeOf(err) != CodeCorrupt {
		t.Errorf("expected CodeOf to be CodeCorrupt, got %v", CodeOf(err))
	}
	if CodeOf(errors.New("x")) != CodeInternal {
		t.Errorf("expected CodeInternal for plain errors")
	}
}

func TestMarshalJSON(t *testing.T) {
	se := New(CodeStorage, "write", errors.New("denied")).WithContext("slot", "a")
	data, err := json.Marshal(se)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if out["code"] != "STORAGE_ERROR" {
		t.Errorf("expected code STORAGE_ERROR, got %v", out["code"])
	}
	if out["error"] != "denied" {
		t.Errorf("expected error denied, got %v", out["error"])
	}
	ctx, ok := out["context"].(map[string]any)
	if !ok || ctx["slot"] != "a" {
		t.Errorf("expected context slot a, got %v", out["context"])
	}
}
