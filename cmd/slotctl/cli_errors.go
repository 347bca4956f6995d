// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package main implements slotctl, a command-line tool to inspect and edit
// save slots.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	saveerrors "github.com/jllopis/slotsave/pkg/errors"
)

// CLIError wraps SaveError with CLI-specific formatting and hints.
type CLIError struct {
	*saveerrors.SaveError
	Hint string
}

// NewCLIError creates a new CLI error.
func NewCLIError(se *saveerrors.SaveError, hint string) *CLIError {
	return &CLIError{
		SaveError: se,
		Hint:      hint,
	}
}

// Error returns the formatted error message with hints.
func (e *CLIError) Error() string {
	if e.SaveError == nil {
		return "unknown error"
	}

	msg := e.SaveError.Error()
	if e.Hint != "" {
		msg += "\n  Hint: " + e.Hint
	}
	return msg
}

func (e *CLIError) Unwrap() error {
	if e.SaveError == nil {
		return nil
	}
	return e.SaveError
}

// PrintError writes the error to w, as a JSON object when asJSON is set.
func (e *CLIError) PrintError(w io.Writer, asJSON bool) {
	if asJSON {
		payload, _ := json.Marshal(map[string]any{
			"error": map[string]string{
				"code":    string(e.Code),
				"message": e.Message,
				"hint":    e.Hint,
			},
		})
		fmt.Fprintln(w, string(payload))
		return
	}

	fmt.Fprintf(w, "Error [%s]: %s\n", FormatErrorCode(e.Code), e.Message)
	if e.Err != nil {
		fmt.Fprintf(w, "  Cause: %v\n", e.Err)
	}
	if e.Hint != "" {
		fmt.Fprintf(w, "  Hint: %s\n", e.Hint)
	}
}

// NewNotFoundError creates a not found error with CLI hints.
func NewNotFoundError(name string) *CLIError {
	se := saveerrors.New(saveerrors.CodeNotFound, fmt.Sprintf("slot '%s' not found", name), nil).
		WithContext("slot", name).
		WithRecoverable(false)
	return NewCLIError(se, "run 'slotctl list' to see the available slots")
}

// NewInvalidArgumentError creates an invalid argument error with CLI hints.
func NewInvalidArgumentError(arg, reason string) *CLIError {
	se := saveerrors.New(saveerrors.CodeInvalidInput, fmt.Sprintf("invalid argument: %s", reason), nil).
		WithContext("argument", arg).
		WithContext("reason", reason).
		WithRecoverable(false)
	return NewCLIError(se, "run 'slotctl help' for usage information")
}

// NewConfigError creates a configuration error with CLI hints.
func NewConfigError(err error) *CLIError {
	se := saveerrors.New(saveerrors.CodeInvalidInput, "configuration error", err).
		WithRecoverable(false)
	return NewCLIError(se, "check the --config file and SLOTSAVE_* environment variables")
}

// WrapError attaches a hint to errors returned by the slot manager.
func WrapError(err error) error {
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return err
	}
	var se *saveerrors.SaveError
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code {
	case saveerrors.CodeCorrupt:
		return NewCLIError(se, "the slot data cannot be decoded; check save.codec or delete the slot")
	case saveerrors.CodeStorage:
		return NewCLIError(se, "check that the save directory is writable")
	case saveerrors.CodeInvalidInput:
		return NewCLIError(se, "slot names must be non-empty and contain no path separators")
	default:
		return NewCLIError(se, "")
	}
}

// PrintSimpleError prints a simple error message (for non-SaveError cases).
func PrintSimpleError(w io.Writer, err error, asJSON bool) {
	if asJSON {
		payload, _ := json.Marshal(map[string]any{
			"error": map[string]string{"code": "UNKNOWN", "message": err.Error()},
		})
		fmt.Fprintln(w, string(payload))
		return
	}
	fmt.Fprintf(w, "Error: %s\n", err.Error())
}

// FormatErrorCode returns a user-friendly name for error codes.
func FormatErrorCode(code saveerrors.ErrorCode) string {
	switch code {
	case saveerrors.CodeInternal:
		return "Internal Error"
	case saveerrors.CodeInvalidInput:
		return "Invalid Input"
	case saveerrors.CodeNotFound:
		return "Not Found"
	case saveerrors.CodeCorrupt:
		return "Corrupt Slot"
	case saveerrors.CodeStorage:
		return "Storage Error"
	case saveerrors.CodeCapability:
		return "Capability Error"
	default:
		return string(code)
	}
}
