// SPDX-License-Identifier: Apache-2.0
// Package errors provides typed errors for slot persistence failures.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies slotsave errors for logging and metrics.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input was invalid.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeNotFound indicates a slot or key was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeCorrupt indicates a slot container could not be decoded.
	CodeCorrupt ErrorCode = "CORRUPT_SLOT"

	// CodeStorage indicates the storage backend failed.
	CodeStorage ErrorCode = "STORAGE_ERROR"

	// CodeCapability indicates a participant capability failed to capture or restore.
	CodeCapability ErrorCode = "CAPABILITY_ERROR"
)

// SaveError is a typed error with context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type SaveError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Recoverable bool
}

// Error implements the error interface.
func (e *SaveError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *SaveError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *SaveError) MarshalJSON() ([]byte, error) {
	cause := ""
	if e.Err != nil {
		cause = e.Err.Error()
	}
	return json.Marshal(&struct {
		Message     string                 `json:"message"`
		Code        string                 `json:"code"`
		Err         string                 `json:"error,omitempty"`
		Context     map[string]interface{} `json:"context,omitempty"`
		Recoverable bool                   `json:"recoverable"`
	}{
		Message:     e.Error(),
		Code:        string(e.Code),
		Err:         cause,
		Context:     e.Context,
		Recoverable: e.Recoverable,
	})
}

// New creates a new SaveError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *SaveError {
	return &SaveError{
		Code:    code,
		Message: msg,
		Err:     cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *SaveError) WithContext(key string, value interface{}) *SaveError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *SaveError) WithRecoverable(recoverable bool) *SaveError {
	e.Recoverable = recoverable
	return e
}

// AsSaveError attempts to convert an error to a SaveError.
// Errors anywhere in the chain are found; unknown errors are wrapped as internal.
func AsSaveError(err error) *SaveError {
	if err == nil {
		return nil
	}
	var se *SaveError
	if stderrors.As(err, &se) {
		return se
	}
	return New(CodeInternal, "wrapped error", err)
}

// HasCode reports whether err carries a SaveError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var se *SaveError
	if !stderrors.As(err, &se) {
		return false
	}
	return se.Code == code
}

// CodeOf returns the code of the first SaveError in err's chain, or
// CodeInternal when there is none.
func CodeOf(err error) ErrorCode {
	var se *SaveError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return CodeInternal
}
