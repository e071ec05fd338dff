package domain

import (
	"errors"
	"fmt"
)

// Code is a stable machine-readable error code used on the wire.
type Code string

const (
	CodeUnknown        Code = "UNKNOWN"
	CodeValidation     Code = "VALIDATION"
	CodeNotInitialized Code = "NOT_INITIALIZED"
	CodePermission     Code = "PERMISSION"
	CodeEngine         Code = "ENGINE"
	CodeCallInProgress Code = "CALL_IN_PROGRESS"
	CodeJoinAborted    Code = "JOIN_ABORTED"
	CodeClosed         Code = "CLOSED"
)

var (
	ErrCallInProgress = errors.New("a call is already joining or active")
	ErrJoinAborted    = errors.New("join superseded by leave or re-initialization")
	ErrBridgeClosed   = errors.New("bridge is closed")
	ErrCaptureRefused = errors.New("screen capture refused")
	ErrNoSettings     = errors.New("settings surface unavailable")
)

type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

type NotInitializedError struct {
	Op string
}

func (e *NotInitializedError) Error() string {
	return fmt.Sprintf("%s: video call is not initialized", e.Op)
}

// PermissionError reports a capability that can neither be prompted for nor recovered through settings.
type PermissionError struct {
	Capability Capability
	Err        error
}

func (e *PermissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s permission permanently denied: %v", e.Capability, e.Err)
	}
	return fmt.Sprintf("%s permission permanently denied", e.Capability)
}

func (e *PermissionError) Unwrap() error { return e.Err }

// EngineError passes an engine failure through with its message untouched.
type EngineError struct {
	Op  string
	Err error
}

func (e *EngineError) Error() string {
	return e.Err.Error()
}

func (e *EngineError) Unwrap() error { return e.Err }

func CodeOf(err error) Code {
	var (
		ve *ValidationError
		ne *NotInitializedError
		pe *PermissionError
		ee *EngineError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return CodeValidation
	case errors.As(err, &ne):
		return CodeNotInitialized
	case errors.As(err, &pe):
		return CodePermission
	case errors.As(err, &ee):
		return CodeEngine
	case errors.Is(err, ErrCallInProgress):
		return CodeCallInProgress
	case errors.Is(err, ErrJoinAborted):
		return CodeJoinAborted
	case errors.Is(err, ErrBridgeClosed):
		return CodeClosed
	default:
		return CodeUnknown
	}
}

// FieldOf returns the offending field of a ValidationError, or "".
func FieldOf(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Field
	}
	return ""
}
