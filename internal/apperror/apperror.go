// Package apperror defines the domain errors shared by every layer.
//
// Two families live here:
//   - request errors (not found, validation, conflict, forbidden) that handlers
//     translate into HTTP status codes
//   - execution failure kinds (transpile, timeout, out of memory, runtime,
//     serialization, canceled) that travel inside an executor.Outcome
//
// Both are *AppError values wrapping a sentinel, so callers branch with
// errors.Is and read the human-readable text from Message.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")
)

// Execution failure kinds. None of them is fatal to the process; each one is
// confined to the request (and isolate) that produced it.
var (
	ErrTranspile     = errors.New("transpile error")
	ErrTimeout       = errors.New("timeout")
	ErrOutOfMemory   = errors.New("out of memory")
	ErrRuntime       = errors.New("runtime exception")
	ErrSerialization = errors.New("serialization failure")
	ErrCanceled      = errors.New("canceled")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Transpile reports source that the TypeScript transpiler could not parse.
// The message is the diagnostic text, shown to the user as-is.
func Transpile(message string) *AppError {
	return &AppError{Err: ErrTranspile, Message: message}
}

// Timeout reports code that was still running when its wall-clock budget ran out.
func Timeout(message string) *AppError {
	return &AppError{Err: ErrTimeout, Message: message}
}

// OutOfMemory reports code that grew past the isolate's memory cap.
func OutOfMemory(message string) *AppError {
	return &AppError{Err: ErrOutOfMemory, Message: message}
}

// Runtime reports an exception raised by the sandboxed code itself.
func Runtime(message string) *AppError {
	return &AppError{Err: ErrRuntime, Message: message}
}

// Serialization reports a result value that cannot cross the isolate
// boundary as JSON (functions, symbols, circular structures, BigInt).
func Serialization(message string) *AppError {
	return &AppError{Err: ErrSerialization, Message: message}
}

// Canceled reports an execution aborted because the caller went away.
func Canceled(message string) *AppError {
	return &AppError{Err: ErrCanceled, Message: message}
}

// KindOf returns the short machine-readable name of an execution failure,
// as it appears in API responses and run history. Errors that are not
// execution failures report "internal".
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTranspile):
		return "transpile_error"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrOutOfMemory):
		return "out_of_memory"
	case errors.Is(err, ErrRuntime):
		return "runtime_error"
	case errors.Is(err, ErrSerialization):
		return "serialization_error"
	case errors.Is(err, ErrCanceled):
		return "canceled"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	default:
		return "internal"
	}
}
