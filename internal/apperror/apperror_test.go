package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("snippet", "abc123"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("name", "name is required"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "Conflict wraps ErrConflict",
			err:       Conflict("snippet", "abc123"),
			target:    ErrConflict,
			wantMatch: true,
		},
		{
			name:      "NotFound does NOT match ErrValidation",
			err:       NotFound("snippet", "abc123"),
			target:    ErrValidation,
			wantMatch: false,
		},
		{
			name:      "Timeout does not match ErrCanceled",
			err:       Timeout("execution timed out after 1s"),
			target:    ErrCanceled,
			wantMatch: false,
		},
		{
			name:      "Forbidden wraps ErrForbidden",
			err:       Forbidden("built-in examples are read-only"),
			target:    ErrForbidden,
			wantMatch: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "NotFound message includes resource and id",
			err:         NotFound("snippet", "abc123"),
			wantMessage: "snippet not found with id abc123",
		},
		{
			name:        "ValidationFailed uses custom message",
			err:         ValidationFailed("name", "name is required"),
			wantMessage: "name is required",
		},
		{
			name:        "Conflict message includes resource and id",
			err:         Conflict("snippet", "abc123"),
			wantMessage: "snippet conflict with id abc123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	if got := NotFound("snippet", "abc123").Unwrap(); got != ErrNotFound {
		t.Errorf("Unwrap() = %v, want %v", got, ErrNotFound)
	}
	if got := Timeout("execution timed out after 1s").Unwrap(); got != ErrTimeout {
		t.Errorf("Unwrap() = %v, want %v", got, ErrTimeout)
	}
}

func TestValidationFailedField(t *testing.T) {
	err := ValidationFailed("language", "unsupported language \"cobol\"")

	if err.Field != "language" {
		t.Errorf("Field = %q, want %q", err.Field, "language")
	}
}

func TestExecutionKinds(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		wantKind string
	}{
		{"Transpile", Transpile("1:5: Expected \";\""), ErrTranspile, "transpile_error"},
		{"Timeout", Timeout("execution timed out after 1s"), ErrTimeout, "timeout"},
		{"OutOfMemory", OutOfMemory("memory limit exceeded"), ErrOutOfMemory, "out_of_memory"},
		{"Runtime", Runtime("boom"), ErrRuntime, "runtime_error"},
		{"Serialization", Serialization("cannot serialize function"), ErrSerialization, "serialization_error"},
		{"Canceled", Canceled("client went away"), ErrCanceled, "canceled"},
		{"Validation", ValidationFailed("code", "code is required"), ErrValidation, "validation_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false, want true", tt.err, tt.sentinel)
			}
			if got := KindOf(tt.err); got != tt.wantKind {
				t.Errorf("KindOf() = %q, want %q", got, tt.wantKind)
			}
		})
	}
}

func TestKindOf_WrappedAndUnknown(t *testing.T) {
	// Wrapping with %w keeps the kind visible through the chain.
	wrapped := fmt.Errorf("executing: %w", Timeout("too slow"))
	if got := KindOf(wrapped); got != "timeout" {
		t.Errorf("KindOf(wrapped) = %q, want %q", got, "timeout")
	}

	if got := KindOf(errors.New("disk on fire")); got != "internal" {
		t.Errorf("KindOf(plain) = %q, want %q", got, "internal")
	}

	if got := KindOf(nil); got != "" {
		t.Errorf("KindOf(nil) = %q, want empty", got)
	}
}
