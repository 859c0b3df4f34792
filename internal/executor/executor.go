// Package executor defines the contract between the execution orchestrator
// and the runtimes that actually run untrusted JavaScript.
//
// THE CONTRACT:
// A Runtime takes JavaScript text plus fixed Limits and always returns an
// Outcome. It never returns an error value: a timeout, a memory abort, a
// thrown exception or an unserializable result are all described by the
// Outcome itself. This keeps every failure confined to the request that
// caused it.
//
// Two implementations exist:
//   - isolate.Runtime: an in-process goja VM, created fresh per call
//   - docker.Runtime: a single-use Node.js container per call
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sakif/js-playground/internal/apperror"
)

// Language selects whether the source needs transpiling before it runs.
type Language string

const (
	JavaScript Language = "javascript"
	TypeScript Language = "typescript"
)

// ParseLanguage accepts the names and file extensions a caller might send.
// An empty string means JavaScript, matching the plain execute endpoint.
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "javascript", "js":
		return JavaScript, nil
	case "typescript", "ts":
		return TypeScript, nil
	default:
		return "", apperror.ValidationFailed("language",
			fmt.Sprintf("unsupported language %q: must be javascript or typescript", s))
	}
}

// Request represents one "Run" action. It is consumed once and discarded.
type Request struct {
	Code     string   `json:"code"`
	Language Language `json:"language,omitempty"`
}

// Limits bounds a single execution. The values are process-wide and come
// from configuration, never from the request.
type Limits struct {
	MemoryLimitBytes int64
	Timeout          time.Duration
}

// DefaultLimits mirrors the playground's fixed budget: 128 MiB, one second.
func DefaultLimits() Limits {
	return Limits{
		MemoryLimitBytes: 128 * 1024 * 1024,
		Timeout:          1000 * time.Millisecond,
	}
}

// Outcome is the tagged result of one execution attempt.
//
// Success: Err is nil, Value holds the JSON encoding of the returned value
// (nil when the code evaluated to undefined).
// Failure: Err is an *apperror.AppError whose sentinel names the kind; Logs
// holds whatever the code printed before it failed (empty after a timeout or
// memory abort, because the isolate's buffer is discarded with it).
type Outcome struct {
	Value    json.RawMessage
	Logs     []string
	Err      error
	Duration time.Duration
}

// OK reports whether the outcome is a Success.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Kind returns the failure kind ("timeout", "runtime_error", ...) or "" on success.
func (o Outcome) Kind() string {
	return apperror.KindOf(o.Err)
}

// Succeeded builds a Success outcome.
func Succeeded(value json.RawMessage, logs []string) Outcome {
	return Outcome{Value: value, Logs: nonNil(logs)}
}

// Failed builds a Failure outcome.
func Failed(err error, logs []string) Outcome {
	return Outcome{Err: err, Logs: nonNil(logs)}
}

func nonNil(logs []string) []string {
	if logs == nil {
		return []string{}
	}
	return logs
}

// Runtime runs JavaScript text under the given limits.
type Runtime interface {
	Run(ctx context.Context, js string, limits Limits) Outcome
}
