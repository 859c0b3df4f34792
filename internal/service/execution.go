package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/js-playground/internal/apperror"
	"github.com/sakif/js-playground/internal/executor"
	"github.com/sakif/js-playground/internal/model"
	"github.com/sakif/js-playground/internal/repository"
)

// Transpiler turns TypeScript into JavaScript. transpile.Transpiler
// implements it.
type Transpiler interface {
	Transpile(src string) (string, error)
}

// recordTimeout bounds the best-effort history write after a run.
const recordTimeout = 2 * time.Second

// ExecutionService runs user code: it validates the request, transpiles
// TypeScript, hands the JavaScript to the configured runtime with the fixed
// limits, and records the outcome in the run history.
//
// It holds no per-request state and is safe for concurrent use.
type ExecutionService struct {
	runtime    executor.Runtime
	transpiler Transpiler
	runs       repository.RunRepository // nil disables history
	limits     executor.Limits
	logger     *slog.Logger
}

func NewExecutionService(
	runtime executor.Runtime,
	transpiler Transpiler,
	runs repository.RunRepository,
	limits executor.Limits,
	logger *slog.Logger,
) *ExecutionService {
	return &ExecutionService{
		runtime:    runtime,
		transpiler: transpiler,
		runs:       runs,
		limits:     limits,
		logger:     logger,
	}
}

// Limits reports the limits every execution runs under.
func (s *ExecutionService) Limits() executor.Limits {
	return s.limits
}

// Execute runs one request. The returned error is reserved for requests that
// are rejected before anything runs (unknown language, oversized code);
// everything that happens to the code itself is described by the Outcome.
func (s *ExecutionService) Execute(ctx context.Context, req executor.Request) (executor.Outcome, error) {
	lang, err := executor.ParseLanguage(string(req.Language))
	if err != nil {
		return executor.Outcome{}, err
	}
	if len(req.Code) > MaxCodeLength {
		return executor.Outcome{}, apperror.ValidationFailed("code",
			fmt.Sprintf("code must be %d characters or less", MaxCodeLength))
	}

	start := time.Now()
	out := s.execute(ctx, lang, req.Code)
	if out.Duration == 0 {
		out.Duration = time.Since(start)
	}

	level := slog.LevelInfo
	if !out.OK() {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "execution finished",
		slog.String("language", string(lang)),
		slog.String("kind", out.Kind()),
		slog.Int("logLines", len(out.Logs)),
		slog.Duration("duration", out.Duration),
	)

	s.record(ctx, lang, out)
	return out, nil
}

func (s *ExecutionService) execute(ctx context.Context, lang executor.Language, code string) executor.Outcome {
	js := code
	if lang == executor.TypeScript {
		compiled, err := s.transpiler.Transpile(code)
		if err != nil {
			// The sandbox never sees code that failed to transpile.
			return executor.Failed(err, nil)
		}
		js = compiled
	}
	return s.runtime.Run(ctx, js, s.limits)
}

// Transpile converts TypeScript to JavaScript without running it.
func (s *ExecutionService) Transpile(ctx context.Context, code string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(code) > MaxCodeLength {
		return "", apperror.ValidationFailed("code",
			fmt.Sprintf("code must be %d characters or less", MaxCodeLength))
	}
	return s.transpiler.Transpile(code)
}

// Stats aggregates the run history since the given time (zero for all).
func (s *ExecutionService) Stats(ctx context.Context, since time.Time) (*model.RunStats, error) {
	if s.runs == nil {
		return &model.RunStats{ByKind: map[string]int64{}, ByLanguage: map[string]int64{}}, nil
	}
	stats, err := s.runs.Stats(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("loading run stats: %w", err)
	}
	return stats, nil
}

// record writes the history row. Storage problems are logged and never
// change the outcome the caller sees. The write outlives a disconnected
// client, so it runs on a context detached from the request.
func (s *ExecutionService) record(ctx context.Context, lang executor.Language, out executor.Outcome) {
	if s.runs == nil {
		return
	}

	run := &model.Run{
		Language:   string(lang),
		Status:     model.RunSucceeded,
		DurationMS: out.Duration.Milliseconds(),
		LogLines:   len(out.Logs),
	}
	if !out.OK() {
		run.Status = model.RunFailed
		run.ErrorKind = out.Kind()
	}

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := s.runs.Record(recordCtx, run); err != nil {
		s.logger.Error("failed to record run", slog.String("error", err.Error()))
	}
}
