// Package isolate runs untrusted JavaScript inside a fresh goja VM per call.
//
// ISOLATION MODEL:
// Every Run builds a brand-new goja.Runtime, with its own global object,
// heap objects and console buffer, and drops it before returning. Nothing is
// pooled or reused, so one request can never observe another's globals or
// logs. The VM has no filesystem, network, timers or host objects; the only
// capability installed is a console that writes into a buffer owned by that
// VM.
//
// LIMITS:
//   - wall clock: a timer calls vm.Interrupt once Limits.Timeout elapses
//   - memory: a watchdog samples heap growth and interrupts past the cap
//   - recursion: the VM call stack is bounded by Config.MaxCallStackSize
//
// Interrupts are forced from outside the VM; the script cannot catch or
// delay them.
package isolate

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sakif/js-playground/internal/apperror"
	"github.com/sakif/js-playground/internal/executor"
)

// compile-time check that *Runtime implements executor.Runtime
var _ executor.Runtime = (*Runtime)(nil)

// Runtime is the owned handle callers share. It carries configuration and the
// memory meter, resolves the meter lazily on first use, and creates one
// isolate per Run.
type Runtime struct {
	cfg    Config
	logger *slog.Logger

	initOnce sync.Once
	meter    MemoryMeter
	ledger   heapLedger
	closed   atomic.Bool
}

// Option customises a Runtime.
type Option func(*Runtime)

// WithMemoryMeter replaces the heap sampler. Tests use it to simulate growth.
func WithMemoryMeter(m MemoryMeter) Option {
	return func(r *Runtime) { r.meter = m }
}

// New creates a Runtime. No VM exists until Run is called.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Runtime {
	if cfg.MaxCallStackSize <= 0 {
		cfg.MaxCallStackSize = DefaultConfig().MaxCallStackSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}

	r := &Runtime{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runtime) init() {
	r.initOnce.Do(func() {
		if r.meter == nil {
			r.meter = defaultMeter()
		}
		r.logger.Debug("isolate runtime initialised",
			slog.Int("maxCallStack", r.cfg.MaxCallStackSize),
			slog.Duration("pollInterval", r.cfg.PollInterval),
		)
	})
}

// Close marks the handle as shut down. Runs already in flight finish normally;
// later calls fail without creating a VM.
func (r *Runtime) Close() error {
	r.closed.Store(true)
	return nil
}

// Run executes js in a new isolate and always returns an Outcome.
func (r *Runtime) Run(ctx context.Context, js string, limits executor.Limits) (out executor.Outcome) {
	start := time.Now()
	defer func() {
		out.Duration = time.Since(start)
		r.logger.Debug("isolate finished",
			slog.Bool("ok", out.OK()),
			slog.String("kind", out.Kind()),
			slog.Int("logLines", len(out.Logs)),
			slog.Duration("duration", out.Duration),
		)
	}()

	if r.closed.Load() {
		return executor.Failed(apperror.Runtime("sandbox runtime is shut down"), nil)
	}
	r.init()

	iso, err := newIsolate(r.cfg)
	if err != nil {
		r.logger.Error("failed to create isolate", slog.String("error", err.Error()))
		return executor.Failed(apperror.Runtime("failed to create sandbox: "+err.Error()), nil)
	}
	defer iso.teardown()

	leave := r.ledger.enter()
	defer leave()

	return iso.run(ctx, js, limits, memoryWatch{meter: r.meter, ledger: &r.ledger, poll: r.cfg.PollInterval})
}
