package isolate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"

	"github.com/sakif/js-playground/internal/apperror"
	"github.com/sakif/js-playground/internal/executor"
)

// abortReason records why the VM was interrupted from outside.
type abortReason int32

const (
	notAborted abortReason = iota
	abortTimeout
	abortMemory
	abortCanceled
)

func (a abortReason) String() string {
	switch a {
	case abortTimeout:
		return "execution timeout"
	case abortMemory:
		return "memory limit exceeded"
	case abortCanceled:
		return "execution canceled"
	default:
		return "not aborted"
	}
}

// isolate is one VM plus everything private to it. It lives for exactly one Run.
type isolate struct {
	vm   *goja.Runtime
	logs []string

	// JSON.stringify as it was before user code ran, so the script cannot
	// replace the function that serializes its own result.
	json      goja.Value
	stringify goja.Callable
	replacer  goja.Value

	aborted atomic.Int32
}

func newIsolate(cfg Config) (*isolate, error) {
	vm := goja.New()
	vm.SetMaxCallStackSize(cfg.MaxCallStackSize)

	iso := &isolate{vm: vm, logs: []string{}}

	if err := iso.installConsole(); err != nil {
		return nil, fmt.Errorf("installing console: %w", err)
	}
	if err := iso.installModuleScope(); err != nil {
		return nil, fmt.Errorf("installing module scope: %w", err)
	}
	if err := iso.captureJSON(); err != nil {
		return nil, fmt.Errorf("capturing JSON: %w", err)
	}

	return iso, nil
}

// installModuleScope gives CommonJS output from the transpiler somewhere to
// write its exports. require is present only to fail with a clear message.
func (iso *isolate) installModuleScope() error {
	exports := iso.vm.NewObject()
	module := iso.vm.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return err
	}
	if err := iso.vm.Set("module", module); err != nil {
		return err
	}
	if err := iso.vm.Set("exports", exports); err != nil {
		return err
	}
	if err := iso.vm.Set("global", iso.vm.GlobalObject()); err != nil {
		return err
	}
	return iso.vm.Set("require", func(call goja.FunctionCall) goja.Value {
		panic(iso.vm.NewGoError(fmt.Errorf("require(%q) is not available in the sandbox", call.Argument(0).String())))
	})
}

func (iso *isolate) captureJSON() error {
	jsonObj := iso.vm.Get("JSON")
	if jsonObj == nil {
		return errors.New("JSON global missing")
	}
	stringify, ok := goja.AssertFunction(jsonObj.ToObject(iso.vm).Get("stringify"))
	if !ok {
		return errors.New("JSON.stringify is not callable")
	}
	iso.json = jsonObj
	iso.stringify = stringify
	iso.replacer = iso.vm.ToValue(iso.rejectUnserializable)
	return nil
}

// abort interrupts the VM once; the first reason wins.
func (iso *isolate) abort(reason abortReason) {
	if iso.aborted.CompareAndSwap(int32(notAborted), int32(reason)) {
		iso.vm.Interrupt(reason.String())
	}
}

func (iso *isolate) abortReason() abortReason {
	return abortReason(iso.aborted.Load())
}

// watch arms the wall-clock timer and the memory watchdog. The returned stop
// function is idempotent and waits for the watchdog goroutine to exit.
func (iso *isolate) watch(ctx context.Context, limits executor.Limits, mem memoryWatch) func() {
	var timer *time.Timer
	if limits.Timeout > 0 {
		timer = time.AfterFunc(limits.Timeout, func() { iso.abort(abortTimeout) })
	}

	baseline := mem.meter.HeapBytes()
	peakLive := mem.ledger.liveRuns()
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(mem.poll)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					iso.abort(abortTimeout)
				} else {
					iso.abort(abortCanceled)
				}
				return
			case <-ticker.C:
				if limits.MemoryLimitBytes <= 0 {
					continue
				}
				if n := mem.ledger.liveRuns(); n > peakLive {
					peakLive = n
				}
				if !mem.over(baseline, allowance(limits.MemoryLimitBytes, peakLive)) {
					continue
				}
				mem.ledger.collect(mem.poll)
				if mem.over(baseline, allowance(limits.MemoryLimitBytes, peakLive)) {
					iso.abort(abortMemory)
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			if timer != nil {
				timer.Stop()
			}
			close(done)
			wg.Wait()
		})
	}
}

// memoryWatch is what the watchdog needs from the owning Runtime.
type memoryWatch struct {
	meter  MemoryMeter
	ledger *heapLedger
	poll   time.Duration
}

func (m memoryWatch) over(baseline, allowed uint64) bool {
	current := m.meter.HeapBytes()
	return current > baseline && current-baseline > allowed
}

// run compiles, executes and serializes under the limits. Everything that can
// execute user code (getters, toString, toJSON) happens before stop() so the
// timer still covers it.
func (iso *isolate) run(ctx context.Context, js string, limits executor.Limits, mem memoryWatch) executor.Outcome {
	program, err := compile(js)
	if err != nil {
		return executor.Failed(apperror.Runtime(err.Error()), nil)
	}

	stop := iso.watch(ctx, limits, mem)
	defer stop()

	var (
		raw    json.RawMessage
		runErr error
	)
	value, err := iso.execute(program)
	switch {
	case err != nil:
		runErr = apperror.Runtime(iso.describe(err))
	default:
		raw, runErr = iso.result(value)
	}

	// Decide only after the timer and watchdog are stopped: once an abort
	// has been recorded, no late result can replace it.
	stop()
	switch reason := iso.abortReason(); reason {
	case abortTimeout:
		return executor.Failed(apperror.Timeout(
			fmt.Sprintf("execution timed out after %s", limits.Timeout)), nil)
	case abortMemory:
		return executor.Failed(apperror.OutOfMemory(
			fmt.Sprintf("out of memory: script exceeded the %d MiB limit", limits.MemoryLimitBytes/(1024*1024))), nil)
	case abortCanceled:
		return executor.Failed(apperror.Canceled("execution canceled"), nil)
	}

	if runErr != nil {
		return executor.Failed(runErr, iso.logs)
	}
	return executor.Succeeded(raw, iso.logs)
}

// compile parses js as a script. A top-level `return` is legal only inside a
// function, so such sources are recompiled as the body of one.
func compile(js string) (*goja.Program, error) {
	program, err := goja.Compile("main.js", js, false)
	if err == nil {
		return program, nil
	}
	if !strings.Contains(err.Error(), "Illegal return") {
		return nil, syntaxError(err)
	}

	wrapped, werr := goja.Compile("main.js", "(function() {\n"+js+"\n})()", false)
	if werr != nil {
		return nil, syntaxError(werr)
	}
	return wrapped, nil
}

// syntaxError names the error class once; goja's parser messages usually
// carry it already.
func syntaxError(err error) error {
	msg := err.Error()
	if strings.HasPrefix(msg, "SyntaxError") {
		return errors.New(msg)
	}
	return errors.New("SyntaxError: " + msg)
}

// execute runs the program, converting any host panic into an error.
func (iso *isolate) execute(program *goja.Program) (value goja.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("internal sandbox fault: %v", r)
		}
	}()
	return iso.vm.RunProgram(program)
}

// result unwraps a settled promise and serializes the value to JSON.
func (iso *isolate) result(value goja.Value) (raw json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperror.Runtime(iso.describe(panicError(r)))
		}
	}()

	value, err = iso.settle(value)
	if err != nil {
		return nil, err
	}
	return iso.serialize(value)
}

func (iso *isolate) settle(value goja.Value) (goja.Value, error) {
	obj, ok := value.(*goja.Object)
	if !ok {
		return value, nil
	}
	promise, ok := obj.Export().(*goja.Promise)
	if !ok {
		return value, nil
	}

	switch promise.State() {
	case goja.PromiseStateFulfilled:
		return promise.Result(), nil
	case goja.PromiseStateRejected:
		return nil, apperror.Runtime(iso.valueMessage(promise.Result()))
	default:
		return nil, apperror.Runtime("promise was still pending when the script finished")
	}
}

func (iso *isolate) serialize(value goja.Value) (json.RawMessage, error) {
	if value == nil || goja.IsUndefined(value) {
		return nil, nil
	}

	out, err := iso.stringify(iso.json, value, iso.replacer)
	if err != nil {
		return nil, apperror.Serialization("result cannot be serialized: " + iso.describe(err))
	}
	if goja.IsUndefined(out) {
		return nil, nil
	}
	return json.RawMessage(out.String()), nil
}

// rejectUnserializable is the JSON.stringify replacer. Plain JSON.stringify
// silently drops functions and symbols; here they become an error instead.
func (iso *isolate) rejectUnserializable(call goja.FunctionCall) goja.Value {
	key := call.Argument(0).String()
	value := call.Argument(1)

	what := ""
	if _, ok := goja.AssertFunction(value); ok {
		what = "function"
	} else if _, ok := value.(*goja.Symbol); ok {
		what = "symbol"
	}
	if what == "" {
		return value
	}

	if key == "" {
		panic(iso.vm.NewTypeError("a %s value is not JSON-serializable", what))
	}
	panic(iso.vm.NewTypeError("property %q holds a %s, which is not JSON-serializable", key, what))
}

// describe turns a goja error into the message text a user should see.
func (iso *isolate) describe(err error) string {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return iso.valueMessage(ex.Value())
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return fmt.Sprint(interrupted.Value())
	}
	return err.Error()
}

// valueMessage reads .message from thrown Error objects and falls back to
// String() for anything else that was thrown (strings, numbers, plain objects).
func (iso *isolate) valueMessage(v goja.Value) (msg string) {
	defer func() {
		if r := recover(); r != nil {
			msg = "uncaught exception"
		}
	}()

	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if obj, ok := v.(*goja.Object); ok {
		if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) {
			return m.String()
		}
	}
	return v.String()
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	if v, ok := r.(goja.Value); ok {
		return fmt.Errorf("%s", v.String())
	}
	return fmt.Errorf("%v", r)
}

// teardown drops every reference into the VM.
func (iso *isolate) teardown() {
	iso.vm.ClearInterrupt()
	iso.vm = nil
	iso.logs = nil
	iso.json = nil
	iso.stringify = nil
	iso.replacer = nil
}
