package isolate

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/js-playground/internal/apperror"
	"github.com/sakif/js-playground/internal/executor"
)

func newTestRuntime(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	r := New(DefaultConfig(), logger, opts...)
	t.Cleanup(func() { r.Close() })
	return r
}

// testLimits keeps the memory cap generous so unrelated heap noise never
// trips it; memory behaviour has its own tests below.
func testLimits() executor.Limits {
	return executor.Limits{
		MemoryLimitBytes: 512 * 1024 * 1024,
		Timeout:          2 * time.Second,
	}
}

// =========================================================================
// SUCCESS PATHS
// =========================================================================

func TestRun_Success(t *testing.T) {
	r := newTestRuntime(t)

	tests := []struct {
		name      string
		js        string
		wantValue string // JSON text; "" means undefined
		wantLogs  []string
	}{
		{
			name:      "arithmetic expression",
			js:        "2 * 2",
			wantValue: "4",
			wantLogs:  []string{},
		},
		{
			name:      "log then value",
			js:        "console.log('hi'); 1+1",
			wantValue: "2",
			wantLogs:  []string{"hi"},
		},
		{
			name:      "object literal",
			js:        "({a:1})",
			wantValue: `{"a":1}`,
			wantLogs:  []string{},
		},
		{
			name:      "declaration evaluates to undefined",
			js:        "const x = 'bad';",
			wantValue: "",
			wantLogs:  []string{},
		},
		{
			name:      "string result",
			js:        "'hello'.toUpperCase()",
			wantValue: `"HELLO"`,
			wantLogs:  []string{},
		},
		{
			name:      "null result",
			js:        "null",
			wantValue: "null",
			wantLogs:  []string{},
		},
		{
			name:      "top-level return",
			js:        "const n = 6;\nreturn n * 7;",
			wantValue: "42",
			wantLogs:  []string{},
		},
		{
			name:      "resolved promise is unwrapped",
			js:        "Promise.resolve(20).then(x => x + 1)",
			wantValue: "21",
			wantLogs:  []string{},
		},
		{
			name:      "undefined properties are dropped like JSON",
			js:        "({a: 1, b: undefined})",
			wantValue: `{"a":1}`,
			wantLogs:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := r.Run(context.Background(), tt.js, testLimits())
			require.True(t, out.OK(), "unexpected failure: %v", out.Err)

			if tt.wantValue == "" {
				assert.Nil(t, out.Value)
			} else {
				assert.JSONEq(t, tt.wantValue, string(out.Value))
			}
			assert.Equal(t, tt.wantLogs, out.Logs)
			assert.Greater(t, out.Duration, time.Duration(0))
		})
	}
}

func TestRun_ConsolePrefixesAndOrder(t *testing.T) {
	r := newTestRuntime(t)

	js := `
console.log('a', 1, true);
console.info('note');
console.warn('careful');
console.error('bad', null, undefined);
console.debug('dbg');
console.log();
`
	out := r.Run(context.Background(), js, testLimits())
	require.True(t, out.OK(), "unexpected failure: %v", out.Err)

	assert.Equal(t, []string{
		"a 1 true",
		"Info: note",
		"Warning: careful",
		"Error: bad null undefined",
		"dbg",
		"",
	}, out.Logs)
}

func TestRun_CommonJSScope(t *testing.T) {
	r := newTestRuntime(t)

	out := r.Run(context.Background(), `exports.answer = 42; module.exports.answer`, testLimits())
	require.True(t, out.OK(), "unexpected failure: %v", out.Err)
	assert.Equal(t, "42", string(out.Value))
}

// =========================================================================
// FAILURE PATHS
// =========================================================================

func TestRun_ThrowAfterLogKeepsLogs(t *testing.T) {
	r := newTestRuntime(t)

	out := r.Run(context.Background(), "console.warn('careful'); throw new Error('boom')", testLimits())

	require.False(t, out.OK())
	assert.True(t, errors.Is(out.Err, apperror.ErrRuntime))
	assert.Contains(t, out.Err.Error(), "boom")
	assert.Equal(t, []string{"Warning: careful"}, out.Logs)
}

func TestRun_ThrowBeforeLogHasNoLogs(t *testing.T) {
	r := newTestRuntime(t)

	out := r.Run(context.Background(), "undefinedFunction(); console.log('never')", testLimits())

	require.False(t, out.OK())
	assert.True(t, errors.Is(out.Err, apperror.ErrRuntime))
	assert.Contains(t, out.Err.Error(), "undefinedFunction")
	assert.Empty(t, out.Logs)
}

func TestRun_LogsInOrderBeforeThrow(t *testing.T) {
	r := newTestRuntime(t)

	out := r.Run(context.Background(), "for (let i = 0; i < 3; i++) console.log(i); throw 'plain string'", testLimits())

	require.False(t, out.OK())
	assert.Equal(t, "plain string", out.Err.Error())
	assert.Equal(t, []string{"0", "1", "2"}, out.Logs)
}

func TestRun_SyntaxError(t *testing.T) {
	r := newTestRuntime(t)

	out := r.Run(context.Background(), "let = )(", testLimits())

	require.False(t, out.OK())
	assert.True(t, errors.Is(out.Err, apperror.ErrRuntime))
	assert.Contains(t, out.Err.Error(), "SyntaxError")
	assert.Equal(t, 1, strings.Count(out.Err.Error(), "SyntaxError"), "got %q", out.Err.Error())
	assert.Empty(t, out.Logs)
}

func TestSyntaxError_PrefixedOnce(t *testing.T) {
	assert.Equal(t, "SyntaxError: main.js: Line 1:1 Unexpected reserved word",
		syntaxError(errors.New("SyntaxError: main.js: Line 1:1 Unexpected reserved word")).Error())
	assert.Equal(t, "SyntaxError: main.js: Line 1:5 Unexpected token )",
		syntaxError(errors.New("main.js: Line 1:5 Unexpected token )")).Error())
}

func TestRun_RejectedPromise(t *testing.T) {
	r := newTestRuntime(t)

	out := r.Run(context.Background(), "(async () => { console.log('start'); throw new Error('async boom') })()", testLimits())

	require.False(t, out.OK())
	assert.True(t, errors.Is(out.Err, apperror.ErrRuntime))
	assert.Contains(t, out.Err.Error(), "async boom")
	assert.Equal(t, []string{"start"}, out.Logs)
}

func TestRun_RequireIsUnavailable(t *testing.T) {
	r := newTestRuntime(t)

	out := r.Run(context.Background(), "require('fs')", testLimits())

	require.False(t, out.OK())
	assert.Contains(t, out.Err.Error(), "not available in the sandbox")
}

func TestRun_DeepRecursion(t *testing.T) {
	r := newTestRuntime(t)

	out := r.Run(context.Background(), "function f(n) { return f(n + 1) } f(0)", testLimits())

	require.False(t, out.OK())
	assert.True(t, errors.Is(out.Err, apperror.ErrRuntime))
}

func TestRun_SerializationFailures(t *testing.T) {
	r := newTestRuntime(t)

	tests := []struct {
		name string
		js   string
	}{
		{name: "function result", js: "(function () {})"},
		{name: "nested function", js: "({ handler: () => 1 })"},
		{name: "symbol result", js: "Symbol('s')"},
		{name: "circular structure", js: "const o = {}; o.self = o; o"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := r.Run(context.Background(), "console.log('before');\n"+tt.js, testLimits())

			require.False(t, out.OK())
			assert.True(t, errors.Is(out.Err, apperror.ErrSerialization), "got %v", out.Err)
			assert.Equal(t, []string{"before"}, out.Logs)
		})
	}
}

// =========================================================================
// LIMITS
// =========================================================================

func TestRun_Timeout(t *testing.T) {
	r := newTestRuntime(t)
	limits := testLimits()
	limits.Timeout = 200 * time.Millisecond

	start := time.Now()
	out := r.Run(context.Background(), "console.log('spinning'); while(true){}", limits)
	elapsed := time.Since(start)

	require.False(t, out.OK())
	assert.True(t, errors.Is(out.Err, apperror.ErrTimeout))
	assert.Contains(t, out.Err.Error(), "timed out")
	// the log buffer is discarded with the aborted isolate
	assert.Empty(t, out.Logs)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestRun_TimeoutCannotBeCaught(t *testing.T) {
	r := newTestRuntime(t)
	limits := testLimits()
	limits.Timeout = 100 * time.Millisecond

	js := `
let caught = false;
try { while(true){} } catch (e) { caught = true }
caught`
	out := r.Run(context.Background(), js, limits)

	require.False(t, out.OK())
	assert.True(t, errors.Is(out.Err, apperror.ErrTimeout))
}

func TestRun_ContextCanceled(t *testing.T) {
	r := newTestRuntime(t)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	out := r.Run(ctx, "while(true){}", testLimits())

	require.False(t, out.OK())
	assert.True(t, errors.Is(out.Err, apperror.ErrCanceled))
}

// growingMeter reports a small baseline, then a heap far past any limit.
type growingMeter struct {
	calls atomic.Int64
}

func (m *growingMeter) HeapBytes() uint64 {
	if m.calls.Add(1) == 1 {
		return 1 << 20
	}
	return 1 << 40
}

func TestRun_OutOfMemory_Simulated(t *testing.T) {
	r := newTestRuntime(t, WithMemoryMeter(&growingMeter{}))
	limits := testLimits()
	limits.Timeout = 5 * time.Second

	out := r.Run(context.Background(), "console.log('x'); while(true){}", limits)

	require.False(t, out.OK())
	assert.True(t, errors.Is(out.Err, apperror.ErrOutOfMemory))
	assert.Contains(t, out.Err.Error(), "out of memory")
	assert.Empty(t, out.Logs)
}

func TestRun_OutOfMemory_RealAllocation(t *testing.T) {
	r := newTestRuntime(t)
	limits := executor.Limits{
		MemoryLimitBytes: 16 * 1024 * 1024,
		Timeout:          10 * time.Second,
	}

	js := `
const hoard = [];
while (true) {
  hoard.push(new Array(1000).fill('x'));
}`
	out := r.Run(context.Background(), js, limits)

	require.False(t, out.OK())
	assert.True(t, errors.Is(out.Err, apperror.ErrOutOfMemory), "got %v", out.Err)
}

// =========================================================================
// ISOLATION
// =========================================================================

func TestRun_NoStateLeaksBetweenRuns(t *testing.T) {
	r := newTestRuntime(t)

	first := r.Run(context.Background(), "globalThis.leaked = 'secret'; console.log('one'); 1", testLimits())
	require.True(t, first.OK())

	second := r.Run(context.Background(), "typeof leaked", testLimits())
	require.True(t, second.OK())
	assert.Equal(t, `"undefined"`, string(second.Value))
	assert.Empty(t, second.Logs)
}

func TestRun_ConcurrentRunsAreIndependent(t *testing.T) {
	r := newTestRuntime(t)

	const n = 8
	var wg sync.WaitGroup
	outcomes := make([]executor.Outcome, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			js := "var id = " + string(rune('0'+i)) + "; for (let k = 0; k < 3; k++) console.log(id); id"
			outcomes[i] = r.Run(context.Background(), js, testLimits())
		}(i)
	}
	wg.Wait()

	for i, out := range outcomes {
		require.True(t, out.OK(), "run %d failed: %v", i, out.Err)
		want := string(rune('0' + i))
		assert.Equal(t, want, string(out.Value))
		assert.Equal(t, []string{want, want, want}, out.Logs)
	}
}

func TestRun_AfterClose(t *testing.T) {
	r := newTestRuntime(t)
	require.NoError(t, r.Close())

	out := r.Run(context.Background(), "1", testLimits())
	require.False(t, out.OK())
	assert.True(t, errors.Is(out.Err, apperror.ErrRuntime))
}
