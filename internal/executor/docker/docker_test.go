package docker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/js-playground/internal/apperror"
	"github.com/sakif/js-playground/internal/executor"
)

func envelopeLine(payload string) string {
	return "\n" + resultMarker + payload + "\n"
}

func TestParseOutput(t *testing.T) {
	limits := executor.DefaultLimits()

	tests := []struct {
		name      string
		stdout    string
		stderr    string
		exitCode  int
		wantOK    bool
		wantErr   error
		wantValue string
		wantLogs  []string
	}{
		{
			name:      "success with value and logs",
			stdout:    envelopeLine(`{"ok":true,"result":"2","logs":["hi"]}`),
			wantOK:    true,
			wantValue: "2",
			wantLogs:  []string{"hi"},
		},
		{
			name:     "success with undefined result",
			stdout:   envelopeLine(`{"ok":true,"logs":[]}`),
			wantOK:   true,
			wantLogs: []string{},
		},
		{
			name:     "runtime error keeps logs",
			stdout:   envelopeLine(`{"ok":false,"kind":"runtime_error","error":"boom","logs":["Warning: careful"]}`),
			wantErr:  apperror.ErrRuntime,
			wantLogs: []string{"Warning: careful"},
		},
		{
			name:     "timeout discards logs",
			stdout:   envelopeLine(`{"ok":false,"kind":"timeout","logs":[]}`),
			wantErr:  apperror.ErrTimeout,
			wantLogs: []string{},
		},
		{
			name:     "serialization failure",
			stdout:   envelopeLine(`{"ok":false,"kind":"serialization_error","error":"result cannot be serialized: x","logs":["before"]}`),
			wantErr:  apperror.ErrSerialization,
			wantLogs: []string{"before"},
		},
		{
			name:     "node heap abort",
			stderr:   "FATAL ERROR: Reached heap limit Allocation failed - JavaScript heap out of memory",
			exitCode: exitNodeAbort,
			wantErr:  apperror.ErrOutOfMemory,
			wantLogs: []string{},
		},
		{
			name:     "cgroup oom kill",
			exitCode: exitOOMKilled,
			wantErr:  apperror.ErrOutOfMemory,
			wantLogs: []string{},
		},
		{
			name:      "last envelope wins over earlier noise",
			stdout:    "warming up\n" + envelopeLine(`{"ok":true,"result":"1","logs":[]}`) + envelopeLine(`{"ok":true,"result":"7","logs":[]}`),
			wantOK:    true,
			wantValue: "7",
			wantLogs:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := parseOutput(tt.stdout, tt.stderr, tt.exitCode, limits)

			assert.Equal(t, tt.wantOK, out.OK())
			if tt.wantErr != nil {
				assert.True(t, errors.Is(out.Err, tt.wantErr), "got %v", out.Err)
			}
			if tt.wantValue == "" {
				assert.Nil(t, out.Value)
			} else {
				assert.JSONEq(t, tt.wantValue, string(out.Value))
			}
			assert.Equal(t, tt.wantLogs, out.Logs)
		})
	}
}

func TestParseOutput_MissingEnvelopeIsHostFault(t *testing.T) {
	out := parseOutput("", "node: not found", 127, executor.DefaultLimits())

	require.False(t, out.OK())
	assert.Equal(t, "internal", out.Kind())
	assert.Contains(t, out.Err.Error(), "code 127")
}

func TestParseOutput_TimeoutMessageNamesLimit(t *testing.T) {
	limits := executor.Limits{MemoryLimitBytes: 128 << 20, Timeout: 1500 * time.Millisecond}
	out := parseOutput(envelopeLine(`{"ok":false,"kind":"timeout","logs":[]}`), "", 0, limits)

	assert.Equal(t, "execution timed out after 1.5s", out.Err.Error())
}

func TestNodeCommand(t *testing.T) {
	cmd := nodeCommand(executor.DefaultLimits())

	require.Len(t, cmd, 4)
	assert.Equal(t, "node", cmd[0])
	assert.Equal(t, "--max-old-space-size=128", cmd[1])
	assert.Equal(t, "-e", cmd[2])
	assert.True(t, strings.Contains(cmd[3], resultMarker))

	unlimited := nodeCommand(executor.Limits{Timeout: time.Second})
	assert.Equal(t, []string{"node", "-e", harness}, unlimited)
}

// TestDockerRuntime talks to a real Docker daemon and is opt-in.
func TestDockerRuntime(t *testing.T) {
	if os.Getenv("PLAYGROUND_DOCKER_TESTS") != "1" {
		t.Skip("set PLAYGROUND_DOCKER_TESTS=1 to run against a local docker daemon")
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	cfg := DefaultConfig()
	cfg.PoolSize = 1
	limits := executor.DefaultLimits()

	r, err := New(cfg, limits.MemoryLimitBytes, logger)
	require.NoError(t, err)
	defer r.Close()

	t.Run("value and logs", func(t *testing.T) {
		out := r.Run(context.Background(), "console.log('hi'); 1+1", limits)
		require.True(t, out.OK(), "unexpected failure: %v", out.Err)
		assert.Equal(t, "2", string(out.Value))
		assert.Equal(t, []string{"hi"}, out.Logs)
	})

	t.Run("throw keeps logs", func(t *testing.T) {
		out := r.Run(context.Background(), "console.warn('careful'); throw new Error('boom')", limits)
		require.False(t, out.OK())
		assert.True(t, errors.Is(out.Err, apperror.ErrRuntime))
		assert.Equal(t, []string{"Warning: careful"}, out.Logs)
	})

	t.Run("infinite loop times out", func(t *testing.T) {
		out := r.Run(context.Background(), "while(true){}", limits)
		require.False(t, out.OK())
		assert.True(t, errors.Is(out.Err, apperror.ErrTimeout))
		assert.Empty(t, out.Logs)
	})
}
