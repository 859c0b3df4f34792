package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/js-playground/internal/config"
	"github.com/sakif/js-playground/internal/executor"
	"github.com/sakif/js-playground/internal/executor/isolate"
	"github.com/sakif/js-playground/internal/executor/transpile"
	"github.com/sakif/js-playground/internal/service"
)

func newRunService(t *testing.T) *service.ExecutionService {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rt := isolate.New(isolate.DefaultConfig(), logger)
	t.Cleanup(func() { rt.Close() })
	return service.NewExecutionService(rt, transpile.New(), nil, executor.DefaultLimits(), logger)
}

func TestRunCode(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		lang    executor.Language
		wantOut string
		wantErr string
		failed  bool
	}{
		{
			name:    "logs then result",
			code:    "console.log('hi'); [1,2].map(n => n * 2)",
			lang:    executor.JavaScript,
			wantOut: "hi\n[2,4]\n",
		},
		{
			name:    "undefined prints nothing",
			code:    "let a = 1",
			lang:    executor.JavaScript,
			wantOut: "",
		},
		{
			name:    "typescript",
			code:    "const n: number = 21; n * 2",
			lang:    executor.TypeScript,
			wantOut: "42\n",
		},
		{
			name:    "runtime error keeps logs",
			code:    "console.warn('careful'); throw new Error('boom')",
			lang:    executor.JavaScript,
			wantOut: "Warning: careful\n",
			wantErr: "runtime_error: boom\n",
			failed:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out, errOut bytes.Buffer
			err := runCode(context.Background(), &out, &errOut, newRunService(t), tt.code, tt.lang)

			if tt.failed {
				assert.ErrorIs(t, err, errRunFailed)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantOut, out.String())
			assert.Equal(t, tt.wantErr, errOut.String())
		})
	}
}

type brokenService struct{}

func (brokenService) Execute(context.Context, executor.Request) (executor.Outcome, error) {
	return executor.Failed(errors.New("docker: no daemon"), nil), nil
}

func TestRunCode_HostFaultIsAnError(t *testing.T) {
	var out, errOut bytes.Buffer
	err := runCode(context.Background(), &out, &errOut, brokenService{}, "1", executor.JavaScript)

	require.Error(t, err)
	assert.NotErrorIs(t, err, errRunFailed)
	assert.Empty(t, errOut.String())
}

func TestReadSource(t *testing.T) {
	src, err := readSource(strings.NewReader("1 + 1"), "-")
	require.NoError(t, err)
	assert.Equal(t, "1 + 1", src)

	path := filepath.Join(t.TempDir(), "main.js")
	require.NoError(t, os.WriteFile(path, []byte("2 + 2"), 0o644))
	src, err = readSource(nil, path)
	require.NoError(t, err)
	assert.Equal(t, "2 + 2", src)

	_, err = readSource(nil, filepath.Join(t.TempDir(), "missing.js"))
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}

func TestNewTokenService_GeneratesSecret(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tokens, err := newTokenService(config.AuthConfig{}, logger)
	require.NoError(t, err)

	token, err := tokens.Issue("abc")
	require.NoError(t, err)
	assert.NoError(t, tokens.Verify(token, "abc"))
}
