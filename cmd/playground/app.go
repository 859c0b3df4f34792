package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"

	"github.com/sakif/js-playground/internal/auth"
	"github.com/sakif/js-playground/internal/config"
	"github.com/sakif/js-playground/internal/executor"
	"github.com/sakif/js-playground/internal/executor/docker"
	"github.com/sakif/js-playground/internal/executor/isolate"
)

// newLogger builds the process logger. MCP owns stdout, so callers pick the
// writer.
func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// runtimeCloser is an executor.Runtime that holds resources.
type runtimeCloser interface {
	executor.Runtime
	Close() error
}

// newRuntime builds the backend named by sandbox.backend.
func newRuntime(cfg *config.Config, logger *slog.Logger) (runtimeCloser, error) {
	switch cfg.Sandbox.Backend {
	case config.BackendDocker:
		rt, err := docker.New(cfg.DockerConfig(), cfg.Limits().MemoryLimitBytes, logger)
		if err != nil {
			return nil, fmt.Errorf("starting docker backend: %w", err)
		}
		return rt, nil
	default:
		return isolate.New(cfg.IsolateConfig(), logger), nil
	}
}

// newTokenService uses the configured secret or, when there is none, a random
// one that lives as long as the process.
func newTokenService(cfg config.AuthConfig, logger *slog.Logger) (*auth.TokenService, error) {
	secret := cfg.EditTokenSecret
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("generating edit token secret: %w", err)
		}
		secret = hex.EncodeToString(buf)
		logger.Warn("auth.edit_token_secret not set, edit tokens will not survive a restart")
	}
	return auth.NewTokenService(secret, cfg.EditTokenTTL)
}
