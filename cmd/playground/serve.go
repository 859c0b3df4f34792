package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sakif/js-playground/internal/config"
	"github.com/sakif/js-playground/internal/middleware"
	sqliteRepo "github.com/sakif/js-playground/internal/repository/sqlite"
	"github.com/sakif/js-playground/internal/server"
)

var portFlag int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the playground HTTP API",
	Long: `Start the HTTP API. Execution endpoints live under /api/execute,
snippets under /api/snippets.

Examples:
  playground serve
  playground serve --port 9090
  PLAYGROUND_SANDBOX_BACKEND=docker playground serve`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&portFlag, "port", 0, "port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return err
	}
	if portFlag > 0 {
		cfg.Server.Port = portFlag
	}

	logger, err := newLogger(cfg.Log, os.Stdout)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(cfg.Storage.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}
	db, err := sqliteRepo.New(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	runtime, err := newRuntime(cfg, logger)
	if err != nil {
		db.Close()
		return err
	}
	defer runtime.Close()

	tokens, err := newTokenService(cfg.Auth, logger)
	if err != nil {
		db.Close()
		return err
	}

	logger.Info("configuration loaded",
		slog.String("sandbox.backend", cfg.Sandbox.Backend),
		slog.Int("sandbox.memory_limit_mb", cfg.Sandbox.MemoryLimitMB),
		slog.Int("sandbox.timeout_ms", cfg.Sandbox.TimeoutMS),
		slog.Int("execution.max_concurrent", cfg.Execution.MaxConcurrent),
		slog.String("storage.db_path", cfg.Storage.DBPath),
	)

	srv := server.New(server.Config{
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Limits:          cfg.Limits(),
		RateLimit: middleware.RateLimitConfig{
			RequestsPerSecond: cfg.Execution.RatePerSecond,
			Burst:             cfg.Execution.Burst,
		},
		MaxConcurrent: cfg.Execution.MaxConcurrent,
		QueueWait:     cfg.Execution.QueueWait,
	}, db, runtime, tokens, logger)

	// Start closes the database on return.
	return srv.Start(cmd.Context())
}
