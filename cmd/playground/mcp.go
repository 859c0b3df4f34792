package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sakif/js-playground/internal/config"
	"github.com/sakif/js-playground/internal/executor/transpile"
	"github.com/sakif/js-playground/internal/mcpserver"
	"github.com/sakif/js-playground/internal/service"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve execute_javascript and execute_typescript over MCP stdio",
	Long: `Start a Model Context Protocol server on stdin/stdout. Logs go to
stderr so they never corrupt the protocol stream.`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}

	runtime, err := newRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer runtime.Close()

	svc := service.NewExecutionService(runtime, transpile.New(), nil, cfg.Limits(), logger)
	return mcpserver.New(svc, cfg.Limits(), logger).ServeStdio()
}
