package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sakif/js-playground/internal/config"
	"github.com/sakif/js-playground/internal/executor"
	"github.com/sakif/js-playground/internal/executor/transpile"
	"github.com/sakif/js-playground/internal/service"
)

// errRunFailed means the code ran and failed; the failure is already printed.
var errRunFailed = errors.New("execution failed")

var tsFlag bool

var runCmd = &cobra.Command{
	Use:   "run [file|-]",
	Short: "Run a JavaScript or TypeScript file once",
	Long: `Run code in the sandbox and print its console output followed by the
result. Reads standard input when the file is "-" or omitted. Files ending in
.ts are treated as TypeScript.

Examples:
  playground run hello.js
  playground run --ts < interface.ts
  echo '[1,2,3].map(n => n * 2)' | playground run`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&tsFlag, "ts", false, "treat the input as TypeScript")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	path := "-"
	if len(args) == 1 {
		path = args[0]
	}
	code, err := readSource(cmd.InOrStdin(), path)
	if err != nil {
		return err
	}

	lang := executor.JavaScript
	if tsFlag || filepath.Ext(path) == ".ts" {
		lang = executor.TypeScript
	}

	cfg, err := config.Load(configFlag)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	runtime, err := newRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer runtime.Close()

	svc := service.NewExecutionService(runtime, transpile.New(), nil, cfg.Limits(), logger)
	return runCode(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), svc, code, lang)
}

func readSource(stdin io.Reader, path string) (string, error) {
	var (
		src []byte
		err error
	)
	if path == "-" {
		src, err = io.ReadAll(stdin)
	} else {
		src, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(src), nil
}

type executionService interface {
	Execute(ctx context.Context, req executor.Request) (executor.Outcome, error)
}

// runCode prints console lines to out, then the JSON result if there is one.
// A failure goes to errOut as "<kind>: <message>".
func runCode(ctx context.Context, out, errOut io.Writer, svc executionService, code string, lang executor.Language) error {
	if ctx == nil {
		ctx = context.Background()
	}

	outcome, err := svc.Execute(ctx, executor.Request{Code: code, Language: lang})
	if err != nil {
		return err
	}

	for _, line := range outcome.Logs {
		fmt.Fprintln(out, line)
	}

	if !outcome.OK() {
		if outcome.Kind() == "internal" {
			return fmt.Errorf("sandbox unavailable: %w", outcome.Err)
		}
		fmt.Fprintf(errOut, "%s: %s\n", outcome.Kind(), outcome.Err)
		return errRunFailed
	}

	if outcome.Value != nil {
		fmt.Fprintln(out, string(outcome.Value))
	}
	return nil
}
