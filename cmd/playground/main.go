// Command playground runs the JavaScript/TypeScript playground: the HTTP API
// (serve), a one-shot runner (run) and an MCP tool server (mcp).
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFlag string

var rootCmd = &cobra.Command{
	Use:   "playground",
	Short: "Sandboxed JavaScript and TypeScript playground",
	Long: `playground runs untrusted JavaScript and TypeScript in a sandbox with a
fixed time and memory budget, and reports the result together with
everything the code printed to the console.

Configuration comes from playground.yaml (or --config) and PLAYGROUND_*
environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "path to a config file (default: ./playground.yaml if present)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// the run command already reported the failed execution
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}
