// Package cmd implements the flowtestctl CLI: serve the Run-trigger API and
// worker pool, or trigger/retry a single Run from the command line. Grounded
// on the teacher's cli/cmd/root.go — a bare cobra root registering
// subcommands in init(), with persistent flags for the handful of settings
// every subcommand needs.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	configPath string
	suiteRoot  string
	logJSON    bool
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "flowtestctl",
	Short: "flowtestctl operates the flow execution engine",
	Long: `flowtestctl runs the declarative flow-testing engine: serve the
Run-trigger API and worker pool, or trigger/retry a Run directly from the
command line.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (optional, defaults applied otherwise)")
	rootCmd.PersistentFlags().StringVar(&suiteRoot, "suite-root", "./flows", "directory flow suite documents are loaded from")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit JSON logs instead of text")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(triggerCmd)
	rootCmd.AddCommand(retryCmd)
}
