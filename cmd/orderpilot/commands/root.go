// Package commands implements the orderpilot CLI.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "orderpilot",
		Short: "OrderPilot - Order Construction Automation Engine",
		Long: `OrderPilot drives sales orders into a remote session-based order-entry
system, one line item at a time.

Features:
  - Typed order files via CUE
  - Local article catalog with variant and quantity rules
  - Order acceptance policies (OPA/rego)
  - Quiescence-synchronized remote driving with bounded retry/resume
  - Per-run performance reports (Markdown, JSON, CSV, XLSX)`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "orderpilot.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newSubmitCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newReportCommand())
	rootCmd.AddCommand(newLookupCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newSessionCommand())

	return rootCmd
}
