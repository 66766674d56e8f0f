package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/orderpilot/orderpilot/pkg/profile"
)

func newReportCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "report <run-export.json>",
		Short: "Re-render a run's performance report",
		Long: `Report reads a run's JSON export and re-renders the performance report
offline. Useful for inspecting old runs without the original artifacts.`,
		Example: `  orderpilot report reports/run-4f2c.json
  orderpilot report --format csv reports/run-4f2c.json > run.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open export: %w", err)
			}
			defer f.Close()

			summary, records, err := profile.ReadJSON(f)
			if err != nil {
				return err
			}

			switch format {
			case "markdown", "":
				return profile.WriteMarkdown(os.Stdout, summary, records)
			case "json":
				return profile.WriteJSON(os.Stdout, summary, records)
			case "csv":
				return profile.WriteCSV(os.Stdout, records)
			default:
				return fmt.Errorf("unsupported format %q", format)
			}
		},
	}

	cmd.Flags().StringVar(&format, "format", "markdown", "output format: markdown, json, csv")

	return cmd
}
