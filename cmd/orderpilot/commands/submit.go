package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/orderpilot/orderpilot/pkg/config"
)

func newSubmitCommand() *cobra.Command {
	var skipPolicies bool

	cmd := &cobra.Command{
		Use:   "submit <order-file>",
		Short: "Submit an order to the remote system",
		Long: `Submit parses a CUE order file, validates it against the local catalog
and acceptance policies, then drives the order into the remote order-entry
system line item by line item.

A performance report is written to the configured report directory on
every outcome, success or failure.`,
		Example: `  # Submit an order
  orderpilot submit orders/acme.cue

  # Submit without policy enforcement
  orderpilot submit --skip-policies orders/acme.cue`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, cmd.Root().Version)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			order, err := config.NewOrderParser().ParseFile(args[0])
			if err != nil {
				return err
			}

			if !skipPolicies {
				if err := a.checkPolicies(ctx, order); err != nil {
					return err
				}
			}

			result, err := a.builder.BuildOrder(ctx, order)
			if err != nil {
				if result != nil && result.RowsSaved > 0 {
					a.logger.WithField("rows_saved", result.RowsSaved).
						Warn("run failed after saving rows; saved rows remain on the remote side")
				}
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			fmt.Printf("Order %s submitted: %d row(s) saved\n", result.OrderID, result.RowsSaved)
			if result.Synthesized {
				fmt.Println("Warning: order id was synthesized locally; verify it on the remote side")
			}
			for _, w := range result.Warnings {
				fmt.Println("Warning:", w)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipPolicies, "skip-policies", false, "skip order acceptance policies")

	return cmd
}
