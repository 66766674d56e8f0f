package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

func newLookupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup <article-code> [quantity]",
		Short: "Resolve an article against the local catalog",
		Long: `Lookup resolves an article code to its selected variant for an optional
quantity and reports the variant's packaging rules. The remote system is
never contacted.`,
		Example: `  orderpilot lookup 10839.314.016
  orderpilot lookup 10839.314.016 5`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, cmd.Root().Version)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			quantity := 1
			if len(args) > 1 {
				quantity, err = strconv.Atoi(args[1])
				if err != nil || quantity <= 0 {
					return fmt.Errorf("invalid quantity %q", args[1])
				}
			}

			variant, err := a.store.SelectVariant(ctx, args[0], quantity)
			if err != nil {
				return err
			}
			if variant == nil {
				return fmt.Errorf("article %q not found in catalog", args[0])
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(variant)
			}

			fmt.Printf("Variant:  %s\n", variant.ID)
			if variant.Name != "" {
				fmt.Printf("Name:     %s\n", variant.Name)
			}
			fmt.Printf("Package:  %s\n", variant.PackageContent)
			fmt.Printf("Multiple: %d\n", variant.MultipleQty)
			if variant.MinQty > 0 || variant.MaxQty > 0 {
				fmt.Printf("Range:    %d..%d\n", variant.MinQty, variant.MaxQty)
			}

			check, err := a.store.ValidateQuantity(ctx, variant, quantity)
			if err != nil {
				return err
			}
			if !check.Valid {
				fmt.Printf("Quantity %d invalid: %v (try %v)\n", quantity, check.Errors, check.Suggestions)
			}
			return nil
		},
	}

	return cmd
}
