package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orderpilot/orderpilot/pkg/config"
	"github.com/orderpilot/orderpilot/pkg/engine"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <order-file>...",
		Short: "Validate order files without submitting",
		Long: `Validate parses order files, resolves every article against the local
catalog, checks quantities against packaging rules, and evaluates
acceptance policies. Nothing is sent to the remote system.`,
		Example: `  orderpilot validate orders/acme.cue
  orderpilot validate orders/*.cue`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, cmd.Root().Version)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			parser := config.NewOrderParser()
			failed := 0
			for _, path := range args {
				if err := validateOne(cmd, a, parser, path); err != nil {
					fmt.Printf("FAIL %s: %v\n", path, err)
					failed++
					continue
				}
				fmt.Printf("OK   %s\n", path)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d order file(s) failed validation", failed, len(args))
			}
			return nil
		},
	}

	return cmd
}

func validateOne(cmd *cobra.Command, a *app, parser *config.OrderParser, path string) error {
	ctx := cmd.Context()

	order, err := parser.ParseFile(path)
	if err != nil {
		return err
	}

	for _, item := range order.Items {
		variant, err := a.store.SelectVariant(ctx, item.ArticleCode, item.RequestedQuantity)
		if err != nil {
			return err
		}
		if variant == nil {
			return engine.NewNotFoundError(
				fmt.Sprintf("article %q not found in catalog", item.ArticleCode), nil).
				WithCode(engine.ErrCodeArticleUnknown).WithItem(item.ArticleCode)
		}
		check, err := a.store.ValidateQuantity(ctx, variant, item.RequestedQuantity)
		if err != nil {
			return err
		}
		if !check.Valid {
			return engine.NewValidationError(
				fmt.Sprintf("item %s: %v (try %v)", item.ArticleCode, check.Errors, check.Suggestions), nil).
				WithCode(engine.ErrCodeQuantityInvalid).WithItem(item.ArticleCode)
		}
	}

	return a.checkPolicies(ctx, order)
}
