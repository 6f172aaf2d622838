package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/ramtracker/internal/ingest"
)

func newCategoriesCmd() *cobra.Command {
	var dual, single string
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Reclassifies product categories from the dual-channel flag",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			defaults := app.Categories()
			if dual == "" {
				dual = defaults.Dual
			}
			if single == "" {
				single = defaults.Single
			}
			updated, err := ingest.Reclassify(cmd.Context(), app.Store(), dual, single)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated categories for %d products.\n", updated)
			return nil
		},
	}
	cmd.Flags().StringVar(&dual, "dual", "", "category for dual-channel products (default from config)")
	cmd.Flags().StringVar(&single, "single", "", "category for single-channel products (default from config)")
	return cmd
}
