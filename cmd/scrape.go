package cmd

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newScrapeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scrape",
		Short: "Fetches the vendor page once and records prices",
		Long: `Fetches the configured vendor page, archives the raw HTML, and writes one
observation per listed product. Tracked products are written to their dedicated series.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := app.Ingester().Scrape(cmd.Context())
			if err != nil {
				return fmt.Errorf("scrape: %w", err)
			}
			renderTable(cmd.OutOrStdout(), table.Row{"Field", "Value"}, []table.Row{
				{"Run ID", summary.RunID},
				{"Scraped At", summary.ScrapedAt.Format(time.RFC3339)},
				{"Snapshot", summary.SnapshotURI},
				{"Snapshot SHA-256", summary.SnapshotDigest},
				{"Products Seen", summary.ProductsSeen},
				{"Products Created", summary.ProductsCreated},
				{"Shared Writes", summary.SharedWrites},
				{"Dedicated Writes", summary.DedicatedWrites},
				{"Out Of Stock", summary.OutOfStock},
				{"Unpriced", summary.Unpriced},
			})
			return nil
		},
	}
}
