package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/ramtracker/internal/query"
)

func newCatalogCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Lists products with their latest observation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			entries, err := app.Queries().ListCatalogWithLatest(cmd.Context(), limit)
			if err != nil {
				return err
			}
			rows := make([]table.Row, 0, len(entries))
			for _, e := range entries {
				price, status, scraped := "-", "-", "-"
				if e.Latest != nil {
					price = fmt.Sprint(e.Latest.Price)
					status = string(e.Latest.Status)
					scraped = e.Latest.ScrapedAt.UTC().Format(query.ChartTimeLayout)
				}
				rows = append(rows, table.Row{
					e.Product.ID, e.Product.Category, e.Product.Brand, e.Product.Capacity,
					e.Product.Speed, e.Product.Latency, e.Product.IsDualChannel, e.IsTracked,
					price, status, scraped,
				})
			}
			renderTable(cmd.OutOrStdout(), table.Row{
				"ID", "Category", "Brand", "Capacity", "Speed", "Latency", "Dual", "Tracked",
				"Price", "Status", "Scraped At",
			}, rows)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 1000, "maximum products to list (0 for all)")
	return cmd
}
