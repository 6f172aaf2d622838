package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/ramtracker/internal/query"
)

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <ram_id>",
		Short: "Prints a product's price history from its routed series",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRAMID(args[0])
			if err != nil {
				return err
			}
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			series, err := app.Queries().Series(cmd.Context(), id)
			if err != nil {
				return err
			}
			hist, found, err := app.Queries().PriceHistory(cmd.Context(), id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !found {
				fmt.Fprintf(out, "No %s price history for RAM ID %d.\n", series.Kind, id)
				return nil
			}
			fmt.Fprintf(out, "%s price history for RAM ID %d:\n", series.Kind, id)
			rows := make([]table.Row, 0, len(hist))
			for _, obs := range hist {
				rows = append(rows, table.Row{obs.ScrapedAt.UTC().Format(query.ChartTimeLayout), obs.Price, obs.Status})
			}
			renderTable(out, table.Row{"Scraped At", "Price", "Status"}, rows)
			return nil
		},
	}
}
