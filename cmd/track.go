package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newTrackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "track <ram_id>",
		Short: "Promotes a product to a dedicated price series",
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
			res, err := app.Queries().Track(cmd.Context(), id)
			if err != nil {
				return err
			}
			if res.AlreadyTracked {
				fmt.Fprintf(cmd.OutOrStdout(), "RAM ID %d is already tracked.\n", id)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added RAM ID %d to tracked list.\n", id)
			return nil
		},
	}
}

func newTrackedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tracked",
		Short: "Lists tracked products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			members, err := app.Queries().Tracked(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([]table.Row, 0, len(members))
			for _, m := range members {
				rows = append(rows, table.Row{m.ProductID, m.CreatedAt.Format(time.RFC3339)})
			}
			renderTable(cmd.OutOrStdout(), table.Row{"RAM ID", "Tracked Since"}, rows)
			return nil
		},
	}
}

func parseRAMID(raw string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("ram_id must be an integer: %q", raw)
	}
	return id, nil
}
