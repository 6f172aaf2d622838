// Package cmd defines and implements the CLI commands for the ramtracker executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/ramtracker/internal/config"
	"github.com/JakeFAU/ramtracker/internal/ingest"
	"github.com/JakeFAU/ramtracker/internal/query"
	"github.com/JakeFAU/ramtracker/internal/ram"
	"github.com/JakeFAU/ramtracker/internal/server"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application surface commands use, so tests can inject an in-memory app.
type App interface {
	Close()
	Logger() *zap.Logger
	Store() ram.Store
	Queries() *query.Service
	Ingester() *ingest.Ingester
	Categories() config.CategoriesConfig
	Migrate(ctx context.Context) error
	Run(ctx context.Context) error
}

// newApp is the application factory. It is a variable so tests can replace it.
var newApp = func(ctx context.Context, cfgPath string) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	app, err := server.Build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return app, nil
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "ramtracker",
		Short: "Tracks memory-module prices from a vendor price list.",
		Long: `ramtracker scrapes a vendor's memory-module option list, parses each label
into structured attributes, and keeps a price history per product. Products can be
promoted to a dedicated series for longitudinal tracking.`,
		SilenceUsage: true,

		// Build the application after flags are parsed and before the subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON, or TOML)")

	cmd.AddCommand(
		newServeCmd(),
		newScrapeCmd(),
		newTrackCmd(),
		newTrackedCmd(),
		newHistoryCmd(),
		newCatalogCmd(),
		newCategoriesCmd(),
		newMigrateCmd(),
	)
	return cmd
}

// Execute is the main entry point.
func Execute() {
	root := newRootCmd()
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

func renderTable(w io.Writer, header table.Row, rows []table.Row) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(header)
	t.AppendRows(rows)
	t.SetStyle(table.StyleRounded)
	t.Render()
}
