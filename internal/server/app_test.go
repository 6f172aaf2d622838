package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/ramtracker/internal/config"
	"github.com/JakeFAU/ramtracker/internal/ram"
	memorystorage "github.com/JakeFAU/ramtracker/internal/storage/memory"
)

type stubSource struct{}

func (stubSource) Fetch(context.Context) (ram.Snapshot, error) {
	return ram.Snapshot{
		URL:       "https://vendor.example.com",
		Body:      []byte("<html></html>"),
		FetchedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Options: []ram.RawOption{
			{ProductID: 11, Label: "UMAX 16GB DDR5-4800/CL40 $1,299", GroupLabel: "DDR5 雙q"},
		},
	}, nil
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestBuildInMemoryAndScrape(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	app, err := Build(ctx, testConfig(t), WithLogger(zap.NewNop()), WithSource(stubSource{}))
	require.NoError(t, err)
	t.Cleanup(app.Close)

	require.IsType(t, &memorystorage.Store{}, app.Store())
	require.Nil(t, app.Postgres())

	summary, err := app.Ingester().Scrape(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.ProductsSeen)
	require.Contains(t, summary.SnapshotURI, "memory://snapshots/")
	require.Len(t, summary.SnapshotDigest, 64)

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ram/11/chart-data", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"dates":["2024-01-01 00:00"],"prices":[1299]}`, rec.Body.String())

	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestBuildLocalBackend(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Storage.Backend = config.BackendLocal
	cfg.Storage.Local.BaseDir = filepath.Join(t.TempDir(), "pages")

	app, err := Build(context.Background(), cfg, WithLogger(zap.NewNop()), WithSource(stubSource{}))
	require.NoError(t, err)
	t.Cleanup(app.Close)

	summary, err := app.Ingester().Scrape(context.Background())
	require.NoError(t, err)
	require.Contains(t, summary.SnapshotURI, "file://")
}

func TestBuildInjectedStore(t *testing.T) {
	t.Parallel()

	store := memorystorage.NewStore()
	app, err := Build(context.Background(), testConfig(t), WithLogger(zap.NewNop()), WithStore(store))
	require.NoError(t, err)
	t.Cleanup(app.Close)
	require.Same(t, store, app.Store())
	require.Equal(t, "DDR5 雙通", app.Categories().Dual)
}

func TestBuildBadDSN(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Database.DSN = "://not a dsn"
	_, err := Build(context.Background(), cfg, WithLogger(zap.NewNop()))
	require.ErrorContains(t, err, "postgres store init failed")
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Server.Port = 0
	app, err := Build(context.Background(), cfg, WithLogger(zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(app.Close)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestMigrateRequiresDatabase(t *testing.T) {
	t.Parallel()

	app, err := Build(context.Background(), testConfig(t), WithLogger(zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(app.Close)
	require.ErrorContains(t, app.Migrate(context.Background()), "database.dsn")
}
