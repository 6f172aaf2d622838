package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ramtracker/internal/ram"
	"github.com/JakeFAU/ramtracker/internal/storage/memory"
	"github.com/JakeFAU/ramtracker/internal/tracking"
)

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

var t0 = time.Date(2024, 6, 1, 8, 5, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return New(store, tracking.New(store, fakeClock{now: t0})), store
}

func seed(t *testing.T, store *memory.Store) {
	t.Helper()
	ctx := context.Background()
	for _, id := range []int{1, 2, 3} {
		_, err := store.UpsertProduct(ctx, ram.ProductRecord{ID: id, RawLabel: "label", CreatedAt: t0})
		require.NoError(t, err)
	}
	appendObs := func(s ram.Series, price int, at time.Time) {
		require.NoError(t, store.AppendObservation(ctx, s, ram.Observation{
			Price: price, Status: ram.StatusInStock, ScrapedAt: at,
		}))
	}
	appendObs(ram.SharedSeries(1), 100, t0)
	appendObs(ram.SharedSeries(1), 110, t0.Add(time.Hour))
	appendObs(ram.SharedSeries(2), 200, t0)
	appendObs(ram.DedicatedSeries(2), 210, t0.Add(2*time.Hour))
}

func TestListCatalogWithLatest(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, store := newService(t)
	seed(t, store)
	_, err := svc.Track(ctx, 2)
	require.NoError(t, err)

	entries, err := svc.ListCatalogWithLatest(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	require.False(t, entries[0].IsTracked)
	require.NotNil(t, entries[0].Latest)
	require.Equal(t, 110, entries[0].Latest.Price)

	require.True(t, entries[1].IsTracked)
	require.NotNil(t, entries[1].Latest)
	require.Equal(t, 210, entries[1].Latest.Price, "tracked products read their dedicated series")

	require.Nil(t, entries[2].Latest)

	limited, err := svc.ListCatalogWithLatest(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestPriceHistoryNotFoundOnEmptyStore(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	hist, found, err := svc.PriceHistory(context.Background(), 999)
	require.NoError(t, err)
	require.False(t, found)
	require.Nil(t, hist)
}

func TestPriceHistoryNotFoundWithoutObservations(t *testing.T) {
	t.Parallel()

	svc, store := newService(t)
	seed(t, store)
	_, found, err := svc.PriceHistory(context.Background(), 3)
	require.NoError(t, err)
	require.False(t, found, "catalog entry without observations is still not found")
}

func TestPriceHistoryRoutesByMembership(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, store := newService(t)
	seed(t, store)

	hist, found, err := svc.PriceHistory(ctx, 1)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, hist, 2)
	require.Equal(t, 100, hist[0].Price)

	_, err = svc.Track(ctx, 1)
	require.NoError(t, err)
	_, found, err = svc.PriceHistory(ctx, 1)
	require.NoError(t, err)
	require.False(t, found, "shared rows are not moved on promotion")
}

func TestChartSeries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, store := newService(t)
	seed(t, store)

	chart, found, err := svc.ChartSeries(ctx, 1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, Chart{
		Dates:  []string{"2024-06-01 08:05", "2024-06-01 09:05"},
		Prices: []int{100, 110},
	}, chart)

	_, found, err = svc.ChartSeries(ctx, 999)
	require.NoError(t, err)
	require.False(t, found)
}

func TestChartSeriesLabelsInUTC(t *testing.T) {
	t.Parallel()

	svc, store := newService(t)
	ctx := context.Background()
	taipei := time.FixedZone("CST", 8*60*60)
	_, err := store.UpsertProduct(ctx, ram.ProductRecord{ID: 5, RawLabel: "label", CreatedAt: t0})
	require.NoError(t, err)
	require.NoError(t, store.AppendObservation(ctx, ram.SharedSeries(5), ram.Observation{
		Price: 120, Status: ram.StatusInStock, ScrapedAt: t0.In(taipei),
	}))

	chart, found, err := svc.ChartSeries(ctx, 5)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []string{"2024-06-01 08:05"}, chart.Dates)
}

func TestTrackIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _ := newService(t)
	first, err := svc.Track(ctx, 5)
	require.NoError(t, err)
	require.False(t, first.AlreadyTracked)
	second, err := svc.Track(ctx, 5)
	require.NoError(t, err)
	require.True(t, second.AlreadyTracked)

	members, err := svc.Tracked(ctx)
	require.NoError(t, err)
	require.Len(t, members, 1)
}

func TestSeriesFollowsMembership(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _ := newService(t)
	series, err := svc.Series(ctx, 8)
	require.NoError(t, err)
	require.Equal(t, ram.SharedSeries(8), series)

	_, err = svc.Track(ctx, 8)
	require.NoError(t, err)
	series, err = svc.Series(ctx, 8)
	require.NoError(t, err)
	require.Equal(t, ram.DedicatedSeries(8), series)
}
