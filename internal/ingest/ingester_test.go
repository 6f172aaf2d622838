package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	pubmemory "github.com/JakeFAU/ramtracker/internal/publisher/memory"
	"github.com/JakeFAU/ramtracker/internal/ram"
	"github.com/JakeFAU/ramtracker/internal/storage/memory"
)

var errBoom = errors.New("boom")

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type fakeIDGen struct {
	ids []string
	err error
}

func (g *fakeIDGen) NewID() (string, error) {
	if g.err != nil {
		return "", g.err
	}
	if len(g.ids) == 0 {
		return "run-default", nil
	}
	id := g.ids[0]
	g.ids = g.ids[1:]
	return id, nil
}

type fakeSource struct {
	snap ram.Snapshot
	err  error
}

func (s *fakeSource) Fetch(context.Context) (ram.Snapshot, error) {
	return s.snap, s.err
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, any) (string, error) {
	return "", errBoom
}

type failingBlobs struct{}

func (failingBlobs) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errBoom
}

// failingStore fails the append for one product inside the transaction.
type failingStore struct {
	ram.Store
	failID int
}

func (f *failingStore) InTx(ctx context.Context, fn func(ram.Store) error) error {
	return f.Store.InTx(ctx, func(tx ram.Store) error {
		return fn(&failingStore{Store: tx, failID: f.failID})
	})
}

func (f *failingStore) AppendObservation(ctx context.Context, s ram.Series, o ram.Observation) error {
	if s.ProductID == f.failID {
		return errBoom
	}
	return f.Store.AppendObservation(ctx, s, o)
}

var t0 = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

var batch = []ram.RawOption{
	{ProductID: 1, Label: "UMAX 32GB(雙q16GB*2) DDR5 4800/CL40 套裝, $9499 在庫", GroupLabel: "DDR5 雙q"},
	{ProductID: 2, Label: "RAM $1000 缺貨", GroupLabel: "DDR5 單支"},
	{ProductID: 3, Label: "Mystery stick", GroupLabel: "DDR5 單支"},
}

func newIngester(t *testing.T, store ram.Store, deps Deps) *Ingester {
	t.Helper()
	deps.Store = store
	if deps.Clock == nil {
		deps.Clock = &fakeClock{now: t0}
	}
	if deps.IDs == nil {
		deps.IDs = &fakeIDGen{ids: []string{"run-1", "run-2"}}
	}
	deps.Logger = zap.NewNop()
	ing, err := New(Config{Topic: "runs", SnapshotPrefix: "snapshots"}, deps)
	require.NoError(t, err)
	return ing
}

func TestNewValidatesDeps(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, Deps{})
	require.ErrorContains(t, err, "store is required")
	_, err = New(Config{}, Deps{Store: memory.NewStore()})
	require.ErrorContains(t, err, "clock is required")
	_, err = New(Config{}, Deps{Store: memory.NewStore(), Clock: &fakeClock{}})
	require.ErrorContains(t, err, "id generator is required")
}

func TestRunWritesCatalogAndSharedLog(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	pub := pubmemory.New()
	ing := newIngester(t, store, Deps{Publisher: pub})

	summary, err := ing.Run(ctx, batch)
	require.NoError(t, err)
	require.Equal(t, ram.RunSummary{
		RunID:           "run-1",
		ScrapedAt:       t0,
		ProductsSeen:    3,
		ProductsCreated: 3,
		SharedWrites:    3,
		OutOfStock:      1,
		Unpriced:        1,
	}, summary)

	rec, err := store.GetProduct(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "UMAX", rec.Brand)
	require.Equal(t, "DDR5-4800", rec.Speed)
	require.Equal(t, "CL40", rec.Latency)
	require.True(t, rec.IsDualChannel)
	require.Equal(t, "DDR5 雙q", rec.Category)
	require.Equal(t, t0, rec.CreatedAt)

	latest, ok, err := store.LatestObservation(ctx, ram.SharedSeries(2))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ram.Observation{Price: 1000, Status: ram.StatusOutOfStock, ScrapedAt: t0}, latest)

	latest, ok, err = store.LatestObservation(ctx, ram.SharedSeries(3))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ram.PriceUnknown, latest.Price)

	msgs := pub.Messages("runs")
	require.Len(t, msgs, 1)
	var published ram.RunSummary
	require.NoError(t, json.Unmarshal(msgs[0].Data, &published))
	require.Equal(t, "run-1", published.RunID)
	require.Equal(t, 3, published.ProductsSeen)
}

func TestRunKeepsFirstCatalogWriteAndAppendsHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	clock := &fakeClock{now: t0}
	ing := newIngester(t, store, Deps{Clock: clock})

	_, err := ing.Run(ctx, batch[:1])
	require.NoError(t, err)

	clock.now = t0.Add(time.Hour)
	second, err := ing.Run(ctx, []ram.RawOption{
		{ProductID: 1, Label: "Relabelled 64GB $9000", GroupLabel: "other"},
	})
	require.NoError(t, err)
	require.Equal(t, 0, second.ProductsCreated)

	rec, err := store.GetProduct(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "32GB", rec.Capacity)

	hist, err := store.History(ctx, ram.SharedSeries(1))
	require.NoError(t, err)
	require.Len(t, hist, 2)
	require.Equal(t, 9499, hist[0].Price)
	require.Equal(t, 9000, hist[1].Price)
}

func TestRunRoutesTrackedProductsToDedicatedSeries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	_, err := store.InsertMembership(ctx, ram.TrackingMembership{ProductID: 2, CreatedAt: t0})
	require.NoError(t, err)

	summary, err := newIngester(t, store, Deps{}).Run(ctx, batch)
	require.NoError(t, err)
	require.Equal(t, 2, summary.SharedWrites)
	require.Equal(t, 1, summary.DedicatedWrites)

	shared, err := store.History(ctx, ram.SharedSeries(2))
	require.NoError(t, err)
	require.Empty(t, shared)
	dedicated, err := store.History(ctx, ram.DedicatedSeries(2))
	require.NoError(t, err)
	require.Len(t, dedicated, 1)
}

func TestRunAbortsOnStorageFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	base := memory.NewStore()
	pub := pubmemory.New()
	ing := newIngester(t, &failingStore{Store: base, failID: 2}, Deps{Publisher: pub})

	summary, err := ing.Run(ctx, batch)
	require.ErrorIs(t, err, errBoom)
	require.ErrorContains(t, err, "ingest product 2")
	require.Equal(t, 1, summary.ProductsSeen)

	_, err = base.GetProduct(ctx, 1)
	require.NoError(t, err, "products before the failure stay committed")
	_, err = base.GetProduct(ctx, 2)
	require.ErrorIs(t, err, ram.ErrNotFound, "failed product transaction must roll back")
	_, err = base.GetProduct(ctx, 3)
	require.ErrorIs(t, err, ram.ErrNotFound)
	require.Empty(t, pub.Messages(""))
}

func TestRunPublishFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	summary, err := newIngester(t, memory.NewStore(), Deps{Publisher: failingPublisher{}}).
		Run(context.Background(), batch)
	require.NoError(t, err)
	require.Equal(t, 3, summary.ProductsSeen)
}

func TestRunIDFailure(t *testing.T) {
	t.Parallel()

	_, err := newIngester(t, memory.NewStore(), Deps{IDs: &fakeIDGen{err: errBoom}}).
		Run(context.Background(), batch)
	require.ErrorIs(t, err, errBoom)
}

func TestScrapeArchivesSnapshot(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	blobs := memory.NewBlobStore()
	fetched := t0.Add(5 * time.Minute)
	src := &fakeSource{snap: ram.Snapshot{
		URL:       "https://vendor.example.com",
		Body:      []byte("<html></html>"),
		FetchedAt: fetched,
		Options:   batch[:2],
	}}

	summary, err := newIngester(t, store, Deps{Source: src, Blobs: blobs}).Scrape(ctx)
	require.NoError(t, err)
	require.Equal(t, "memory://snapshots/run-1.html", summary.SnapshotURI)
	require.Equal(t, fetched, summary.ScrapedAt)
	require.Equal(t, 2, summary.ProductsSeen)

	body, ok := blobs.Object("snapshots/run-1.html")
	require.True(t, ok)
	require.Equal(t, "<html></html>", string(body))

	latest, ok, err := store.LatestObservation(ctx, ram.SharedSeries(1))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, fetched, latest.ScrapedAt)
}

func TestScrapeFetchFailure(t *testing.T) {
	t.Parallel()

	_, err := newIngester(t, memory.NewStore(), Deps{Source: &fakeSource{err: errBoom}}).Scrape(context.Background())
	require.ErrorIs(t, err, errBoom)

	_, err = newIngester(t, memory.NewStore(), Deps{}).Scrape(context.Background())
	require.ErrorContains(t, err, "source is not configured")
}

func TestScrapeArchiveFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	src := &fakeSource{snap: ram.Snapshot{Body: []byte("x"), Options: batch[:1]}}
	summary, err := newIngester(t, memory.NewStore(), Deps{Source: src, Blobs: failingBlobs{}}).
		Scrape(context.Background())
	require.NoError(t, err)
	require.Empty(t, summary.SnapshotURI)
	require.Equal(t, t0, summary.ScrapedAt)
}

type fakeHasher struct{ err error }

func (h fakeHasher) Hash(data []byte) (string, error) {
	if h.err != nil {
		return "", h.err
	}
	return fmt.Sprintf("len-%d", len(data)), nil
}

func TestScrapeRecordsSnapshotDigest(t *testing.T) {
	t.Parallel()

	src := &fakeSource{snap: ram.Snapshot{Body: []byte("<html></html>"), Options: batch[:1]}}
	summary, err := newIngester(t, memory.NewStore(), Deps{Source: src, Hasher: fakeHasher{}}).
		Scrape(context.Background())
	require.NoError(t, err)
	require.Equal(t, "len-13", summary.SnapshotDigest)

	summary, err = newIngester(t, memory.NewStore(), Deps{Source: src, Hasher: fakeHasher{err: errBoom}}).
		Scrape(context.Background())
	require.NoError(t, err)
	require.Empty(t, summary.SnapshotDigest)
	require.Equal(t, 1, summary.ProductsSeen)
}

func TestRunKeepsBatchGoingPastOversizedPrice(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	summary, err := newIngester(t, store, Deps{}).Run(ctx, []ram.RawOption{
		{ProductID: 1, Label: "UMAX 16GB DDR5-4800 $1,299", GroupLabel: "DDR5 雙q"},
		{ProductID: 2, Label: "UMAX 32GB DDR5-4800 $9,999,999,999", GroupLabel: "DDR5 雙q"},
		{ProductID: 3, Label: "ADATA 16GB DDR5-5600 $1,499", GroupLabel: "DDR5 單支"},
	})
	require.NoError(t, err)
	require.Equal(t, 3, summary.ProductsSeen)
	require.Equal(t, 1, summary.Unpriced)

	latest, ok, err := store.LatestObservation(ctx, ram.SharedSeries(2))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ram.PriceUnknown, latest.Price)

	latest, ok, err = store.LatestObservation(ctx, ram.SharedSeries(3))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1499, latest.Price)
}
