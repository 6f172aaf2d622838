// Package ingest turns one fetch of the vendor page into catalog rows and price observations.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/ramtracker/internal/logging"
	"github.com/JakeFAU/ramtracker/internal/metrics"
	"github.com/JakeFAU/ramtracker/internal/parser"
	"github.com/JakeFAU/ramtracker/internal/ram"
	"github.com/JakeFAU/ramtracker/internal/tracking"
)

// Config controls where run artifacts go.
type Config struct {
	// Topic receives one RunSummary per successful run. Empty disables publishing.
	Topic string
	// SnapshotPrefix is prepended to archived page names.
	SnapshotPrefix string
	// SnapshotContentType is recorded with archived pages.
	SnapshotContentType string
}

// Deps are the collaborators an Ingester needs. Source, Blobs, Hasher, and Publisher are optional.
type Deps struct {
	Store     ram.Store
	Parser    *parser.Parser
	Clock     ram.Clock
	IDs       ram.IDGenerator
	Source    ram.Source
	Blobs     ram.BlobStore
	Hasher    ram.Hasher
	Publisher ram.Publisher
	Logger    *zap.Logger
}

// Ingester writes batches sequentially, one store transaction per product.
type Ingester struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
}

// New validates deps and builds an Ingester.
func New(cfg Config, deps Deps) (*Ingester, error) {
	if deps.Store == nil {
		return nil, errors.New("store is required")
	}
	if deps.Clock == nil {
		return nil, errors.New("clock is required")
	}
	if deps.IDs == nil {
		return nil, errors.New("id generator is required")
	}
	if deps.Parser == nil {
		deps.Parser = parser.New(parser.Config{})
	}
	if cfg.SnapshotContentType == "" {
		cfg.SnapshotContentType = "text/html; charset=utf-8"
	}
	return &Ingester{
		cfg:    cfg,
		deps:   deps,
		logger: logging.Component(deps.Logger, "ingest"),
	}, nil
}

// Scrape fetches the page, archives the raw body, and ingests its options.
func (i *Ingester) Scrape(ctx context.Context) (ram.RunSummary, error) {
	if i.deps.Source == nil {
		return ram.RunSummary{}, errors.New("source is not configured")
	}
	snap, err := i.deps.Source.Fetch(ctx)
	if err != nil {
		metrics.ObserveIngestRun("failure")
		return ram.RunSummary{}, fmt.Errorf("fetch page: %w", err)
	}
	runID, err := i.deps.IDs.NewID()
	if err != nil {
		return ram.RunSummary{}, fmt.Errorf("generate run id: %w", err)
	}
	scrapedAt := snap.FetchedAt
	if scrapedAt.IsZero() {
		scrapedAt = i.deps.Clock.Now()
	}
	i.logger.Info("page fetched",
		zap.String("run_id", runID),
		zap.String("url", snap.URL),
		zap.Int("options", len(snap.Options)),
		zap.Int("bytes", len(snap.Body)),
	)
	ref := snapshotRef{URI: i.archive(ctx, runID, snap.Body), Digest: i.digest(runID, snap.Body)}
	return i.run(ctx, runID, scrapedAt, ref, snap.Options)
}

// Run ingests options as one fetch event: every observation shares one run ID and timestamp.
// The first failed product transaction aborts the batch; products before it stay committed.
func (i *Ingester) Run(ctx context.Context, options []ram.RawOption) (ram.RunSummary, error) {
	runID, err := i.deps.IDs.NewID()
	if err != nil {
		return ram.RunSummary{}, fmt.Errorf("generate run id: %w", err)
	}
	return i.run(ctx, runID, i.deps.Clock.Now(), snapshotRef{}, options)
}

// snapshotRef locates the archived page behind a run.
type snapshotRef struct {
	URI    string
	Digest string
}

func (i *Ingester) run(
	ctx context.Context,
	runID string,
	scrapedAt time.Time,
	snapshot snapshotRef,
	options []ram.RawOption,
) (ram.RunSummary, error) {
	summary := ram.RunSummary{
		RunID:          runID,
		ScrapedAt:      scrapedAt,
		SnapshotURI:    snapshot.URI,
		SnapshotDigest: snapshot.Digest,
	}
	logger := i.logger.With(zap.String("run_id", runID))

	for _, opt := range options {
		attrs := i.deps.Parser.Parse(opt.Label, opt.GroupLabel)
		metrics.ObserveLabel(attrs)

		created, series, err := i.ingestOne(ctx, opt, attrs, scrapedAt)
		if err != nil {
			metrics.ObserveIngestRun("failure")
			logger.Error("ingest aborted",
				zap.Int("product_id", opt.ProductID),
				zap.Int("products_written", summary.ProductsSeen),
				zap.Error(err),
			)
			return summary, fmt.Errorf("ingest product %d: %w", opt.ProductID, err)
		}

		summary.ProductsSeen++
		if created {
			summary.ProductsCreated++
		}
		if series.Kind == ram.SeriesDedicated {
			summary.DedicatedWrites++
		} else {
			summary.SharedWrites++
		}
		if attrs.Status == ram.StatusOutOfStock {
			summary.OutOfStock++
		}
		if attrs.Price == ram.PriceUnknown {
			summary.Unpriced++
		}
		metrics.ObserveObservation(series.Kind, attrs.Status)
	}

	metrics.ObserveIngestRun("success")
	i.refreshTrackedGauge(ctx, logger)
	logger.Info("ingest completed",
		zap.Int("products_seen", summary.ProductsSeen),
		zap.Int("products_created", summary.ProductsCreated),
		zap.Int("shared_writes", summary.SharedWrites),
		zap.Int("dedicated_writes", summary.DedicatedWrites),
	)
	i.publish(ctx, logger, summary)
	return summary, nil
}

// ingestOne upserts the product, routes the observation, and appends it in one transaction.
func (i *Ingester) ingestOne(
	ctx context.Context,
	opt ram.RawOption,
	attrs ram.Attributes,
	scrapedAt time.Time,
) (bool, ram.Series, error) {
	var (
		created bool
		series  ram.Series
	)
	err := i.deps.Store.InTx(ctx, func(tx ram.Store) error {
		var err error
		created, err = tx.UpsertProduct(ctx, ram.ProductRecord{
			ID:            opt.ProductID,
			RawLabel:      opt.Label,
			Category:      opt.GroupLabel,
			Brand:         attrs.Brand,
			Capacity:      attrs.Capacity,
			Speed:         attrs.Speed,
			Latency:       attrs.Latency,
			IsDualChannel: attrs.IsDualChannel,
			CreatedAt:     scrapedAt,
		})
		if err != nil {
			return fmt.Errorf("upsert product: %w", err)
		}
		series, err = tracking.Route(ctx, tx, opt.ProductID)
		if err != nil {
			return err
		}
		if err := tx.AppendObservation(ctx, series, ram.Observation{
			Price:     attrs.Price,
			Status:    attrs.Status,
			ScrapedAt: scrapedAt,
		}); err != nil {
			return fmt.Errorf("append observation: %w", err)
		}
		return nil
	})
	return created, series, err
}

// archive stores the raw page. Failures are logged; the observations are what must be durable.
func (i *Ingester) archive(ctx context.Context, runID string, body []byte) string {
	if i.deps.Blobs == nil || len(body) == 0 {
		return ""
	}
	name := path.Join(i.cfg.SnapshotPrefix, runID+".html")
	uri, err := i.deps.Blobs.PutObject(ctx, name, i.cfg.SnapshotContentType, bytes.NewReader(body))
	if err != nil {
		i.logger.Warn("snapshot archive failed", zap.String("run_id", runID), zap.Error(err))
		return ""
	}
	return uri
}

func (i *Ingester) digest(runID string, body []byte) string {
	if i.deps.Hasher == nil || len(body) == 0 {
		return ""
	}
	sum, err := i.deps.Hasher.Hash(body)
	if err != nil {
		i.logger.Warn("snapshot hash failed", zap.String("run_id", runID), zap.Error(err))
		return ""
	}
	return sum
}

func (i *Ingester) publish(ctx context.Context, logger *zap.Logger, summary ram.RunSummary) {
	if i.deps.Publisher == nil || i.cfg.Topic == "" {
		return
	}
	id, err := i.deps.Publisher.Publish(ctx, i.cfg.Topic, summary)
	if err != nil {
		logger.Warn("run summary publish failed", zap.String("topic", i.cfg.Topic), zap.Error(err))
		return
	}
	logger.Debug("run summary published", zap.String("message_id", id))
}

func (i *Ingester) refreshTrackedGauge(ctx context.Context, logger *zap.Logger) {
	members, err := i.deps.Store.ListMemberships(ctx)
	if err != nil {
		logger.Warn("list memberships failed", zap.Error(err))
		return
	}
	metrics.SetTrackedProducts(len(members))
}
