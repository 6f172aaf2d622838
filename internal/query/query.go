// Package query composes the catalog, price logs, and tracking memberships into read models.
package query

import (
	"context"
	"fmt"

	"github.com/JakeFAU/ramtracker/internal/ram"
	"github.com/JakeFAU/ramtracker/internal/tracking"
)

// ChartTimeLayout formats chart labels as "YYYY-MM-DD HH:MM" in UTC.
const ChartTimeLayout = "2006-01-02 15:04"

// CatalogEntry is one product with its latest routed observation, if any.
type CatalogEntry struct {
	Product   ram.ProductRecord
	Latest    *ram.Observation
	IsTracked bool
}

// Chart is a positional zip of a product's history.
type Chart struct {
	Dates  []string `json:"dates"`
	Prices []int    `json:"prices"`
}

// Service answers reads for the API and CLI.
type Service struct {
	store    ram.Store
	promoter *tracking.Promoter
}

// New builds a Service.
func New(store ram.Store, promoter *tracking.Promoter) *Service {
	return &Service{store: store, promoter: promoter}
}

// ListCatalogWithLatest returns one entry per product ordered by ID. The latest observation
// comes from the dedicated series for tracked products and from the shared log otherwise.
// limit <= 0 returns every product.
func (s *Service) ListCatalogWithLatest(ctx context.Context, limit int) ([]CatalogEntry, error) {
	products, err := s.store.ListProducts(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	members, err := s.promoter.Tracked(ctx)
	if err != nil {
		return nil, err
	}
	tracked := make(map[int]struct{}, len(members))
	for _, m := range members {
		tracked[m.ProductID] = struct{}{}
	}
	shared, err := s.store.LatestByProduct(ctx, ram.SeriesShared)
	if err != nil {
		return nil, fmt.Errorf("latest shared observations: %w", err)
	}
	dedicated, err := s.store.LatestByProduct(ctx, ram.SeriesDedicated)
	if err != nil {
		return nil, fmt.Errorf("latest dedicated observations: %w", err)
	}

	out := make([]CatalogEntry, 0, len(products))
	for _, p := range products {
		entry := CatalogEntry{Product: p}
		latest := shared
		if _, ok := tracked[p.ID]; ok {
			entry.IsTracked = true
			latest = dedicated
		}
		if obs, ok := latest[p.ID]; ok {
			entry.Latest = &obs
		}
		out = append(out, entry)
	}
	return out, nil
}

// PriceHistory returns the routed series for productID ascending by scrape time.
// found is false when the series is empty, whether or not the product is in the catalog.
func (s *Service) PriceHistory(ctx context.Context, productID int) ([]ram.Observation, bool, error) {
	series, err := s.promoter.Route(ctx, productID)
	if err != nil {
		return nil, false, err
	}
	hist, err := s.store.History(ctx, series)
	if err != nil {
		return nil, false, fmt.Errorf("history for product %d: %w", productID, err)
	}
	if len(hist) == 0 {
		return nil, false, nil
	}
	return hist, true, nil
}

// ChartSeries zips PriceHistory into parallel date and price slices.
func (s *Service) ChartSeries(ctx context.Context, productID int) (Chart, bool, error) {
	hist, found, err := s.PriceHistory(ctx, productID)
	if err != nil || !found {
		return Chart{}, found, err
	}
	chart := Chart{
		Dates:  make([]string, len(hist)),
		Prices: make([]int, len(hist)),
	}
	for i, obs := range hist {
		chart.Dates[i] = obs.ScrapedAt.UTC().Format(ChartTimeLayout)
		chart.Prices[i] = obs.Price
	}
	return chart, true, nil
}

// Series reports which series reads and writes for productID target.
func (s *Service) Series(ctx context.Context, productID int) (ram.Series, error) {
	return s.promoter.Route(ctx, productID)
}

// Track promotes productID to a dedicated series.
func (s *Service) Track(ctx context.Context, productID int) (tracking.Result, error) {
	return s.promoter.Track(ctx, productID)
}

// Tracked lists memberships ordered by product ID.
func (s *Service) Tracked(ctx context.Context) ([]ram.TrackingMembership, error) {
	return s.promoter.Tracked(ctx)
}
