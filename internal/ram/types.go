// Package ram defines the domain types shared across the tracker subsystems.
package ram

import (
	"errors"
	"time"
)

// Sentinel values stored in place of fields the parser could not determine.
const (
	// PriceUnknown marks an observation whose label carried no currency-marked price.
	PriceUnknown = -99
	// Unparsed marks a text attribute the parser did not recognize.
	Unparsed = "NaN"
)

// ErrNotFound is returned by stores when a product or membership row does not exist.
var ErrNotFound = errors.New("not found")

// Status is the stock state reported by one observation.
type Status string

// Stock status values persisted with every observation.
const (
	StatusInStock    Status = "in_stock"
	StatusOutOfStock Status = "out_of_stock"
)

// Valid reports whether s is one of the known stock states.
func (s Status) Valid() bool {
	return s == StatusInStock || s == StatusOutOfStock
}

// RawOption is one product entry handed over by the source collaborator.
type RawOption struct {
	ProductID  int    `json:"product_id"`
	Label      string `json:"label"`
	GroupLabel string `json:"group_label"`
}

// Attributes is the structured result of parsing one label.
type Attributes struct {
	Brand         string `json:"brand"`
	Capacity      string `json:"capacity"`
	Speed         string `json:"speed"`
	Latency       string `json:"latency"`
	IsDualChannel bool   `json:"is_dual_channel"`
	Price         int    `json:"price"`
	Status        Status `json:"status"`
}

// ProductRecord is the catalog row for one source-assigned identifier.
type ProductRecord struct {
	ID            int       `json:"id"`
	RawLabel      string    `json:"name_raw"`
	Category      string    `json:"category"`
	Brand         string    `json:"brand"`
	Capacity      string    `json:"capacity"`
	Speed         string    `json:"speed"`
	Latency       string    `json:"latency"`
	IsDualChannel bool      `json:"is_dual_channel"`
	CreatedAt     time.Time `json:"created_at"`
}

// Observation is one timestamped price/stock sample.
type Observation struct {
	Price     int       `json:"price"`
	Status    Status    `json:"status"`
	ScrapedAt time.Time `json:"scraped_at"`
}

// TrackingMembership marks a product promoted to a dedicated series.
type TrackingMembership struct {
	ProductID int       `json:"product_id"`
	CreatedAt time.Time `json:"created_at"`
}

// SeriesKind selects which observation log a read or write targets.
type SeriesKind string

// Series kinds.
const (
	SeriesShared    SeriesKind = "shared"
	SeriesDedicated SeriesKind = "dedicated"
)

// Series addresses the observations of one product within one log.
type Series struct {
	Kind      SeriesKind
	ProductID int
}

// SharedSeries addresses a product's rows in the shared price log.
func SharedSeries(productID int) Series {
	return Series{Kind: SeriesShared, ProductID: productID}
}

// DedicatedSeries addresses a tracked product's own longitudinal series.
func DedicatedSeries(productID int) Series {
	return Series{Kind: SeriesDedicated, ProductID: productID}
}

// Snapshot is one fetch of the vendor page.
type Snapshot struct {
	URL       string
	Body      []byte
	FetchedAt time.Time
	Options   []RawOption
}

// RunSummary describes one completed ingestion run.
type RunSummary struct {
	RunID           string    `json:"run_id"`
	ScrapedAt       time.Time `json:"scraped_at"`
	SnapshotURI     string    `json:"snapshot_uri,omitempty"`
	SnapshotDigest  string    `json:"snapshot_sha256,omitempty"`
	ProductsSeen    int       `json:"products_seen"`
	ProductsCreated int       `json:"products_created"`
	SharedWrites    int       `json:"shared_writes"`
	DedicatedWrites int       `json:"dedicated_writes"`
	OutOfStock      int       `json:"out_of_stock"`
	Unpriced        int       `json:"unpriced"`
}
