package ram

import (
	"context"
	"io"
	"time"
)

// Catalog owns ProductRecord rows.
type Catalog interface {
	// UpsertProduct inserts rec when its ID is unknown and leaves an existing row untouched.
	UpsertProduct(ctx context.Context, rec ProductRecord) (created bool, err error)
	GetProduct(ctx context.Context, id int) (ProductRecord, error)
	ListProducts(ctx context.Context, limit int) ([]ProductRecord, error)
	SetCategory(ctx context.Context, id int, category string) error
	SetCategoryByChannel(ctx context.Context, dualChannel bool, category string) (int64, error)
}

// PriceLog owns PriceObservation rows for both the shared and the dedicated series.
type PriceLog interface {
	AppendObservation(ctx context.Context, series Series, obs Observation) error
	LatestObservation(ctx context.Context, series Series) (Observation, bool, error)
	History(ctx context.Context, series Series) ([]Observation, error)
	// LatestByProduct returns the latest observation of every product that has one in kind's log.
	LatestByProduct(ctx context.Context, kind SeriesKind) (map[int]Observation, error)
}

// Memberships owns TrackingMembership rows.
type Memberships interface {
	InsertMembership(ctx context.Context, m TrackingMembership) (inserted bool, err error)
	IsMember(ctx context.Context, productID int) (bool, error)
	ListMemberships(ctx context.Context) ([]TrackingMembership, error)
}

// Store is the backing store for the catalog, both logs, and tracking memberships.
type Store interface {
	Catalog
	PriceLog
	Memberships
	// InTx runs fn against a transaction-scoped Store; fn's writes commit together or not at all.
	InTx(ctx context.Context, fn func(Store) error) error
}

// Source fetches and walks the vendor page.
type Source interface {
	Fetch(ctx context.Context) (Snapshot, error)
}

// BlobStore archives raw page snapshots and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes run notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes content fingerprints for archived pages.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
