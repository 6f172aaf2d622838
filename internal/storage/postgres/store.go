// Package postgres provides the Postgres-backed tracker store.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/ramtracker/internal/ram"
)

//go:embed schema.sql
var schema string

// Fixed table names; series routing never interpolates caller input.
const (
	sharedTable    = "prices"
	dedicatedTable = "tracked_prices"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
}

// Pool is the subset of *pgxpool.Pool the store needs.
type Pool interface {
	dbtx
	Close()
}

var _ ram.Store = (*Store)(nil)

// Store implements ram.Store on Postgres.
type Store struct {
	db   dbtx
	pool Pool
}

// NewStore connects a pool using cfg.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{db: pool, pool: pool}, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewStoreWithPool(pool Pool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{db: pool, pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Migrate creates the tables and indexes if they are missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping checks that the database answers a trivial query.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, "SELECT 1"); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// InTx runs fn inside one database transaction.
func (s *Store) InTx(ctx context.Context, fn func(ram.Store) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&Store{db: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// UpsertProduct inserts rec; an existing row keeps its original attributes.
func (s *Store) UpsertProduct(ctx context.Context, rec ram.ProductRecord) (bool, error) {
	const query = `
INSERT INTO products (id, raw_label, category, brand, capacity, speed, latency, is_dual_channel, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO NOTHING`
	tag, err := s.db.Exec(ctx, query,
		rec.ID,
		rec.RawLabel,
		rec.Category,
		rec.Brand,
		rec.Capacity,
		rec.Speed,
		rec.Latency,
		rec.IsDualChannel,
		rec.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("upsert product: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

const productColumns = `id, raw_label, category, brand, capacity, speed, latency, is_dual_channel, created_at`

// GetProduct fetches one product by ID.
func (s *Store) GetProduct(ctx context.Context, id int) (ram.ProductRecord, error) {
	row := s.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	rec, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ram.ProductRecord{}, fmt.Errorf("product %d: %w", id, ram.ErrNotFound)
		}
		return ram.ProductRecord{}, fmt.Errorf("get product: %w", err)
	}
	return rec, nil
}

// ListProducts returns products ordered by ID; limit <= 0 means no limit.
func (s *Store) ListProducts(ctx context.Context, limit int) ([]ram.ProductRecord, error) {
	query := `SELECT ` + productColumns + ` FROM products ORDER BY id`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []ram.ProductRecord
	for rows.Next() {
		rec, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return out, nil
}

// SetCategory replaces the category of one product.
func (s *Store) SetCategory(ctx context.Context, id int, category string) error {
	tag, err := s.db.Exec(ctx, `UPDATE products SET category = $1 WHERE id = $2`, category, id)
	if err != nil {
		return fmt.Errorf("set category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product %d: %w", id, ram.ErrNotFound)
	}
	return nil
}

// SetCategoryByChannel sets category on every product with the given dual-channel flag.
func (s *Store) SetCategoryByChannel(ctx context.Context, dualChannel bool, category string) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE products SET category = $1 WHERE is_dual_channel = $2`,
		category, dualChannel,
	)
	if err != nil {
		return 0, fmt.Errorf("set category by channel: %w", err)
	}
	return tag.RowsAffected(), nil
}

// AppendObservation inserts one observation into the series' table.
func (s *Store) AppendObservation(ctx context.Context, series ram.Series, obs ram.Observation) error {
	table, err := tableFor(series.Kind)
	if err != nil {
		return err
	}
	if !obs.Status.Valid() {
		return fmt.Errorf("invalid status %q", obs.Status)
	}
	query := `INSERT INTO ` + table + ` (product_id, price, status, scraped_at) VALUES ($1, $2, $3, $4)`
	if _, err := s.db.Exec(ctx, query, series.ProductID, obs.Price, string(obs.Status), obs.ScrapedAt); err != nil {
		return fmt.Errorf("insert observation: %w", err)
	}
	return nil
}

// LatestObservation returns the newest observation, later insertions winning timestamp ties.
func (s *Store) LatestObservation(ctx context.Context, series ram.Series) (ram.Observation, bool, error) {
	table, err := tableFor(series.Kind)
	if err != nil {
		return ram.Observation{}, false, err
	}
	query := `SELECT price, status, scraped_at FROM ` + table + `
WHERE product_id = $1
ORDER BY scraped_at DESC, seq DESC
LIMIT 1`
	obs, err := scanObservation(s.db.QueryRow(ctx, query, series.ProductID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ram.Observation{}, false, nil
		}
		return ram.Observation{}, false, fmt.Errorf("latest observation: %w", err)
	}
	return obs, true, nil
}

// History returns the series ordered by scrape time, then insertion order.
func (s *Store) History(ctx context.Context, series ram.Series) ([]ram.Observation, error) {
	table, err := tableFor(series.Kind)
	if err != nil {
		return nil, err
	}
	query := `SELECT price, status, scraped_at FROM ` + table + `
WHERE product_id = $1
ORDER BY scraped_at ASC, seq ASC`
	rows, err := s.db.Query(ctx, query, series.ProductID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []ram.Observation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan observation row: %w", err)
		}
		out = append(out, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	return out, nil
}

// LatestByProduct selects one latest row per product with DISTINCT ON.
func (s *Store) LatestByProduct(ctx context.Context, kind ram.SeriesKind) (map[int]ram.Observation, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	query := `SELECT DISTINCT ON (product_id) product_id, price, status, scraped_at FROM ` + table + `
ORDER BY product_id, scraped_at DESC, seq DESC`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query latest observations: %w", err)
	}
	defer rows.Close()

	out := make(map[int]ram.Observation)
	for rows.Next() {
		var (
			productID int
			price     int
			status    string
			scrapedAt time.Time
		)
		if err := rows.Scan(&productID, &price, &status, &scrapedAt); err != nil {
			return nil, fmt.Errorf("scan latest observation row: %w", err)
		}
		out[productID] = ram.Observation{Price: price, Status: ram.Status(status), ScrapedAt: scrapedAt}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query latest observations: %w", err)
	}
	return out, nil
}

// InsertMembership records m unless the product is already tracked.
func (s *Store) InsertMembership(ctx context.Context, m ram.TrackingMembership) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`INSERT INTO tracked (product_id, created_at) VALUES ($1, $2) ON CONFLICT (product_id) DO NOTHING`,
		m.ProductID, m.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert membership: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// IsMember reports whether productID is tracked.
func (s *Store) IsMember(ctx context.Context, productID int) (bool, error) {
	var ok bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tracked WHERE product_id = $1)`, productID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return ok, nil
}

// ListMemberships returns memberships ordered by product ID.
func (s *Store) ListMemberships(ctx context.Context) ([]ram.TrackingMembership, error) {
	rows, err := s.db.Query(ctx, `SELECT product_id, created_at FROM tracked ORDER BY product_id`)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	var out []ram.TrackingMembership
	for rows.Next() {
		var m ram.TrackingMembership
		if err := rows.Scan(&m.ProductID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan membership row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	return out, nil
}

func tableFor(kind ram.SeriesKind) (string, error) {
	switch kind {
	case ram.SeriesShared:
		return sharedTable, nil
	case ram.SeriesDedicated:
		return dedicatedTable, nil
	default:
		return "", fmt.Errorf("unknown series kind %q", kind)
	}
}

func scanProduct(row pgx.Row) (ram.ProductRecord, error) {
	var rec ram.ProductRecord
	err := row.Scan(
		&rec.ID,
		&rec.RawLabel,
		&rec.Category,
		&rec.Brand,
		&rec.Capacity,
		&rec.Speed,
		&rec.Latency,
		&rec.IsDualChannel,
		&rec.CreatedAt,
	)
	return rec, err
}

func scanObservation(row pgx.Row) (ram.Observation, error) {
	var (
		obs    ram.Observation
		status string
	)
	if err := row.Scan(&obs.Price, &status, &obs.ScrapedAt); err != nil {
		return ram.Observation{}, err
	}
	obs.Status = ram.Status(status)
	return obs, nil
}
