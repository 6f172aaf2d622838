// Package memory provides in-process stores for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/ramtracker/internal/ram"
)

var (
	_ ram.Store = (*Store)(nil)
	_ ram.Store = (*txStore)(nil)
)

// Store keeps the catalog, both observation logs, and tracking memberships in memory.
type Store struct {
	mu    sync.RWMutex
	state *state
}

type state struct {
	products map[int]ram.ProductRecord
	logs     map[ram.Series][]ram.Observation
	tracked  map[int]ram.TrackingMembership
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{state: &state{
		products: make(map[int]ram.ProductRecord),
		logs:     make(map[ram.Series][]ram.Observation),
		tracked:  make(map[int]ram.TrackingMembership),
	}}
}

// UpsertProduct inserts rec unless a record with the same ID already exists.
func (s *Store) UpsertProduct(_ context.Context, rec ram.ProductRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	created, _ := s.state.upsertProduct(rec)
	return created, nil
}

// GetProduct fetches a product by ID.
func (s *Store) GetProduct(_ context.Context, id int) (ram.ProductRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.getProduct(id)
}

// ListProducts returns products ordered by ID; limit <= 0 means no limit.
func (s *Store) ListProducts(_ context.Context, limit int) ([]ram.ProductRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.listProducts(limit), nil
}

// SetCategory replaces the category of one product.
func (s *Store) SetCategory(_ context.Context, id int, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.state.setCategory(id, category)
	return err
}

// SetCategoryByChannel sets category on every product with the given dual-channel flag.
func (s *Store) SetCategoryByChannel(_ context.Context, dualChannel bool, category string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, _ := s.state.setCategoryByChannel(dualChannel, category)
	return n, nil
}

// AppendObservation appends obs to series.
func (s *Store) AppendObservation(_ context.Context, series ram.Series, obs ram.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.state.appendObservation(series, obs)
	return err
}

// LatestObservation returns the observation with the greatest ScrapedAt, later insertions winning ties.
func (s *Store) LatestObservation(_ context.Context, series ram.Series) (ram.Observation, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obs, ok := s.state.latest(series)
	return obs, ok, nil
}

// History returns a copy of series ordered by ScrapedAt, insertion order within equal timestamps.
func (s *Store) History(_ context.Context, series ram.Series) ([]ram.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.history(series), nil
}

// LatestByProduct returns the latest observation per product within kind's log.
func (s *Store) LatestByProduct(_ context.Context, kind ram.SeriesKind) (map[int]ram.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.latestByProduct(kind), nil
}

// InsertMembership records m unless the product is already tracked.
func (s *Store) InsertMembership(_ context.Context, m ram.TrackingMembership) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inserted, _ := s.state.insertMembership(m)
	return inserted, nil
}

// IsMember reports whether productID is tracked.
func (s *Store) IsMember(_ context.Context, productID int) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.state.tracked[productID]
	return ok, nil
}

// ListMemberships returns memberships ordered by product ID.
func (s *Store) ListMemberships(_ context.Context) ([]ram.TrackingMembership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.listMemberships(), nil
}

// InTx holds the write lock for the duration of fn and undoes fn's writes if it fails.
func (s *Store) InTx(_ context.Context, fn func(ram.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &txStore{state: s.state}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// txStore operates on the locked state and journals an undo step per write.
type txStore struct {
	state *state
	undo  []func()
}

func (t *txStore) record(u func()) {
	if u != nil {
		t.undo = append(t.undo, u)
	}
}

func (t *txStore) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *txStore) UpsertProduct(_ context.Context, rec ram.ProductRecord) (bool, error) {
	created, undo := t.state.upsertProduct(rec)
	t.record(undo)
	return created, nil
}

func (t *txStore) GetProduct(_ context.Context, id int) (ram.ProductRecord, error) {
	return t.state.getProduct(id)
}

func (t *txStore) ListProducts(_ context.Context, limit int) ([]ram.ProductRecord, error) {
	return t.state.listProducts(limit), nil
}

func (t *txStore) SetCategory(_ context.Context, id int, category string) error {
	undo, err := t.state.setCategory(id, category)
	t.record(undo)
	return err
}

func (t *txStore) SetCategoryByChannel(_ context.Context, dualChannel bool, category string) (int64, error) {
	n, undo := t.state.setCategoryByChannel(dualChannel, category)
	t.record(undo)
	return n, nil
}

func (t *txStore) AppendObservation(_ context.Context, series ram.Series, obs ram.Observation) error {
	undo, err := t.state.appendObservation(series, obs)
	t.record(undo)
	return err
}

func (t *txStore) LatestObservation(_ context.Context, series ram.Series) (ram.Observation, bool, error) {
	obs, ok := t.state.latest(series)
	return obs, ok, nil
}

func (t *txStore) History(_ context.Context, series ram.Series) ([]ram.Observation, error) {
	return t.state.history(series), nil
}

func (t *txStore) LatestByProduct(_ context.Context, kind ram.SeriesKind) (map[int]ram.Observation, error) {
	return t.state.latestByProduct(kind), nil
}

func (t *txStore) InsertMembership(_ context.Context, m ram.TrackingMembership) (bool, error) {
	inserted, undo := t.state.insertMembership(m)
	t.record(undo)
	return inserted, nil
}

func (t *txStore) IsMember(_ context.Context, productID int) (bool, error) {
	_, ok := t.state.tracked[productID]
	return ok, nil
}

func (t *txStore) ListMemberships(_ context.Context) ([]ram.TrackingMembership, error) {
	return t.state.listMemberships(), nil
}

// InTx nests into the enclosing transaction.
func (t *txStore) InTx(_ context.Context, fn func(ram.Store) error) error {
	mark := len(t.undo)
	if err := fn(t); err != nil {
		for i := len(t.undo) - 1; i >= mark; i-- {
			t.undo[i]()
		}
		t.undo = t.undo[:mark]
		return err
	}
	return nil
}

func (st *state) upsertProduct(rec ram.ProductRecord) (bool, func()) {
	if _, exists := st.products[rec.ID]; exists {
		return false, nil
	}
	st.products[rec.ID] = rec
	return true, func() { delete(st.products, rec.ID) }
}

func (st *state) getProduct(id int) (ram.ProductRecord, error) {
	rec, ok := st.products[id]
	if !ok {
		return ram.ProductRecord{}, fmt.Errorf("product %d: %w", id, ram.ErrNotFound)
	}
	return rec, nil
}

func (st *state) listProducts(limit int) []ram.ProductRecord {
	out := make([]ram.ProductRecord, 0, len(st.products))
	for _, rec := range st.products {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (st *state) setCategory(id int, category string) (func(), error) {
	rec, ok := st.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, ram.ErrNotFound)
	}
	prev := rec.Category
	rec.Category = category
	st.products[id] = rec
	return func() {
		r := st.products[id]
		r.Category = prev
		st.products[id] = r
	}, nil
}

func (st *state) setCategoryByChannel(dualChannel bool, category string) (int64, func()) {
	prev := make(map[int]string)
	for id, rec := range st.products {
		if rec.IsDualChannel != dualChannel {
			continue
		}
		prev[id] = rec.Category
		rec.Category = category
		st.products[id] = rec
	}
	return int64(len(prev)), func() {
		for id, c := range prev {
			r := st.products[id]
			r.Category = c
			st.products[id] = r
		}
	}
}

func (st *state) appendObservation(series ram.Series, obs ram.Observation) (func(), error) {
	if !obs.Status.Valid() {
		return nil, fmt.Errorf("invalid status %q", obs.Status)
	}
	n := len(st.logs[series])
	st.logs[series] = append(st.logs[series], obs)
	return func() {
		st.logs[series] = st.logs[series][:n]
		if n == 0 {
			delete(st.logs, series)
		}
	}, nil
}

func (st *state) latest(series ram.Series) (ram.Observation, bool) {
	return latestOf(st.logs[series])
}

func latestOf(obs []ram.Observation) (ram.Observation, bool) {
	if len(obs) == 0 {
		return ram.Observation{}, false
	}
	best := obs[0]
	for _, o := range obs[1:] {
		if !o.ScrapedAt.Before(best.ScrapedAt) {
			best = o
		}
	}
	return best, true
}

func (st *state) history(series ram.Series) []ram.Observation {
	src := st.logs[series]
	out := make([]ram.Observation, len(src))
	copy(out, src)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ScrapedAt.Before(out[j].ScrapedAt) })
	return out
}

func (st *state) latestByProduct(kind ram.SeriesKind) map[int]ram.Observation {
	out := make(map[int]ram.Observation)
	for series, obs := range st.logs {
		if series.Kind != kind {
			continue
		}
		if latest, ok := latestOf(obs); ok {
			out[series.ProductID] = latest
		}
	}
	return out
}

func (st *state) insertMembership(m ram.TrackingMembership) (bool, func()) {
	if _, exists := st.tracked[m.ProductID]; exists {
		return false, nil
	}
	st.tracked[m.ProductID] = m
	return true, func() { delete(st.tracked, m.ProductID) }
}

func (st *state) listMemberships() []ram.TrackingMembership {
	out := make([]ram.TrackingMembership, 0, len(st.tracked))
	for _, m := range st.tracked {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}
