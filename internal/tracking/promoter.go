// Package tracking promotes products to dedicated observation series and routes their reads and writes.
package tracking

import (
	"context"
	"fmt"

	"github.com/JakeFAU/ramtracker/internal/ram"
)

// Result reports the outcome of a Track call.
type Result struct {
	ProductID      int  `json:"product_id"`
	AlreadyTracked bool `json:"already_tracked"`
}

// Promoter owns tracking memberships.
type Promoter struct {
	store ram.Store
	clock ram.Clock
}

// New builds a Promoter over store.
func New(store ram.Store, clock ram.Clock) *Promoter {
	return &Promoter{store: store, clock: clock}
}

// Track promotes productID. Calling it again reports AlreadyTracked without writing.
// Rows already in the shared log stay where they are.
func (p *Promoter) Track(ctx context.Context, productID int) (Result, error) {
	res := Result{ProductID: productID}
	err := p.store.InTx(ctx, func(tx ram.Store) error {
		tracked, err := tx.IsMember(ctx, productID)
		if err != nil {
			return fmt.Errorf("check membership: %w", err)
		}
		if tracked {
			res.AlreadyTracked = true
			return nil
		}
		inserted, err := tx.InsertMembership(ctx, ram.TrackingMembership{
			ProductID: productID,
			CreatedAt: p.clock.Now(),
		})
		if err != nil {
			return fmt.Errorf("insert membership: %w", err)
		}
		res.AlreadyTracked = !inserted
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("track product %d: %w", productID, err)
	}
	return res, nil
}

// IsTracked reports whether productID has been promoted.
func (p *Promoter) IsTracked(ctx context.Context, productID int) (bool, error) {
	return IsTracked(ctx, p.store, productID)
}

// Route returns the series reads and writes for productID should target.
func (p *Promoter) Route(ctx context.Context, productID int) (ram.Series, error) {
	return Route(ctx, p.store, productID)
}

// Tracked lists memberships ordered by product ID.
func (p *Promoter) Tracked(ctx context.Context) ([]ram.TrackingMembership, error) {
	members, err := p.store.ListMemberships(ctx)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	return members, nil
}

// IsTracked checks membership against m, which may be transaction-scoped.
func IsTracked(ctx context.Context, m ram.Memberships, productID int) (bool, error) {
	ok, err := m.IsMember(ctx, productID)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return ok, nil
}

// Route picks the dedicated series for tracked products and the shared log otherwise.
func Route(ctx context.Context, m ram.Memberships, productID int) (ram.Series, error) {
	tracked, err := IsTracked(ctx, m, productID)
	if err != nil {
		return ram.Series{}, err
	}
	if tracked {
		return ram.DedicatedSeries(productID), nil
	}
	return ram.SharedSeries(productID), nil
}
