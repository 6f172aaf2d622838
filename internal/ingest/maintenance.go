package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/ramtracker/internal/ram"
)

// Reclassify sets every product's category from its dual-channel flag in one transaction.
// It returns the number of rows updated.
func Reclassify(ctx context.Context, store ram.Store, dualLabel, singleLabel string) (int64, error) {
	if dualLabel == "" || singleLabel == "" {
		return 0, errors.New("category labels must be non-empty")
	}
	var total int64
	err := store.InTx(ctx, func(tx ram.Store) error {
		dual, err := tx.SetCategoryByChannel(ctx, true, dualLabel)
		if err != nil {
			return fmt.Errorf("set dual-channel category: %w", err)
		}
		single, err := tx.SetCategoryByChannel(ctx, false, singleLabel)
		if err != nil {
			return fmt.Errorf("set single-channel category: %w", err)
		}
		total = dual + single
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("reclassify products: %w", err)
	}
	return total, nil
}
