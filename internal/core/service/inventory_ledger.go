package service

import (
	"context"
	"errors"

	"github.com/rl1809/pos-backoffice/internal/core/domain"
	"github.com/rl1809/pos-backoffice/internal/port"
)

// Ledger is the only writer of inventory records. It is bound to the
// repository of one unit of work.
type Ledger struct {
	repo port.InventoryRepository
	max  int
}

func NewLedger(repo port.InventoryRepository, maxQuantity int) *Ledger {
	if maxQuantity <= 0 || maxQuantity > domain.MaxQuantity {
		maxQuantity = domain.MaxQuantity
	}
	return &Ledger{repo: repo, max: maxQuantity}
}

func (l *Ledger) Max() int {
	return l.max
}

func (l *Ledger) Get(ctx context.Context, productID int64) (*domain.Inventory, error) {
	return l.repo.GetInventory(ctx, productID)
}

// DeductAtomically removes qty units only if they are all available. It is a
// single conditional store operation; false means nothing changed.
func (l *Ledger) DeductAtomically(ctx context.Context, productID int64, qty int) (bool, error) {
	if qty <= 0 {
		return false, domain.Validation("deduction for product %d must be positive: %d", productID, qty)
	}
	return l.repo.DeductStock(ctx, productID, qty)
}

// Restore returns qty units to stock, refusing to cross the upper bound.
func (l *Ledger) Restore(ctx context.Context, productID int64, qty int) error {
	if qty <= 0 {
		return domain.Validation("restoration for product %d must be positive: %d", productID, qty)
	}

	ok, err := l.repo.RestoreStock(ctx, productID, qty, l.max)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	inv, err := l.repo.GetInventory(ctx, productID)
	if err != nil {
		return err
	}
	return domain.Validation("restoring %d units to product %d would exceed maximum of %d (current %d)",
		qty, productID, l.max, inv.Quantity)
}

func (l *Ledger) SetQuantity(ctx context.Context, record domain.Inventory) error {
	if err := record.Validate(l.max); err != nil {
		return err
	}
	return l.repo.SaveInventory(ctx, record)
}

// GetBatch returns the existing records keyed by product id.
func (l *Ledger) GetBatch(ctx context.Context, productIDs []int64) (map[int64]domain.Inventory, error) {
	records, err := l.repo.GetInventories(ctx, productIDs)
	if err != nil {
		return nil, err
	}

	result := make(map[int64]domain.Inventory, len(records))
	for _, r := range records {
		result[r.ProductID] = r
	}
	return result, nil
}

// SaveBatch validates every record before writing any of them.
func (l *Ledger) SaveBatch(ctx context.Context, records []domain.Inventory) error {
	var errs []error
	for _, r := range records {
		if err := r.Validate(l.max); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return &domain.Error{
			Code:    domain.CodeValidation,
			Message: "inventory batch rejected",
			Err:     errors.Join(errs...),
		}
	}
	return l.repo.SaveInventories(ctx, records)
}
