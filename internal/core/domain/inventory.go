package domain

import "time"

// MaxQuantity is the hard upper bound for any inventory record.
const MaxQuantity = 1000

type Inventory struct {
	ProductID int64
	Quantity  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the record against the [0, limit] bound.
func (i Inventory) Validate(limit int) error {
	if i.ProductID <= 0 {
		return Validation("inventory record has no product id")
	}
	if i.Quantity < 0 {
		return Validation("quantity for product %d cannot be negative: %d", i.ProductID, i.Quantity)
	}
	if i.Quantity > limit {
		return Validation("quantity for product %d cannot exceed %d: %d", i.ProductID, limit, i.Quantity)
	}
	return nil
}

// StockLevel is an inventory record addressed by product barcode.
type StockLevel struct {
	ProductID int64
	Barcode   string
	Quantity  int
	UpdatedAt time.Time
}
