package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/rl1809/pos-backoffice/internal/core/domain"
	"github.com/rl1809/pos-backoffice/internal/port"
)

// InventoryService exposes single-record stock reads and overwrites addressed
// by barcode.
type InventoryService struct {
	tx          port.TransactionScope
	maxQuantity int
	logger      *zap.Logger
}

func NewInventoryService(tx port.TransactionScope, maxQuantity int, logger *zap.Logger) *InventoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InventoryService{tx: tx, maxQuantity: maxQuantity, logger: logger.Named("inventory")}
}

func (s *InventoryService) Get(ctx context.Context, barcode string) (*domain.StockLevel, error) {
	var level *domain.StockLevel
	err := s.tx.Execute(ctx, func(repos port.Repositories) error {
		product, err := repos.Products().GetProductByBarcode(ctx, barcode)
		if err != nil {
			return err
		}
		inv, err := NewLedger(repos.Inventory(), s.maxQuantity).Get(ctx, product.ID)
		if err != nil {
			return err
		}
		level = stockLevel(product, inv)
		return nil
	})
	return level, err
}

// Update overwrites the quantity of one product.
func (s *InventoryService) Update(ctx context.Context, barcode string, quantity int) (*domain.StockLevel, error) {
	var level *domain.StockLevel
	err := s.tx.Execute(ctx, func(repos port.Repositories) error {
		product, err := repos.Products().GetProductByBarcode(ctx, barcode)
		if err != nil {
			return err
		}

		ledger := NewLedger(repos.Inventory(), s.maxQuantity)
		if err := ledger.SetQuantity(ctx, domain.Inventory{ProductID: product.ID, Quantity: quantity}); err != nil {
			return err
		}
		inv, err := ledger.Get(ctx, product.ID)
		if err != nil {
			return err
		}
		level = stockLevel(product, inv)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Inventory updated", zap.String("barcode", barcode), zap.Int("quantity", quantity))
	return level, nil
}

func stockLevel(p *domain.Product, inv *domain.Inventory) *domain.StockLevel {
	return &domain.StockLevel{
		ProductID: p.ID,
		Barcode:   p.Barcode,
		Quantity:  inv.Quantity,
		UpdatedAt: inv.UpdatedAt,
	}
}
