package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rl1809/pos-backoffice/internal/core/domain"
)

type mysqlInventoryRepo struct {
	q queryer
}

func (r *mysqlInventoryRepo) GetInventory(ctx context.Context, productID int64) (*domain.Inventory, error) {
	var inv domain.Inventory
	err := r.q.QueryRowContext(ctx, `
		SELECT product_id, quantity, created_at, updated_at
		FROM inventory WHERE product_id = ?`, productID,
	).Scan(&inv.ProductID, &inv.Quantity, &inv.CreatedAt, &inv.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("inventory for product %d not found", productID)
	}
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	return &inv, nil
}

func (r *mysqlInventoryRepo) GetInventories(ctx context.Context, productIDs []int64) ([]domain.Inventory, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}

	args := make([]any, len(productIDs))
	for i, id := range productIDs {
		args[i] = id
	}

	rows, err := r.q.QueryContext(ctx, `
		SELECT product_id, quantity, created_at, updated_at
		FROM inventory WHERE product_id IN (`+placeholders(len(args))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query inventories: %w", err)
	}
	defer rows.Close()

	var result []domain.Inventory
	for rows.Next() {
		var inv domain.Inventory
		if err := rows.Scan(&inv.ProductID, &inv.Quantity, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan inventory: %w", err)
		}
		result = append(result, inv)
	}
	return result, rows.Err()
}

func (r *mysqlInventoryRepo) DeductStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	result, err := r.q.ExecContext(ctx, `
		UPDATE inventory
		SET quantity = quantity - ?, updated_at = NOW()
		WHERE product_id = ? AND quantity >= ?`,
		quantity, productID, quantity,
	)
	if err != nil {
		return false, fmt.Errorf("deduct stock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deduct stock: %w", err)
	}
	return rows == 1, nil
}

func (r *mysqlInventoryRepo) RestoreStock(ctx context.Context, productID int64, quantity, limit int) (bool, error) {
	result, err := r.q.ExecContext(ctx, `
		UPDATE inventory
		SET quantity = quantity + ?, updated_at = NOW()
		WHERE product_id = ? AND quantity + ? <= ?`,
		quantity, productID, quantity, limit,
	)
	if err != nil {
		return false, fmt.Errorf("restore stock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("restore stock: %w", err)
	}
	return rows == 1, nil
}

func (r *mysqlInventoryRepo) SaveInventory(ctx context.Context, inventory domain.Inventory) error {
	return r.SaveInventories(ctx, []domain.Inventory{inventory})
}

func (r *mysqlInventoryRepo) SaveInventories(ctx context.Context, inventories []domain.Inventory) error {
	if len(inventories) == 0 {
		return nil
	}

	args := make([]any, 0, len(inventories)*2)
	for _, inv := range inventories {
		args = append(args, inv.ProductID, inv.Quantity)
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO inventory (product_id, quantity)
		VALUES `+rowPlaceholders(len(inventories), 2)+`
		ON DUPLICATE KEY UPDATE quantity = VALUES(quantity), updated_at = NOW()`, args...)
	if err != nil {
		return fmt.Errorf("save inventories: %w", err)
	}
	return nil
}
