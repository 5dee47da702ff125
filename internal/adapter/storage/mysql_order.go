package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rl1809/pos-backoffice/internal/core/domain"
)

type mysqlOrderRepo struct {
	q       queryer
	locking bool
}

func (r *mysqlOrderRepo) CreateOrder(ctx context.Context, order *domain.Order) error {
	result, err := r.q.ExecContext(ctx, `
		INSERT INTO orders (reference, order_time, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		order.Reference, order.OrderTime, order.Status, order.CreatedAt, order.UpdatedAt,
	)
	if isDuplicateKey(err) {
		return domain.Conflict("order reference %s already exists", order.Reference)
	}
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	order.ID = id

	return r.insertItems(ctx, order)
}

func (r *mysqlOrderRepo) UpdateOrder(ctx context.Context, order *domain.Order) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`,
		order.Status, order.UpdatedAt, order.ID,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.NotFound("order %s not found", order.Reference)
	}

	if _, err := r.q.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = ?`, order.ID); err != nil {
		return fmt.Errorf("delete order items: %w", err)
	}
	return r.insertItems(ctx, order)
}

func (r *mysqlOrderRepo) insertItems(ctx context.Context, order *domain.Order) error {
	if len(order.Items) == 0 {
		return nil
	}

	args := make([]any, 0, len(order.Items)*6)
	for i, item := range order.Items {
		args = append(args, order.ID, i, item.ProductID, item.Barcode, item.Quantity, item.SellingPrice)
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO order_items (order_id, position, product_id, barcode, quantity, selling_price)
		VALUES `+rowPlaceholders(len(order.Items), 6), args...)
	if err != nil {
		return fmt.Errorf("insert order items: %w", err)
	}
	return nil
}

func (r *mysqlOrderRepo) GetOrderByReference(ctx context.Context, reference string) (*domain.Order, error) {
	query := `
		SELECT id, reference, order_time, status, created_at, updated_at
		FROM orders WHERE reference = ?`
	if r.locking {
		query += ` FOR UPDATE`
	}

	var o domain.Order
	var status string
	err := r.q.QueryRowContext(ctx, query, reference).Scan(&o.ID, &o.Reference, &o.OrderTime, &status, &o.CreatedAt, &o.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("order %s not found", reference)
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	o.Status = domain.OrderStatus(status)

	items, err := r.loadItems(ctx, []int64{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	return &o, nil
}

func (r *mysqlOrderRepo) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	var exists bool
	err := r.q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM orders WHERE reference = ?)`, reference,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check order reference: %w", err)
	}
	return exists, nil
}

func (r *mysqlOrderRepo) SearchOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, int64, error) {
	var conds []string
	var args []any
	if filter.ReferenceContains != "" {
		conds = append(conds, "reference LIKE ?")
		args = append(args, "%"+escapeLike(filter.ReferenceContains)+"%")
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}
	if !filter.From.IsZero() {
		conds = append(conds, "order_time >= ?")
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		conds = append(conds, "order_time <= ?")
		args = append(args, filter.To)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	pageArgs := append(append([]any{}, args...), filter.Size, filter.Page*filter.Size)
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, reference, order_time, status, created_at, updated_at
		FROM orders`+where+`
		ORDER BY order_time DESC, id DESC
		LIMIT ? OFFSET ?`, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("search orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	var ids []int64
	for rows.Next() {
		var o domain.Order
		var status string
		if err := rows.Scan(&o.ID, &o.Reference, &o.OrderTime, &status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan order: %w", err)
		}
		o.Status = domain.OrderStatus(status)
		orders = append(orders, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("search orders: %w", err)
	}

	items, err := r.loadItems(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, total, nil
}

func (r *mysqlOrderRepo) loadItems(ctx context.Context, orderIDs []int64) (map[int64][]domain.OrderItem, error) {
	result := make(map[int64][]domain.OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return result, nil
	}

	args := make([]any, len(orderIDs))
	for i, id := range orderIDs {
		args[i] = id
	}

	rows, err := r.q.QueryContext(ctx, `
		SELECT order_id, product_id, barcode, quantity, selling_price
		FROM order_items WHERE order_id IN (`+placeholders(len(args))+`)
		ORDER BY order_id, position`, args...)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var orderID int64
		var item domain.OrderItem
		if err := rows.Scan(&orderID, &item.ProductID, &item.Barcode, &item.Quantity, &item.SellingPrice); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		result[orderID] = append(result[orderID], item)
	}
	return result, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
