package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rl1809/pos-backoffice/internal/core/domain"
)

type mysqlProductRepo struct {
	q queryer
}

const productColumns = `id, barcode, client_id, name, mrp, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Barcode, &p.ClientID, &p.Name, &p.MRP, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *mysqlProductRepo) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	p, err := scanProduct(r.q.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("product %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	return &p, nil
}

func (r *mysqlProductRepo) GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error) {
	p, err := scanProduct(r.q.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE barcode = ?`, barcode))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("product with barcode %s not found", barcode)
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	return &p, nil
}

func (r *mysqlProductRepo) GetProductsByBarcodes(ctx context.Context, barcodes []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(barcodes))
	if len(barcodes) == 0 {
		return result, nil
	}

	args := make([]any, len(barcodes))
	for i, b := range barcodes {
		args[i] = b
	}

	rows, err := r.q.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE barcode IN (`+placeholders(len(args))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		result[p.Barcode] = p
	}
	return result, rows.Err()
}

// CreateProducts inserts the batch with one statement and reads the assigned
// ids back by barcode, since auto-increment values of a multi-row insert are
// not guaranteed to be consecutive.
func (r *mysqlProductRepo) CreateProducts(ctx context.Context, products []domain.Product) error {
	if len(products) == 0 {
		return nil
	}

	args := make([]any, 0, len(products)*4)
	barcodes := make([]string, len(products))
	for i, p := range products {
		args = append(args, p.Barcode, p.ClientID, p.Name, p.MRP)
		barcodes[i] = p.Barcode
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO products (barcode, client_id, name, mrp)
		VALUES `+rowPlaceholders(len(products), 4), args...)
	if isDuplicateKey(err) {
		return domain.Conflict("product barcode already exists")
	}
	if err != nil {
		return fmt.Errorf("insert products: %w", err)
	}

	stored, err := r.GetProductsByBarcodes(ctx, barcodes)
	if err != nil {
		return err
	}
	for i := range products {
		p, ok := stored[products[i].Barcode]
		if !ok {
			return fmt.Errorf("inserted product %s not found", products[i].Barcode)
		}
		products[i].ID = p.ID
		products[i].CreatedAt = p.CreatedAt
		products[i].UpdatedAt = p.UpdatedAt
	}
	return nil
}

type mysqlClientRepo struct {
	q queryer
}

func (r *mysqlClientRepo) GetClientsByEmails(ctx context.Context, emails []string) (map[string]domain.Client, error) {
	result := make(map[string]domain.Client, len(emails))
	if len(emails) == 0 {
		return result, nil
	}

	args := make([]any, len(emails))
	for i, e := range emails {
		args[i] = e
	}

	rows, err := r.q.QueryContext(ctx,
		`SELECT id, email, name FROM clients WHERE email IN (`+placeholders(len(args))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query clients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c domain.Client
		if err := rows.Scan(&c.ID, &c.Email, &c.Name); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		result[c.Email] = c
	}
	return result, rows.Err()
}
