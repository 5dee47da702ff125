package port

import (
	"context"

	"github.com/rl1809/pos-backoffice/internal/core/domain"
)

type InventoryRepository interface {
	// GetInventory returns domain.ErrNotFound when the product has no record
	GetInventory(ctx context.Context, productID int64) (*domain.Inventory, error)

	// GetInventories returns the records that exist; missing ids are omitted
	GetInventories(ctx context.Context, productIDs []int64) ([]domain.Inventory, error)

	// DeductStock decrements quantity only if the current quantity covers it,
	// as a single conditional store operation. Returns false if insufficient.
	DeductStock(ctx context.Context, productID int64, quantity int) (bool, error)

	// RestoreStock increments quantity only if the result stays within limit.
	// Returns false if the bound would be exceeded or the record is missing.
	RestoreStock(ctx context.Context, productID int64, quantity, limit int) (bool, error)

	// SaveInventory overwrites (or creates) the record
	SaveInventory(ctx context.Context, inventory domain.Inventory) error

	// SaveInventories overwrites (or creates) all records
	SaveInventories(ctx context.Context, inventories []domain.Inventory) error
}

type OrderRepository interface {
	// CreateOrder inserts the order and its items, assigning order.ID.
	// A duplicate reference surfaces as domain.ErrConflict.
	CreateOrder(ctx context.Context, order *domain.Order) error

	// UpdateOrder replaces status and the full item list
	UpdateOrder(ctx context.Context, order *domain.Order) error

	GetOrderByReference(ctx context.Context, reference string) (*domain.Order, error)

	ReferenceExists(ctx context.Context, reference string) (bool, error)

	SearchOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, int64, error)
}

type ProductRepository interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)

	GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error)

	// GetProductsByBarcodes returns the products that exist, keyed by barcode
	GetProductsByBarcodes(ctx context.Context, barcodes []string) (map[string]domain.Product, error)

	// CreateProducts inserts all products in one batch, assigning IDs in place.
	// A duplicate barcode surfaces as domain.ErrConflict.
	CreateProducts(ctx context.Context, products []domain.Product) error
}

type ClientRepository interface {
	// GetClientsByEmails returns the clients that exist, keyed by email
	GetClientsByEmails(ctx context.Context, emails []string) (map[string]domain.Client, error)
}

// Repositories gives access to every repository bound to one unit of work.
type Repositories interface {
	Inventory() InventoryRepository
	Orders() OrderRepository
	Products() ProductRepository
	Clients() ClientRepository
}

// TransactionScope runs fn as one all-or-nothing unit of work. If fn returns
// an error every write made through repos is undone.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos Repositories) error) error
}
