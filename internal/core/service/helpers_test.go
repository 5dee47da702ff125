package service

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/pos-backoffice/internal/adapter/storage"
	"github.com/rl1809/pos-backoffice/internal/core/domain"
)

// fakeInvoiceClient records calls and returns canned invoices keyed by
// reference. generate overrides the default behaviour when set.
type fakeInvoiceClient struct {
	mu       sync.Mutex
	calls    int
	invoices map[string]*domain.Invoice
	generate func(ctx context.Context, order domain.Order) (*domain.Invoice, error)
}

func newFakeInvoiceClient() *fakeInvoiceClient {
	return &fakeInvoiceClient{invoices: make(map[string]*domain.Invoice)}
}

func (f *fakeInvoiceClient) GenerateInvoice(ctx context.Context, order domain.Order) (*domain.Invoice, error) {
	f.mu.Lock()
	f.calls++
	gen := f.generate
	f.mu.Unlock()

	if gen != nil {
		return gen(ctx, order)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if inv, ok := f.invoices[order.Reference]; ok {
		return inv, nil
	}
	inv := &domain.Invoice{
		OrderReference: order.Reference,
		InvoiceNumber:  "INV-" + order.Reference,
		Total:          order.Total(),
	}
	f.invoices[order.Reference] = inv
	return inv, nil
}

func (f *fakeInvoiceClient) GetInvoice(ctx context.Context, reference string) (*domain.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invoices[reference]
	if !ok {
		return nil, domain.NotFound("invoice for order %s not found", reference)
	}
	return inv, nil
}

type testEnv struct {
	store    *storage.MemoryAdapter
	invoices *fakeInvoiceClient
	orders   *OrderService
	bulk     *BulkService
	stock    *InventoryService
	client   domain.Client
}

func newTestEnv(t *testing.T, opts ...OrderOption) *testEnv {
	t.Helper()
	store := storage.NewMemoryAdapter()
	invoices := newFakeInvoiceClient()
	cfg := DefaultOrderConfig()

	return &testEnv{
		store:    store,
		invoices: invoices,
		orders:   NewOrderService(store, invoices, store, cfg, nil, opts...),
		bulk:     NewBulkService(store, domain.MaxQuantity, 100, nil, nil),
		stock:    NewInventoryService(store, domain.MaxQuantity, nil),
		client:   store.AddClient(domain.Client{Email: "owner@shop.test", Name: "Shop"}),
	}
}

// addProduct creates a product with the given stock and returns its id.
func (e *testEnv) addProduct(t *testing.T, barcode string, quantity int) int64 {
	t.Helper()
	ctx := context.Background()
	products := []domain.Product{{
		Barcode:  barcode,
		ClientID: e.client.ID,
		Name:     "Product " + barcode,
		MRP:      decimal.NewFromInt(10),
	}}
	require.NoError(t, e.store.CreateProducts(ctx, products))
	require.NoError(t, e.store.SaveInventory(ctx, domain.Inventory{ProductID: products[0].ID, Quantity: quantity}))
	return products[0].ID
}

func (e *testEnv) quantity(t *testing.T, productID int64) int {
	t.Helper()
	inv, err := e.store.GetInventory(context.Background(), productID)
	require.NoError(t, err)
	return inv.Quantity
}

func line(barcode string, qty int) domain.OrderLine {
	return domain.OrderLine{Barcode: barcode, Quantity: qty, SellingPrice: decimal.RequireFromString("9.99")}
}
