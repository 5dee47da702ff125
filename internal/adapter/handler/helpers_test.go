package handler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/pos-backoffice/internal/adapter/storage"
	"github.com/rl1809/pos-backoffice/internal/core/domain"
	"github.com/rl1809/pos-backoffice/internal/core/service"
)

type stubInvoices struct {
	mu       sync.Mutex
	invoices map[string]*domain.Invoice
	err      error
}

func (s *stubInvoices) GenerateInvoice(ctx context.Context, order domain.Order) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if inv, ok := s.invoices[order.Reference]; ok {
		return inv, nil
	}
	inv := &domain.Invoice{
		OrderReference: order.Reference,
		InvoiceNumber:  "INV-" + order.Reference,
		InvoicedAt:     time.Now(),
		Total:          order.Total(),
	}
	s.invoices[order.Reference] = inv
	return inv, nil
}

func (s *stubInvoices) GetInvoice(ctx context.Context, reference string) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[reference]
	if !ok {
		return nil, domain.NotFound("invoice for order %s not found", reference)
	}
	return inv, nil
}

type fixture struct {
	store     *storage.MemoryAdapter
	invoices  *stubInvoices
	orders    *service.OrderService
	inventory *service.InventoryService
	bulk      *service.BulkService
	client    domain.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewMemoryAdapter()
	invoices := &stubInvoices{invoices: make(map[string]*domain.Invoice)}
	return &fixture{
		store:     store,
		invoices:  invoices,
		orders:    service.NewOrderService(store, invoices, store, service.DefaultOrderConfig(), nil),
		inventory: service.NewInventoryService(store, domain.MaxQuantity, nil),
		bulk:      service.NewBulkService(store, domain.MaxQuantity, 100, nil, nil),
		client:    store.AddClient(domain.Client{Email: "owner@shop.test", Name: "Shop"}),
	}
}

func (f *fixture) addProduct(t *testing.T, barcode string, quantity int) int64 {
	t.Helper()
	ctx := context.Background()
	products := []domain.Product{{Barcode: barcode, ClientID: f.client.ID, Name: barcode, MRP: decimal.NewFromInt(10)}}
	require.NoError(t, f.store.CreateProducts(ctx, products))
	require.NoError(t, f.store.SaveInventory(ctx, domain.Inventory{ProductID: products[0].ID, Quantity: quantity}))
	return products[0].ID
}

func (f *fixture) quantity(t *testing.T, productID int64) int {
	t.Helper()
	inv, err := f.store.GetInventory(context.Background(), productID)
	require.NoError(t, err)
	return inv.Quantity
}
