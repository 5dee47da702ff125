package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/pos-backoffice/internal/core/domain"
)

func TestCreate_ReservationSymmetry(t *testing.T) {
	env := newTestEnv(t)
	id := env.addProduct(t, "A", 10)
	ctx := context.Background()

	order, err := env.orders.Create(ctx, []domain.OrderLine{line("A", 5)})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFulfillable, order.Status)
	assert.Equal(t, 5, env.quantity(t, id))

	cancelled, err := env.orders.Cancel(ctx, order.Reference)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, 10, env.quantity(t, id))
}

func TestCreate_Shortfall(t *testing.T) {
	env := newTestEnv(t)
	id := env.addProduct(t, "A", 3)

	order, err := env.orders.Create(context.Background(), []domain.OrderLine{line("A", 5)})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusUnfulfillable, order.Status)
	assert.Equal(t, 3, env.quantity(t, id))

	stored, err := env.orders.GetByRef(context.Background(), order.Reference)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusUnfulfillable, stored.Status)
	assert.Len(t, stored.Items, 1)
}

func TestCreate_ShortfallCompensatesEarlierItems(t *testing.T) {
	env := newTestEnv(t)
	a := env.addProduct(t, "A", 10)
	b := env.addProduct(t, "B", 10)
	c := env.addProduct(t, "C", 1)

	order, err := env.orders.Create(context.Background(), []domain.OrderLine{
		line("A", 4),
		line("B", 6),
		line("C", 2),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusUnfulfillable, order.Status)
	assert.Equal(t, 10, env.quantity(t, a))
	assert.Equal(t, 10, env.quantity(t, b))
	assert.Equal(t, 1, env.quantity(t, c))
}

func TestCreate_SellingPriceSnapshot(t *testing.T) {
	env := newTestEnv(t)
	env.addProduct(t, "A", 10)

	order, err := env.orders.Create(context.Background(), []domain.OrderLine{line("A", 2)})
	require.NoError(t, err)
	assert.Equal(t, "9.99", order.Items[0].SellingPrice.StringFixed(2))
	assert.Equal(t, "19.98", order.Total().StringFixed(2))
}

func TestCreate_Validation(t *testing.T) {
	env := newTestEnv(t)
	env.addProduct(t, "A", 10)
	ctx := context.Background()

	_, err := env.orders.Create(ctx, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.orders.Create(ctx, []domain.OrderLine{line("A", 0)})
	assert.ErrorIs(t, err, domain.ErrValidation)

	neg := line("A", 1)
	neg.SellingPrice = neg.SellingPrice.Neg()
	_, err = env.orders.Create(ctx, []domain.OrderLine{neg})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.orders.Create(ctx, []domain.OrderLine{line("MISSING", 1)})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreate_RaceOnLastUnit(t *testing.T) {
	env := newTestEnv(t)
	id := env.addProduct(t, "LAST", 1)

	var wg sync.WaitGroup
	var fulfillable, unfulfillable atomic.Int32

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			order, err := env.orders.Create(context.Background(), []domain.OrderLine{line("LAST", 1)})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			switch order.Status {
			case domain.OrderStatusFulfillable:
				fulfillable.Add(1)
			case domain.OrderStatusUnfulfillable:
				unfulfillable.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), fulfillable.Load())
	assert.Equal(t, int32(1), unfulfillable.Load())
	assert.Equal(t, 0, env.quantity(t, id))
}

func TestCreate_ManyConcurrentBuyers(t *testing.T) {
	env := newTestEnv(t)
	id := env.addProduct(t, "HOT", 25)

	var wg sync.WaitGroup
	var fulfillable atomic.Int32
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			order, err := env.orders.Create(context.Background(), []domain.OrderLine{line("HOT", 1)})
			if err == nil && order.Status == domain.OrderStatusFulfillable {
				fulfillable.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(25), fulfillable.Load())
	assert.Equal(t, 0, env.quantity(t, id))
}

func TestUpdate_ReplacesReservation(t *testing.T) {
	env := newTestEnv(t)
	a := env.addProduct(t, "A", 10)
	b := env.addProduct(t, "B", 10)
	ctx := context.Background()

	order, err := env.orders.Create(ctx, []domain.OrderLine{line("A", 4)})
	require.NoError(t, err)

	updated, err := env.orders.Update(ctx, order.Reference, []domain.OrderLine{line("A", 7), line("B", 3)})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFulfillable, updated.Status)
	assert.Equal(t, 3, env.quantity(t, a))
	assert.Equal(t, 7, env.quantity(t, b))
	assert.Len(t, updated.Items, 2)
}

func TestUpdate_ShortfallReleasesEverything(t *testing.T) {
	env := newTestEnv(t)
	a := env.addProduct(t, "A", 10)
	b := env.addProduct(t, "B", 2)
	ctx := context.Background()

	order, err := env.orders.Create(ctx, []domain.OrderLine{line("A", 4)})
	require.NoError(t, err)

	updated, err := env.orders.Update(ctx, order.Reference, []domain.OrderLine{line("A", 4), line("B", 5)})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusUnfulfillable, updated.Status)
	assert.Equal(t, 10, env.quantity(t, a), "old reservation released, new one not taken")
	assert.Equal(t, 2, env.quantity(t, b))
}

func TestUpdate_UnfulfillableBecomesFulfillable(t *testing.T) {
	env := newTestEnv(t)
	a := env.addProduct(t, "A", 1)
	ctx := context.Background()

	order, err := env.orders.Create(ctx, []domain.OrderLine{line("A", 3)})
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusUnfulfillable, order.Status)

	_, err = env.stock.Update(ctx, "A", 5)
	require.NoError(t, err)

	updated, err := env.orders.Update(ctx, order.Reference, []domain.OrderLine{line("A", 3)})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFulfillable, updated.Status)
	assert.Equal(t, 2, env.quantity(t, a))
}

func TestUpdate_TerminalOrders(t *testing.T) {
	env := newTestEnv(t)
	env.addProduct(t, "A", 10)
	ctx := context.Background()

	cancelled, err := env.orders.Create(ctx, []domain.OrderLine{line("A", 1)})
	require.NoError(t, err)
	_, err = env.orders.Cancel(ctx, cancelled.Reference)
	require.NoError(t, err)

	_, err = env.orders.Update(ctx, cancelled.Reference, []domain.OrderLine{line("A", 1)})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	invoiced, err := env.orders.Create(ctx, []domain.OrderLine{line("A", 1)})
	require.NoError(t, err)
	_, err = env.orders.MarkInvoiced(ctx, invoiced.Reference)
	require.NoError(t, err)

	_, err = env.orders.Update(ctx, invoiced.Reference, []domain.OrderLine{line("A", 1)})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = env.orders.Update(ctx, "ORD-NOPE", []domain.OrderLine{line("A", 1)})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdate_FailedRestoreLeavesStateUnchanged(t *testing.T) {
	env := newTestEnv(t)
	a := env.addProduct(t, "A", 10)
	ctx := context.Background()

	order, err := env.orders.Create(ctx, []domain.OrderLine{line("A", 5)})
	require.NoError(t, err)

	// Stock is topped up so that returning the reservation would cross the cap.
	_, err = env.stock.Update(ctx, "A", 999)
	require.NoError(t, err)

	_, err = env.orders.Update(ctx, order.Reference, []domain.OrderLine{line("A", 1)})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, 999, env.quantity(t, a))

	stored, err := env.orders.GetByRef(ctx, order.Reference)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.Items[0].Quantity)
}

func TestCancel_Unfulfillable(t *testing.T) {
	env := newTestEnv(t)
	a := env.addProduct(t, "A", 1)
	ctx := context.Background()

	order, err := env.orders.Create(ctx, []domain.OrderLine{line("A", 2)})
	require.NoError(t, err)

	_, err = env.orders.Cancel(ctx, order.Reference)
	require.NoError(t, err)
	assert.Equal(t, 1, env.quantity(t, a), "nothing was held, nothing is returned")

	_, err = env.orders.Cancel(ctx, order.Reference)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestMarkInvoiced_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	a := env.addProduct(t, "A", 10)
	ctx := context.Background()

	order, err := env.orders.Create(ctx, []domain.OrderLine{line("A", 2)})
	require.NoError(t, err)

	invoice, err := env.orders.MarkInvoiced(ctx, order.Reference)
	require.NoError(t, err)
	assert.Equal(t, order.Reference, invoice.OrderReference)
	assert.Equal(t, "19.98", invoice.Total.StringFixed(2))

	_, err = env.orders.MarkInvoiced(ctx, order.Reference)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Contains(t, err.Error(), "already invoiced")

	stored, err := env.orders.GetByRef(ctx, order.Reference)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusInvoiced, stored.Status)
	assert.Equal(t, order.Items, stored.Items)
	assert.Equal(t, 8, env.quantity(t, a))
	assert.Equal(t, 1, env.invoices.calls)

	_, err = env.orders.Cancel(ctx, order.Reference)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestMarkInvoiced_OnlyFulfillable(t *testing.T) {
	env := newTestEnv(t)
	env.addProduct(t, "A", 0)

	order, err := env.orders.Create(context.Background(), []domain.OrderLine{line("A", 1)})
	require.NoError(t, err)

	_, err = env.orders.MarkInvoiced(context.Background(), order.Reference)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Contains(t, err.Error(), "only fulfillable orders can be invoiced")
	assert.Equal(t, 0, env.invoices.calls)
}

func TestMarkInvoiced_CollaboratorFailureKeepsOrderFulfillable(t *testing.T) {
	env := newTestEnv(t)
	env.addProduct(t, "A", 10)
	ctx := context.Background()

	order, err := env.orders.Create(ctx, []domain.OrderLine{line("A", 1)})
	require.NoError(t, err)

	env.invoices.generate = func(context.Context, domain.Order) (*domain.Invoice, error) {
		return nil, errors.New("connection refused")
	}
	_, err = env.orders.MarkInvoiced(ctx, order.Reference)
	assert.ErrorIs(t, err, domain.ErrExternalDependency)

	stored, err := env.orders.GetByRef(ctx, order.Reference)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFulfillable, stored.Status)

	env.invoices.generate = nil
	_, err = env.orders.MarkInvoiced(ctx, order.Reference)
	require.NoError(t, err, "retry after a failure succeeds")
}

func TestMarkInvoiced_Timeout(t *testing.T) {
	env := newTestEnv(t)
	env.addProduct(t, "A", 10)
	cfg := DefaultOrderConfig()
	cfg.InvoiceTimeout = 20 * time.Millisecond
	orders := NewOrderService(env.store, env.invoices, env.store, cfg, nil)
	ctx := context.Background()

	order, err := orders.Create(ctx, []domain.OrderLine{line("A", 1)})
	require.NoError(t, err)

	env.invoices.generate = func(ctx context.Context, _ domain.Order) (*domain.Invoice, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	_, err = orders.MarkInvoiced(ctx, order.Reference)
	assert.ErrorIs(t, err, domain.ErrExternalDependency)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	stored, _ := orders.GetByRef(ctx, order.Reference)
	assert.Equal(t, domain.OrderStatusFulfillable, stored.Status)
}

func TestMarkInvoiced_LockHeld(t *testing.T) {
	env := newTestEnv(t)
	env.addProduct(t, "A", 10)
	ctx := context.Background()

	order, err := env.orders.Create(ctx, []domain.OrderLine{line("A", 1)})
	require.NoError(t, err)

	ok, err := env.store.AcquireLock(ctx, "invoice:"+order.Reference, "other", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = env.orders.MarkInvoiced(ctx, order.Reference)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 0, env.invoices.calls)
}

func TestGetInvoice(t *testing.T) {
	env := newTestEnv(t)
	env.addProduct(t, "A", 10)
	ctx := context.Background()

	order, err := env.orders.Create(ctx, []domain.OrderLine{line("A", 1)})
	require.NoError(t, err)

	_, err = env.orders.GetInvoice(ctx, order.Reference)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	created, err := env.orders.MarkInvoiced(ctx, order.Reference)
	require.NoError(t, err)

	fetched, err := env.orders.GetInvoice(ctx, order.Reference)
	require.NoError(t, err)
	assert.Equal(t, created.InvoiceNumber, fetched.InvoiceNumber)
}

func TestSearch(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	clock := func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	env := newTestEnv(t, WithClock(clock))
	env.addProduct(t, "A", 3)
	ctx := context.Background()

	var refs []string
	for i := 0; i < 5; i++ {
		order, err := env.orders.Create(ctx, []domain.OrderLine{line("A", 1)})
		require.NoError(t, err)
		refs = append(refs, order.Reference)
	}

	page, err := env.orders.Search(ctx, domain.OrderFilter{Size: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	require.Len(t, page.Orders, 2)
	assert.Equal(t, refs[4], page.Orders[0].Reference)

	page, err = env.orders.Search(ctx, domain.OrderFilter{Status: domain.OrderStatusUnfulfillable, Size: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)

	page, err = env.orders.Search(ctx, domain.OrderFilter{ReferenceContains: refs[0], Size: 10})
	require.NoError(t, err)
	require.Len(t, page.Orders, 1)
}

func TestSearch_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := time.Now()

	for name, filter := range map[string]domain.OrderFilter{
		"negative page":  {Page: -1, Size: 10},
		"zero size":      {Size: 0},
		"size too large": {Size: 101},
		"inverted range": {Size: 10, From: now, To: now.Add(-time.Hour)},
		"unknown status": {Size: 10, Status: "SHIPPED"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := env.orders.Search(ctx, filter)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestInventoryStaysWithinBounds(t *testing.T) {
	env := newTestEnv(t)
	a := env.addProduct(t, "A", 990)
	b := env.addProduct(t, "B", 0)
	ctx := context.Background()

	order, err := env.orders.Create(ctx, []domain.OrderLine{line("A", 100)})
	require.NoError(t, err)
	_, _ = env.orders.Create(ctx, []domain.OrderLine{line("B", 1)})
	_, _ = env.bulk.UpdateInventory(ctx, []domain.InventoryDeltaRow{
		{Line: 1, Barcode: "A", Delta: 500},
		{Line: 2, Barcode: "B", Delta: -3},
	})
	_, _ = env.orders.Cancel(ctx, order.Reference)
	_, _ = env.stock.Update(ctx, "B", 2000)

	for _, id := range []int64{a, b} {
		q := env.quantity(t, id)
		assert.GreaterOrEqual(t, q, 0)
		assert.LessOrEqual(t, q, domain.MaxQuantity)
	}
}
