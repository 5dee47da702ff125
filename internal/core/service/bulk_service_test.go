package service

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/pos-backoffice/internal/core/domain"
)

func TestBulkInventory_ClampToCap(t *testing.T) {
	env := newTestEnv(t)
	id := env.addProduct(t, "A", 900)

	results, err := env.bulk.UpdateInventory(context.Background(), []domain.InventoryDeltaRow{
		{Line: 2, Barcode: "A", Delta: 900},
		{Line: 3, Barcode: "A", Delta: 200},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, domain.RowStatusError, r.Status)
		assert.Contains(t, r.Comment, "exceed")
		assert.Contains(t, r.Comment, "clamp")
	}
	assert.Equal(t, results[0].Comment, results[1].Comment)
	assert.Equal(t, 1000, env.quantity(t, id))
}

func TestBulkInventory_ClampToFloor(t *testing.T) {
	env := newTestEnv(t)
	id := env.addProduct(t, "A", 10)

	results, err := env.bulk.UpdateInventory(context.Background(), []domain.InventoryDeltaRow{
		{Line: 2, Barcode: "A", Delta: -15},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, domain.RowStatusError, results[0].Status)
	assert.Contains(t, results[0].Comment, "below zero")
	assert.Contains(t, results[0].Comment, "clamp")
	assert.Equal(t, 0, env.quantity(t, id))
}

func TestBulkInventory_HugeDeltaClampsToCap(t *testing.T) {
	env := newTestEnv(t)
	id := env.addProduct(t, "OVF", 900)

	results, err := env.bulk.UpdateInventory(context.Background(), []domain.InventoryDeltaRow{
		{Line: 2, Barcode: "OVF", Delta: math.MaxInt},
		{Line: 3, Barcode: "OVF", Delta: math.MaxInt},
	})
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, domain.RowStatusError, r.Status)
		assert.Contains(t, r.Comment, "exceed")
	}
	assert.Equal(t, 1000, env.quantity(t, id))
}

func TestBulkInventory_HugeNegativeDeltaClampsToFloor(t *testing.T) {
	env := newTestEnv(t)
	id := env.addProduct(t, "UNF", 5)

	results, err := env.bulk.UpdateInventory(context.Background(), []domain.InventoryDeltaRow{
		{Line: 2, Barcode: "UNF", Delta: math.MinInt},
		{Line: 3, Barcode: "UNF", Delta: -1},
	})
	require.NoError(t, err)
	for _, r := range results {
		assert.Contains(t, r.Comment, "below zero")
	}
	assert.Equal(t, 0, env.quantity(t, id))
}

func TestBulkInventory_Success(t *testing.T) {
	env := newTestEnv(t)
	id := env.addProduct(t, "A", 0)

	results, err := env.bulk.UpdateInventory(context.Background(), []domain.InventoryDeltaRow{
		{Line: 2, Barcode: "A", Delta: 400},
		{Line: 3, Barcode: "A", Delta: 200},
	})
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, domain.RowStatusSuccess, r.Status)
		assert.Equal(t, "A", r.Key)
	}
	assert.Equal(t, 600, env.quantity(t, id))
}

func TestBulkInventory_MergedDeltaDecidesOutcome(t *testing.T) {
	env := newTestEnv(t)
	id := env.addProduct(t, "A", 10)

	// -15 alone would clamp, but merged with +10 it does not.
	results, err := env.bulk.UpdateInventory(context.Background(), []domain.InventoryDeltaRow{
		{Line: 2, Barcode: "A", Delta: -15},
		{Line: 3, Barcode: "A", Delta: 10},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RowStatusSuccess, results[0].Status)
	assert.Equal(t, domain.RowStatusSuccess, results[1].Status)
	assert.Equal(t, 5, env.quantity(t, id))
}

func TestBulkInventory_RowsAlignWithInput(t *testing.T) {
	env := newTestEnv(t)
	a := env.addProduct(t, "A", 5)
	b := env.addProduct(t, "B", 995)

	results, err := env.bulk.UpdateInventory(context.Background(), []domain.InventoryDeltaRow{
		{Line: 2, Barcode: "B", Delta: 10},
		{Line: 3, ParseError: "quantity: not an integer"},
		{Line: 4, Barcode: "A", Delta: 1},
		{Line: 5, Barcode: "GHOST", Delta: 1},
		{Line: 6, Barcode: "A", Delta: 1},
		{Line: 7, Barcode: "", Delta: 1},
	})
	require.NoError(t, err)
	require.Len(t, results, 6)

	for i, line := range []int{2, 3, 4, 5, 6, 7} {
		assert.Equal(t, line, results[i].Line)
	}
	assert.Equal(t, domain.RowStatusError, results[0].Status)
	assert.Contains(t, results[0].Comment, "exceed")
	assert.Equal(t, "quantity: not an integer", results[1].Comment)
	assert.Equal(t, domain.RowStatusSuccess, results[2].Status)
	assert.Equal(t, domain.RowStatusError, results[3].Status)
	assert.Contains(t, results[3].Comment, "not found")
	assert.Equal(t, domain.RowStatusSuccess, results[4].Status)
	assert.Equal(t, domain.RowStatusError, results[5].Status)

	assert.Equal(t, 7, env.quantity(t, a))
	assert.Equal(t, 1000, env.quantity(t, b))
}

func TestBulkInventory_TooManyRows(t *testing.T) {
	env := newTestEnv(t)
	rows := make([]domain.InventoryDeltaRow, 101)

	_, err := env.bulk.UpdateInventory(context.Background(), rows)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestBulkProducts_CreatesWithZeroStock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	results, err := env.bulk.CreateProducts(ctx, []domain.ProductRow{
		{Line: 2, Barcode: "P1", ClientEmail: env.client.Email, Name: "Tea", MRP: "12.50"},
		{Line: 3, Barcode: "P2", ClientEmail: env.client.Email, Name: "Coffee", MRP: "30"},
	})
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, domain.RowStatusSuccess, r.Status, r.Comment)
	}

	level, err := env.stock.Get(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, 0, level.Quantity)

	p, err := env.store.GetProductByBarcode(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, "12.50", p.MRP.StringFixed(2))
	assert.Equal(t, env.client.ID, p.ClientID)
}

func TestBulkProducts_PerRowRejection(t *testing.T) {
	env := newTestEnv(t)
	env.addProduct(t, "EXISTING", 0)
	ctx := context.Background()
	email := env.client.Email

	results, err := env.bulk.CreateProducts(ctx, []domain.ProductRow{
		{Line: 2, Barcode: "OK1", ClientEmail: email, Name: "Fine", MRP: "1"},
		{Line: 3, Barcode: "EXISTING", ClientEmail: email, Name: "Dup store", MRP: "1"},
		{Line: 4, Barcode: "TWICE", ClientEmail: email, Name: "Dup one", MRP: "1"},
		{Line: 5, Barcode: "TWICE", ClientEmail: email, Name: "Dup two", MRP: "1"},
		{Line: 6, Barcode: "NOCLIENT", ClientEmail: "ghost@shop.test", Name: "Orphan", MRP: "1"},
		{Line: 7, Barcode: "BADMAIL", ClientEmail: "not-an-email", Name: "Bad", MRP: "1"},
		{Line: 8, Barcode: "BADMRP", ClientEmail: email, Name: "Bad", MRP: "abc"},
		{Line: 9, ParseError: "expected 4 columns, got 2"},
		{Line: 10, Barcode: "NEGMRP", ClientEmail: email, Name: "Bad", MRP: "-1"},
	})
	require.NoError(t, err)
	require.Len(t, results, 9)

	assert.Equal(t, domain.RowStatusSuccess, results[0].Status)
	assert.Contains(t, results[1].Comment, "already exists")
	assert.Contains(t, results[2].Comment, "more than once")
	assert.Contains(t, results[3].Comment, "more than once")
	assert.Contains(t, results[4].Comment, "client ghost@shop.test not found")
	assert.Contains(t, results[5].Comment, "client_email")
	assert.Contains(t, results[6].Comment, "mrp")
	assert.Equal(t, "expected 4 columns, got 2", results[7].Comment)
	assert.Contains(t, results[8].Comment, "negative")
	for _, r := range results[1:] {
		assert.Equal(t, domain.RowStatusError, r.Status)
	}

	_, err = env.store.GetProductByBarcode(ctx, "TWICE")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = env.stock.Get(ctx, "OK1")
	assert.NoError(t, err)
}

func TestBulkProducts_AllRejectedWritesNothing(t *testing.T) {
	env := newTestEnv(t)

	results, err := env.bulk.CreateProducts(context.Background(), []domain.ProductRow{
		{Line: 2, Barcode: "X", ClientEmail: "ghost@shop.test", Name: "X", MRP: "1"},
	})
	require.NoError(t, err)
	assert.True(t, results[0].Failed())
}

func TestBulkProducts_RejectedRowDoesNotMakeDuplicate(t *testing.T) {
	env := newTestEnv(t)
	email := env.client.Email

	results, err := env.bulk.CreateProducts(context.Background(), []domain.ProductRow{
		{Line: 2, Barcode: "SAME", ClientEmail: email, Name: "Broken", MRP: "abc"},
		{Line: 3, Barcode: "SAME", ClientEmail: email, Name: "Good", MRP: "2"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, domain.RowStatusError, results[0].Status)
	assert.Contains(t, results[0].Comment, "mrp")
	assert.Equal(t, domain.RowStatusSuccess, results[1].Status, results[1].Comment)

	p, err := env.store.GetProductByBarcode(context.Background(), "SAME")
	require.NoError(t, err)
	assert.Equal(t, "Good", p.Name)
}

func TestBulkProducts_BarcodesAreCaseSensitive(t *testing.T) {
	env := newTestEnv(t)
	env.addProduct(t, "ABC", 0)
	email := env.client.Email

	results, err := env.bulk.CreateProducts(context.Background(), []domain.ProductRow{
		{Line: 2, Barcode: "abc", ClientEmail: email, Name: "Lower", MRP: "1"},
		{Line: 3, Barcode: "Abc", ClientEmail: email, Name: "Mixed", MRP: "1"},
	})
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, domain.RowStatusSuccess, r.Status, r.Comment)
	}

	for _, barcode := range []string{"ABC", "abc", "Abc"} {
		p, err := env.store.GetProductByBarcode(context.Background(), barcode)
		require.NoError(t, err)
		assert.Equal(t, barcode, p.Barcode)
	}
}
