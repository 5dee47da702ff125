package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.OrderCreated("FULFILLABLE")
	m.OrderCreated("FULFILLABLE")
	m.OrderCreated("UNFULFILLABLE")
	m.BulkClamped("cap")
	m.InvoiceRequest("ok", 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OrdersTotal.WithLabelValues("FULFILLABLE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrdersTotal.WithLabelValues("UNFULFILLABLE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BulkClampedKeys.WithLabelValues("cap")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InvoiceRequests.WithLabelValues("ok")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.OrderCreated("FULFILLABLE")
		m.OrderTransitioned("CANCELLED")
		m.ReservationFailed()
		m.BulkRow("inventory", "SUCCESS")
		m.BulkClamped("floor")
		m.InvoiceRequest("error", time.Second)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ReservationFailed()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pos_stock_reservation_failures_total 1")
}
