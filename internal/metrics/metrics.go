package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pos"

// Metrics holds the business metrics of the back office. A nil *Metrics is
// valid and records nothing, which keeps wiring optional in tests.
type Metrics struct {
	registry *prometheus.Registry

	OrdersTotal          *prometheus.CounterVec
	OrderTransitions     *prometheus.CounterVec
	ReservationFailures  prometheus.Counter
	BulkRows             *prometheus.CounterVec
	BulkClampedKeys      *prometheus.CounterVec
	InvoiceRequests      *prometheus.CounterVec
	InvoiceRequestLength prometheus.Histogram
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Orders created, by initial status.",
		}, []string{"status"}),
		OrderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transitions_total",
			Help:      "Order status transitions, by target status.",
		}, []string{"to"}),
		ReservationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_reservation_failures_total",
			Help:      "Reservations that found insufficient stock.",
		}),
		BulkRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bulk_rows_total",
			Help:      "Bulk upload rows processed, by kind and outcome.",
		}, []string{"kind", "status"}),
		BulkClampedKeys: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bulk_clamped_keys_total",
			Help:      "Bulk inventory keys whose result was clamped, by direction.",
		}, []string{"direction"}),
		InvoiceRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoice_requests_total",
			Help:      "Calls to the invoicing service, by result.",
		}, []string{"result"}),
		InvoiceRequestLength: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invoice_request_duration_seconds",
			Help:      "Latency of calls to the invoicing service.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	registry.MustRegister(
		m.OrdersTotal,
		m.OrderTransitions,
		m.ReservationFailures,
		m.BulkRows,
		m.BulkClampedKeys,
		m.InvoiceRequests,
		m.InvoiceRequestLength,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) OrderCreated(status string) {
	if m == nil {
		return
	}
	m.OrdersTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) OrderTransitioned(to string) {
	if m == nil {
		return
	}
	m.OrderTransitions.WithLabelValues(to).Inc()
}

func (m *Metrics) ReservationFailed() {
	if m == nil {
		return
	}
	m.ReservationFailures.Inc()
}

func (m *Metrics) BulkRow(kind, status string) {
	if m == nil {
		return
	}
	m.BulkRows.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) BulkClamped(direction string) {
	if m == nil {
		return
	}
	m.BulkClampedKeys.WithLabelValues(direction).Inc()
}

func (m *Metrics) InvoiceRequest(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.InvoiceRequests.WithLabelValues(result).Inc()
	m.InvoiceRequestLength.Observe(elapsed.Seconds())
}
