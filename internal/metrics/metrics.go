// Package metrics holds the Prometheus collectors shared by both services.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pharmacy"

// Metrics is safe to use through a nil pointer; every recorder is then a no-op.
type Metrics struct {
	cartOperations   *prometheus.CounterVec
	orderSubmissions *prometheus.CounterVec
	orderTransitions *prometheus.CounterVec
	backendRequests  *prometheus.HistogramVec
	ordersCreated    *prometheus.CounterVec
	outboxPublished  *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// op: load, add, set_quantity, remove, clear
		cartOperations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_operations_total",
			Help:      "Cart store operations by kind and result",
		}, []string{"op", "result"}),
		// outcome: placed, invalid, in_flight, rejected, clear_failed
		orderSubmissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_submissions_total",
			Help:      "Order submissions by outcome",
		}, []string{"outcome"}),
		orderTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transitions_total",
			Help:      "Staff status commands by command and outcome",
		}, []string{"command", "outcome"}),
		backendRequests: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Latency of calls to the pharmacy backend",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "status"}),
		ordersCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Orders persisted by the backend",
		}, []string{"result"}),
		outboxPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_total",
			Help:      "Outbox events handed to the broker",
		}, []string{"result"}),
	}
}

func (m *Metrics) CartOperation(op string, err error) {
	if m == nil {
		return
	}
	m.cartOperations.WithLabelValues(op, result(err)).Inc()
}

func (m *Metrics) OrderSubmission(outcome string) {
	if m == nil {
		return
	}
	m.orderSubmissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) OrderTransition(command, outcome string) {
	if m == nil {
		return
	}
	m.orderTransitions.WithLabelValues(command, outcome).Inc()
}

func (m *Metrics) BackendRequest(op, status string, started time.Time) {
	if m == nil {
		return
	}
	m.backendRequests.WithLabelValues(op, status).Observe(time.Since(started).Seconds())
}

func (m *Metrics) OrderCreated(err error) {
	if m == nil {
		return
	}
	m.ordersCreated.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) OutboxPublished(err error, n int) {
	if m == nil {
		return
	}
	m.outboxPublished.WithLabelValues(result(err)).Add(float64(n))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
