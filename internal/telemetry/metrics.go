package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	CarrierErrors     *prometheus.CounterVec
	TokenRefreshes    *prometheus.CounterVec
	CheckoutsTotal    *prometheus.CounterVec
	Reconciliations   *prometheus.CounterVec
	NotificationFails *prometheus.CounterVec
}

// NewMetrics creates the service metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fulfillment_carrier_requests_total",
				Help: "Total number of carrier requests by operation, carrier, and status",
			},
			[]string{"operation", "carrier", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fulfillment_carrier_request_duration_seconds",
				Help:    "Carrier request duration in seconds by operation and carrier",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "carrier"},
		),
		CarrierErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fulfillment_carrier_errors_total",
				Help: "Total carrier API errors by carrier and error type",
			},
			[]string{"carrier", "error_type"},
		),
		TokenRefreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fulfillment_carrier_token_refreshes_total",
				Help: "Carrier access token fetches by carrier",
			},
			[]string{"carrier"},
		),
		CheckoutsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fulfillment_checkouts_total",
				Help: "Checkout outcomes by result and failed step",
			},
			[]string{"result", "step"},
		),
		Reconciliations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fulfillment_reconciliation_alerts_total",
				Help: "Bookings or records that need manual reconciliation, by reason",
			},
			[]string{"reason"},
		),
		NotificationFails: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fulfillment_notification_failures_total",
				Help: "Best-effort notifications that failed, by kind",
			},
			[]string{"kind"},
		),
	}
}

// RecordRequest records a request metric.
func (m *Metrics) RecordRequest(operation, carrier, status string, duration float64) {
	m.RequestsTotal.WithLabelValues(operation, carrier, status).Inc()
	m.RequestDuration.WithLabelValues(operation, carrier).Observe(duration)
}

// RecordError records a carrier error metric.
func (m *Metrics) RecordError(carrier, errorType string) {
	m.CarrierErrors.WithLabelValues(carrier, errorType).Inc()
}

// RecordTokenRefresh counts a carrier token fetch. It matches the adapters'
// OnTokenRefresh hook.
func (m *Metrics) RecordTokenRefresh(carrier string) {
	m.TokenRefreshes.WithLabelValues(carrier).Inc()
}

// RecordCheckout records a checkout outcome. step names the failed saga step,
// or "commit" on success.
func (m *Metrics) RecordCheckout(result, step string) {
	m.CheckoutsTotal.WithLabelValues(result, step).Inc()
}

// RecordReconciliation counts an alert raised for manual reconciliation.
func (m *Metrics) RecordReconciliation(reason string) {
	m.Reconciliations.WithLabelValues(reason).Inc()
}

// RecordNotificationFailure counts a failed best-effort notification.
func (m *Metrics) RecordNotificationFailure(kind string) {
	m.NotificationFails.WithLabelValues(kind).Inc()
}
