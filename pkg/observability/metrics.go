package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Permission metrics
	PermissionChecksTotal *prometheus.CounterVec
	PermissionCacheHits   *prometheus.CounterVec
	PermissionCacheMisses *prometheus.CounterVec

	// Webhook metrics
	WebhookDeliveriesTotal  *prometheus.CounterVec
	WebhookDeliveryDuration *prometheus.HistogramVec
	WebhookDispatchBacklog  prometheus.Gauge

	// Storage metrics
	StorageOperationsTotal   *prometheus.CounterVec
	StorageOperationDuration *prometheus.HistogramVec

	// Business metrics
	AppsActive     prometheus.Gauge
	RecordsCreated *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskforge_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deskforge_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		PermissionChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskforge_permission_checks_total",
				Help: "Total number of permission evaluations",
			},
			[]string{"action", "decision"},
		),
		PermissionCacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskforge_permission_cache_hits_total",
				Help: "Total number of permission snapshot cache hits",
			},
			[]string{"cache"},
		),
		PermissionCacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskforge_permission_cache_misses_total",
				Help: "Total number of permission snapshot cache misses",
			},
			[]string{"cache"},
		),
		WebhookDeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskforge_webhook_deliveries_total",
				Help: "Total number of webhook delivery attempts",
			},
			[]string{"trigger", "outcome"},
		),
		WebhookDeliveryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deskforge_webhook_delivery_duration_seconds",
				Help:    "Webhook delivery duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"trigger"},
		),
		WebhookDispatchBacklog: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "deskforge_webhook_dispatch_backlog",
				Help: "Number of dispatch tasks queued or in flight",
			},
		),
		StorageOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskforge_storage_operations_total",
				Help: "Total number of storage operations",
			},
			[]string{"operation", "table", "status"},
		),
		StorageOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deskforge_storage_operation_duration_seconds",
				Help:    "Storage operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),
		AppsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "deskforge_apps_active",
				Help: "Number of active apps",
			},
		),
		RecordsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskforge_records_created_total",
				Help: "Total number of records created",
			},
			[]string{"app"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PermissionChecksTotal,
		m.PermissionCacheHits,
		m.PermissionCacheMisses,
		m.WebhookDeliveriesTotal,
		m.WebhookDeliveryDuration,
		m.WebhookDispatchBacklog,
		m.StorageOperationsTotal,
		m.StorageOperationDuration,
		m.AppsActive,
		m.RecordsCreated,
	)

	return m
}

// ObservePermissionCheck records a permission evaluation outcome
func (m *Metrics) ObservePermissionCheck(action string, allowed bool) {
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	m.PermissionChecksTotal.WithLabelValues(action, decision).Inc()
}

// ObserveWebhookDelivery records one delivery attempt
func (m *Metrics) ObserveWebhookDelivery(trigger string, success bool, duration time.Duration) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.WebhookDeliveriesTotal.WithLabelValues(trigger, outcome).Inc()
	m.WebhookDeliveryDuration.WithLabelValues(trigger).Observe(duration.Seconds())
}

// ObserveStorageOperation records a storage call
func (m *Metrics) ObserveStorageOperation(operation, table string, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.StorageOperationsTotal.WithLabelValues(operation, table, status).Inc()
	m.StorageOperationDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// statusRecorder captures the response status for HTTP metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// HTTPMiddleware instruments an HTTP handler with request metrics
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rec.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration.Seconds())
	})
}

// Handler returns the Prometheus scrape handler for the registry
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
