package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegisters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	require.NotNil(t, m)

	// Double registration must panic via MustRegister.
	assert.Panics(t, func() { NewMetrics(registry) })
}

func TestObservePermissionCheck(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObservePermissionCheck("view", true)
	m.ObservePermissionCheck("view", false)
	m.ObservePermissionCheck("delete", false)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.PermissionChecksTotal.WithLabelValues("view", "allow")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PermissionChecksTotal.WithLabelValues("view", "deny")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PermissionChecksTotal.WithLabelValues("delete", "deny")))
}

func TestObserveWebhookDelivery(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveWebhookDelivery("record_added", true, 120*time.Millisecond)
	m.ObserveWebhookDelivery("record_added", false, 10*time.Second)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.WebhookDeliveriesTotal.WithLabelValues("record_added", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.WebhookDeliveriesTotal.WithLabelValues("record_added", "failure")))
}

func TestHTTPMiddleware(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	handler := m.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest("GET", "/api/apps", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/apps", "418")))
}
