package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/deskforge/deskforge/pkg/apps"
	"github.com/deskforge/deskforge/pkg/audit"
	"github.com/deskforge/deskforge/pkg/httputil"
	"github.com/deskforge/deskforge/pkg/middleware"
	"github.com/deskforge/deskforge/pkg/observability"
	"github.com/deskforge/deskforge/pkg/permissions"
	"github.com/deskforge/deskforge/pkg/records"
	"github.com/deskforge/deskforge/pkg/webhooks"
)

// Server wires the domain services into an HTTP API
type Server struct {
	router *mux.Router
	logger *logrus.Logger

	apps        *apps.Service
	records     *records.Service
	permissions *permissions.Store
	evaluator   *permissions.Evaluator
	superRoles  permissions.SuperRoleChecker
	webhooks    *webhooks.Store
	trail       *audit.Trail

	health      *observability.HealthChecker
	metrics     *observability.Metrics
	registry    *prometheus.Registry
	rateLimiter *middleware.RateLimiter
}

// ServerConfig carries the server's dependencies
type ServerConfig struct {
	Logger      *logrus.Logger
	Apps        *apps.Service
	Records     *records.Service
	Permissions *permissions.Store
	Evaluator   *permissions.Evaluator
	SuperRoles  permissions.SuperRoleChecker
	Webhooks    *webhooks.Store
	Trail       *audit.Trail
	Health      *observability.HealthChecker
	Metrics     *observability.Metrics
	Registry    *prometheus.Registry
	RateLimiter *middleware.RateLimiter
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	s := &Server{
		router:      mux.NewRouter(),
		logger:      cfg.Logger,
		apps:        cfg.Apps,
		records:     cfg.Records,
		permissions: cfg.Permissions,
		evaluator:   cfg.Evaluator,
		superRoles:  cfg.SuperRoles,
		webhooks:    cfg.Webhooks,
		trail:       cfg.Trail,
		health:      cfg.Health,
		metrics:     cfg.Metrics,
		registry:    cfg.Registry,
		rateLimiter: cfg.RateLimiter,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	if s.health != nil {
		s.router.HandleFunc("/healthz", s.health.Liveness).Methods("GET")
		s.router.HandleFunc("/readyz", s.health.Readiness).Methods("GET")
	}
	if s.registry != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(s.registry)).Methods("GET")
	}

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.Use(middleware.RequireActor)
	if s.rateLimiter != nil {
		v1.Use(s.rateLimiter.Middleware)
	}

	// app registry
	v1.HandleFunc("/apps", s.createApp).Methods("POST")
	v1.HandleFunc("/apps", s.listApps).Methods("GET")
	v1.HandleFunc("/apps/{app}", s.getApp).Methods("GET")
	v1.HandleFunc("/apps/{app}", s.updateApp).Methods("PUT")
	v1.HandleFunc("/apps/{app}", s.deleteApp).Methods("DELETE")
	v1.HandleFunc("/apps/{app}/restore", s.restoreApp).Methods("POST")
	v1.HandleFunc("/apps/{app}/settings", s.updateAppSettings).Methods("PATCH")

	// field definitions
	v1.HandleFunc("/apps/{app}/fields", s.listFields).Methods("GET")
	v1.HandleFunc("/apps/{app}/fields", s.addField).Methods("POST")
	v1.HandleFunc("/apps/{app}/fields/{field}", s.updateField).Methods("PUT")
	v1.HandleFunc("/apps/{app}/fields/{field}", s.removeField).Methods("DELETE")

	// templates
	v1.HandleFunc("/templates", s.listTemplates).Methods("GET")
	v1.HandleFunc("/templates", s.saveTemplate).Methods("POST")
	v1.HandleFunc("/templates/{id}", s.deleteTemplate).Methods("DELETE")
	v1.HandleFunc("/templates/{id}/instantiate", s.instantiateTemplate).Methods("POST")

	// records
	v1.HandleFunc("/apps/{app}/records", s.createRecord).Methods("POST")
	v1.HandleFunc("/apps/{app}/records", s.listRecords).Methods("GET")
	v1.HandleFunc("/apps/{app}/records/bulk-delete", s.bulkDeleteRecords).Methods("POST")
	v1.HandleFunc("/apps/{app}/records/{id}", s.getRecord).Methods("GET")
	v1.HandleFunc("/apps/{app}/records/{id}", s.updateRecord).Methods("PUT")
	v1.HandleFunc("/apps/{app}/records/{id}", s.deleteRecord).Methods("DELETE")
	v1.HandleFunc("/apps/{app}/records/{id}/status", s.changeRecordStatus).Methods("PUT")
	v1.HandleFunc("/apps/{app}/records/{id}/comments", s.listComments).Methods("GET")
	v1.HandleFunc("/apps/{app}/records/{id}/comments", s.addComment).Methods("POST")

	// permissions
	v1.HandleFunc("/apps/{app}/permissions", s.listGrants).Methods("GET")
	v1.HandleFunc("/apps/{app}/permissions", s.upsertGrant).Methods("PUT")
	v1.HandleFunc("/apps/{app}/permissions/{role}", s.deleteGrant).Methods("DELETE")
	v1.HandleFunc("/apps/{app}/field-permissions", s.listFieldPermissions).Methods("GET")
	v1.HandleFunc("/apps/{app}/field-permissions", s.upsertFieldPermission).Methods("PUT")
	v1.HandleFunc("/apps/{app}/field-permissions/{field}/{role}", s.deleteFieldPermission).Methods("DELETE")

	// webhooks
	v1.HandleFunc("/apps/{app}/webhooks", s.listWebhooks).Methods("GET")
	v1.HandleFunc("/apps/{app}/webhooks", s.createWebhook).Methods("POST")
	v1.HandleFunc("/apps/{app}/webhooks/{id}", s.updateWebhook).Methods("PUT")
	v1.HandleFunc("/apps/{app}/webhooks/{id}", s.deleteWebhook).Methods("DELETE")
	v1.HandleFunc("/apps/{app}/webhooks/{id}/active", s.setWebhookActive).Methods("PUT")
	v1.HandleFunc("/apps/{app}/webhooks/{id}/deliveries", s.listDeliveries).Methods("GET")
	v1.HandleFunc("/apps/{app}/webhooks/{id}/stats", s.deliveryStats).Methods("GET")

	// audit trail
	v1.HandleFunc("/audit", s.listAuditEvents).Methods("GET")
}

// Handler returns the server's full middleware stack
func (s *Server) Handler() http.Handler {
	chain := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		httputil.RecoveryMiddleware(s.logger),
		s.requestLogging,
		httputil.MaxBytesMiddleware(10 << 20),
	}
	if s.metrics != nil {
		chain = append(chain, s.metrics.HTTPMiddleware)
	}

	var handler http.Handler = s.router
	handler = httputil.Chain(chain...)(handler)
	return otelhttp.NewHandler(handler, "deskforge-api")
}

func (s *Server) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rec.status,
			"duration":   time.Since(start).String(),
			"request_id": r.Header.Get("X-Request-ID"),
		}).Info("request handled")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
