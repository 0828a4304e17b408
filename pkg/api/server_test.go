package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskforge/deskforge/pkg/apps"
	"github.com/deskforge/deskforge/pkg/audit"
	"github.com/deskforge/deskforge/pkg/config"
	"github.com/deskforge/deskforge/pkg/middleware"
	"github.com/deskforge/deskforge/pkg/observability"
	"github.com/deskforge/deskforge/pkg/permissions"
	"github.com/deskforge/deskforge/pkg/records"
	"github.com/deskforge/deskforge/pkg/webhooks"
)

type nopNotifier struct{}

func (nopNotifier) Fire(webhooks.Event) {}

type nopAudit struct{}

func (nopAudit) Record(context.Context, string, string, string, map[string]interface{}) {}

type apiFixture struct {
	handler http.Handler
	mock    sqlmock.Sqlmock
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	httpLogger := logrus.New()
	httpLogger.SetOutput(io.Discard)

	superRoles := config.NewSuperRoleSet([]string{"admin"})
	permStore := permissions.NewStore(db)
	evaluator := permissions.NewEvaluator(permStore, superRoles, permissions.EvaluatorConfig{Logger: logger})

	appStore := apps.NewStore(db, logger)
	appService := apps.NewService(appStore, evaluator, superRoles, nopAudit{}, logger)

	recordService := records.NewService(records.ServiceConfig{
		Store:     records.NewStore(db, logger),
		AppSource: appStore,
		Evaluator: evaluator,
		Notifier:  nopNotifier{},
		Audit:     nopAudit{},
		Logger:    logger,
	})

	srv := NewServer(ServerConfig{
		Logger:      httpLogger,
		Apps:        appService,
		Records:     recordService,
		Permissions: permStore,
		Evaluator:   evaluator,
		SuperRoles:  superRoles,
		Webhooks:    webhooks.NewStore(db, logger),
		Trail:       audit.NewTrail(db, logger),
	})

	return &apiFixture{handler: srv.Handler(), mock: mock}
}

func (f *apiFixture) request(t *testing.T, method, path, role string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var payload io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, payload)
	if role != "" {
		req.Header.Set(middleware.HeaderUserID, "u-1")
		req.Header.Set(middleware.HeaderRole, role)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func appRow() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "code", "name", "localized_names", "app_type", "is_active",
		"deleted_at", "deleted_by", "enable_bulk_delete", "enable_history",
		"enable_comments", "display_order", "created_at", "updated_at",
	}).AddRow(int64(1), "crm", "CRM", []byte(`{"en":"CRM"}`), "dynamic", true,
		nil, nil, true, true, true, 0, time.Now(), time.Now())
}

func TestMissingIdentityHeaders(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.request(t, http.MethodGet, "/api/v1/apps", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetAppAsSuperRole(t *testing.T) {
	f := newAPIFixture(t)
	f.mock.ExpectQuery("FROM apps WHERE code").
		WithArgs("crm").
		WillReturnRows(appRow())

	rec := f.request(t, http.MethodGet, "/api/v1/apps/crm", "admin", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var app apps.App
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &app))
	assert.Equal(t, "crm", app.Code)
	assert.True(t, app.IsActive)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestGetAppDeniedWithoutGrant(t *testing.T) {
	f := newAPIFixture(t)
	f.mock.ExpectQuery("FROM permission_grants").
		WithArgs("crm", "viewer").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "app_code", "role", "can_view", "can_add", "can_edit",
			"can_delete", "can_manage", "created_at", "updated_at",
		}))
	f.mock.ExpectQuery("FROM field_permissions").
		WithArgs("crm", "viewer").
		WillReturnRows(sqlmock.NewRows([]string{"field_code"}))

	rec := f.request(t, http.MethodGet, "/api/v1/apps/crm", "viewer", nil)

	require.Equal(t, http.StatusForbidden, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unauthorized", body["code"])
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestBulkDeleteRejectsOversizedBatch(t *testing.T) {
	f := newAPIFixture(t)

	ids := make([]string, records.MaxBulkDelete+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("id-%d", i)
	}
	rec := f.request(t, http.MethodPost, "/api/v1/apps/crm/records/bulk-delete", "admin",
		map[string]interface{}{"ids": ids})

	require.Equal(t, http.StatusConflict, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid_state", body["code"])
}

func TestBulkDeleteRejectsEmptyBatch(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.request(t, http.MethodPost, "/api/v1/apps/crm/records/bulk-delete", "admin",
		map[string]interface{}{"ids": []string{}})

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpsertGrantPersists(t *testing.T) {
	f := newAPIFixture(t)
	f.mock.ExpectQuery("INSERT INTO permission_grants").
		WithArgs("crm", "sales", true, true, false, false, false, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), time.Now()))

	rec := f.request(t, http.MethodPut, "/api/v1/apps/crm/permissions", "admin",
		map[string]interface{}{"role": "sales", "can_view": true, "can_add": true})

	require.Equal(t, http.StatusOK, rec.Code)
	var grant permissions.Grant
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &grant))
	assert.Equal(t, int64(7), grant.ID)
	assert.Equal(t, "crm", grant.AppCode)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestUpsertGrantRequiresManage(t *testing.T) {
	f := newAPIFixture(t)
	f.mock.ExpectQuery("FROM permission_grants").
		WithArgs("crm", "viewer").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "app_code", "role", "can_view", "can_add", "can_edit",
			"can_delete", "can_manage", "created_at", "updated_at",
		}))

	rec := f.request(t, http.MethodPut, "/api/v1/apps/crm/permissions", "viewer",
		map[string]interface{}{"role": "sales", "can_view": true})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreateWebhookRejectsInvalidTrigger(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.request(t, http.MethodPost, "/api/v1/apps/crm/webhooks", "admin",
		map[string]interface{}{"url": "https://example.com/hook", "trigger_type": "bogus"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuditTrailSuperRoleOnly(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.request(t, http.MethodGet, "/api/v1/audit", "viewer", nil)

	require.Equal(t, http.StatusForbidden, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unauthorized", body["code"])
}

func TestAuditTrailListsEvents(t *testing.T) {
	f := newAPIFixture(t)
	f.mock.ExpectQuery("FROM audit_events").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "event_type", "actor", "app_code", "details", "created_at",
		}).AddRow(int64(1), "app.created", "u-1", "crm", []byte(`{}`), time.Now()))

	rec := f.request(t, http.MethodGet, "/api/v1/audit?limit=10", "admin", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var events []*audit.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, "app.created", events[0].EventType)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestHealthzOpenWithoutHeaders(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	httpLogger := logrus.New()
	httpLogger.SetOutput(io.Discard)
	registry := prometheus.NewRegistry()
	srv := NewServer(ServerConfig{
		Logger:     httpLogger,
		SuperRoles: config.NewSuperRoleSet(nil),
		Health:     observability.NewHealthChecker(db, nil),
		Metrics:    observability.NewMetrics(registry),
		Registry:   registry,
	})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
