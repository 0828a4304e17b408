package datasource

import (
	"context"
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskforge/deskforge/pkg/apperrors"
	"github.com/deskforge/deskforge/pkg/apps"
	"github.com/deskforge/deskforge/pkg/observability"
	"github.com/deskforge/deskforge/pkg/records"
	"github.com/deskforge/deskforge/pkg/webhooks"
)

type staticApps map[string]*apps.App

func (s staticApps) GetApp(ctx context.Context, code string) (*apps.App, error) {
	app, ok := s[code]
	if !ok {
		return nil, apperrors.NotFound("app %q not found", code)
	}
	return app, nil
}

func (s staticApps) ListFields(ctx context.Context, appID int64) ([]*apps.Field, error) {
	return nil, nil
}

type eventSink struct {
	events []webhooks.Event
}

func (e *eventSink) Fire(event webhooks.Event) {
	e.events = append(e.events, event)
}

type staticClient struct {
	rows []map[string]interface{}
	err  error
}

func (c *staticClient) FetchAll(ctx context.Context) ([]map[string]interface{}, error) {
	return c.rows, c.err
}

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func TestHTTPClientFetchAll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "token", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"employee_id":"e-1","name":"Ada"},{"employee_id":"e-2","name":"Lin"}]`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, map[string]string{"X-Api-Key": "token"}, time.Second)
	rows, err := client.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Ada", rows[0]["name"])
}

func TestHTTPClientUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, nil, time.Second)
	_, err := client.FetchAll(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindUpstreamFailure))
}

func TestSyncInsertsAndUpdates(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	logger := testLogger()
	store := records.NewStore(db, logger)
	sink := &eventSink{}
	appSource := staticApps{"employees": {ID: 3, Code: "employees", IsActive: true}}
	mirror := NewMirror(store, appSource, sink, logger)

	now := time.Now()

	// e-1 exists and gets updated
	mock.ExpectQuery(regexp.QuoteMeta(`field_data->>$2 = $3`)).
		WithArgs("employees", "employee_id", "e-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "app_id", "app_code", "field_data", "status", "is_active",
			"created_by", "updated_by", "created_at", "updated_at",
		}).AddRow("rec-1", int64(3), "employees", []byte(`{"employee_id":"e-1","name":"Ada"}`),
			"open", true, "system:mirror", "system:mirror", now, now))
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE app_records SET field_data`)).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))

	// e-2 is new and gets inserted
	mock.ExpectQuery(regexp.QuoteMeta(`field_data->>$2 = $3`)).
		WithArgs("employees", "employee_id", "e-2").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO app_records`)).
		WillReturnRows(sqlmock.NewRows([]string{"is_active", "created_at", "updated_at"}).
			AddRow(true, now, now))

	source := Source{
		AppCode:  "employees",
		KeyField: "employee_id",
		Client: &staticClient{rows: []map[string]interface{}{
			{"employee_id": "e-1", "name": "Ada Updated"},
			{"employee_id": "e-2", "name": "Lin"},
			{"name": "no key, skipped"},
		}},
	}
	require.NoError(t, mirror.SyncSource(context.Background(), source))

	require.Len(t, sink.events, 2)
	assert.Equal(t, webhooks.TriggerRecordEdited, sink.events[0].Trigger)
	assert.Equal(t, "rec-1", sink.events[0].RecordID)
	assert.Equal(t, webhooks.TriggerRecordAdded, sink.events[1].Trigger)
	assert.Equal(t, MirrorActor, sink.events[1].Actor)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncSkipsUnchangedRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	logger := testLogger()
	store := records.NewStore(db, logger)
	sink := &eventSink{}
	appSource := staticApps{"employees": {ID: 3, Code: "employees", IsActive: true}}
	mirror := NewMirror(store, appSource, sink, logger)

	now := time.Now()

	// The fetched row matches the stored one exactly; no UPDATE is
	// expected and no event may fire.
	mock.ExpectQuery(regexp.QuoteMeta(`field_data->>$2 = $3`)).
		WithArgs("employees", "employee_id", "e-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "app_id", "app_code", "field_data", "status", "is_active",
			"created_by", "updated_by", "created_at", "updated_at",
		}).AddRow("rec-1", int64(3), "employees", []byte(`{"employee_id":"e-1","name":"Ada"}`),
			"open", true, "system:mirror", "system:mirror", now, now))

	source := Source{
		AppCode:  "employees",
		KeyField: "employee_id",
		Client: &staticClient{rows: []map[string]interface{}{
			{"employee_id": "e-1", "name": "Ada"},
		}},
	}
	require.NoError(t, mirror.SyncSource(context.Background(), source))

	assert.Empty(t, sink.events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncSkipsDeletedApp(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	logger := testLogger()
	sink := &eventSink{}
	appSource := staticApps{"employees": {ID: 3, Code: "employees", IsActive: false}}
	mirror := NewMirror(records.NewStore(db, logger), appSource, sink, logger)

	source := Source{
		AppCode:  "employees",
		KeyField: "employee_id",
		Client:   &staticClient{rows: []map[string]interface{}{{"employee_id": "e-1"}}},
	}
	require.NoError(t, mirror.SyncSource(context.Background(), source))
	assert.Empty(t, sink.events)
}

func TestAddSourceValidates(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mirror := NewMirror(records.NewStore(db, testLogger()), staticApps{}, &eventSink{}, testLogger())
	err = mirror.AddSource(Source{AppCode: "employees"}, "@every 15m")
	require.Error(t, err)
}
