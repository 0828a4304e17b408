package records

import (
	"context"
	"database/sql"
	"io"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskforge/deskforge/pkg/apperrors"
	"github.com/deskforge/deskforge/pkg/observability"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return NewStore(db, logger), mock, func() { db.Close() }
}

func TestInsertAssignsID(t *testing.T) {
	store, mock, cleanup := newTestStore(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO app_records`)).
		WillReturnRows(sqlmock.NewRows([]string{"is_active", "created_at", "updated_at"}).
			AddRow(true, now, now))

	record := &Record{
		AppID:     1,
		AppCode:   "customers",
		FieldData: map[string]interface{}{"name": "Acme"},
		CreatedBy: "u-1",
	}
	require.NoError(t, store.Insert(context.Background(), record))
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, DefaultStatus, record.Status)
	assert.True(t, record.IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetScopedToApp(t *testing.T) {
	store, mock, cleanup := newTestStore(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE app_code = $1 AND id = $2 AND is_active = TRUE`)).
		WithArgs("payroll", "rec-1").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), "payroll", "rec-1")
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkSoftDelete(t *testing.T) {
	store, mock, cleanup := newTestStore(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE app_records SET is_active = FALSE`)).
		WithArgs("u-1", "customers", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	affected, err := store.BulkSoftDelete(context.Background(), "customers",
		[]string{"rec-1", "rec-2", "rec-ghost"}, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSoftDeleteNotFound(t *testing.T) {
	store, mock, cleanup := newTestStore(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE app_records SET is_active = FALSE`)).
		WithArgs("u-1", "customers", "rec-ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.SoftDelete(context.Background(), "customers", "rec-ghost", "u-1")
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListComments(t *testing.T) {
	store, mock, cleanup := newTestStore(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, record_id, author_id, body, created_at`)).
		WithArgs("rec-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "record_id", "author_id", "body", "created_at"}).
			AddRow(int64(1), "rec-1", "u-1", "first", now).
			AddRow(int64(2), "rec-1", "u-2", "second", now))

	comments, err := store.ListComments(context.Background(), "rec-1")
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "first", comments[0].Body)
	assert.NoError(t, mock.ExpectationsWereMet())
}
