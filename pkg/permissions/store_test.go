package permissions

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func grantColumns() []string {
	return []string{"id", "app_code", "role", "can_view", "can_add", "can_edit", "can_delete", "can_manage", "created_at", "updated_at"}
}

func TestStoreGetGrant(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewStore(db)
	ctx := context.Background()
	now := time.Now()

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, app_code, role").
			WithArgs("customers", "staff").
			WillReturnRows(sqlmock.NewRows(grantColumns()).
				AddRow(7, "customers", "staff", true, false, true, false, false, now, now))

		grant, err := store.GetGrant(ctx, "customers", "staff")
		require.NoError(t, err)
		require.NotNil(t, grant)
		assert.Equal(t, int64(7), grant.ID)
		assert.True(t, grant.CanView)
		assert.False(t, grant.CanAdd)
		assert.True(t, grant.Allows(ActionEdit))
		assert.False(t, grant.Allows(ActionManage))
	})

	t.Run("missing row is nil, not an error", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, app_code, role").
			WithArgs("customers", "ghost").
			WillReturnError(sql.ErrNoRows)

		grant, err := store.GetGrant(ctx, "customers", "ghost")
		require.NoError(t, err)
		assert.Nil(t, grant)
	})

	t.Run("query failure", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, app_code, role").
			WithArgs("customers", "staff").
			WillReturnError(errors.New("connection reset"))

		_, err := store.GetGrant(ctx, "customers", "staff")
		assert.Error(t, err)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreUpsertGrant(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewStore(db)
	now := time.Now()

	mock.ExpectQuery("INSERT INTO permission_grants").
		WithArgs("customers", "staff", true, true, false, false, false, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(3, now))

	grant := &Grant{AppCode: "customers", Role: "staff", CanView: true, CanAdd: true}
	require.NoError(t, store.UpsertGrant(context.Background(), grant))
	assert.Equal(t, int64(3), grant.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreDeleteGrant(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewStore(db)
	ctx := context.Background()

	t.Run("deletes", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM permission_grants").
			WithArgs("customers", "staff").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, store.DeleteGrant(ctx, "customers", "staff"))
	})

	t.Run("missing row", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM permission_grants").
			WithArgs("customers", "ghost").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := store.DeleteGrant(ctx, "customers", "ghost")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreListHiddenFields(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewStore(db)

	mock.ExpectQuery("SELECT field_code").
		WithArgs("customers", "staff").
		WillReturnRows(sqlmock.NewRows([]string{"field_code"}).AddRow("salary").AddRow("ssn"))

	fields, err := store.ListHiddenFields(context.Background(), "customers", "staff")
	require.NoError(t, err)
	assert.Equal(t, []string{"salary", "ssn"}, fields)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreUpsertFieldPermission(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewStore(db)
	ctx := context.Background()

	t.Run("invalid visibility rejected", func(t *testing.T) {
		fp := &FieldPermission{AppCode: "customers", FieldCode: "salary", Role: "staff", Visibility: "invisible"}
		assert.Error(t, store.UpsertFieldPermission(ctx, fp))
	})

	t.Run("upserts", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO field_permissions").
			WithArgs("customers", "salary", "staff", "hidden", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(11, time.Now()))

		fp := &FieldPermission{AppCode: "customers", FieldCode: "salary", Role: "staff", Visibility: VisibilityHidden}
		require.NoError(t, store.UpsertFieldPermission(ctx, fp))
		assert.Equal(t, int64(11), fp.ID)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluatorAgainstStore(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewStore(db)
	e := NewEvaluator(store, staticSuperRoles{"admin"}, EvaluatorConfig{})
	now := time.Now()

	mock.ExpectQuery("SELECT id, app_code, role").
		WithArgs("customers", "staff").
		WillReturnRows(sqlmock.NewRows(grantColumns()).
			AddRow(1, "customers", "staff", true, false, false, false, false, now, now))
	mock.ExpectQuery("SELECT field_code").
		WithArgs("customers", "staff").
		WillReturnRows(sqlmock.NewRows([]string{"field_code"}).AddRow("salary"))

	decision, err := e.Evaluate(context.Background(), "staff", "customers", ActionView)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	// The documented scenario: view then redact drops the salary key.
	record := map[string]interface{}{"id": 1, "name": "A", "salary": 9000}
	got := Redact(record, decision.HiddenFields)
	assert.Equal(t, map[string]interface{}{"id": 1, "name": "A"}, got)

	assert.NoError(t, mock.ExpectationsWereMet())
}
