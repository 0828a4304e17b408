package permissions

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store handles permission data persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new permission store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureTables creates the permission tables if they don't exist
func (s *Store) EnsureTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS permission_grants (
		id BIGSERIAL PRIMARY KEY,
		app_code VARCHAR(100) NOT NULL,
		role VARCHAR(100) NOT NULL,
		can_view BOOLEAN NOT NULL DEFAULT FALSE,
		can_add BOOLEAN NOT NULL DEFAULT FALSE,
		can_edit BOOLEAN NOT NULL DEFAULT FALSE,
		can_delete BOOLEAN NOT NULL DEFAULT FALSE,
		can_manage BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		UNIQUE (app_code, role)
	);

	CREATE TABLE IF NOT EXISTS field_permissions (
		id BIGSERIAL PRIMARY KEY,
		app_code VARCHAR(100) NOT NULL,
		field_code VARCHAR(100) NOT NULL,
		role VARCHAR(100) NOT NULL,
		visibility VARCHAR(20) NOT NULL DEFAULT 'visible',
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		UNIQUE (app_code, field_code, role)
	);

	CREATE INDEX IF NOT EXISTS idx_permission_grants_app_role ON permission_grants(app_code, role);
	CREATE INDEX IF NOT EXISTS idx_field_permissions_app_role ON field_permissions(app_code, role);
	`

	_, err := s.db.Exec(query)
	return err
}

// GetGrant retrieves the grant row for (appCode, role).
// Returns nil without error when no row exists: deny-by-default is the
// evaluator's job, not a storage failure.
func (s *Store) GetGrant(ctx context.Context, appCode, role string) (*Grant, error) {
	query := `
		SELECT id, app_code, role, can_view, can_add, can_edit, can_delete, can_manage, created_at, updated_at
		FROM permission_grants
		WHERE app_code = $1 AND role = $2
	`

	var g Grant
	err := s.db.QueryRowContext(ctx, query, appCode, role).Scan(
		&g.ID,
		&g.AppCode,
		&g.Role,
		&g.CanView,
		&g.CanAdd,
		&g.CanEdit,
		&g.CanDelete,
		&g.CanManage,
		&g.CreatedAt,
		&g.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get grant: %w", err)
	}

	return &g, nil
}

// ListGrants retrieves all grant rows for an app
func (s *Store) ListGrants(ctx context.Context, appCode string) ([]Grant, error) {
	query := `
		SELECT id, app_code, role, can_view, can_add, can_edit, can_delete, can_manage, created_at, updated_at
		FROM permission_grants
		WHERE app_code = $1
		ORDER BY role
	`

	rows, err := s.db.QueryContext(ctx, query, appCode)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	defer rows.Close()

	var grants []Grant
	for rows.Next() {
		var g Grant
		if err := rows.Scan(
			&g.ID,
			&g.AppCode,
			&g.Role,
			&g.CanView,
			&g.CanAdd,
			&g.CanEdit,
			&g.CanDelete,
			&g.CanManage,
			&g.CreatedAt,
			&g.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		grants = append(grants, g)
	}

	return grants, rows.Err()
}

// UpsertGrant creates or replaces the grant row for (appCode, role)
func (s *Store) UpsertGrant(ctx context.Context, grant *Grant) error {
	query := `
		INSERT INTO permission_grants (app_code, role, can_view, can_add, can_edit, can_delete, can_manage, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (app_code, role) DO UPDATE SET
			can_view = EXCLUDED.can_view,
			can_add = EXCLUDED.can_add,
			can_edit = EXCLUDED.can_edit,
			can_delete = EXCLUDED.can_delete,
			can_manage = EXCLUDED.can_manage,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		grant.AppCode,
		grant.Role,
		grant.CanView,
		grant.CanAdd,
		grant.CanEdit,
		grant.CanDelete,
		grant.CanManage,
		now,
	).Scan(&grant.ID, &grant.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert grant: %w", err)
	}

	grant.UpdatedAt = now
	return nil
}

// DeleteGrant removes the grant row for (appCode, role)
func (s *Store) DeleteGrant(ctx context.Context, appCode, role string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM permission_grants WHERE app_code = $1 AND role = $2`,
		appCode, role,
	)
	if err != nil {
		return fmt.Errorf("failed to delete grant: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("grant not found for app %s role %s", appCode, role)
	}

	return nil
}

// ListHiddenFields retrieves the field codes hidden from (appCode, role)
func (s *Store) ListHiddenFields(ctx context.Context, appCode, role string) ([]string, error) {
	query := `
		SELECT field_code
		FROM field_permissions
		WHERE app_code = $1 AND role = $2 AND visibility = 'hidden'
		ORDER BY field_code
	`

	rows, err := s.db.QueryContext(ctx, query, appCode, role)
	if err != nil {
		return nil, fmt.Errorf("failed to list hidden fields: %w", err)
	}
	defer rows.Close()

	var fields []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("failed to scan field code: %w", err)
		}
		fields = append(fields, code)
	}

	return fields, rows.Err()
}

// ListFieldPermissions retrieves all field permission rows for an app
func (s *Store) ListFieldPermissions(ctx context.Context, appCode string) ([]FieldPermission, error) {
	query := `
		SELECT id, app_code, field_code, role, visibility, created_at, updated_at
		FROM field_permissions
		WHERE app_code = $1
		ORDER BY field_code, role
	`

	rows, err := s.db.QueryContext(ctx, query, appCode)
	if err != nil {
		return nil, fmt.Errorf("failed to list field permissions: %w", err)
	}
	defer rows.Close()

	var perms []FieldPermission
	for rows.Next() {
		var fp FieldPermission
		if err := rows.Scan(
			&fp.ID,
			&fp.AppCode,
			&fp.FieldCode,
			&fp.Role,
			&fp.Visibility,
			&fp.CreatedAt,
			&fp.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan field permission: %w", err)
		}
		perms = append(perms, fp)
	}

	return perms, rows.Err()
}

// UpsertFieldPermission creates or replaces a field visibility row
func (s *Store) UpsertFieldPermission(ctx context.Context, fp *FieldPermission) error {
	if fp.Visibility != VisibilityVisible && fp.Visibility != VisibilityHidden {
		return fmt.Errorf("invalid visibility: %s", fp.Visibility)
	}

	query := `
		INSERT INTO field_permissions (app_code, field_code, role, visibility, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (app_code, field_code, role) DO UPDATE SET
			visibility = EXCLUDED.visibility,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		fp.AppCode,
		fp.FieldCode,
		fp.Role,
		fp.Visibility,
		now,
	).Scan(&fp.ID, &fp.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert field permission: %w", err)
	}

	fp.UpdatedAt = now
	return nil
}

// DeleteFieldPermission removes a field visibility row, restoring the
// default visible state for that (field, role) pair
func (s *Store) DeleteFieldPermission(ctx context.Context, appCode, fieldCode, role string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM field_permissions WHERE app_code = $1 AND field_code = $2 AND role = $3`,
		appCode, fieldCode, role,
	)
	if err != nil {
		return fmt.Errorf("failed to delete field permission: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("field permission not found for app %s field %s role %s", appCode, fieldCode, role)
	}

	return nil
}
