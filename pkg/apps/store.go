package apps

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/deskforge/deskforge/pkg/apperrors"
	"github.com/deskforge/deskforge/pkg/observability"
)

// Store persists apps, field definitions and templates in PostgreSQL
type Store struct {
	db     *sql.DB
	logger *observability.Logger
}

func NewStore(db *sql.DB, logger *observability.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// EnsureTables creates the app registry tables if they do not exist
func (s *Store) EnsureTables(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS apps (
			id BIGSERIAL PRIMARY KEY,
			code VARCHAR(255) NOT NULL UNIQUE,
			name VARCHAR(255) NOT NULL,
			localized_names JSONB,
			app_type VARCHAR(32) NOT NULL DEFAULT 'dynamic',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			deleted_at TIMESTAMP WITH TIME ZONE,
			deleted_by VARCHAR(255),
			enable_bulk_delete BOOLEAN NOT NULL DEFAULT FALSE,
			enable_history BOOLEAN NOT NULL DEFAULT FALSE,
			enable_comments BOOLEAN NOT NULL DEFAULT FALSE,
			display_order INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_apps_active ON apps(is_active)`,
		`CREATE TABLE IF NOT EXISTS app_fields (
			id BIGSERIAL PRIMARY KEY,
			app_id BIGINT NOT NULL REFERENCES apps(id),
			field_code VARCHAR(255) NOT NULL,
			field_type VARCHAR(32) NOT NULL,
			label VARCHAR(255) NOT NULL,
			required BOOLEAN NOT NULL DEFAULT FALSE,
			unique_field BOOLEAN NOT NULL DEFAULT FALSE,
			default_value TEXT,
			options TEXT[],
			validation JSONB,
			display_order INTEGER NOT NULL DEFAULT 0,
			row_index INTEGER NOT NULL DEFAULT 0,
			col_index INTEGER NOT NULL DEFAULT 0,
			col_span INTEGER NOT NULL DEFAULT 1,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			UNIQUE(app_id, field_code)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_app_fields_app ON app_fields(app_id)`,
		`CREATE TABLE IF NOT EXISTS app_templates (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL UNIQUE,
			description TEXT,
			is_system BOOLEAN NOT NULL DEFAULT FALSE,
			blueprint JSONB NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure app tables: %w", err)
		}
	}
	return nil
}

const appColumns = `id, code, name, localized_names, app_type, is_active, deleted_at, deleted_by,
	enable_bulk_delete, enable_history, enable_comments, display_order, created_at, updated_at`

func scanApp(row interface{ Scan(...interface{}) error }) (*App, error) {
	var app App
	var localized []byte
	err := row.Scan(&app.ID, &app.Code, &app.Name, &localized, &app.AppType, &app.IsActive,
		&app.DeletedAt, &app.DeletedBy, &app.EnableBulkDelete, &app.EnableHistory,
		&app.EnableComments, &app.DisplayOrder, &app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(localized) > 0 {
		if err := json.Unmarshal(localized, &app.LocalizedNames); err != nil {
			return nil, fmt.Errorf("failed to decode localized names: %w", err)
		}
	}
	return &app, nil
}

// CreateApp inserts a new app row
func (s *Store) CreateApp(ctx context.Context, app *App) error {
	localized, err := json.Marshal(app.LocalizedNames)
	if err != nil {
		return fmt.Errorf("failed to encode localized names: %w", err)
	}

	query := `
		INSERT INTO apps (code, name, localized_names, app_type, enable_bulk_delete,
			enable_history, enable_comments, display_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, is_active, created_at, updated_at`

	err = s.db.QueryRowContext(ctx, query, app.Code, app.Name, localized, app.AppType,
		app.EnableBulkDelete, app.EnableHistory, app.EnableComments, app.DisplayOrder).
		Scan(&app.ID, &app.IsActive, &app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return apperrors.InvalidState("app code %q already exists", app.Code)
		}
		return fmt.Errorf("failed to create app: %w", err)
	}
	return nil
}

// GetApp fetches an app by code, soft-deleted ones included
func (s *Store) GetApp(ctx context.Context, code string) (*App, error) {
	query := `SELECT ` + appColumns + ` FROM apps WHERE code = $1`
	app, err := scanApp(s.db.QueryRowContext(ctx, query, code))
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("app %q not found", code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get app: %w", err)
	}
	return app, nil
}

// ListApps returns apps ordered for display. When includeDeleted is
// false only active apps are returned.
func (s *Store) ListApps(ctx context.Context, includeDeleted bool) ([]*App, error) {
	query := `SELECT ` + appColumns + ` FROM apps`
	if !includeDeleted {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY display_order, code`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list apps: %w", err)
	}
	defer rows.Close()

	var apps []*App
	for rows.Next() {
		app, err := scanApp(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan app: %w", err)
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

// UpdateApp updates mutable app metadata. The code is immutable.
func (s *Store) UpdateApp(ctx context.Context, app *App) error {
	localized, err := json.Marshal(app.LocalizedNames)
	if err != nil {
		return fmt.Errorf("failed to encode localized names: %w", err)
	}

	query := `
		UPDATE apps SET name = $1, localized_names = $2, display_order = $3, updated_at = NOW()
		WHERE code = $4
		RETURNING updated_at`

	err = s.db.QueryRowContext(ctx, query, app.Name, localized, app.DisplayOrder, app.Code).
		Scan(&app.UpdatedAt)
	if err == sql.ErrNoRows {
		return apperrors.NotFound("app %q not found", app.Code)
	}
	if err != nil {
		return fmt.Errorf("failed to update app: %w", err)
	}
	return nil
}

// UpdateSettings applies a feature flag patch
func (s *Store) UpdateSettings(ctx context.Context, code string, patch SettingsPatch) (*App, error) {
	query := `
		UPDATE apps SET
			enable_bulk_delete = COALESCE($1, enable_bulk_delete),
			enable_history = COALESCE($2, enable_history),
			enable_comments = COALESCE($3, enable_comments),
			updated_at = NOW()
		WHERE code = $4
		RETURNING ` + appColumns

	app, err := scanApp(s.db.QueryRowContext(ctx, query,
		patch.EnableBulkDelete, patch.EnableHistory, patch.EnableComments, code))
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("app %q not found", code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update app settings: %w", err)
	}
	return app, nil
}

// SoftDelete marks an app deleted. It fails when the app is already
// deleted so the caller can surface the state conflict.
func (s *Store) SoftDelete(ctx context.Context, code, deletedBy string) (*App, error) {
	query := `
		UPDATE apps SET is_active = FALSE, deleted_at = NOW(), deleted_by = $1, updated_at = NOW()
		WHERE code = $2 AND is_active = TRUE
		RETURNING ` + appColumns

	app, err := scanApp(s.db.QueryRowContext(ctx, query, deletedBy, code))
	if err == sql.ErrNoRows {
		// Distinguish missing from already-deleted
		existing, getErr := s.GetApp(ctx, code)
		if getErr != nil {
			return nil, getErr
		}
		if !existing.IsActive {
			return nil, apperrors.InvalidState("app %q is already deleted", code)
		}
		return nil, fmt.Errorf("failed to delete app %q", code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete app: %w", err)
	}
	return app, nil
}

// Restore reactivates a soft-deleted app and clears its deletion
// metadata
func (s *Store) Restore(ctx context.Context, code string) (*App, error) {
	query := `
		UPDATE apps SET is_active = TRUE, deleted_at = NULL, deleted_by = NULL, updated_at = NOW()
		WHERE code = $1 AND is_active = FALSE
		RETURNING ` + appColumns

	app, err := scanApp(s.db.QueryRowContext(ctx, query, code))
	if err == sql.ErrNoRows {
		existing, getErr := s.GetApp(ctx, code)
		if getErr != nil {
			return nil, getErr
		}
		if existing.IsActive {
			return nil, apperrors.InvalidState("app %q is not deleted", code)
		}
		return nil, fmt.Errorf("failed to restore app %q", code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to restore app: %w", err)
	}
	return app, nil
}

// --- fields ---

const fieldColumns = `id, app_id, field_code, field_type, label, required, unique_field,
	default_value, options, validation, display_order, row_index, col_index, col_span,
	is_active, created_at, updated_at`

func scanField(row interface{ Scan(...interface{}) error }) (*Field, error) {
	var f Field
	var validation []byte
	err := row.Scan(&f.ID, &f.AppID, &f.FieldCode, &f.FieldType, &f.Label, &f.Required,
		&f.UniqueField, &f.DefaultValue, pq.Array(&f.Options), &validation, &f.DisplayOrder,
		&f.RowIndex, &f.ColIndex, &f.ColSpan, &f.IsActive, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(validation) > 0 {
		if err := json.Unmarshal(validation, &f.Validation); err != nil {
			return nil, fmt.Errorf("failed to decode validation rules: %w", err)
		}
	}
	return &f, nil
}

// CreateField adds a field definition to an app
func (s *Store) CreateField(ctx context.Context, f *Field) error {
	validation, err := json.Marshal(f.Validation)
	if err != nil {
		return fmt.Errorf("failed to encode validation rules: %w", err)
	}

	query := `
		INSERT INTO app_fields (app_id, field_code, field_type, label, required, unique_field,
			default_value, options, validation, display_order, row_index, col_index, col_span)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, is_active, created_at, updated_at`

	err = s.db.QueryRowContext(ctx, query, f.AppID, f.FieldCode, f.FieldType, f.Label,
		f.Required, f.UniqueField, f.DefaultValue, pq.Array(f.Options), validation,
		f.DisplayOrder, f.RowIndex, f.ColIndex, f.ColSpan).
		Scan(&f.ID, &f.IsActive, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return apperrors.InvalidState("field %q already exists", f.FieldCode)
		}
		return fmt.Errorf("failed to create field: %w", err)
	}
	return nil
}

// ListFields returns an app's active field definitions in layout order
func (s *Store) ListFields(ctx context.Context, appID int64) ([]*Field, error) {
	query := `SELECT ` + fieldColumns + ` FROM app_fields
		WHERE app_id = $1 AND is_active = TRUE
		ORDER BY row_index, col_index, display_order`

	rows, err := s.db.QueryContext(ctx, query, appID)
	if err != nil {
		return nil, fmt.Errorf("failed to list fields: %w", err)
	}
	defer rows.Close()

	var fields []*Field
	for rows.Next() {
		f, err := scanField(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan field: %w", err)
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}

// UpdateField updates a field definition's presentation and validation
func (s *Store) UpdateField(ctx context.Context, f *Field) error {
	validation, err := json.Marshal(f.Validation)
	if err != nil {
		return fmt.Errorf("failed to encode validation rules: %w", err)
	}

	query := `
		UPDATE app_fields SET field_type = $1, label = $2, required = $3, unique_field = $4,
			default_value = $5, options = $6, validation = $7, display_order = $8,
			row_index = $9, col_index = $10, col_span = $11, updated_at = NOW()
		WHERE app_id = $12 AND field_code = $13
		RETURNING updated_at`

	err = s.db.QueryRowContext(ctx, query, f.FieldType, f.Label, f.Required, f.UniqueField,
		f.DefaultValue, pq.Array(f.Options), validation, f.DisplayOrder,
		f.RowIndex, f.ColIndex, f.ColSpan, f.AppID, f.FieldCode).Scan(&f.UpdatedAt)
	if err == sql.ErrNoRows {
		return apperrors.NotFound("field %q not found", f.FieldCode)
	}
	if err != nil {
		return fmt.Errorf("failed to update field: %w", err)
	}
	return nil
}

// DeactivateField retires a field definition without touching stored
// record data
func (s *Store) DeactivateField(ctx context.Context, appID int64, fieldCode string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE app_fields SET is_active = FALSE, updated_at = NOW()
		 WHERE app_id = $1 AND field_code = $2 AND is_active = TRUE`, appID, fieldCode)
	if err != nil {
		return fmt.Errorf("failed to deactivate field: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deactivation: %w", err)
	}
	if affected == 0 {
		return apperrors.NotFound("field %q not found", fieldCode)
	}
	return nil
}

// --- templates ---

const templateColumns = `id, name, description, is_system, blueprint, created_at, updated_at`

func scanTemplate(row interface{ Scan(...interface{}) error }) (*Template, error) {
	var t Template
	var blueprint []byte
	var description sql.NullString
	err := row.Scan(&t.ID, &t.Name, &description, &t.IsSystem, &blueprint, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Description = description.String
	if err := json.Unmarshal(blueprint, &t.Blueprint); err != nil {
		return nil, fmt.Errorf("failed to decode template blueprint: %w", err)
	}
	return &t, nil
}

// CreateTemplate stores a reusable blueprint
func (s *Store) CreateTemplate(ctx context.Context, t *Template) error {
	blueprint, err := json.Marshal(t.Blueprint)
	if err != nil {
		return fmt.Errorf("failed to encode template blueprint: %w", err)
	}

	query := `
		INSERT INTO app_templates (name, description, is_system, blueprint)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET
			description = EXCLUDED.description, blueprint = EXCLUDED.blueprint, updated_at = NOW()
		RETURNING id, created_at, updated_at`

	err = s.db.QueryRowContext(ctx, query, t.Name, t.Description, t.IsSystem, blueprint).
		Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

// GetTemplate fetches a template by id
func (s *Store) GetTemplate(ctx context.Context, id int64) (*Template, error) {
	query := `SELECT ` + templateColumns + ` FROM app_templates WHERE id = $1`
	t, err := scanTemplate(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("template %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return t, nil
}

// ListTemplates returns all templates
func (s *Store) ListTemplates(ctx context.Context) ([]*Template, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+templateColumns+` FROM app_templates ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var templates []*Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// DeleteTemplate removes a non-system template
func (s *Store) DeleteTemplate(ctx context.Context, id int64) error {
	t, err := s.GetTemplate(ctx, id)
	if err != nil {
		return err
	}
	if t.IsSystem {
		return apperrors.InvalidState("system templates cannot be deleted")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM app_templates WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	return nil
}
