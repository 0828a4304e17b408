package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/deskforge/deskforge/pkg/apperrors"
	"github.com/deskforge/deskforge/pkg/observability"
)

// Store persists records and comments in PostgreSQL
type Store struct {
	db     *sql.DB
	logger *observability.Logger
}

func NewStore(db *sql.DB, logger *observability.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// EnsureTables creates the record tables if they do not exist
func (s *Store) EnsureTables(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS app_records (
			id UUID PRIMARY KEY,
			app_id BIGINT NOT NULL,
			app_code VARCHAR(255) NOT NULL,
			field_data JSONB NOT NULL DEFAULT '{}',
			status VARCHAR(64) NOT NULL DEFAULT 'open',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_by VARCHAR(255) NOT NULL,
			updated_by VARCHAR(255) NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_app_records_app ON app_records(app_id, is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_app_records_status ON app_records(app_id, status)`,
		`CREATE TABLE IF NOT EXISTS record_comments (
			id BIGSERIAL PRIMARY KEY,
			record_id UUID NOT NULL REFERENCES app_records(id),
			author_id VARCHAR(255) NOT NULL,
			body TEXT NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_record_comments_record ON record_comments(record_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure record tables: %w", err)
		}
	}
	return nil
}

const recordColumns = `id, app_id, app_code, field_data, status, is_active, created_by, updated_by, created_at, updated_at`

func scanRecord(row interface{ Scan(...interface{}) error }) (*Record, error) {
	var r Record
	var fieldData []byte
	err := row.Scan(&r.ID, &r.AppID, &r.AppCode, &fieldData, &r.Status, &r.IsActive,
		&r.CreatedBy, &r.UpdatedBy, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(fieldData, &r.FieldData); err != nil {
		return nil, fmt.Errorf("failed to decode field data: %w", err)
	}
	return &r, nil
}

// Insert stores a new record and assigns its id
func (s *Store) Insert(ctx context.Context, r *Record) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = DefaultStatus
	}
	fieldData, err := json.Marshal(r.FieldData)
	if err != nil {
		return fmt.Errorf("failed to encode field data: %w", err)
	}

	query := `
		INSERT INTO app_records (id, app_id, app_code, field_data, status, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING is_active, created_at, updated_at`

	err = s.db.QueryRowContext(ctx, query, r.ID, r.AppID, r.AppCode, fieldData, r.Status, r.CreatedBy).
		Scan(&r.IsActive, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

// Get fetches an active record scoped to its app
func (s *Store) Get(ctx context.Context, appCode, id string) (*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM app_records
		WHERE app_code = $1 AND id = $2 AND is_active = TRUE`
	r, err := scanRecord(s.db.QueryRowContext(ctx, query, appCode, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("record %s not found in app %q", id, appCode)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return r, nil
}

// List returns an app's active records, newest first
func (s *Store) List(ctx context.Context, appCode string, opts ListOptions) ([]*Record, error) {
	if opts.Limit <= 0 || opts.Limit > 500 {
		opts.Limit = 100
	}

	query := `SELECT ` + recordColumns + ` FROM app_records
		WHERE app_code = $1 AND is_active = TRUE`
	args := []interface{}{appCode}
	if opts.Status != "" {
		query += ` AND status = $2`
		args = append(args, opts.Status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var result []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// Update replaces a record's field data
func (s *Store) Update(ctx context.Context, r *Record) error {
	fieldData, err := json.Marshal(r.FieldData)
	if err != nil {
		return fmt.Errorf("failed to encode field data: %w", err)
	}

	query := `
		UPDATE app_records SET field_data = $1, updated_by = $2, updated_at = NOW()
		WHERE app_code = $3 AND id = $4 AND is_active = TRUE
		RETURNING updated_at`

	err = s.db.QueryRowContext(ctx, query, fieldData, r.UpdatedBy, r.AppCode, r.ID).
		Scan(&r.UpdatedAt)
	if err == sql.ErrNoRows {
		return apperrors.NotFound("record %s not found in app %q", r.ID, r.AppCode)
	}
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	return nil
}

// UpdateStatus moves a record to a new status and returns the
// previous one
func (s *Store) UpdateStatus(ctx context.Context, appCode, id, status, updatedBy string) (string, error) {
	query := `
		UPDATE app_records r SET status = $1, updated_by = $2, updated_at = NOW()
		FROM (SELECT id, status AS old_status FROM app_records
			WHERE app_code = $3 AND id = $4 AND is_active = TRUE) prev
		WHERE r.id = prev.id
		RETURNING prev.old_status`

	var oldStatus string
	err := s.db.QueryRowContext(ctx, query, status, updatedBy, appCode, id).Scan(&oldStatus)
	if err == sql.ErrNoRows {
		return "", apperrors.NotFound("record %s not found in app %q", id, appCode)
	}
	if err != nil {
		return "", fmt.Errorf("failed to update record status: %w", err)
	}
	return oldStatus, nil
}

// SoftDelete deactivates one record
func (s *Store) SoftDelete(ctx context.Context, appCode, id, deletedBy string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE app_records SET is_active = FALSE, updated_by = $1, updated_at = NOW()
		 WHERE app_code = $2 AND id = $3 AND is_active = TRUE`, deletedBy, appCode, id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check record delete: %w", err)
	}
	if affected == 0 {
		return apperrors.NotFound("record %s not found in app %q", id, appCode)
	}
	return nil
}

// BulkSoftDelete deactivates a batch of records in one statement,
// scoped to the app so ids from other apps are silently skipped.
// Returns how many rows were actually deactivated.
func (s *Store) BulkSoftDelete(ctx context.Context, appCode string, ids []string, deletedBy string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE app_records SET is_active = FALSE, updated_by = $1, updated_at = NOW()
		 WHERE app_code = $2 AND id = ANY($3) AND is_active = TRUE`,
		deletedBy, appCode, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to bulk delete records: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check bulk delete: %w", err)
	}
	return affected, nil
}

// GetByFieldValue finds the active record whose field data holds the
// given value under the given key. Used by data source mirroring to
// match incoming rows to existing records.
func (s *Store) GetByFieldValue(ctx context.Context, appCode, fieldCode, value string) (*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM app_records
		WHERE app_code = $1 AND field_data->>$2 = $3 AND is_active = TRUE
		LIMIT 1`
	r, err := scanRecord(s.db.QueryRowContext(ctx, query, appCode, fieldCode, value))
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound(
			"no record in app %q with %s=%s", appCode, fieldCode, value)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up record by field: %w", err)
	}
	return r, nil
}

// AddComment appends a comment to a record
func (s *Store) AddComment(ctx context.Context, c *Comment) error {
	query := `
		INSERT INTO record_comments (record_id, author_id, body)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := s.db.QueryRowContext(ctx, query, c.RecordID, c.AuthorID, c.Body).
		Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add comment: %w", err)
	}
	return nil
}

// ListComments returns a record's comments oldest first
func (s *Store) ListComments(ctx context.Context, recordID string) ([]*Comment, error) {
	query := `SELECT id, record_id, author_id, body, created_at
		FROM record_comments WHERE record_id = $1 ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	var comments []*Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.RecordID, &c.AuthorID, &c.Body, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, &c)
	}
	return comments, rows.Err()
}

// CountActive returns the number of active records in an app
func (s *Store) CountActive(ctx context.Context, appCode string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM app_records WHERE app_code = $1 AND is_active = TRUE`, appCode).
		Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}
