package webhooks

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/deskforge/deskforge/pkg/apperrors"
	"github.com/deskforge/deskforge/pkg/observability"
)

// Store persists webhook subscriptions and their delivery logs
type Store struct {
	db     *sql.DB
	logger *observability.Logger
}

func NewStore(db *sql.DB, logger *observability.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// EnsureTables creates the webhook tables if they do not exist
func (s *Store) EnsureTables(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS webhooks (
			id BIGSERIAL PRIMARY KEY,
			app_code VARCHAR(255) NOT NULL,
			name VARCHAR(255) NOT NULL,
			url TEXT NOT NULL,
			trigger_type VARCHAR(32) NOT NULL,
			headers JSONB,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_webhooks_app_trigger ON webhooks(app_code, trigger_type)`,
		`CREATE TABLE IF NOT EXISTS webhook_delivery_logs (
			id BIGSERIAL PRIMARY KEY,
			webhook_id BIGINT NOT NULL,
			app_code VARCHAR(255) NOT NULL,
			trigger_type VARCHAR(32) NOT NULL,
			url TEXT NOT NULL,
			payload TEXT NOT NULL DEFAULT '',
			success BOOLEAN NOT NULL,
			response_status INTEGER,
			response_body TEXT,
			error_message TEXT,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_delivery_logs_webhook ON webhook_delivery_logs(webhook_id, created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure webhook tables: %w", err)
		}
	}
	return nil
}

const webhookColumns = `id, app_code, name, url, trigger_type, headers, is_active, created_at, updated_at`

func scanWebhook(row interface{ Scan(...interface{}) error }) (*Webhook, error) {
	var w Webhook
	var headers []byte
	err := row.Scan(&w.ID, &w.AppCode, &w.Name, &w.URL, &w.TriggerType, &headers,
		&w.IsActive, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &w.Headers); err != nil {
			return nil, fmt.Errorf("failed to decode webhook headers: %w", err)
		}
	}
	return &w, nil
}

// Create inserts a webhook subscription
func (s *Store) Create(ctx context.Context, w *Webhook) error {
	if !w.TriggerType.Valid() {
		return apperrors.InvalidState("unknown trigger type %q", w.TriggerType)
	}
	headers, err := json.Marshal(w.Headers)
	if err != nil {
		return fmt.Errorf("failed to encode webhook headers: %w", err)
	}

	query := `
		INSERT INTO webhooks (app_code, name, url, trigger_type, headers)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, is_active, created_at, updated_at`

	err = s.db.QueryRowContext(ctx, query, w.AppCode, w.Name, w.URL, w.TriggerType, headers).
		Scan(&w.ID, &w.IsActive, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create webhook: %w", err)
	}
	return nil
}

// Get fetches a webhook by id
func (s *Store) Get(ctx context.Context, id int64) (*Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks WHERE id = $1`
	w, err := scanWebhook(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("webhook %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook: %w", err)
	}
	return w, nil
}

// ListForApp returns all subscriptions for an app
func (s *Store) ListForApp(ctx context.Context, appCode string) ([]*Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks WHERE app_code = $1 ORDER BY id`
	return s.queryWebhooks(ctx, query, appCode)
}

// ListActive returns the active subscriptions matching an app and
// trigger. This is the dispatch fan-out query.
func (s *Store) ListActive(ctx context.Context, appCode string, trigger TriggerType) ([]*Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks
		WHERE app_code = $1 AND trigger_type = $2 AND is_active = TRUE ORDER BY id`
	return s.queryWebhooks(ctx, query, appCode, trigger)
}

func (s *Store) queryWebhooks(ctx context.Context, query string, args ...interface{}) ([]*Webhook, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	defer rows.Close()

	var hooks []*Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook: %w", err)
		}
		hooks = append(hooks, w)
	}
	return hooks, rows.Err()
}

// Update replaces a webhook's target and trigger configuration
func (s *Store) Update(ctx context.Context, w *Webhook) error {
	if !w.TriggerType.Valid() {
		return apperrors.InvalidState("unknown trigger type %q", w.TriggerType)
	}
	headers, err := json.Marshal(w.Headers)
	if err != nil {
		return fmt.Errorf("failed to encode webhook headers: %w", err)
	}

	query := `
		UPDATE webhooks SET name = $1, url = $2, trigger_type = $3, headers = $4,
			is_active = $5, updated_at = NOW()
		WHERE id = $6
		RETURNING updated_at`

	err = s.db.QueryRowContext(ctx, query, w.Name, w.URL, w.TriggerType, headers, w.IsActive, w.ID).
		Scan(&w.UpdatedAt)
	if err == sql.ErrNoRows {
		return apperrors.NotFound("webhook %d not found", w.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update webhook: %w", err)
	}
	return nil
}

// SetActive flips a webhook's active flag
func (s *Store) SetActive(ctx context.Context, id int64, active bool) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE webhooks SET is_active = $1, updated_at = NOW() WHERE id = $2`, active, id)
	if err != nil {
		return fmt.Errorf("failed to update webhook: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check webhook update: %w", err)
	}
	if affected == 0 {
		return apperrors.NotFound("webhook %d not found", id)
	}
	return nil
}

// Delete removes a subscription. Its delivery logs are kept.
func (s *Store) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM webhooks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check webhook delete: %w", err)
	}
	if affected == 0 {
		return apperrors.NotFound("webhook %d not found", id)
	}
	return nil
}

// RecordDelivery appends one delivery log row. Logs are append-only.
func (s *Store) RecordDelivery(ctx context.Context, log *DeliveryLog) error {
	query := `
		INSERT INTO webhook_delivery_logs (webhook_id, app_code, trigger_type, url, payload,
			success, response_status, response_body, error_message, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`

	err := s.db.QueryRowContext(ctx, query, log.WebhookID, log.AppCode, log.TriggerType,
		log.URL, log.Payload, log.Success, log.ResponseStatus, log.ResponseBody,
		log.ErrorMessage, log.Duration).Scan(&log.ID, &log.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}
	return nil
}

// ListDeliveries returns a webhook's most recent delivery logs
func (s *Store) ListDeliveries(ctx context.Context, webhookID int64, limit int) ([]*DeliveryLog, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, webhook_id, app_code, trigger_type, url, payload, success,
			response_status, response_body, error_message, duration_ms, created_at
		FROM webhook_delivery_logs
		WHERE webhook_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, webhookID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	defer rows.Close()

	var logs []*DeliveryLog
	for rows.Next() {
		var l DeliveryLog
		err := rows.Scan(&l.ID, &l.WebhookID, &l.AppCode, &l.TriggerType, &l.URL, &l.Payload,
			&l.Success, &l.ResponseStatus, &l.ResponseBody, &l.ErrorMessage, &l.Duration,
			&l.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery log: %w", err)
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

// DeliveryStats aggregates a webhook's delivery history
func (s *Store) DeliveryStats(ctx context.Context, webhookID int64) (*DeliveryStats, error) {
	query := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE success)
		FROM webhook_delivery_logs
		WHERE webhook_id = $1`

	stats := &DeliveryStats{WebhookID: webhookID}
	err := s.db.QueryRowContext(ctx, query, webhookID).Scan(&stats.Total, &stats.Successful)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate deliveries: %w", err)
	}
	stats.Failed = stats.Total - stats.Successful
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Successful) / float64(stats.Total)
	}
	return stats, nil
}
