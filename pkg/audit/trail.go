package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/deskforge/deskforge/pkg/async"
	"github.com/deskforge/deskforge/pkg/observability"
)

// Trail writes and queries the audit_events table. Record is
// asynchronous so a slow audit write never holds up the mutation it
// describes; Log is the synchronous variant for callers that need the
// write confirmed.
type Trail struct {
	db     *sql.DB
	logger *observability.Logger
}

func NewTrail(db *sql.DB, logger *observability.Logger) *Trail {
	return &Trail{db: db, logger: logger}
}

// EnsureTable creates the audit_events table if it does not exist
func (t *Trail) EnsureTable(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS audit_events (
			id BIGSERIAL PRIMARY KEY,
			event_type VARCHAR(100) NOT NULL,
			actor VARCHAR(255) NOT NULL,
			app_code VARCHAR(255),
			details JSONB,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_type ON audit_events(event_type, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_app ON audit_events(app_code, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_actor ON audit_events(actor, created_at)`,
	}

	for _, stmt := range statements {
		if _, err := t.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure audit table: %w", err)
		}
	}
	return nil
}

// Log writes one event synchronously
func (t *Trail) Log(ctx context.Context, event *Event) error {
	// Absent details write SQL NULL, not an empty bytea.
	var details interface{}
	if event.Details != nil {
		encoded, err := json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("failed to encode audit details: %w", err)
		}
		details = encoded
	}

	query := `
		INSERT INTO audit_events (event_type, actor, app_code, details)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := t.db.QueryRowContext(ctx, query, event.EventType, event.Actor, event.AppCode, details).
		Scan(&event.ID, &event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	return nil
}

// Record satisfies the AuditRecorder interfaces of the domain
// services. It detaches from the caller's context; a failed write is
// logged and dropped.
func (t *Trail) Record(ctx context.Context, eventType, actor, appCode string, details map[string]interface{}) {
	event := &Event{
		EventType: eventType,
		Actor:     actor,
		AppCode:   appCode,
		Details:   details,
	}
	async.SafeGo(t.logger, 5*time.Second, "audit-write", func(ctx context.Context) error {
		return t.Log(ctx, event)
	})
}

// List returns trail entries matching the query, newest first
func (t *Trail) List(ctx context.Context, q Query) ([]*Event, error) {
	if q.Limit <= 0 || q.Limit > 1000 {
		q.Limit = 100
	}

	query := `SELECT id, event_type, actor, app_code, details, created_at FROM audit_events WHERE 1=1`
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.EventType != "" {
		query += ` AND event_type = ` + arg(q.EventType)
	}
	if q.Actor != "" {
		query += ` AND actor = ` + arg(q.Actor)
	}
	if q.AppCode != "" {
		query += ` AND app_code = ` + arg(q.AppCode)
	}
	if !q.Since.IsZero() {
		query += ` AND created_at >= ` + arg(q.Since)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, q.Limit)

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		var appCode sql.NullString
		var details []byte
		if err := rows.Scan(&e.ID, &e.EventType, &e.Actor, &appCode, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.AppCode = appCode.String
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("failed to decode audit details: %w", err)
			}
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}
