package records

import (
	"context"
	"strings"
	"time"

	"github.com/deskforge/deskforge/pkg/apperrors"
	"github.com/deskforge/deskforge/pkg/apps"
	"github.com/deskforge/deskforge/pkg/observability"
	"github.com/deskforge/deskforge/pkg/permissions"
	"github.com/deskforge/deskforge/pkg/webhooks"
)

// MaxBulkDelete caps a single bulk delete request
const MaxBulkDelete = 100

// Notifier dispatches webhook events. Implemented by
// webhooks.Dispatcher; calls never block or fail the mutation.
type Notifier interface {
	Fire(event webhooks.Event)
}

// AuditRecorder receives record audit events
type AuditRecorder interface {
	Record(ctx context.Context, eventType, actor, appCode string, details map[string]interface{})
}

// Service is the permission-gated record API. Every operation resolves
// the app, checks the actor's grant and, for mutations, fires the
// matching webhook trigger after the write commits.
type Service struct {
	store      *Store
	appSource  AppSource
	fieldCache *FieldCache
	evaluator  *permissions.Evaluator
	notifier   Notifier
	audit      AuditRecorder
	metrics    *observability.Metrics
	logger     *observability.Logger
}

// ServiceConfig wires the record service dependencies
type ServiceConfig struct {
	Store         *Store
	AppSource     AppSource
	Evaluator     *permissions.Evaluator
	Notifier      Notifier
	Audit         AuditRecorder
	Metrics       *observability.Metrics
	Logger        *observability.Logger
	FieldCacheTTL time.Duration
}

func NewService(cfg ServiceConfig) *Service {
	return &Service{
		store:      cfg.Store,
		appSource:  cfg.AppSource,
		fieldCache: NewFieldCache(cfg.AppSource, cfg.FieldCacheTTL, 0),
		evaluator:  cfg.Evaluator,
		notifier:   cfg.Notifier,
		audit:      cfg.Audit,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}
}

// activeApp resolves an app and rejects mutations against deleted ones
func (s *Service) activeApp(ctx context.Context, appCode string) (*apps.App, error) {
	app, err := s.appSource.GetApp(ctx, appCode)
	if err != nil {
		return nil, err
	}
	if !app.IsActive {
		return nil, apperrors.InvalidState("app %q is deleted", appCode)
	}
	return app, nil
}

func (s *Service) authorize(ctx context.Context, actor permissions.Actor, appCode string, action permissions.Action) (permissions.Decision, error) {
	decision, err := s.evaluator.Evaluate(ctx, actor.Role, appCode, action)
	if err != nil {
		return decision, err
	}
	if !decision.Allowed {
		s.audit.Record(ctx, "permission.denied", actor.UserID, appCode, map[string]interface{}{
			"role":   actor.Role,
			"action": string(action),
		})
		return decision, apperrors.Unauthorized(
			"role %q may not %s records in app %q", actor.Role, action, appCode)
	}
	return decision, nil
}

// Create validates and stores a new record, then fires record_added
func (s *Service) Create(ctx context.Context, actor permissions.Actor, appCode string, fieldData map[string]interface{}) (*Record, error) {
	app, err := s.activeApp(ctx, appCode)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, actor, appCode, permissions.ActionAdd); err != nil {
		return nil, err
	}

	fields, err := s.fieldCache.Fields(ctx, app)
	if err != nil {
		return nil, err
	}
	if err := Validate(fieldData, fields); err != nil {
		return nil, err
	}

	record := &Record{
		AppID:     app.ID,
		AppCode:   app.Code,
		FieldData: fieldData,
		CreatedBy: actor.UserID,
		UpdatedBy: actor.UserID,
	}
	if err := s.store.Insert(ctx, record); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordsCreated.WithLabelValues(app.Code).Inc()
	}
	s.fireEvent(app, webhooks.TriggerRecordAdded, record, actor, nil)
	s.recordHistory(ctx, app, "record.created", actor, record.ID, nil)
	return record, nil
}

// Get fetches one record with hidden fields removed for the actor
func (s *Service) Get(ctx context.Context, actor permissions.Actor, appCode, id string) (*Record, error) {
	decision, err := s.authorize(ctx, actor, appCode, permissions.ActionView)
	if err != nil {
		return nil, err
	}

	record, err := s.store.Get(ctx, appCode, id)
	if err != nil {
		return nil, err
	}
	record.FieldData = permissions.Redact(record.FieldData, decision.HiddenFields)
	return record, nil
}

// List returns an app's records with hidden fields removed
func (s *Service) List(ctx context.Context, actor permissions.Actor, appCode string, opts ListOptions) ([]*Record, error) {
	decision, err := s.authorize(ctx, actor, appCode, permissions.ActionView)
	if err != nil {
		return nil, err
	}

	result, err := s.store.List(ctx, appCode, opts)
	if err != nil {
		return nil, err
	}
	for _, r := range result {
		r.FieldData = permissions.Redact(r.FieldData, decision.HiddenFields)
	}
	return result, nil
}

// Update replaces a record's field data, then fires record_edited
func (s *Service) Update(ctx context.Context, actor permissions.Actor, appCode, id string, fieldData map[string]interface{}) (*Record, error) {
	app, err := s.activeApp(ctx, appCode)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, actor, appCode, permissions.ActionEdit); err != nil {
		return nil, err
	}

	fields, err := s.fieldCache.Fields(ctx, app)
	if err != nil {
		return nil, err
	}
	if err := Validate(fieldData, fields); err != nil {
		return nil, err
	}

	record, err := s.store.Get(ctx, appCode, id)
	if err != nil {
		return nil, err
	}
	previous := record.FieldData
	record.FieldData = fieldData
	record.UpdatedBy = actor.UserID
	if err := s.store.Update(ctx, record); err != nil {
		return nil, err
	}

	s.fireEvent(app, webhooks.TriggerRecordEdited, record, actor, nil)
	s.recordHistory(ctx, app, "record.updated", actor, record.ID, map[string]interface{}{
		"previous": previous,
	})
	return record, nil
}

// ChangeStatus moves a record through the status workflow and fires
// status_changed with the old and new status
func (s *Service) ChangeStatus(ctx context.Context, actor permissions.Actor, appCode, id, status string) error {
	app, err := s.activeApp(ctx, appCode)
	if err != nil {
		return err
	}
	if _, err := s.authorize(ctx, actor, appCode, permissions.ActionEdit); err != nil {
		return err
	}
	status = strings.TrimSpace(status)
	if status == "" {
		return apperrors.InvalidState("status is required")
	}

	oldStatus, err := s.store.UpdateStatus(ctx, appCode, id, status, actor.UserID)
	if err != nil {
		return err
	}
	if oldStatus == status {
		return nil
	}

	s.notifier.Fire(webhooks.Event{
		Trigger:  webhooks.TriggerStatusChanged,
		AppID:    app.ID,
		AppCode:  app.Code,
		RecordID: id,
		Actor:    actor,
		Extra: map[string]interface{}{
			"old_status": oldStatus,
			"new_status": status,
		},
	})
	s.recordHistory(ctx, app, "record.status_changed", actor, id, map[string]interface{}{
		"old_status": oldStatus,
		"new_status": status,
	})
	return nil
}

// Delete soft-deletes one record, then fires record_deleted
func (s *Service) Delete(ctx context.Context, actor permissions.Actor, appCode, id string) error {
	app, err := s.activeApp(ctx, appCode)
	if err != nil {
		return err
	}
	if _, err := s.authorize(ctx, actor, appCode, permissions.ActionDelete); err != nil {
		return err
	}

	// Snapshot before deletion so the webhook payload carries the
	// record as it was.
	record, err := s.store.Get(ctx, appCode, id)
	if err != nil {
		return err
	}
	if err := s.store.SoftDelete(ctx, appCode, id, actor.UserID); err != nil {
		return err
	}

	s.fireEvent(app, webhooks.TriggerRecordDeleted, record, actor, nil)
	s.recordHistory(ctx, app, "record.deleted", actor, id, nil)
	return nil
}

// BulkDelete deactivates up to MaxBulkDelete records in one call.
// The request shape is checked first, then the actor's delete grant,
// then the app's bulk delete flag, so a disabled feature reads as a
// feature problem rather than a permission problem.
func (s *Service) BulkDelete(ctx context.Context, actor permissions.Actor, appCode string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, apperrors.InvalidState("bulk delete requires at least one record id")
	}
	if len(ids) > MaxBulkDelete {
		return 0, apperrors.InvalidState(
			"bulk delete limited to %d records, got %d", MaxBulkDelete, len(ids))
	}

	app, err := s.activeApp(ctx, appCode)
	if err != nil {
		return 0, err
	}
	if _, err := s.authorize(ctx, actor, appCode, permissions.ActionDelete); err != nil {
		return 0, err
	}
	if !app.EnableBulkDelete {
		return 0, apperrors.FeatureDisabled("bulk delete is disabled for app %q", appCode)
	}

	affected, err := s.store.BulkSoftDelete(ctx, appCode, ids, actor.UserID)
	if err != nil {
		return 0, err
	}

	s.audit.Record(ctx, "record.bulk_deleted", actor.UserID, appCode, map[string]interface{}{
		"requested": len(ids),
		"deleted":   affected,
	})
	s.logger.WithFields(map[string]interface{}{
		"app":       appCode,
		"actor":     actor.UserID,
		"requested": len(ids),
		"deleted":   affected,
	}).Info("bulk delete completed")
	return affected, nil
}

// AddComment appends a comment and fires comment_added. Comments must
// be enabled on the app.
func (s *Service) AddComment(ctx context.Context, actor permissions.Actor, appCode, recordID, body string) (*Comment, error) {
	app, err := s.activeApp(ctx, appCode)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, actor, appCode, permissions.ActionView); err != nil {
		return nil, err
	}
	if !app.EnableComments {
		return nil, apperrors.FeatureDisabled("comments are disabled for app %q", appCode)
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.InvalidState("comment body is required")
	}

	if _, err := s.store.Get(ctx, appCode, recordID); err != nil {
		return nil, err
	}

	comment := &Comment{RecordID: recordID, AuthorID: actor.UserID, Body: body}
	if err := s.store.AddComment(ctx, comment); err != nil {
		return nil, err
	}

	s.notifier.Fire(webhooks.Event{
		Trigger:  webhooks.TriggerCommentAdded,
		AppID:    app.ID,
		AppCode:  app.Code,
		RecordID: recordID,
		Actor:    actor,
		Extra: map[string]interface{}{
			"comment_id": comment.ID,
			"comment":    body,
		},
	})
	return comment, nil
}

// Comments lists a record's comments
func (s *Service) Comments(ctx context.Context, actor permissions.Actor, appCode, recordID string) ([]*Comment, error) {
	app, err := s.appSource.GetApp(ctx, appCode)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, actor, appCode, permissions.ActionView); err != nil {
		return nil, err
	}
	if !app.EnableComments {
		return nil, apperrors.FeatureDisabled("comments are disabled for app %q", appCode)
	}
	if _, err := s.store.Get(ctx, appCode, recordID); err != nil {
		return nil, err
	}
	return s.store.ListComments(ctx, recordID)
}

func (s *Service) fireEvent(app *apps.App, trigger webhooks.TriggerType, record *Record, actor permissions.Actor, extra map[string]interface{}) {
	s.notifier.Fire(webhooks.Event{
		Trigger:  trigger,
		AppID:    app.ID,
		AppCode:  app.Code,
		RecordID: record.ID,
		Record:   record.FieldData,
		Actor:    actor,
		Extra:    extra,
	})
}

// recordHistory writes a change event when the app has history
// tracking enabled
func (s *Service) recordHistory(ctx context.Context, app *apps.App, eventType string, actor permissions.Actor, recordID string, details map[string]interface{}) {
	if !app.EnableHistory {
		return
	}
	if details == nil {
		details = map[string]interface{}{}
	}
	details["record_id"] = recordID
	s.audit.Record(ctx, eventType, actor.UserID, app.Code, details)
}
