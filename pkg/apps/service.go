package apps

import (
	"context"
	"fmt"
	"strings"

	"github.com/deskforge/deskforge/pkg/apperrors"
	"github.com/deskforge/deskforge/pkg/observability"
	"github.com/deskforge/deskforge/pkg/permissions"
)

// AuditRecorder receives app lifecycle events. Implementations must
// not block the calling request path.
type AuditRecorder interface {
	Record(ctx context.Context, eventType, actor, appCode string, details map[string]interface{})
}

// Service enforces permissions and lifecycle rules over the app store
type Service struct {
	store      *Store
	evaluator  *permissions.Evaluator
	superRoles permissions.SuperRoleChecker
	audit      AuditRecorder
	logger     *observability.Logger
}

func NewService(store *Store, evaluator *permissions.Evaluator, superRoles permissions.SuperRoleChecker, audit AuditRecorder, logger *observability.Logger) *Service {
	return &Service{
		store:      store,
		evaluator:  evaluator,
		superRoles: superRoles,
		audit:      audit,
		logger:     logger,
	}
}

func (s *Service) requireManage(ctx context.Context, actor permissions.Actor, appCode string) error {
	decision, err := s.evaluator.Evaluate(ctx, actor.Role, appCode, permissions.ActionManage)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return apperrors.Unauthorized("role %q cannot manage app %q", actor.Role, appCode)
	}
	return nil
}

// Create registers a new app. Only super-roles may create apps since a
// fresh app has no grants yet.
func (s *Service) Create(ctx context.Context, actor permissions.Actor, app *App) (*App, error) {
	if !s.superRoles.Contains(actor.Role) {
		return nil, apperrors.Unauthorized("role %q cannot create apps", actor.Role)
	}
	app.Code = strings.TrimSpace(app.Code)
	if app.Code == "" {
		return nil, apperrors.InvalidState("app code is required")
	}
	if app.Name == "" {
		return nil, apperrors.InvalidState("app name is required")
	}
	if app.AppType == "" {
		app.AppType = AppTypeDynamic
	}
	if app.AppType != AppTypeStatic && app.AppType != AppTypeDynamic {
		return nil, apperrors.InvalidState("unknown app type %q", app.AppType)
	}

	if err := s.store.CreateApp(ctx, app); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, "app.created", actor.UserID, app.Code, map[string]interface{}{
		"name":     app.Name,
		"app_type": string(app.AppType),
	})
	s.logger.WithFields(map[string]interface{}{
		"app":   app.Code,
		"actor": actor.UserID,
	}).Info("app created")
	return app, nil
}

// Get fetches an app visible to the actor. Viewing requires can_view.
func (s *Service) Get(ctx context.Context, actor permissions.Actor, code string) (*App, error) {
	decision, err := s.evaluator.Evaluate(ctx, actor.Role, code, permissions.ActionView)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, apperrors.Unauthorized("role %q cannot view app %q", actor.Role, code)
	}
	return s.store.GetApp(ctx, code)
}

// List returns the apps the actor can view. Apps the role has no view
// grant for are filtered out rather than erroring, so the portal list
// shows each role only its own apps.
func (s *Service) List(ctx context.Context, actor permissions.Actor, includeDeleted bool) ([]*App, error) {
	if includeDeleted && !s.superRoles.Contains(actor.Role) {
		return nil, apperrors.Unauthorized("only super-roles may list deleted apps")
	}

	all, err := s.store.ListApps(ctx, includeDeleted)
	if err != nil {
		return nil, err
	}

	visible := make([]*App, 0, len(all))
	for _, app := range all {
		decision, err := s.evaluator.Evaluate(ctx, actor.Role, app.Code, permissions.ActionView)
		if err != nil {
			return nil, err
		}
		if decision.Allowed {
			visible = append(visible, app)
		}
	}
	return visible, nil
}

// Update changes app metadata. Requires can_manage.
func (s *Service) Update(ctx context.Context, actor permissions.Actor, app *App) (*App, error) {
	if err := s.requireManage(ctx, actor, app.Code); err != nil {
		return nil, err
	}
	if err := s.store.UpdateApp(ctx, app); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, "app.updated", actor.UserID, app.Code, nil)
	return app, nil
}

// UpdateSettings applies a feature flag patch. A patch that changes
// nothing is rejected so callers cannot mistake a typoed body for a
// successful update.
func (s *Service) UpdateSettings(ctx context.Context, actor permissions.Actor, code string, patch SettingsPatch) (*App, error) {
	if err := s.requireManage(ctx, actor, code); err != nil {
		return nil, err
	}
	if patch.Empty() {
		return nil, apperrors.InvalidState("settings patch contains no recognized fields")
	}

	app, err := s.store.UpdateSettings(ctx, code, patch)
	if err != nil {
		return nil, err
	}

	details := map[string]interface{}{}
	if patch.EnableBulkDelete != nil {
		details["enable_bulk_delete"] = *patch.EnableBulkDelete
	}
	if patch.EnableHistory != nil {
		details["enable_history"] = *patch.EnableHistory
	}
	if patch.EnableComments != nil {
		details["enable_comments"] = *patch.EnableComments
	}
	s.audit.Record(ctx, "app.settings_changed", actor.UserID, code, details)
	return app, nil
}

// Delete soft-deletes an app. The app and its records stay in storage
// and drop out of listings; deleting an already-deleted app is a state
// conflict, not a success.
func (s *Service) Delete(ctx context.Context, actor permissions.Actor, code string) (*App, error) {
	if err := s.requireManage(ctx, actor, code); err != nil {
		return nil, err
	}

	app, err := s.store.SoftDelete(ctx, code, actor.UserID)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, "app.deleted", actor.UserID, code, nil)
	s.logger.WithFields(map[string]interface{}{
		"app":   code,
		"actor": actor.UserID,
	}).Info("app soft-deleted")
	return app, nil
}

// Restore reactivates a soft-deleted app. Restoring an active app is
// rejected with a state conflict.
func (s *Service) Restore(ctx context.Context, actor permissions.Actor, code string) (*App, error) {
	if err := s.requireManage(ctx, actor, code); err != nil {
		return nil, err
	}

	app, err := s.store.Restore(ctx, code)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, "app.restored", actor.UserID, code, nil)
	s.logger.WithFields(map[string]interface{}{
		"app":   code,
		"actor": actor.UserID,
	}).Info("app restored")
	return app, nil
}

// --- field management ---

// AddField appends a field definition. Requires can_manage on the app.
func (s *Service) AddField(ctx context.Context, actor permissions.Actor, appCode string, field *Field) (*Field, error) {
	if err := s.requireManage(ctx, actor, appCode); err != nil {
		return nil, err
	}
	app, err := s.store.GetApp(ctx, appCode)
	if err != nil {
		return nil, err
	}
	if !field.FieldType.Valid() {
		return nil, apperrors.InvalidState("unknown field type %q", field.FieldType)
	}
	if field.FieldCode == "" {
		return nil, apperrors.InvalidState("field code is required")
	}
	field.AppID = app.ID
	if field.ColSpan <= 0 {
		field.ColSpan = 1
	}
	if err := s.store.CreateField(ctx, field); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, "app.field_added", actor.UserID, appCode, map[string]interface{}{
		"field_code": field.FieldCode,
		"field_type": string(field.FieldType),
	})
	return field, nil
}

// Fields lists an app's field definitions. Requires can_view.
func (s *Service) Fields(ctx context.Context, actor permissions.Actor, appCode string) ([]*Field, error) {
	decision, err := s.evaluator.Evaluate(ctx, actor.Role, appCode, permissions.ActionView)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, apperrors.Unauthorized("role %q cannot view app %q", actor.Role, appCode)
	}
	app, err := s.store.GetApp(ctx, appCode)
	if err != nil {
		return nil, err
	}
	return s.store.ListFields(ctx, app.ID)
}

// UpdateField updates a field definition. Requires can_manage.
func (s *Service) UpdateField(ctx context.Context, actor permissions.Actor, appCode string, field *Field) (*Field, error) {
	if err := s.requireManage(ctx, actor, appCode); err != nil {
		return nil, err
	}
	app, err := s.store.GetApp(ctx, appCode)
	if err != nil {
		return nil, err
	}
	if !field.FieldType.Valid() {
		return nil, apperrors.InvalidState("unknown field type %q", field.FieldType)
	}
	field.AppID = app.ID
	if err := s.store.UpdateField(ctx, field); err != nil {
		return nil, err
	}
	return field, nil
}

// RemoveField retires a field definition. Stored record values keep
// the retired key; only presentation and validation stop applying.
func (s *Service) RemoveField(ctx context.Context, actor permissions.Actor, appCode, fieldCode string) error {
	if err := s.requireManage(ctx, actor, appCode); err != nil {
		return err
	}
	app, err := s.store.GetApp(ctx, appCode)
	if err != nil {
		return err
	}
	if err := s.store.DeactivateField(ctx, app.ID, fieldCode); err != nil {
		return err
	}
	s.audit.Record(ctx, "app.field_removed", actor.UserID, appCode, map[string]interface{}{
		"field_code": fieldCode,
	})
	return nil
}

// --- templates ---

// InstantiateTemplate creates a new app plus its fields from a stored
// blueprint. Only super-roles may instantiate, same as Create.
func (s *Service) InstantiateTemplate(ctx context.Context, actor permissions.Actor, templateID int64, code string) (*App, error) {
	if !s.superRoles.Contains(actor.Role) {
		return nil, apperrors.Unauthorized("role %q cannot create apps", actor.Role)
	}

	tmpl, err := s.store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}

	app := &App{
		Code:             code,
		Name:             tmpl.Blueprint.Name,
		AppType:          tmpl.Blueprint.AppType,
		EnableBulkDelete: tmpl.Blueprint.EnableBulkDelete,
		EnableHistory:    tmpl.Blueprint.EnableHistory,
		EnableComments:   tmpl.Blueprint.EnableComments,
	}
	app, err = s.Create(ctx, actor, app)
	if err != nil {
		return nil, err
	}

	for i, tf := range tmpl.Blueprint.Fields {
		field := &Field{
			AppID:        app.ID,
			FieldCode:    tf.FieldCode,
			FieldType:    tf.FieldType,
			Label:        tf.Label,
			Required:     tf.Required,
			UniqueField:  tf.UniqueField,
			DefaultValue: tf.DefaultValue,
			Options:      tf.Options,
			Validation:   tf.Validation,
			DisplayOrder: i,
			RowIndex:     i,
			ColSpan:      1,
		}
		if err := s.store.CreateField(ctx, field); err != nil {
			return nil, fmt.Errorf("failed to create field %q from template: %w", tf.FieldCode, err)
		}
	}

	s.audit.Record(ctx, "app.created_from_template", actor.UserID, app.Code, map[string]interface{}{
		"template_id": templateID,
	})
	return app, nil
}

// Templates lists the stored blueprints
func (s *Service) Templates(ctx context.Context, actor permissions.Actor) ([]*Template, error) {
	if !s.superRoles.Contains(actor.Role) {
		return nil, apperrors.Unauthorized("only super-roles may manage templates")
	}
	return s.store.ListTemplates(ctx)
}

// SaveTemplate creates or replaces a blueprint
func (s *Service) SaveTemplate(ctx context.Context, actor permissions.Actor, tmpl *Template) (*Template, error) {
	if !s.superRoles.Contains(actor.Role) {
		return nil, apperrors.Unauthorized("only super-roles may manage templates")
	}
	if tmpl.Name == "" {
		return nil, apperrors.InvalidState("template name is required")
	}
	if err := s.store.CreateTemplate(ctx, tmpl); err != nil {
		return nil, err
	}
	return tmpl, nil
}

// DeleteTemplate removes a blueprint. System templates are protected.
func (s *Service) DeleteTemplate(ctx context.Context, actor permissions.Actor, id int64) error {
	if !s.superRoles.Contains(actor.Role) {
		return apperrors.Unauthorized("only super-roles may manage templates")
	}
	return s.store.DeleteTemplate(ctx, id)
}
