package api

import (
	"net/http"

	"github.com/deskforge/deskforge/pkg/apperrors"
	"github.com/deskforge/deskforge/pkg/httputil"
	"github.com/deskforge/deskforge/pkg/webhooks"
)

// appWebhook loads a webhook and checks it belongs to the app in the path.
func (s *Server) appWebhook(r *http.Request, appCode string, id int64) (*webhooks.Webhook, error) {
	hook, err := s.webhooks.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if hook.AppCode != appCode {
		return nil, apperrors.NotFound("webhook %d not found in app %q", id, appCode)
	}
	return hook, nil
}

func (s *Server) listWebhooks(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	appCode, ok := httputil.ParsePathStringOrError(w, r, "app")
	if !ok {
		return
	}
	if err := s.requireManage(r, actor, appCode); err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	hooks, err := s.webhooks.ListForApp(r.Context(), appCode)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, hooks)
}

func (s *Server) createWebhook(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	appCode, ok := httputil.ParsePathStringOrError(w, r, "app")
	if !ok {
		return
	}
	if err := s.requireManage(r, actor, appCode); err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	var hook webhooks.Webhook
	if !httputil.ParseJSONOrError(w, r, &hook) {
		return
	}
	if hook.URL == "" {
		httputil.WriteBadRequest(w, "url is required")
		return
	}
	if !hook.TriggerType.Valid() {
		httputil.WriteBadRequest(w, "invalid trigger_type")
		return
	}
	hook.AppCode = appCode

	if err := s.webhooks.Create(r.Context(), &hook); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteCreated(w, hook)
}

func (s *Server) updateWebhook(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	appCode, ok := httputil.ParsePathStringOrError(w, r, "app")
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := s.requireManage(r, actor, appCode); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	if _, err := s.appWebhook(r, appCode, id); err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	var hook webhooks.Webhook
	if !httputil.ParseJSONOrError(w, r, &hook) {
		return
	}
	if !hook.TriggerType.Valid() {
		httputil.WriteBadRequest(w, "invalid trigger_type")
		return
	}
	hook.ID = id
	hook.AppCode = appCode

	if err := s.webhooks.Update(r.Context(), &hook); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, hook)
}

func (s *Server) setWebhookActive(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	appCode, ok := httputil.ParsePathStringOrError(w, r, "app")
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := s.requireManage(r, actor, appCode); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	if _, err := s.appWebhook(r, appCode, id); err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	var req struct {
		Active *bool `json:"active"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Active == nil {
		httputil.WriteBadRequest(w, "active is required")
		return
	}

	if err := s.webhooks.SetActive(r.Context(), id, *req.Active); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"id": id, "is_active": *req.Active})
}

func (s *Server) deleteWebhook(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	appCode, ok := httputil.ParsePathStringOrError(w, r, "app")
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := s.requireManage(r, actor, appCode); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	if _, err := s.appWebhook(r, appCode, id); err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	if err := s.webhooks.Delete(r.Context(), id); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) listDeliveries(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	appCode, ok := httputil.ParsePathStringOrError(w, r, "app")
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := s.requireManage(r, actor, appCode); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	if _, err := s.appWebhook(r, appCode, id); err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	limit, err := httputil.ParseQueryInt(r, "limit", 50)
	if err != nil {
		httputil.WriteBadRequest(w, "invalid limit")
		return
	}

	logs, err := s.webhooks.ListDeliveries(r.Context(), id, limit)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, logs)
}

func (s *Server) deliveryStats(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	appCode, ok := httputil.ParsePathStringOrError(w, r, "app")
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := s.requireManage(r, actor, appCode); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	if _, err := s.appWebhook(r, appCode, id); err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	stats, err := s.webhooks.DeliveryStats(r.Context(), id)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, stats)
}
