package api

import (
	"net/http"

	"github.com/deskforge/deskforge/pkg/apps"
	"github.com/deskforge/deskforge/pkg/httputil"
	"github.com/deskforge/deskforge/pkg/middleware"
	"github.com/deskforge/deskforge/pkg/permissions"
)

func (s *Server) actor(w http.ResponseWriter, r *http.Request) (permissions.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteErrorMessage(w, http.StatusUnauthorized, "missing identity headers")
		return permissions.Actor{}, false
	}
	return actor, true
}

func (s *Server) createApp(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var app apps.App
	if !httputil.ParseJSONOrError(w, r, &app) {
		return
	}
	if app.Code == "" {
		httputil.WriteBadRequest(w, "code is required")
		return
	}

	created, err := s.apps.Create(r.Context(), actor, &app)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteCreated(w, created)
}

func (s *Server) listApps(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	includeDeleted, err := httputil.ParseQueryBool(r, "include_deleted", false)
	if err != nil {
		httputil.WriteBadRequest(w, "invalid include_deleted")
		return
	}

	list, err := s.apps.List(r.Context(), actor, includeDeleted)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

func (s *Server) getApp(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	code, ok := httputil.ParsePathStringOrError(w, r, "app")
	if !ok {
		return
	}

	app, err := s.apps.Get(r.Context(), actor, code)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, app)
}

func (s *Server) updateApp(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	code, ok := httputil.ParsePathStringOrError(w, r, "app")
	if !ok {
		return
	}

	var app apps.App
	if !httputil.ParseJSONOrError(w, r, &app) {
		return
	}
	// the path owns the code, the body cannot move the app
	app.Code = code

	updated, err := s.apps.Update(r.Context(), actor, &app)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, updated)
}

func (s *Server) updateAppSettings(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	code, ok := httputil.ParsePathStringOrError(w, r, "app")
	if !ok {
		return
	}

	var patch apps.SettingsPatch
	if !httputil.ParseJSONOrError(w, r, &patch) {
		return
	}

	updated, err := s.apps.UpdateSettings(r.Context(), actor, code, patch)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, updated)
}

func (s *Server) deleteApp(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	code, ok := httputil.ParsePathStringOrError(w, r, "app")
	if !ok {
		return
	}

	deleted, err := s.apps.Delete(r.Context(), actor, code)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, deleted)
}

func (s *Server) restoreApp(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	code, ok := httputil.ParsePathStringOrError(w, r, "app")
	if !ok {
		return
	}

	restored, err := s.apps.Restore(r.Context(), actor, code)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, restored)
}

func (s *Server) listFields(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	code, ok := httputil.ParsePathStringOrError(w, r, "app")
	if !ok {
		return
	}

	fields, err := s.apps.Fields(r.Context(), actor, code)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, fields)
}

func (s *Server) addField(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	code, ok := httputil.ParsePathStringOrError(w, r, "app")
	if !ok {
		return
	}

	var field apps.Field
	if !httputil.ParseJSONOrError(w, r, &field) {
		return
	}

	created, err := s.apps.AddField(r.Context(), actor, code, &field)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteCreated(w, created)
}

func (s *Server) updateField(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	code, ok := httputil.ParsePathStringOrError(w, r, "app")
	if !ok {
		return
	}
	fieldCode, ok := httputil.ParsePathStringOrError(w, r, "field")
	if !ok {
		return
	}

	var field apps.Field
	if !httputil.ParseJSONOrError(w, r, &field) {
		return
	}
	field.FieldCode = fieldCode

	updated, err := s.apps.UpdateField(r.Context(), actor, code, &field)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, updated)
}

func (s *Server) removeField(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	code, ok := httputil.ParsePathStringOrError(w, r, "app")
	if !ok {
		return
	}
	fieldCode, ok := httputil.ParsePathStringOrError(w, r, "field")
	if !ok {
		return
	}

	if err := s.apps.RemoveField(r.Context(), actor, code, fieldCode); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	templates, err := s.apps.Templates(r.Context(), actor)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, templates)
}

func (s *Server) saveTemplate(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var tmpl apps.Template
	if !httputil.ParseJSONOrError(w, r, &tmpl) {
		return
	}
	if tmpl.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}

	saved, err := s.apps.SaveTemplate(r.Context(), actor, &tmpl)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteCreated(w, saved)
}

func (s *Server) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := s.apps.DeleteTemplate(r.Context(), actor, id); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) instantiateTemplate(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Code string `json:"code"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Code == "" {
		httputil.WriteBadRequest(w, "code is required")
		return
	}

	app, err := s.apps.InstantiateTemplate(r.Context(), actor, id, req.Code)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteCreated(w, app)
}
