package api

import (
	"net/http"

	"github.com/deskforge/deskforge/pkg/apperrors"
	"github.com/deskforge/deskforge/pkg/httputil"
	"github.com/deskforge/deskforge/pkg/permissions"
)

// requireManage gates permission administration on the manage grant.
func (s *Server) requireManage(r *http.Request, actor permissions.Actor, appCode string) error {
	decision, err := s.evaluator.Evaluate(r.Context(), actor.Role, appCode, permissions.ActionManage)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return apperrors.Unauthorized("role %q cannot manage app %q", actor.Role, appCode)
	}
	return nil
}

func (s *Server) listGrants(w http.ResponseWriter, r *http.Request) {
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

	grants, err := s.permissions.ListGrants(r.Context(), appCode)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, grants)
}

func (s *Server) upsertGrant(w http.ResponseWriter, r *http.Request) {
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

	var grant permissions.Grant
	if !httputil.ParseJSONOrError(w, r, &grant) {
		return
	}
	if grant.Role == "" {
		httputil.WriteBadRequest(w, "role is required")
		return
	}
	grant.AppCode = appCode

	if err := s.permissions.UpsertGrant(r.Context(), &grant); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	s.evaluator.Invalidate(r.Context(), appCode, grant.Role)
	httputil.WriteSuccess(w, grant)
}

func (s *Server) deleteGrant(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	appCode, ok := httputil.ParsePathStringOrError(w, r, "app")
	if !ok {
		return
	}
	role, ok := httputil.ParsePathStringOrError(w, r, "role")
	if !ok {
		return
	}
	if err := s.requireManage(r, actor, appCode); err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	if err := s.permissions.DeleteGrant(r.Context(), appCode, role); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	s.evaluator.Invalidate(r.Context(), appCode, role)
	httputil.WriteNoContent(w)
}

func (s *Server) listFieldPermissions(w http.ResponseWriter, r *http.Request) {
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

	perms, err := s.permissions.ListFieldPermissions(r.Context(), appCode)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, perms)
}

func (s *Server) upsertFieldPermission(w http.ResponseWriter, r *http.Request) {
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

	var fp permissions.FieldPermission
	if !httputil.ParseJSONOrError(w, r, &fp) {
		return
	}
	if fp.FieldCode == "" || fp.Role == "" {
		httputil.WriteBadRequest(w, "field_code and role are required")
		return
	}
	if fp.Visibility != permissions.VisibilityVisible && fp.Visibility != permissions.VisibilityHidden {
		httputil.WriteBadRequest(w, "visibility must be visible or hidden")
		return
	}
	fp.AppCode = appCode

	if err := s.permissions.UpsertFieldPermission(r.Context(), &fp); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	s.evaluator.Invalidate(r.Context(), appCode, fp.Role)
	httputil.WriteSuccess(w, fp)
}

func (s *Server) deleteFieldPermission(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	appCode, ok := httputil.ParsePathStringOrError(w, r, "app")
	if !ok {
		return
	}
	fieldCode, ok := httputil.ParsePathStringOrError(w, r, "field")
	if !ok {
		return
	}
	role, ok := httputil.ParsePathStringOrError(w, r, "role")
	if !ok {
		return
	}
	if err := s.requireManage(r, actor, appCode); err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	if err := s.permissions.DeleteFieldPermission(r.Context(), appCode, fieldCode, role); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	s.evaluator.Invalidate(r.Context(), appCode, role)
	httputil.WriteNoContent(w)
}
