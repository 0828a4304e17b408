package api

import (
	"net/http"
	"time"

	"github.com/deskforge/deskforge/pkg/apperrors"
	"github.com/deskforge/deskforge/pkg/audit"
	"github.com/deskforge/deskforge/pkg/httputil"
)

// listAuditEvents is restricted to super-roles; the trail spans every
// app so per-app grants cannot scope it.
func (s *Server) listAuditEvents(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	if !s.superRoles.Contains(actor.Role) {
		httputil.WriteAppError(w, apperrors.Unauthorized("role %q cannot read the audit trail", actor.Role))
		return
	}

	limit, err := httputil.ParseQueryInt(r, "limit", 100)
	if err != nil {
		httputil.WriteBadRequest(w, "invalid limit")
		return
	}
	q := audit.Query{
		EventType: httputil.ParseQueryString(r, "event_type", ""),
		Actor:     httputil.ParseQueryString(r, "actor", ""),
		AppCode:   httputil.ParseQueryString(r, "app", ""),
		Limit:     limit,
	}
	if since := httputil.ParseQueryString(r, "since", ""); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			httputil.WriteBadRequest(w, "since must be RFC3339")
			return
		}
		q.Since = t
	}

	events, err := s.trail.List(r.Context(), q)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, events)
}
