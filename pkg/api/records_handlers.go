package api

import (
	"net/http"

	"github.com/deskforge/deskforge/pkg/httputil"
	"github.com/deskforge/deskforge/pkg/records"
)

func (s *Server) createRecord(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	appCode, ok := httputil.ParsePathStringOrError(w, r, "app")
	if !ok {
		return
	}

	var req struct {
		FieldData map[string]interface{} `json:"field_data"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.FieldData == nil {
		httputil.WriteBadRequest(w, "field_data is required")
		return
	}

	record, err := s.records.Create(r.Context(), actor, appCode, req.FieldData)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteCreated(w, record)
}

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	appCode, ok := httputil.ParsePathStringOrError(w, r, "app")
	if !ok {
		return
	}

	limit, err := httputil.ParseQueryInt(r, "limit", 50)
	if err != nil {
		httputil.WriteBadRequest(w, "invalid limit")
		return
	}
	offset, err := httputil.ParseQueryInt(r, "offset", 0)
	if err != nil {
		httputil.WriteBadRequest(w, "invalid offset")
		return
	}
	opts := records.ListOptions{
		Status: httputil.ParseQueryString(r, "status", ""),
		Limit:  limit,
		Offset: offset,
	}

	list, err := s.records.List(r.Context(), actor, appCode, opts)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

func (s *Server) getRecord(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	appCode, ok := httputil.ParsePathStringOrError(w, r, "app")
	if !ok {
		return
	}
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	record, err := s.records.Get(r.Context(), actor, appCode, id)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, record)
}

func (s *Server) updateRecord(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	appCode, ok := httputil.ParsePathStringOrError(w, r, "app")
	if !ok {
		return
	}
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		FieldData map[string]interface{} `json:"field_data"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.FieldData == nil {
		httputil.WriteBadRequest(w, "field_data is required")
		return
	}

	record, err := s.records.Update(r.Context(), actor, appCode, id, req.FieldData)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, record)
}

func (s *Server) changeRecordStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	appCode, ok := httputil.ParsePathStringOrError(w, r, "app")
	if !ok {
		return
	}
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Status == "" {
		httputil.WriteBadRequest(w, "status is required")
		return
	}

	if err := s.records.ChangeStatus(r.Context(), actor, appCode, id, req.Status); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]string{"status": req.Status})
}

func (s *Server) deleteRecord(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	appCode, ok := httputil.ParsePathStringOrError(w, r, "app")
	if !ok {
		return
	}
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := s.records.Delete(r.Context(), actor, appCode, id); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) bulkDeleteRecords(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	appCode, ok := httputil.ParsePathStringOrError(w, r, "app")
	if !ok {
		return
	}

	var req struct {
		IDs []string `json:"ids"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	deleted, err := s.records.BulkDelete(r.Context(), actor, appCode, req.IDs)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"requested": len(req.IDs),
		"deleted":   deleted,
	})
}

func (s *Server) listComments(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	appCode, ok := httputil.ParsePathStringOrError(w, r, "app")
	if !ok {
		return
	}
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	comments, err := s.records.Comments(r.Context(), actor, appCode, id)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, comments)
}

func (s *Server) addComment(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	appCode, ok := httputil.ParsePathStringOrError(w, r, "app")
	if !ok {
		return
	}
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Body string `json:"body"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	comment, err := s.records.AddComment(r.Context(), actor, appCode, id, req.Body)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteCreated(w, comment)
}
