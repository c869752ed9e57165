package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/jaxxstorm/smokestack/internal/api/models"
	"github.com/jaxxstorm/smokestack/internal/domain"
	"github.com/jaxxstorm/smokestack/internal/history"
	"github.com/jaxxstorm/smokestack/internal/store"
)

// requestActor resolves the acting identity. Bearer tokens are resolved
// upstream; the resolved identity arrives on the X-Smokestack-Actor
// header (or, for tooling convenience, an actor query parameter).
func requestActor(r *http.Request) string {
	if actor := r.Header.Get("X-Smokestack-Actor"); actor != "" {
		return actor
	}
	return r.URL.Query().Get("actor")
}

func operationIDParam(r *http.Request) (domain.OperationID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return domain.OperationID(id), true
}

func isYAMLRequest(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.Contains(ct, "yaml")
}

// handleCreateOperation creates a new operation from an operation
// description. JSON bodies are checked against the description schema;
// YAML bodies are decoded with strict field checking. Either way,
// unknown fields are rejected rather than silently dropped.
func (s *Server) handleCreateOperation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := r.Header.Get("X-Request-ID")

	actor := requestActor(r)
	if actor == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{"acting user is required"}, requestID)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{"failed to read request body"}, requestID)
		return
	}
	defer r.Body.Close()

	var desc domain.OperationDescription
	if isYAMLRequest(r) {
		dec := yaml.NewDecoder(strings.NewReader(string(body)))
		dec.KnownFields(true)
		if err := dec.Decode(&desc); err != nil {
			s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{err.Error()}, requestID)
			return
		}
	} else {
		if err := validateDescription(body); err != nil {
			s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", schemaErrorDetails(err), requestID)
			return
		}
		if err := json.Unmarshal(body, &desc); err != nil {
			s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{err.Error()}, requestID)
			return
		}
	}

	op, err := s.engine.Create(ctx, &desc, actor)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.logger.Info("operation created",
		zap.Int64("operation_id", int64(op.ID)),
		zap.String("actor", actor),
		zap.String("request_id", requestID))

	s.writeJSON(w, http.StatusCreated, models.ToOperationResponse(op))
}

// handleGetOperation retrieves a single operation by id
func (s *Server) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	id, ok := operationIDParam(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{"operation id must be a positive integer"}, requestID)
		return
	}

	op, found := s.engine.GetOperation(id)
	if !found {
		s.writeErrorResponse(w, http.StatusNotFound, "not_found", nil, requestID)
		return
	}
	s.writeJSON(w, http.StatusOK, models.ToOperationResponse(op))
}

// handleListOperations lists operations with optional filters:
// component, tag, status, from, to, and mine.
func (s *Server) handleListOperations(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	q := r.URL.Query()

	filter := store.OperationFilter{
		Component: q.Get("component"),
		Tag:       q.Get("tag"),
	}
	if raw := q.Get("status"); raw != "" {
		status := domain.Status(raw)
		if !status.IsValid() {
			s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{"unknown status: " + raw}, requestID)
			return
		}
		filter.Status = status
	}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{"from: " + err.Error()}, requestID)
			return
		}
		filter.From = &t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{"to: " + err.Error()}, requestID)
			return
		}
		filter.To = &t
	}
	if q.Get("mine") == "true" {
		actor := requestActor(r)
		if actor == "" {
			s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{"mine requires an acting user"}, requestID)
			return
		}
		filter.Mine = actor
	}

	ops := s.engine.ListOperations(filter)
	resp := models.ListOperationsResponse{Total: len(ops)}
	resp.Operations = make([]models.OperationResponse, 0, len(ops))
	for _, op := range ops {
		resp.Operations = append(resp.Operations, models.ToOperationResponse(op))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleEditOperation applies a partial update to an operation's
// mutable fields.
func (s *Server) handleEditOperation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := r.Header.Get("X-Request-ID")

	id, ok := operationIDParam(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{"operation id must be a positive integer"}, requestID)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{"failed to read request body"}, requestID)
		return
	}
	defer r.Body.Close()

	if err := validateEdit(body); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", schemaErrorDetails(err), requestID)
		return
	}

	var req models.EditOperationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{err.Error()}, requestID)
		return
	}

	actor := requestActor(r)
	if req.Actor != "" {
		actor = req.Actor
	}
	if actor == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{"acting user is required"}, requestID)
		return
	}

	var startsAt, endsAt *time.Time
	if req.StartsAt != nil && *req.StartsAt != "" {
		t, err := time.Parse(time.RFC3339, *req.StartsAt)
		if err != nil {
			s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{"starts_at: " + err.Error()}, requestID)
			return
		}
		startsAt = &t
	}
	if req.EndsAt != nil && *req.EndsAt != "" {
		t, err := time.Parse(time.RFC3339, *req.EndsAt)
		if err != nil {
			s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{"ends_at: " + err.Error()}, requestID)
			return
		}
		endsAt = &t
	}

	expectedVersion := 0
	if req.Version != nil {
		expectedVersion = *req.Version
	}

	op, err := s.engine.Edit(ctx, id, expectedVersion, func(op *domain.Operation) {
		if req.Title != nil {
			op.Title = *req.Title
		}
		if req.Purpose != nil {
			op.Purpose = *req.Purpose
		}
		if req.URL != nil {
			op.URL = *req.URL
		}
		if req.StartsAt != nil {
			op.StartsAt = startsAt
		}
		if req.EndsAt != nil {
			op.EndsAt = endsAt
		}
		if req.Annotations != nil {
			op.Annotations = req.Annotations
		}
		if req.Components != nil {
			op.Components = *req.Components
		}
		if req.Locks != nil {
			op.Locks = *req.Locks
		}
		if req.Tags != nil {
			op.Tags = *req.Tags
		}
		if req.DependsOn != nil {
			op.DependsOn = nil
			for _, dep := range *req.DependsOn {
				op.DependsOn = append(op.DependsOn, domain.OperationID(dep))
			}
		}
		if req.Operators != nil {
			op.Operators = *req.Operators
		}
	}, actor)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, models.ToOperationResponse(op))
}

// handleTransition drives the state machine: body {to, note?}.
func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := r.Header.Get("X-Request-ID")

	id, ok := operationIDParam(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{"operation id must be a positive integer"}, requestID)
		return
	}

	var req models.TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{err.Error()}, requestID)
		return
	}
	defer r.Body.Close()

	actor := requestActor(r)
	if req.Actor != "" {
		actor = req.Actor
	}
	if actor == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{"acting user is required"}, requestID)
		return
	}
	if !req.To.IsValid() {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{"unknown status: " + string(req.To)}, requestID)
		return
	}

	op, err := s.engine.Transition(ctx, id, req.To, actor, req.Note)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.logger.Info("operation transitioned",
		zap.Int64("operation_id", int64(op.ID)),
		zap.String("to", string(op.Status)),
		zap.String("actor", actor),
		zap.String("request_id", requestID))

	s.writeJSON(w, http.StatusOK, models.ToOperationResponse(op))
}

// handleApprove records an approval by the acting user.
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := r.Header.Get("X-Request-ID")

	id, ok := operationIDParam(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{"operation id must be a positive integer"}, requestID)
		return
	}

	actor := requestActor(r)
	if r.ContentLength > 0 {
		var req models.ApproveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{err.Error()}, requestID)
			return
		}
		if req.Actor != "" {
			actor = req.Actor
		}
	}
	defer r.Body.Close()
	if actor == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{"acting user is required"}, requestID)
		return
	}

	op, err := s.engine.Approve(ctx, id, actor)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, models.ToOperationResponse(op))
}

// handleSetApprovals replaces the approval set wholesale; the path an
// external pull-request synchronizer uses instead of incremental
// approve calls.
func (s *Server) handleSetApprovals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := r.Header.Get("X-Request-ID")

	id, ok := operationIDParam(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{"operation id must be a positive integer"}, requestID)
		return
	}

	var req models.SetApprovalsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{err.Error()}, requestID)
		return
	}
	defer r.Body.Close()

	actor := requestActor(r)
	if req.Actor != "" {
		actor = req.Actor
	}
	if actor == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{"acting user is required"}, requestID)
		return
	}

	s.logger.Info("approvals replaced",
		zap.Int64("operation_id", int64(id)),
		zap.String("actor", actor),
		zap.String("source", "external"),
		zap.String("request_id", requestID))

	op, err := s.engine.SetApprovals(ctx, id, req.Names, actor)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, models.ToOperationResponse(op))
}

// handleEditAnnotations updates only annotations; permitted on terminal
// operations as well.
func (s *Server) handleEditAnnotations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := r.Header.Get("X-Request-ID")

	id, ok := operationIDParam(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{"operation id must be a positive integer"}, requestID)
		return
	}

	var req models.EditAnnotationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{err.Error()}, requestID)
		return
	}
	defer r.Body.Close()

	actor := requestActor(r)
	if req.Actor != "" {
		actor = req.Actor
	}
	if actor == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{"acting user is required"}, requestID)
		return
	}

	op, err := s.engine.EditAnnotations(ctx, id, req.Annotations, actor)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, models.ToOperationResponse(op))
}

// handleAddComment appends a comment to an operation.
func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := r.Header.Get("X-Request-ID")

	id, ok := operationIDParam(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{"operation id must be a positive integer"}, requestID)
		return
	}

	var req models.CommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{err.Error()}, requestID)
		return
	}
	defer r.Body.Close()

	actor := requestActor(r)
	if req.Actor != "" {
		actor = req.Actor
	}
	if actor == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{"acting user is required"}, requestID)
		return
	}
	if strings.TrimSpace(req.Body) == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{"comment body is required"}, requestID)
		return
	}

	op, err := s.engine.AddComment(ctx, id, actor, req.Body)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, models.ToOperationResponse(op))
}

// handleListComments returns an operation's comment log.
func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	id, ok := operationIDParam(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{"operation id must be a positive integer"}, requestID)
		return
	}
	op, found := s.engine.GetOperation(id)
	if !found {
		s.writeErrorResponse(w, http.StatusNotFound, "not_found", nil, requestID)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"comments": op.Comments})
}

// handleOperationHistory returns the history records for one operation.
func (s *Server) handleOperationHistory(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	id, ok := operationIDParam(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{"operation id must be a positive integer"}, requestID)
		return
	}
	if _, found := s.engine.GetOperation(id); !found {
		s.writeErrorResponse(w, http.StatusNotFound, "not_found", nil, requestID)
		return
	}

	filter, err := historyFilterFromQuery(r)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{err.Error()}, requestID)
		return
	}
	filter.OpID = id

	s.writeHistory(w, r, filter)
}

// handleQueryHistory queries the History Log across all operations by
// actor, component, tag, op id and time window.
func (s *Server) handleQueryHistory(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	filter, err := historyFilterFromQuery(r)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{err.Error()}, requestID)
		return
	}
	s.writeHistory(w, r, filter)
}

func (s *Server) writeHistory(w http.ResponseWriter, r *http.Request, filter history.Filter) {
	requestID := r.Header.Get("X-Request-ID")

	records, err := s.engine.QueryHistory(r.Context(), filter)
	if err != nil {
		s.logger.Error("history query failed", zap.Error(err), zap.String("request_id", requestID))
		s.writeErrorResponse(w, http.StatusInternalServerError, "internal", nil, requestID)
		return
	}

	out := make([]models.HistoryRecordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, models.ToHistoryRecordResponse(rec))
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"records": out, "total": len(out)})
}

func historyFilterFromQuery(r *http.Request) (history.Filter, error) {
	q := r.URL.Query()
	filter := history.Filter{
		Actor:     q.Get("actor"),
		Component: q.Get("component"),
		Tag:       q.Get("tag"),
	}
	if raw := q.Get("op"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return filter, err
		}
		filter.OpID = domain.OperationID(id)
	}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, err
		}
		filter.From = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, err
		}
		filter.To = t
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return filter, err
		}
		filter.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return filter, err
		}
		filter.Offset = n
	}
	return filter, nil
}

// handleExportDescription renders an operation back to its
// round-trippable YAML description.
func (s *Server) handleExportDescription(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	id, ok := operationIDParam(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_input", []string{"operation id must be a positive integer"}, requestID)
		return
	}
	op, found := s.engine.GetOperation(id)
	if !found {
		s.writeErrorResponse(w, http.StatusNotFound, "not_found", nil, requestID)
		return
	}

	out, err := yaml.Marshal(domain.FromOperation(op))
	if err != nil {
		s.logger.Error("description marshal failed", zap.Error(err), zap.String("request_id", requestID))
		s.writeErrorResponse(w, http.StatusInternalServerError, "internal", nil, requestID)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}
