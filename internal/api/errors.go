package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jaxxstorm/smokestack/internal/api/models"
	"github.com/jaxxstorm/smokestack/internal/domain"
)

// writeErrorResponse writes the standard error envelope.
func (s *Server) writeErrorResponse(w http.ResponseWriter, status int, code string, details []string, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.ErrorResponse{Error: code, Details: details, RequestID: requestID})
}

// writeJSON writes v as a JSON response with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// writeDomainError maps a *domain.CoreError (or plain error) to the
// HTTP error envelope. CoreError.Details is flattened to strings so it
// fits the envelope's Details []string field.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := r.Header.Get("X-Request-ID")

	var ce *domain.CoreError
	if !errors.As(err, &ce) {
		s.writeErrorResponse(w, http.StatusInternalServerError, "internal", nil, requestID)
		return
	}

	status := statusForKind(ce.Kind)
	var details []string
	if ce.Message != "" {
		details = append(details, ce.Message)
	}
	for k, v := range ce.Details {
		details = append(details, k, toString(v))
	}
	s.writeErrorResponse(w, status, string(ce.Kind), details, requestID)
}

func statusForKind(kind domain.Kind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindInvalidTransition, domain.KindDependencyPending, domain.KindDependencyUnsatisfiable,
		domain.KindNeedsApproval, domain.KindLockConflict, domain.KindCycleDetected,
		domain.KindScheduleConflictWithDependency, domain.KindConflict:
		return http.StatusConflict
	case domain.KindUnauthorized:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func toString(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
