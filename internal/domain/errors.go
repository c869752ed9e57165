package domain

import "fmt"

// Kind enumerates the error kinds surfaced at the Request Facade.
type Kind string

const (
	KindNotFound                       Kind = "not_found"
	KindInvalidInput                   Kind = "invalid_input"
	KindInvalidTransition              Kind = "invalid_transition"
	KindDependencyPending              Kind = "dependency_pending"
	KindDependencyUnsatisfiable        Kind = "dependency_unsatisfiable"
	KindNeedsApproval                  Kind = "needs_approval"
	KindLockConflict                   Kind = "lock_conflict"
	KindCycleDetected                  Kind = "cycle_detected"
	KindScheduleConflictWithDependency Kind = "schedule_conflict_with_dependency"
	KindUnauthorized                   Kind = "unauthorized"
	KindConflict                       Kind = "conflict"
	KindInternal                       Kind = "internal"
)

// CoreError is the structured error the Admission Controller and
// Transition Engine return. Details carries kind-specific context (e.g.
// the blocking op for lock_conflict, or have/need for needs_approval).
type CoreError struct {
	Kind    Kind
	Message string
	Details map[string]interface{}
}

func (e *CoreError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

// NewError builds a CoreError with no details.
func NewError(kind Kind, message string) *CoreError {
	return &CoreError{Kind: kind, Message: message}
}

// NewErrorf builds a CoreError with a formatted message.
func NewErrorf(kind Kind, format string, args ...interface{}) *CoreError {
	return &CoreError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithDetails attaches structured detail fields, returning the receiver.
func (e *CoreError) WithDetails(details map[string]interface{}) *CoreError {
	e.Details = details
	return e
}

// IsKind reports whether err is a *CoreError of the given kind.
func IsKind(err error, kind Kind) bool {
	ce, ok := err.(*CoreError)
	return ok && ce.Kind == kind
}
