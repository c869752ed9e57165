// Package models holds the Request Facade's wire-level request and
// response shapes, distinct from internal/domain's entities: these
// carry JSON tags and derived display fields (age, approval counts)
// that have no business being on the domain types themselves.
package models

import (
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jaxxstorm/smokestack/internal/domain"
)

// ErrorResponse is the standard error envelope returned by every
// handler that fails.
type ErrorResponse struct {
	Error     string   `json:"error"`
	Details   []string `json:"details,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
}

// OperationResponse renders a domain.Operation for API responses,
// adding a humanized Age alongside the raw timestamps.
type OperationResponse struct {
	ID          domain.OperationID   `json:"id"`
	Title       string               `json:"title"`
	Purpose     string               `json:"purpose,omitempty"`
	URL         string               `json:"url,omitempty"`
	Status      domain.Status        `json:"status"`
	StartsAt    *time.Time           `json:"starts_at,omitempty"`
	EndsAt      *time.Time           `json:"ends_at,omitempty"`
	Annotations map[string]string    `json:"annotations,omitempty"`
	Components  []string             `json:"components,omitempty"`
	Locks       []string             `json:"locks,omitempty"`
	Tags        []string             `json:"tags,omitempty"`
	DependsOn   []domain.OperationID `json:"depends_on,omitempty"`
	Operators   []string             `json:"operators,omitempty"`
	ApprovedBy  []string             `json:"approved_by,omitempty"`
	Comments    []domain.Comment     `json:"comments,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
	Age         string               `json:"age"`
	Version     int                  `json:"version"`
}

// ToOperationResponse converts a domain operation to its API response.
func ToOperationResponse(op *domain.Operation) OperationResponse {
	return OperationResponse{
		ID:          op.ID,
		Title:       op.Title,
		Purpose:     op.Purpose,
		URL:         op.URL,
		Status:      op.Status,
		StartsAt:    op.StartsAt,
		EndsAt:      op.EndsAt,
		Annotations: op.Annotations,
		Components:  op.Components,
		Locks:       op.Locks,
		Tags:        op.Tags,
		DependsOn:   op.DependsOn,
		Operators:   op.Operators,
		ApprovedBy:  op.ApprovedBy,
		Comments:    op.Comments,
		CreatedAt:   op.CreatedAt,
		UpdatedAt:   op.UpdatedAt,
		Age:         humanize.Time(op.CreatedAt),
		Version:     op.Version,
	}
}

// ListOperationsResponse is the envelope for operation listings: every
// matching operation, unpaged, plus their count.
type ListOperationsResponse struct {
	Operations []OperationResponse `json:"operations"`
	Total      int                 `json:"total"`
}

// EditOperationRequest drives PATCH /operations/{id}. Every field is
// optional; nil means "leave unchanged", and a pointer to the zero
// value clears. Version, when set, must match the operation's current
// version or the edit is rejected as a concurrent modification.
type EditOperationRequest struct {
	Title       *string           `json:"title,omitempty"`
	Purpose     *string           `json:"purpose,omitempty"`
	URL         *string           `json:"url,omitempty"`
	StartsAt    *string           `json:"starts_at,omitempty"`
	EndsAt      *string           `json:"ends_at,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`
	Components  *[]string         `json:"components,omitempty"`
	Locks       *[]string         `json:"locks,omitempty"`
	Tags        *[]string         `json:"tags,omitempty"`
	DependsOn   *[]int64          `json:"depends_on,omitempty"`
	Operators   *[]string         `json:"operators,omitempty"`
	Actor       string            `json:"actor,omitempty"`
	Version     *int              `json:"version,omitempty"`
}

// TransitionRequest drives POST /operations/{id}/transition.
type TransitionRequest struct {
	To    domain.Status `json:"to" validate:"required"`
	Actor string        `json:"actor" validate:"required"`
	Note  string        `json:"note,omitempty"`
}

// ApproveRequest drives POST /operations/{id}/approve.
type ApproveRequest struct {
	Actor string `json:"actor" validate:"required"`
}

// SetApprovalsRequest drives PUT /operations/{id}/approvals, the
// external-synchronizer path that replaces approved_by wholesale.
type SetApprovalsRequest struct {
	Names []string `json:"users" validate:"required"`
	Actor string   `json:"actor" validate:"required"`
}

// EditAnnotationsRequest drives PATCH /operations/{id}/annotations.
type EditAnnotationsRequest struct {
	Annotations map[string]string `json:"annotations"`
	Actor       string            `json:"actor" validate:"required"`
}

// CommentRequest drives POST /operations/{id}/comments.
type CommentRequest struct {
	Actor string `json:"actor" validate:"required"`
	Body  string `json:"body" validate:"required"`
}

// ComponentResponse renders a domain.Component.
type ComponentResponse struct {
	Name               string   `json:"name"`
	Label              string   `json:"label"`
	Description        string   `json:"description,omitempty"`
	URL                string   `json:"url,omitempty"`
	Owners             []string `json:"owners,omitempty"`
	RequiresApprovalBy string   `json:"requires_approval_by,omitempty"`
	RequiredApprovals  int      `json:"required_approvals"`
}

// ToComponentResponse converts a domain component to its API response.
// Label is the component's name title-cased for display, independent of
// the folded key used for uniqueness and lookups.
func ToComponentResponse(c *domain.Component) ComponentResponse {
	return ComponentResponse{
		Name:               c.Name,
		Label:              domain.TitleName(c.Name),
		Description:        c.Description,
		URL:                c.URL,
		Owners:             c.Owners,
		RequiresApprovalBy: c.RequiresApprovalBy,
		RequiredApprovals:  c.RequiredApprovals,
	}
}

// TagResponse renders a domain.Tag.
type TagResponse struct {
	Name               string `json:"name"`
	Label              string `json:"label"`
	Description        string `json:"description,omitempty"`
	RequiresApprovalBy string `json:"requires_approval_by,omitempty"`
	RequiredApprovals  int    `json:"required_approvals"`
}

// ToTagResponse converts a domain tag to its API response.
func ToTagResponse(t *domain.Tag) TagResponse {
	return TagResponse{
		Name:               t.Name,
		Label:              domain.TitleName(t.Name),
		Description:        t.Description,
		RequiresApprovalBy: t.RequiresApprovalBy,
		RequiredApprovals:  t.RequiredApprovals,
	}
}

// GroupResponse renders a domain.Group.
type GroupResponse struct {
	Name        string   `json:"name"`
	Label       string   `json:"label"`
	Description string   `json:"description,omitempty"`
	Members     []string `json:"members,omitempty"`
}

// ToGroupResponse converts a domain group to its API response.
func ToGroupResponse(g *domain.Group) GroupResponse {
	return GroupResponse{Name: g.Name, Label: domain.TitleName(g.Name), Description: g.Description, Members: g.Members}
}

// UserResponse renders a domain.User.
type UserResponse struct {
	Name   string          `json:"name"`
	Kind   domain.UserKind `json:"kind"`
	Groups []string        `json:"groups,omitempty"`
}

// ToUserResponse converts a domain user to its API response.
func ToUserResponse(u *domain.User) UserResponse {
	return UserResponse{Name: u.Name, Kind: u.Kind, Groups: u.Groups}
}

// SinkResponse renders a domain.SystemSink.
type SinkResponse struct {
	ID             string             `json:"id"`
	Selector       domain.Selector    `json:"selector"`
	EventFilter    []domain.EventKind `json:"event_filter,omitempty"`
	DeliveryTarget string             `json:"delivery_target"`
	Kind           domain.SinkKind    `json:"kind"`
	Degraded       bool               `json:"degraded"`
	FailureCount   int                `json:"failure_count"`
}

// ToSinkResponse converts a domain sink to its API response.
func ToSinkResponse(s *domain.SystemSink) SinkResponse {
	return SinkResponse{
		ID:             s.ID,
		Selector:       s.Selector,
		EventFilter:    s.EventFilter,
		DeliveryTarget: s.DeliveryTarget,
		Kind:           s.Kind,
		Degraded:       s.Degraded,
		FailureCount:   s.FailureCount,
	}
}

// SubscriptionRequest drives POST /subscriptions and its unsubscribe
// counterpart; a non-empty Subscriber in the body is used as given,
// otherwise it is filled in from the request's actor (the
// X-Smokestack-Actor header, then the actor query parameter).
type SubscriptionRequest struct {
	Subscriber string          `json:"subscriber" validate:"required"`
	Selector   domain.Selector `json:"selector"`
}

// HistoryRecordResponse renders a domain.HistoryRecord.
type HistoryRecordResponse struct {
	OpID       domain.OperationID `json:"op_id"`
	Seq        int                `json:"seq"`
	Timestamp  time.Time          `json:"timestamp"`
	Actor      string             `json:"actor"`
	From       domain.Status      `json:"from_status"`
	To         domain.Status      `json:"to_status"`
	Note       string             `json:"note,omitempty"`
	Components []string           `json:"components,omitempty"`
	Tags       []string           `json:"tags,omitempty"`
}

// ToHistoryRecordResponse converts a domain history record to its API response.
func ToHistoryRecordResponse(r domain.HistoryRecord) HistoryRecordResponse {
	return HistoryRecordResponse{
		OpID: r.OpID, Seq: r.Seq, Timestamp: r.Timestamp, Actor: r.Actor,
		From: r.From, To: r.To, Note: r.Note, Components: r.Components, Tags: r.Tags,
	}
}
