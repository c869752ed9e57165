package domain

import "time"

// EventKind enumerates the kinds of events the Event Bus publishes.
type EventKind string

const (
	EventCreated       EventKind = "created"
	EventEdited        EventKind = "edited"
	EventStatusChanged EventKind = "status_changed"
	EventApproved      EventKind = "approved"
	EventCommented     EventKind = "commented"
)

// Event carries the full post-state operation record and, for status
// changes, the (from, to) pair.
type Event struct {
	Seq       uint64     `json:"seq"`
	Kind      EventKind  `json:"kind"`
	Timestamp time.Time  `json:"timestamp"`
	Actor     string     `json:"actor"`
	Operation *Operation `json:"operation"`
	From      Status     `json:"from,omitempty"`
	To        Status     `json:"to,omitempty"`
	Comment   *Comment   `json:"comment,omitempty"`
}

// Comment is a free-text remark on an operation, distinct from a
// HistoryRecord: comments don't represent status changes.
type Comment struct {
	Seq       int       `json:"seq"`
	Actor     string    `json:"actor"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoryRecord is one append-only entry in the History Log.
type HistoryRecord struct {
	OpID      OperationID `json:"op_id"`
	Seq       int         `json:"seq"`
	Timestamp time.Time   `json:"timestamp"`
	Actor     string      `json:"actor"`
	From      Status      `json:"from_status"`
	To        Status      `json:"to_status"`
	Note      string      `json:"note,omitempty"`
	Source    string      `json:"source,omitempty"`

	// Components/Tags snapshot the operation's membership at record time,
	// so History queries can filter "by component" / "by tag" without
	// re-joining against the (possibly since-edited) live operation.
	Components []string `json:"components,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}
