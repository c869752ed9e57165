// Package domain holds the entities and invariants of the operation
// coordination core: operations, components, tags, users, groups,
// subscriptions and history. It has no dependency on storage, transport
// or transition machinery -- those live in internal/store, internal/engine
// and internal/api.
package domain

// Status represents an Operation's position in its lifecycle.
type Status string

const (
	// StatusPlanned is the initial state: created, not yet started.
	StatusPlanned Status = "planned"

	// StatusInProgress: actively being performed.
	StatusInProgress Status = "in_progress"

	// StatusPaused: temporarily suspended, may resume.
	StatusPaused Status = "paused"

	// StatusCompleted: terminal, finished successfully.
	StatusCompleted Status = "completed"

	// StatusAborted: terminal, stopped mid-flight.
	StatusAborted Status = "aborted"

	// StatusCanceled: terminal, never started.
	StatusCanceled Status = "canceled"
)

// Trigger names the CLI/API verb that drives a transition.
type Trigger string

const (
	TriggerStart    Trigger = "start"
	TriggerCancel   Trigger = "cancel"
	TriggerPause    Trigger = "pause"
	TriggerComplete Trigger = "complete"
	TriggerAbort    Trigger = "abort"
)

// transition captures one row of the state table.
type transition struct {
	from    Status
	to      Status
	trigger Trigger
}

var transitions = []transition{
	{StatusPlanned, StatusInProgress, TriggerStart},
	{StatusPlanned, StatusCanceled, TriggerCancel},
	{StatusInProgress, StatusPaused, TriggerPause},
	{StatusPaused, StatusInProgress, TriggerStart},
	{StatusInProgress, StatusCompleted, TriggerComplete},
	{StatusInProgress, StatusAborted, TriggerAbort},
}

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusPlanned, StatusInProgress, StatusPaused, StatusCompleted, StatusAborted, StatusCanceled:
		return true
	}
	return false
}

// IsTerminal reports whether s has no outgoing transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusAborted || s == StatusCanceled
}

// IsActive reports whether an operation in status s holds its locks:
// in_progress or paused, the two statuses the lock and dependency gates
// treat as in flight.
func (s Status) IsActive() bool {
	return s == StatusInProgress || s == StatusPaused
}

// TriggerFor returns the trigger for a (from, to) pair, or "" if the
// transition is not in the table.
func TriggerFor(from, to Status) (Trigger, bool) {
	for _, t := range transitions {
		if t.from == from && t.to == to {
			return t.trigger, true
		}
	}
	return "", false
}

// CanTransition reports whether (s, to) appears in the state table.
func (s Status) CanTransition(to Status) bool {
	_, ok := TriggerFor(s, to)
	return ok
}
