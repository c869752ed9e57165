// Package history implements the History Log: the append-only,
// compliance-grade record of every status change, queryable by time
// window, actor, component, tag and operation id. Records are never
// mutated or deleted.
package history

import (
	"context"
	"time"

	"github.com/jaxxstorm/smokestack/internal/domain"
)

// Filter narrows Query results. Zero-valued fields are unconstrained.
type Filter struct {
	OpID      domain.OperationID
	Actor     string
	Component string
	Tag       string
	From, To  time.Time
	Limit     int
	Offset    int
}

// Store is the append-only compliance log contract. Implementations:
// jsonl (the durability source of truth) and sqlstore (a derived,
// rebuildable SQL index used for indexed queries).
type Store interface {
	// Append writes rec. The caller (internal/engine, the sole writer)
	// guarantees rec.Seq is already assigned and monotonic per operation.
	Append(ctx context.Context, rec domain.HistoryRecord) error

	// Query returns records matching filter, newest first.
	Query(ctx context.Context, filter Filter) ([]domain.HistoryRecord, error)

	// NextSeq returns the next sequence number for opID.
	NextSeq(opID domain.OperationID) int

	Close() error
}

// Matches reports whether rec satisfies every constraint f sets.
func (f Filter) Matches(rec domain.HistoryRecord) bool {
	if f.OpID != 0 && rec.OpID != f.OpID {
		return false
	}
	if f.Actor != "" && rec.Actor != f.Actor {
		return false
	}
	if f.Component != "" && !containsString(rec.Components, f.Component) {
		return false
	}
	if f.Tag != "" && !containsString(rec.Tags, f.Tag) {
		return false
	}
	if !f.From.IsZero() && rec.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && rec.Timestamp.After(f.To) {
		return false
	}
	return true
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
