package history

import (
	"context"

	"go.uber.org/zap"

	"github.com/jaxxstorm/smokestack/internal/domain"
)

// Tee writes every record to both the primary (authoritative) store and
// a derived index, and serves queries from the index. An index append
// failure is logged, not fatal: the index is rebuildable from the
// primary, and compliance only requires the primary append to succeed.
type Tee struct {
	primary Store
	index   Store
	logger  *zap.Logger
}

// NewTee composes primary and index into one Store.
func NewTee(primary, index Store, logger *zap.Logger) *Tee {
	return &Tee{primary: primary, index: index, logger: logger.With(zap.String("component", "history-tee"))}
}

// Append writes to the primary first; only its error propagates.
func (t *Tee) Append(ctx context.Context, rec domain.HistoryRecord) error {
	if err := t.primary.Append(ctx, rec); err != nil {
		return err
	}
	if err := t.index.Append(ctx, rec); err != nil {
		t.logger.Warn("history index append failed; index is stale until rebuilt",
			zap.Int64("op_id", int64(rec.OpID)), zap.Int("seq", rec.Seq), zap.Error(err))
	}
	return nil
}

// Query serves from the index; on index failure it falls back to the
// primary's linear scan.
func (t *Tee) Query(ctx context.Context, filter Filter) ([]domain.HistoryRecord, error) {
	records, err := t.index.Query(ctx, filter)
	if err != nil {
		t.logger.Warn("history index query failed; falling back to primary", zap.Error(err))
		return t.primary.Query(ctx, filter)
	}
	return records, nil
}

// NextSeq is owned by the primary.
func (t *Tee) NextSeq(opID domain.OperationID) int {
	return t.primary.NextSeq(opID)
}

// Close closes both stores, returning the first error.
func (t *Tee) Close() error {
	err := t.primary.Close()
	if cerr := t.index.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
