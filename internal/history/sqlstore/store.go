// Package sqlstore is a derived, rebuildable SQL index over the History
// Log. The JSONL file in internal/history/jsonl remains the durability
// source of truth; this index exists only so queries by time window,
// actor, component and tag hit indexed SQL instead of a linear scan
// once a deployment's history grows large. It works against either
// provider internal/database.NewProvider selects (Postgres or SQLite).
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/jaxxstorm/smokestack/internal/domain"
	"github.com/jaxxstorm/smokestack/internal/history"
)

// Store indexes HistoryRecords in a SQL table for fast filtered
// queries, alongside the jsonl.Store that remains authoritative.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// Open wraps an already-migrated *sqlx.DB (see internal/database and its
// migrations/0001_history_records.up.sql) as a history.Store.
func Open(db *sqlx.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger.With(zap.String("component", "history-sqlstore"))}
}

// Append inserts rec into history_records. Component and tag membership
// are stored as a JSON array so they can be filtered without a join
// against the (mutable) live operation.
func (s *Store) Append(ctx context.Context, rec domain.HistoryRecord) error {
	components, err := json.Marshal(rec.Components)
	if err != nil {
		return fmt.Errorf("marshal components: %w", err)
	}
	tags, err := json.Marshal(rec.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO history_records
			(op_id, seq, ts, actor, from_status, to_status, note, source, components, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		int64(rec.OpID), rec.Seq, rec.Timestamp, rec.Actor, string(rec.From), string(rec.To),
		rec.Note, rec.Source, string(components), string(tags),
	)
	if err != nil {
		return fmt.Errorf("insert history record: %w", err)
	}
	return nil
}

// NextSeq is not authoritative here -- the jsonl.Store owns sequence
// assignment. Kept to satisfy history.Store for composition in tests
// that exercise the SQL index alone.
func (s *Store) NextSeq(opID domain.OperationID) int {
	var max sql.NullInt64
	_ = s.db.Get(&max, `SELECT MAX(seq) FROM history_records WHERE op_id = $1`, int64(opID))
	return int(max.Int64) + 1
}

// Query builds a dynamic WHERE clause from filter and returns matches,
// newest first.
func (s *Store) Query(ctx context.Context, filter history.Filter) ([]domain.HistoryRecord, error) {
	var where []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.OpID != 0 {
		where = append(where, "op_id = "+arg(int64(filter.OpID)))
	}
	if filter.Actor != "" {
		where = append(where, "actor = "+arg(filter.Actor))
	}
	if filter.Component != "" {
		where = append(where, "components LIKE "+arg("%\""+filter.Component+"\"%"))
	}
	if filter.Tag != "" {
		where = append(where, "tags LIKE "+arg("%\""+filter.Tag+"\"%"))
	}
	if !filter.From.IsZero() {
		where = append(where, "ts >= "+arg(filter.From))
	}
	if !filter.To.IsZero() {
		where = append(where, "ts <= "+arg(filter.To))
	}

	query := "SELECT op_id, seq, ts, actor, from_status, to_status, note, source, components, tags FROM history_records"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query history records: %w", err)
	}
	defer rows.Close()

	var out []domain.HistoryRecord
	for rows.Next() {
		var rec domain.HistoryRecord
		var opID int64
		var from, to, components, tags string
		if err := rows.Scan(&opID, &rec.Seq, &rec.Timestamp, &rec.Actor, &from, &to, &rec.Note, &rec.Source, &components, &tags); err != nil {
			return nil, fmt.Errorf("scan history record: %w", err)
		}
		rec.OpID = domain.OperationID(opID)
		rec.From = domain.Status(from)
		rec.To = domain.Status(to)
		_ = json.Unmarshal([]byte(components), &rec.Components)
		_ = json.Unmarshal([]byte(tags), &rec.Tags)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close is a no-op: the connection pool outlives the Store and is
// closed by the owning database.Provider.
func (s *Store) Close() error { return nil }
