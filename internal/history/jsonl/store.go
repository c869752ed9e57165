// Package jsonl is the durability source of truth for the History Log:
// an append-only JSONL file, mirrored in memory for fast linear-scan
// queries. Unlike the journal snapshot, records are appended, never
// rewritten.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/jaxxstorm/smokestack/internal/domain"
	"github.com/jaxxstorm/smokestack/internal/history"
)

// Store appends HistoryRecords to a JSONL file and serves Query from an
// in-memory mirror loaded at Open.
type Store struct {
	mu      sync.RWMutex
	path    string
	file    *os.File
	writer  *bufio.Writer
	records []domain.HistoryRecord
	seqs    map[domain.OperationID]int
	logger  *zap.Logger
}

// Open loads any existing records from path and returns a Store ready
// to append further ones.
func Open(path string, logger *zap.Logger) (*Store, error) {
	logger = logger.With(zap.String("component", "history-jsonl"))

	s := &Store{
		path:   path,
		seqs:   make(map[domain.OperationID]int),
		logger: logger,
	}

	if existing, err := os.Open(path); err == nil {
		scanner := bufio.NewScanner(existing)
		scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
		for scanner.Scan() {
			var rec domain.HistoryRecord
			if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
				existing.Close()
				return nil, fmt.Errorf("corrupt history line: %w", err)
			}
			s.records = append(s.records, rec)
			if rec.Seq > s.seqs[rec.OpID] {
				s.seqs[rec.OpID] = rec.Seq
			}
		}
		existing.Close()
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("reading history file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("opening history file: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening history file for append: %w", err)
	}
	s.file = f
	s.writer = bufio.NewWriter(f)

	logger.Info("loaded history log", zap.Int("records", len(s.records)))
	return s, nil
}

// Append writes rec to the JSONL file and the in-memory mirror.
func (s *Store) Append(_ context.Context, rec domain.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal history record: %w", err)
	}
	if _, err := s.writer.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append history record: %w", err)
	}
	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("flush history record: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync history file: %w", err)
	}

	s.records = append(s.records, rec)
	if rec.Seq > s.seqs[rec.OpID] {
		s.seqs[rec.OpID] = rec.Seq
	}
	return nil
}

// NextSeq returns the next sequence number for opID.
func (s *Store) NextSeq(opID domain.OperationID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seqs[opID] + 1
}

// Query returns matching records, newest first, honoring Limit/Offset.
func (s *Store) Query(_ context.Context, filter history.Filter) ([]domain.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []domain.HistoryRecord
	for i := len(s.records) - 1; i >= 0; i-- {
		if filter.Matches(s.records[i]) {
			matched = append(matched, s.records[i])
		}
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// Close flushes and closes the underlying file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writer.Flush(); err != nil {
		return err
	}
	return s.file.Close()
}
