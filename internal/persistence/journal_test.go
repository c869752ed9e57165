package persistence_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jaxxstorm/smokestack/internal/domain"
	"github.com/jaxxstorm/smokestack/internal/persistence"
	"github.com/jaxxstorm/smokestack/internal/store"
)

func TestWriteAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	j := persistence.New(path, zaptest.NewLogger(t))

	s := store.New()
	s.PutComponent(&domain.Component{Name: "foo"})
	id := s.NextOperationID()
	s.PutOperation(&domain.Operation{ID: id, Title: "op", Status: domain.StatusPlanned, Components: []string{"foo"}})

	require.NoError(t, j.Write(s.Snapshot()))

	snap, found, err := j.Load()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(1), snap.Counter)
	require.Len(t, snap.Operations, 1)
	assert.Equal(t, "op", snap.Operations[id].Title)
}

func TestLoadMissingFileIsFirstRun(t *testing.T) {
	j := persistence.New(filepath.Join(t.TempDir(), "absent.json"), zaptest.NewLogger(t))

	_, found, err := j.Load()
	require.NoError(t, err)
	assert.False(t, found)
}

func TestWriteLeavesNoTempFilesBehind(t *testing.T) {
	dir := t.TempDir()
	j := persistence.New(filepath.Join(dir, "snapshot.json"), zaptest.NewLogger(t))

	s := store.New()
	for i := 0; i < 3; i++ {
		require.NoError(t, j.Write(s.Snapshot()))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "snapshot.json", entries[0].Name())
}

func TestLoadCorruptFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	j := persistence.New(path, zaptest.NewLogger(t))
	_, _, err := j.Load()
	require.Error(t, err)
}
