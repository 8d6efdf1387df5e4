package loader_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banalytics/harvester/internal/database"
	"github.com/banalytics/harvester/internal/domain"
	"github.com/banalytics/harvester/internal/loader"
	"github.com/banalytics/harvester/internal/logger"
	"github.com/banalytics/harvester/internal/stream"
)

// memStore records inserted runs and can refuse specific run ids.
type memStore struct {
	mu        sync.Mutex
	runs      []*domain.Run
	rowCounts []int
	duplicate map[string]bool
}

func newMemStore() *memStore {
	return &memStore{duplicate: make(map[string]bool)}
}

func (s *memStore) InsertRun(_ context.Context, run *domain.Run, rows []domain.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.duplicate[run.RunID] {
		return database.ErrDuplicateRun
	}
	s.runs = append(s.runs, run)
	s.rowCounts = append(s.rowCounts, len(rows))
	return nil
}

// writeArtifact writes records into dir under a well-formed run filename
// and returns the path.
func writeArtifact(t *testing.T, dir, runID string, recs ...*domain.Record) string {
	t.Helper()

	started := time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC)
	ended := started.Add(42 * time.Minute)
	path := filepath.Join(dir, stream.RunFileName("meenabazar", started, ended, runID))

	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()

	w := stream.NewWriter(file)
	for _, rec := range recs {
		require.NoError(t, w.Write(rec))
	}
	return path
}

func keyPtr(key string) *string { return &key }

func listingRecord(runID string, itemID float64) *domain.Record {
	return &domain.Record{
		Payload: map[string]any{
			"ItemId":             itemID,
			"ItemDisplayName":    "Mustard Oil",
			"Unit":               "500 Gram",
			"UnitSalesPrice":     float64(120),
			"DiscountSalesPrice": float64(110),
		},
		Date:      time.Date(2026, 8, 29, 10, 45, 0, 0, time.UTC),
		Kind:      domain.KindMeenabazarListing,
		RunID:     runID,
		UniqueKey: keyPtr("subunit=7&ItemId=42"),
	}
}

func TestLoadFilesInsertsRuns(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, "run-1",
		listingRecord("run-1", 42),
		listingRecord("run-1", 43),
	)

	store := newMemStore()
	results := loader.New(store, logger.NewNoOp()).
		LoadFiles(context.Background(), []string{path})

	require.Len(t, results, 1)
	assert.True(t, results[0].Loaded())
	assert.Equal(t, 2, results[0].Rows)
	require.NotNil(t, results[0].Run)
	assert.Equal(t, "run-1", results[0].Run.RunID)
	assert.Equal(t, "meenabazar", results[0].Run.Vendor)

	require.Len(t, store.runs, 1)
	assert.Equal(t, []int{2}, store.rowCounts)
}

func TestLoadFilesSkipsDuplicateRun(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, "run-1", listingRecord("run-1", 42))

	store := newMemStore()
	store.duplicate["run-1"] = true

	results := loader.New(store, logger.NewNoOp()).
		LoadFiles(context.Background(), []string{path})

	require.Len(t, results, 1)
	assert.True(t, results[0].Duplicate)
	assert.NoError(t, results[0].Err)
	assert.Zero(t, results[0].Rows)
	assert.Empty(t, store.runs)
}

func TestLoadFilesFailingFileDoesNotStopBatch(t *testing.T) {
	dir := t.TempDir()

	// A record without a kind fails normalization before the store is
	// ever touched.
	badPath := filepath.Join(dir, "notes.jsonl")
	require.NoError(t, os.WriteFile(badPath, []byte("{}\n"), 0o644))

	goodPath := writeArtifact(t, dir, "run-2", listingRecord("run-2", 42))

	store := newMemStore()
	results := loader.New(store, logger.NewNoOp()).
		LoadFiles(context.Background(), []string{badPath, goodPath})

	require.Len(t, results, 2)
	assert.Error(t, results[0].Err)
	assert.False(t, results[0].Loaded())
	assert.True(t, results[1].Loaded())
	require.Len(t, store.runs, 1)
	assert.Equal(t, "run-2", store.runs[0].RunID)
}

func TestLoadFilesMissingFile(t *testing.T) {
	store := newMemStore()
	results := loader.New(store, logger.NewNoOp()).
		LoadFiles(context.Background(), []string{"/nonexistent/run.jsonl"})

	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
	assert.Empty(t, store.runs)
}
