// Package loader turns finished run artifacts into warehouse rows: each
// file is normalized, bound to its run identity, and inserted atomically.
package loader

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/banalytics/harvester/internal/database"
	"github.com/banalytics/harvester/internal/domain"
	"github.com/banalytics/harvester/internal/etl"
	"github.com/banalytics/harvester/internal/logger"
	"github.com/banalytics/harvester/internal/stream"
)

// RunStore persists one run with its rows.
type RunStore interface {
	InsertRun(ctx context.Context, run *domain.Run, rows []domain.Row) error
}

// FileResult describes the outcome of loading one artifact.
type FileResult struct {
	Path string
	// Run is set once the artifact parsed far enough to identify the run.
	Run *domain.Run
	// Rows is the number of datapoints inserted.
	Rows int
	// SkippedZeroPrice counts listings dropped for a zero sale price.
	SkippedZeroPrice int
	// Duplicate marks a run that was already loaded; the file is skipped
	// and existing rows are untouched.
	Duplicate bool
	// Err is the failure that stopped this file, nil on success and on
	// duplicates.
	Err error
}

// Loaded reports whether the file's rows are in the warehouse after this
// call, counting duplicates as already loaded.
func (r *FileResult) Loaded() bool {
	return r.Err == nil
}

// RunLoader loads run artifacts through a Normalizer into a RunStore.
type RunLoader struct {
	store      RunStore
	normalizer *etl.Normalizer
	log        logger.Interface
}

// New creates a RunLoader.
func New(store RunStore, log logger.Interface) *RunLoader {
	return &RunLoader{
		store:      store,
		normalizer: etl.NewNormalizer(log),
		log:        log,
	}
}

// LoadFiles loads each artifact in turn. A failing file is logged and
// skipped; it never stops the batch.
func (l *RunLoader) LoadFiles(ctx context.Context, paths []string) []FileResult {
	results := make([]FileResult, 0, len(paths))
	for _, path := range paths {
		result := l.loadFile(ctx, path)

		switch {
		case result.Duplicate:
			l.log.Warn("run already loaded, skipping file",
				"path", path,
				"run_id", result.Run.RunID,
			)
		case result.Err != nil:
			l.log.Error("failed to load file",
				"path", path,
				"error", result.Err.Error(),
			)
		default:
			l.log.Info("file loaded",
				"path", path,
				"run_id", result.Run.RunID,
				"rows", result.Rows,
				"skipped_zero_price", result.SkippedZeroPrice,
			)
		}

		results = append(results, result)
	}
	return results
}

// loadFile normalizes one artifact and inserts its run atomically.
func (l *RunLoader) loadFile(ctx context.Context, path string) FileResult {
	result := FileResult{Path: path}

	file, err := os.Open(path)
	if err != nil {
		result.Err = fmt.Errorf("open artifact: %w", err)
		return result
	}
	defer file.Close()

	normalized, err := l.normalizer.Load(file)
	if err != nil {
		result.Err = fmt.Errorf("normalize artifact: %w", err)
		return result
	}
	result.SkippedZeroPrice = normalized.SkippedZeroPrice

	run, err := stream.ParseRunFile(path, normalized.Metadata)
	if err != nil {
		result.Err = err
		return result
	}
	result.Run = run

	if insertErr := l.store.InsertRun(ctx, run, normalized.Rows); insertErr != nil {
		if errors.Is(insertErr, database.ErrDuplicateRun) {
			result.Duplicate = true
			return result
		}
		result.Err = fmt.Errorf("insert run %s: %w", run.RunID, insertErr)
		return result
	}

	result.Rows = len(normalized.Rows)
	return result
}
