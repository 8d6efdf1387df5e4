package stream

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/banalytics/harvester/internal/domain"
)

// Run artifact naming: {vendor}_{started}_{ended}_{run_id}.jsonl with
// timestamps in runTimeLayout. The loader derives the Run row from the
// filename alone, so any deviation is a parse error.
const (
	runTimeLayout = "20060102150405"

	// RunFileExt is the extension of persisted run artifacts.
	RunFileExt = ".jsonl"

	runFileParts = 4
)

// ErrBadRunFileName is returned when a filename does not follow the run
// artifact convention.
var ErrBadRunFileName = errors.New("malformed run artifact filename")

// RunFileName builds the artifact filename for one run.
func RunFileName(vendor string, started, ended time.Time, runID string) string {
	return fmt.Sprintf(
		"%s_%s_%s_%s%s",
		vendor,
		started.UTC().Format(runTimeLayout),
		ended.UTC().Format(runTimeLayout),
		runID,
		RunFileExt,
	)
}

// ParseRunFile derives a Run from an artifact path and attaches the
// metadata accumulated while normalizing its records.
func ParseRunFile(path string, metadata map[string]any) (*domain.Run, error) {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	parts := strings.Split(base, "_")
	if len(parts) != runFileParts {
		return nil, fmt.Errorf("%w: %q", ErrBadRunFileName, filepath.Base(path))
	}

	started, startErr := time.ParseInLocation(runTimeLayout, parts[1], time.UTC)
	if startErr != nil {
		return nil, fmt.Errorf("%w: bad start time in %q", ErrBadRunFileName, filepath.Base(path))
	}

	ended, endErr := time.ParseInLocation(runTimeLayout, parts[2], time.UTC)
	if endErr != nil {
		return nil, fmt.Errorf("%w: bad end time in %q", ErrBadRunFileName, filepath.Base(path))
	}

	return &domain.Run{
		RunID:     parts[3],
		Vendor:    parts[0],
		StartedAt: started,
		EndedAt:   ended,
		Metadata:  metadata,
	}, nil
}
