// Package pipeline is the emission path between spiders and the persisted
// record stream: tag, deduplicate, write.
package pipeline

import (
	"fmt"

	"github.com/banalytics/harvester/internal/dedup"
	"github.com/banalytics/harvester/internal/domain"
	"github.com/banalytics/harvester/internal/logger"
	"github.com/banalytics/harvester/internal/record"
)

// RecordWriter persists tagged records.
type RecordWriter interface {
	Write(rec *domain.Record) error
}

// Pipeline tags payloads for one run and drops duplicates before they reach
// the writer. Safe for concurrent use by crawl branches.
type Pipeline struct {
	runID  string
	seen   *dedup.Set
	writer RecordWriter
	log    logger.Interface
}

// New creates a pipeline for one run. The dedup set must be fresh: its
// scope defines the run's duplicate window.
func New(runID string, writer RecordWriter, log logger.Interface) *Pipeline {
	return &Pipeline{
		runID:  runID,
		seen:   dedup.New(),
		writer: writer,
		log:    log,
	}
}

// Emit tags payload with kind and persists it unless it duplicates a record
// already emitted in this run. Schema violations (unknown kind, missing key
// field) are returned as errors and fail the emitting branch.
func (p *Pipeline) Emit(payload any, kind domain.Kind) error {
	rec, err := record.Tag(payload, kind, p.runID)
	if err != nil {
		return fmt.Errorf("tag record: %w", err)
	}

	if !p.seen.Admit(rec) {
		p.log.Debug("dropped duplicate record", "kind", kind, "unique_key", *rec.UniqueKey)
		return nil
	}

	if writeErr := p.writer.Write(rec); writeErr != nil {
		return fmt.Errorf("write record: %w", writeErr)
	}
	return nil
}
