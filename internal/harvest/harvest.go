// Package harvest orchestrates one vendor crawl end to end: run identity,
// fetch engine, spider, pipeline, and the finished run artifact on disk.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/banalytics/harvester/internal/config"
	"github.com/banalytics/harvester/internal/crawl"
	"github.com/banalytics/harvester/internal/domain"
	"github.com/banalytics/harvester/internal/fetch"
	"github.com/banalytics/harvester/internal/logger"
	"github.com/banalytics/harvester/internal/pipeline"
	"github.com/banalytics/harvester/internal/spider/chaldal"
	"github.com/banalytics/harvester/internal/spider/meenabazar"
	"github.com/banalytics/harvester/internal/stream"
)

// ErrUnknownVendor is returned for a vendor name no spider handles.
var ErrUnknownVendor = errors.New("unknown vendor")

// Result describes one finished crawl.
type Result struct {
	// Path is the finished run artifact.
	Path string
	// RunID identifies the run.
	RunID string
	// Records is the number of records written.
	Records int
	// Report carries per-branch failures; a non-empty report means the
	// artifact is partial but still loadable.
	Report *crawl.Report
}

// Harvester runs vendor crawls using a shared engine configuration.
type Harvester struct {
	cfg    config.CrawlerConfig
	log    logger.Interface
	engine fetch.Engine
}

// Option configures a Harvester.
type Option func(*Harvester)

// WithEngine overrides the fetch engine. Tests use it to script vendor
// responses.
func WithEngine(engine fetch.Engine) Option {
	return func(h *Harvester) { h.engine = engine }
}

// New creates a Harvester.
func New(cfg config.CrawlerConfig, log logger.Interface, opts ...Option) *Harvester {
	h := &Harvester{cfg: cfg, log: log}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// newSpider builds the spider for vendor, emitting through emit.
func newSpider(vendor string, emit crawl.Emitter, log logger.Interface) (crawl.Spider, error) {
	switch vendor {
	case domain.VendorChaldal:
		return chaldal.New(emit, log), nil
	case domain.VendorMeenabazar:
		return meenabazar.New(emit, log), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownVendor, vendor)
	}
}

// Crawl runs one vendor crawl and writes the run artifact into the output
// directory. The artifact is written under a temporary name and renamed on
// completion, so a partially written file never carries a loadable name.
func (h *Harvester) Crawl(ctx context.Context, vendor string) (*Result, error) {
	runID := uuid.NewString()

	log := h.log.With("vendor", vendor, "run_id", runID)

	if err := os.MkdirAll(h.cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(h.cfg.OutputDir, vendor+"-*.partial")
	if err != nil {
		return nil, fmt.Errorf("create run artifact: %w", err)
	}
	tmpPath := tmp.Name()

	engine := h.engine
	if engine == nil {
		engine = fetch.NewClient(fetch.ClientConfig{
			Parallelism:       h.cfg.Parallelism,
			RequestsPerSecond: h.cfg.RequestsPerSecond,
			RequestTimeout:    h.cfg.RequestTimeout,
			UserAgent:         h.cfg.UserAgent,
		})
	}

	writer := stream.NewWriter(tmp)
	pipe := pipeline.New(runID, writer, log)

	spider, err := newSpider(vendor, pipe, log)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, err
	}

	started := time.Now().UTC()
	log.Info("crawl started", "parallelism", h.cfg.Parallelism)

	runner := crawl.NewRunner(ctx, engine, log)
	if runErr := spider.Run(ctx, runner); runErr != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("start %s crawl: %w", vendor, runErr)
	}
	report := runner.Wait()
	ended := time.Now().UTC()

	if closeErr := tmp.Close(); closeErr != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("close run artifact: %w", closeErr)
	}

	finalPath := filepath.Join(h.cfg.OutputDir, stream.RunFileName(vendor, started, ended, runID))
	if renameErr := os.Rename(tmpPath, finalPath); renameErr != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("finalize run artifact: %w", renameErr)
	}

	for _, failure := range report.Failures() {
		log.Warn("branch failed during crawl",
			"branch", failure.Branch,
			"error", failure.Err.Error(),
		)
	}
	log.Info("crawl finished",
		"records", writer.Written(),
		"failed_branches", len(report.Failures()),
		"duration", ended.Sub(started),
		"artifact", finalPath,
	)

	return &Result{
		Path:    finalPath,
		RunID:   runID,
		Records: writer.Written(),
		Report:  report,
	}, nil
}
