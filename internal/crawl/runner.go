// Package crawl runs vendor spiders: each dependent request chain executes
// as its own branch, branches fail independently, and stage barriers are
// counted joins over branch completion.
package crawl

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/banalytics/harvester/internal/domain"
	"github.com/banalytics/harvester/internal/fetch"
	"github.com/banalytics/harvester/internal/logger"
)

// Emitter receives extracted payloads from spiders. The pipeline behind it
// tags, deduplicates, and persists them.
type Emitter interface {
	Emit(payload any, kind domain.Kind) error
}

// Spider crawls one vendor. Run blocks until every branch it spawned on the
// runner has been scheduled; the runner's Wait covers their completion.
type Spider interface {
	Vendor() string
	Run(ctx context.Context, r *Runner) error
}

// Runner executes crawl branches concurrently against a fetch engine.
// Within one branch requests are strictly sequential (pagination cursors are
// carried forward from the previous response); across branches there is no
// ordering. Transport-level parallelism is capped by the engine itself.
type Runner struct {
	engine fetch.Engine
	log    logger.Interface
	group  *errgroup.Group
	ctx    context.Context
	report *Report
}

// NewRunner creates a runner bound to ctx.
func NewRunner(ctx context.Context, engine fetch.Engine, log logger.Interface) *Runner {
	group, groupCtx := errgroup.WithContext(ctx)
	return &Runner{
		engine: engine,
		log:    log,
		group:  group,
		ctx:    groupCtx,
		report: NewReport(),
	}
}

// Go spawns fn as a crawl branch. A branch error is recorded in the report
// and logged; it never cancels sibling branches. Branches may spawn further
// branches before they return.
func (r *Runner) Go(name string, fn func(ctx context.Context) error) {
	r.group.Go(func() error {
		if err := fn(r.ctx); err != nil {
			r.report.AddFailure(name, err)
			r.log.Error("crawl branch failed", "branch", name, "error", err.Error())
		}
		return nil
	})
}

// Fetch executes one request through the engine.
func (r *Runner) Fetch(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
	resp, err := r.engine.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	return resp, nil
}

// Wait blocks until every branch has finished and returns the failure
// report for the run.
func (r *Runner) Wait() *Report {
	// Branch errors are swallowed into the report, so Wait's error can
	// only be a context cancellation already visible to callers.
	_ = r.group.Wait()
	return r.report
}
