package crawl_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banalytics/harvester/internal/crawl"
	"github.com/banalytics/harvester/internal/fetch"
	"github.com/banalytics/harvester/internal/logger"
)

// engineFunc adapts a function to fetch.Engine.
type engineFunc func(ctx context.Context, req *fetch.Request) (*fetch.Response, error)

func (f engineFunc) Do(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
	return f(ctx, req)
}

func jsonResponse(t *testing.T, req *fetch.Request, v any) *fetch.Response {
	t.Helper()

	body, err := json.Marshal(v)
	require.NoError(t, err)
	return &fetch.Response{StatusCode: 200, Body: body, Request: req}
}

func TestRunnerBranchFailureDoesNotAbortSiblings(t *testing.T) {
	engine := engineFunc(func(_ context.Context, req *fetch.Request) (*fetch.Response, error) {
		if req.URL == "https://vendor.test/bad" {
			return nil, errors.New("boom")
		}
		return jsonResponse(t, req, map[string]any{"ok": true}), nil
	})

	r := crawl.NewRunner(context.Background(), engine, logger.NewNoOp())

	var succeeded atomic.Int64
	r.Go("bad", func(ctx context.Context) error {
		_, err := r.Fetch(ctx, fetch.Get("https://vendor.test/bad"))
		return err
	})
	for i := 0; i < 5; i++ {
		r.Go("good", func(ctx context.Context) error {
			if _, err := r.Fetch(ctx, fetch.Get("https://vendor.test/good")); err != nil {
				return err
			}
			succeeded.Add(1)
			return nil
		})
	}

	report := r.Wait()

	assert.Equal(t, int64(5), succeeded.Load())
	require.Len(t, report.Failures(), 1)
	assert.Equal(t, "bad", report.Failures()[0].Branch)
	assert.False(t, report.OK())
}

func TestRunnerBranchesSpawnBranches(t *testing.T) {
	engine := engineFunc(func(_ context.Context, req *fetch.Request) (*fetch.Response, error) {
		return jsonResponse(t, req, map[string]any{}), nil
	})

	r := crawl.NewRunner(context.Background(), engine, logger.NewNoOp())

	var leaves atomic.Int64
	r.Go("parent", func(ctx context.Context) error {
		for i := 0; i < 3; i++ {
			r.Go("child", func(ctx context.Context) error {
				leaves.Add(1)
				return nil
			})
		}
		return nil
	})

	report := r.Wait()

	assert.True(t, report.OK())
	assert.Equal(t, int64(3), leaves.Load())
}
