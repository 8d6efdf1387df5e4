package meenabazar_test

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banalytics/harvester/internal/crawl"
	"github.com/banalytics/harvester/internal/domain"
	"github.com/banalytics/harvester/internal/fetch"
	"github.com/banalytics/harvester/internal/logger"
	"github.com/banalytics/harvester/internal/spider/meenabazar"
)

const (
	testBaseURL  = "https://mb.test"
	testPageSize = 20
)

// captureEmitter collects emitted payloads per kind.
type captureEmitter struct {
	mu      sync.Mutex
	records map[domain.Kind][]any
}

func newCaptureEmitter() *captureEmitter {
	return &captureEmitter{records: make(map[domain.Kind][]any)}
}

func (e *captureEmitter) Emit(payload any, kind domain.Kind) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records[kind] = append(e.records[kind], payload)
	return nil
}

func (e *captureEmitter) count(kind domain.Kind) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.records[kind])
}

func (e *captureEmitter) payloads(kind domain.Kind) []any {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]any, len(e.records[kind]))
	copy(out, e.records[kind])
	return out
}

// pagedListing is the decoded shape of the spider's listing request body.
type pagedListing struct {
	StartSl   int   `json:"StartSl"`
	NoOfItem  int   `json:"NoOfItem"`
	SubUnitID int64 `json:"SubUnitId"`
}

// storefront scripts the vendor API: three delivery areas sharing one
// subunit, one category, and a listing of stocked items paginated through
// StartSl/NoOfItem. advertisedTotal is the TotalItem value stamped on every
// item and may overstate stocked, producing a short final page.
type storefront struct {
	t               *testing.T
	stocked         int
	advertisedTotal int

	areasServed           atomic.Int64
	areasSeenAtCategories atomic.Int64
	branchNameRequests    atomic.Int64
	listingRequests       atomic.Int64
}

func (s *storefront) Do(_ context.Context, req *fetch.Request) (*fetch.Response, error) {
	path := strings.TrimPrefix(req.URL, testBaseURL)

	switch {
	case path == "/api/front/areas/search":
		return s.serveAreas(req)
	case strings.HasPrefix(path, "/api/front/store/picup/name"):
		s.branchNameRequests.Add(1)
		return jsonResponse(s.t, req, map[string]any{
			"data": map[string]any{"SubUnitId": 7, "SubUnitName": "Dhanmondi"},
		}), nil
	case path == "/api/front/nav/categories/list":
		s.areasSeenAtCategories.Store(s.areasServed.Load())
		return jsonResponse(s.t, req, map[string]any{
			"data": []map[string]any{
				{"ItemCategoryId": 12, "CategorySlug": "fresh-vegetables"},
			},
		}), nil
	case strings.HasPrefix(path, "/api/front/product/category/"):
		return s.serveListingPage(req)
	default:
		return nil, fmt.Errorf("unexpected request %s %s", req.Method, req.URL)
	}
}

func (s *storefront) serveAreas(req *fetch.Request) (*fetch.Response, error) {
	body, ok := req.Body.(map[string]any)
	require.True(s.t, ok, "area search body is %T", req.Body)
	prefix, _ := body["q"].(string)

	// Late-finishing branches exercise the barrier: without it the category
	// stage would start with a partial subunit set.
	if strings.HasPrefix(prefix, "z") {
		time.Sleep(2 * time.Millisecond)
	}

	var areas []map[string]any
	switch prefix {
	case "dh":
		areas = []map[string]any{
			{"AreaId": 1, "AreaName": "Dhanmondi 27", "SubUnitId": 7},
			{"AreaId": 2, "AreaName": "Dhanmondi 32", "SubUnitId": 7},
		}
	case "ba":
		areas = []map[string]any{
			{"AreaId": 3, "AreaName": "Banani", "SubUnitId": 7},
		}
	}

	defer s.areasServed.Add(1)
	return jsonResponse(s.t, req, map[string]any{"data": areas}), nil
}

func (s *storefront) serveListingPage(req *fetch.Request) (*fetch.Response, error) {
	s.listingRequests.Add(1)

	raw, err := json.Marshal(req.Body)
	require.NoError(s.t, err)
	var page pagedListing
	require.NoError(s.t, json.Unmarshal(raw, &page))
	assert.Equal(s.t, int64(7), page.SubUnitID)

	remaining := s.stocked - (page.StartSl - 1)
	served := page.NoOfItem
	if served > remaining {
		served = remaining
	}
	if served < 0 {
		served = 0
	}

	items := make([]map[string]any, 0, served)
	for i := 0; i < served; i++ {
		items = append(items, map[string]any{
			"ItemId":    page.StartSl + i,
			"TotalItem": s.advertisedTotal,
		})
	}

	return jsonResponse(s.t, req, map[string]any{
		"data": map[string]any{"Category": items},
	}), nil
}

func jsonResponse(t *testing.T, req *fetch.Request, v any) *fetch.Response {
	t.Helper()

	body, err := json.Marshal(v)
	require.NoError(t, err)
	return &fetch.Response{StatusCode: 200, Body: body, Request: req}
}

func crawlStorefront(t *testing.T, engine *storefront) (*captureEmitter, *crawl.Report) {
	t.Helper()

	emitter := newCaptureEmitter()
	log := logger.NewNoOp()

	spider := meenabazar.New(emitter, log,
		meenabazar.WithBaseURL(testBaseURL),
		meenabazar.WithPageSize(testPageSize),
	)
	require.Equal(t, domain.VendorMeenabazar, spider.Vendor())

	runner := crawl.NewRunner(context.Background(), engine, log)
	require.NoError(t, spider.Run(context.Background(), runner))
	return emitter, runner.Wait()
}

func TestSpiderCrawl(t *testing.T) {
	engine := &storefront{t: t, stocked: 50, advertisedTotal: 50}

	emitter, report := crawlStorefront(t, engine)
	require.Empty(t, report.Failures())

	// Barrier: the category request must not go out until all 676 prefix
	// branches have completed, even with slow branches finishing last.
	assert.Equal(t, int64(676), engine.areasSeenAtCategories.Load())

	// One branch-name lookup despite subunit 7 appearing in three areas.
	assert.Equal(t, int64(1), engine.branchNameRequests.Load())
	assert.Equal(t, 1, emitter.count(domain.KindMeenabazarBranch))

	assert.Equal(t, 3, emitter.count(domain.KindMeenabazarDeliveryArea))
	assert.Equal(t, 1, emitter.count(domain.KindMeenabazarCategories))

	// 50 items at pages of 20 then 30: two full pages plus the empty page
	// that terminates the chain.
	assert.Equal(t, int64(3), engine.listingRequests.Load())
	assert.Equal(t, 50, emitter.count(domain.KindMeenabazarListing))

	for _, payload := range emitter.payloads(domain.KindMeenabazarListing) {
		item, ok := payload.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, int64(7), item["subunit"])
	}
}

func TestSpiderListingShortPageStops(t *testing.T) {
	// TotalItem claims 30 but only 25 items are stocked: the second page
	// asks for the remaining 10, gets 5, and the chain stops without a
	// third request.
	engine := &storefront{t: t, stocked: 25, advertisedTotal: 30}

	emitter, report := crawlStorefront(t, engine)
	require.Empty(t, report.Failures())

	assert.Equal(t, int64(2), engine.listingRequests.Load())
	assert.Equal(t, 25, emitter.count(domain.KindMeenabazarListing))
}

func TestSpiderEmptyCategoryListing(t *testing.T) {
	engine := &storefront{t: t, stocked: 0, advertisedTotal: 0}

	emitter, report := crawlStorefront(t, engine)
	require.Empty(t, report.Failures())

	// The single empty page terminates the chain immediately.
	assert.Equal(t, int64(1), engine.listingRequests.Load())
	assert.Equal(t, 0, emitter.count(domain.KindMeenabazarListing))
}
