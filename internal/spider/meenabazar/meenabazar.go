// Package meenabazar crawls the Meenabazar storefront API: delivery-area
// discovery fans out over every two-letter prefix, branch names resolve as
// side requests, and category listings crawl per known subunit once the
// area stage has fully drained.
package meenabazar

import (
	"context"
	"fmt"
	"sync"

	"github.com/banalytics/harvester/internal/crawl"
	"github.com/banalytics/harvester/internal/domain"
	"github.com/banalytics/harvester/internal/fetch"
	"github.com/banalytics/harvester/internal/logger"
)

const (
	defaultBaseURL = "https://meenabazardev.com"

	areaSearchPath = "/api/front/areas/search"
	branchNamePath = "/api/front/store/picup/name"
	categoriesPath = "/api/front/nav/categories/list"
	listingPath    = "/api/front/product/category/"

	// defaultPageSize is the NoOfItem value for the first listing page.
	defaultPageSize = 20
)

// Spider implements crawl.Spider for the Meenabazar vendor.
type Spider struct {
	baseURL  string
	pageSize int
	emit     crawl.Emitter
	log      logger.Interface
}

// Option configures a Spider.
type Option func(*Spider)

// WithBaseURL overrides the storefront base URL. Tests point it at a local
// server.
func WithBaseURL(url string) Option {
	return func(s *Spider) { s.baseURL = url }
}

// WithPageSize overrides the first-page listing size.
func WithPageSize(n int) Option {
	return func(s *Spider) { s.pageSize = n }
}

// New creates a Meenabazar spider emitting through emit.
func New(emit crawl.Emitter, log logger.Interface, opts ...Option) *Spider {
	s := &Spider{
		baseURL:  defaultBaseURL,
		pageSize: defaultPageSize,
		emit:     emit,
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Vendor returns the vendor name.
func (s *Spider) Vendor() string { return domain.VendorMeenabazar }

// Run spawns the area-discovery branches and the category stage behind
// them. The category stage waits on a counted join over every area branch:
// listing requests must see the complete subunit set, so this is a barrier,
// not a race.
func (s *Spider) Run(_ context.Context, r *crawl.Runner) error {
	state := newCrawlState()

	var areaStage sync.WaitGroup
	for _, prefix := range queryPrefixes() {
		areaStage.Add(1)
		r.Go("areas:"+prefix, func(ctx context.Context) error {
			defer areaStage.Done()
			return s.discoverAreas(ctx, r, state, prefix)
		})
	}

	r.Go("categories", func(ctx context.Context) error {
		areaStage.Wait()
		s.log.Info("area discovery complete",
			"vendor", s.Vendor(),
			"subunits", len(state.subunitIDs()),
		)
		return s.crawlCategories(ctx, r, state)
	})

	return nil
}

// queryPrefixes returns every two-letter lowercase prefix used to enumerate
// delivery areas (26*26 = 676 queries).
func queryPrefixes() []string {
	prefixes := make([]string, 0, 26*26)
	for a := 'a'; a <= 'z'; a++ {
		for b := 'a'; b <= 'z'; b++ {
			prefixes = append(prefixes, string(a)+string(b))
		}
	}
	return prefixes
}

// discoverAreas runs one prefix query. Every returned area is emitted
// immediately; each first-seen subunit id additionally schedules a
// branch-name side request.
func (s *Spider) discoverAreas(ctx context.Context, r *crawl.Runner, state *crawlState, prefix string) error {
	req := fetch.PostJSON(s.baseURL+areaSearchPath, map[string]any{"q": prefix})
	req.Tags = map[string]string{"prefix": prefix}

	resp, err := r.Fetch(ctx, req)
	if err != nil {
		return err
	}

	var body struct {
		Data []map[string]any `json:"data"`
	}
	if decodeErr := resp.JSON(&body); decodeErr != nil {
		return decodeErr
	}

	for _, area := range body.Data {
		// The vendor calls branches "subunits"; not every physical branch
		// is available online, so the set is discovered, not enumerated.
		subunit, idErr := intField(area, "SubUnitId")
		if idErr != nil {
			return fmt.Errorf("area for prefix %q: %w", prefix, idErr)
		}

		if state.addSubunit(subunit) {
			s.resolveBranchName(r, subunit)
		}

		if emitErr := s.emit.Emit(area, domain.KindMeenabazarDeliveryArea); emitErr != nil {
			return emitErr
		}
	}

	return nil
}

// resolveBranchName schedules the display-name lookup for a newly seen
// subunit. addSubunit guarantees at most one lookup per id.
func (s *Spider) resolveBranchName(r *crawl.Runner, subunit int64) {
	url := fmt.Sprintf("%s%s?SubUnitId=%d", s.baseURL, branchNamePath, subunit)

	r.Go(fmt.Sprintf("branch-name:%d", subunit), func(ctx context.Context) error {
		resp, err := r.Fetch(ctx, fetch.Get(url))
		if err != nil {
			return err
		}

		var body struct {
			Data map[string]any `json:"data"`
		}
		if decodeErr := resp.JSON(&body); decodeErr != nil {
			return decodeErr
		}

		return s.emit.Emit(body.Data, domain.KindMeenabazarBranch)
	})
}

// crawlCategories fetches the category list once, emits it as an exempt
// snapshot, and cross-joins every category with every known subunit into a
// paginated listing branch.
func (s *Spider) crawlCategories(ctx context.Context, r *crawl.Runner, state *crawlState) error {
	resp, err := r.Fetch(ctx, fetch.Get(s.baseURL+categoriesPath))
	if err != nil {
		return err
	}

	var body struct {
		Data []map[string]any `json:"data"`
	}
	if decodeErr := resp.JSON(&body); decodeErr != nil {
		return decodeErr
	}

	subunits := state.subunitIDs()
	for _, category := range body.Data {
		categoryID, idErr := intField(category, "ItemCategoryId")
		if idErr != nil {
			return fmt.Errorf("category item: %w", idErr)
		}
		slug, slugErr := stringField(category, "CategorySlug")
		if slugErr != nil {
			return fmt.Errorf("category item: %w", slugErr)
		}

		for _, subunit := range subunits {
			req := listingRequest{
				BrandID:       []int64{},
				CategoryID:    []int64{categoryID},
				NoOfItem:      s.pageSize,
				SearchSlug:    slug,
				SearchType:    "C",
				StartSl:       1,
				SubCategoryID: []int64{},
				SubUnitID:     subunit,
				ThumbSize:     "lg",
			}
			r.Go(fmt.Sprintf("listing:%s:%d", slug, subunit), func(ctx context.Context) error {
				return s.crawlListings(ctx, r, slug, req)
			})
		}
	}

	return s.emit.Emit(body.Data, domain.KindMeenabazarCategories)
}

// listingRequest is the paginated category listing request body. StartSl
// and NoOfItem together form the pagination cursor.
type listingRequest struct {
	BrandID       []int64 `json:"BrandId"`
	CategoryID    []int64 `json:"CategoryId"`
	NoOfItem      int     `json:"NoOfItem"`
	SearchSlug    string  `json:"SearchSlug"`
	SearchType    string  `json:"SearchType"`
	StartSl       int     `json:"StartSl"`
	SubCategoryID []int64 `json:"SubCategoryId"`
	SubUnitID     int64   `json:"SubUnitId"`
	ThumbSize     string  `json:"ThumbSize"`
}

// crawlListings walks one (category, subunit) pagination chain. The cursor
// is carried forward from each response, so request N+1 is never issued
// before response N is processed. After the first page the requested count
// becomes TotalItem - pageSize, making the second request cover the exact
// remainder; the chain stops on an empty or short page.
func (s *Spider) crawlListings(ctx context.Context, r *crawl.Runner, slug string, req listingRequest) error {
	url := s.baseURL + listingPath + slug

	for {
		resp, err := r.Fetch(ctx, fetch.PostJSON(url, req))
		if err != nil {
			return err
		}

		var body struct {
			Data struct {
				Category []map[string]any `json:"Category"`
			} `json:"data"`
		}
		if decodeErr := resp.JSON(&body); decodeErr != nil {
			return decodeErr
		}

		items := body.Data.Category
		if len(items) == 0 {
			return nil
		}

		for _, item := range items {
			// The subunit dimension is part of the listing's identity: the
			// same item sold from two subunits is two distinct facts.
			item["subunit"] = req.SubUnitID
			if emitErr := s.emit.Emit(item, domain.KindMeenabazarListing); emitErr != nil {
				return emitErr
			}
		}

		firstPage := req.StartSl == 1
		req.StartSl += req.NoOfItem
		if len(items) < req.NoOfItem {
			return nil
		}
		if firstPage {
			total, totalErr := intField(items[0], "TotalItem")
			if totalErr != nil {
				return fmt.Errorf("listing %s: %w", slug, totalErr)
			}
			req.NoOfItem = int(total) - req.NoOfItem
		}
	}
}
