// Package chaldal crawls the Chaldal storefront: one entry fetch yields the
// embedded service-state blob (shop metadata, categories, brands) and the
// catalog API key, then every product-bearing category is cross-joined with
// every delivery area into a paginated catalog search chain.
package chaldal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/banalytics/harvester/internal/crawl"
	"github.com/banalytics/harvester/internal/domain"
	"github.com/banalytics/harvester/internal/fetch"
	"github.com/banalytics/harvester/internal/logger"
)

const (
	defaultBaseURL    = "https://chaldal.com"
	defaultCatalogURL = "https://catalog.chaldal.com/searchPersonalized"

	// serviceStatePrefix precedes the JSON blob in the first body script.
	serviceStatePrefix = "window.__serviceState = "

	// storeID selects the grocery store within the multi-store platform.
	storeID = 1

	defaultPageSize = 250

	// The API key sits at a fixed offset after its marker in the page
	// source; the embedding is generated, so the offsets are stable.
	apiKeyMarker = "apiKey"
	apiKeySkip   = 15
	apiKeyLen    = 64
)

// ErrNoServiceState is returned when the storefront page carries no
// embedded service state.
var ErrNoServiceState = errors.New("service state blob not found in storefront page")

// ErrNoAPIKey is returned when the catalog API key cannot be located in the
// storefront page.
var ErrNoAPIKey = errors.New("catalog api key not found in storefront page")

// Spider implements crawl.Spider for the Chaldal vendor.
type Spider struct {
	baseURL    string
	catalogURL string
	pageSize   int
	emit       crawl.Emitter
	log        logger.Interface
}

// Option configures a Spider.
type Option func(*Spider)

// WithBaseURL overrides the storefront URL.
func WithBaseURL(url string) Option {
	return func(s *Spider) { s.baseURL = url }
}

// WithCatalogURL overrides the catalog search endpoint.
func WithCatalogURL(url string) Option {
	return func(s *Spider) { s.catalogURL = url }
}

// WithPageSize overrides the listing page size.
func WithPageSize(n int) Option {
	return func(s *Spider) { s.pageSize = n }
}

// New creates a Chaldal spider emitting through emit.
func New(emit crawl.Emitter, log logger.Interface, opts ...Option) *Spider {
	s := &Spider{
		baseURL:    defaultBaseURL,
		catalogURL: defaultCatalogURL,
		pageSize:   defaultPageSize,
		emit:       emit,
		log:        log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Vendor returns the vendor name.
func (s *Spider) Vendor() string { return domain.VendorChaldal }

// Run spawns the storefront entry branch; listing branches fan out from it.
func (s *Spider) Run(_ context.Context, r *crawl.Runner) error {
	r.Go("storefront", func(ctx context.Context) error {
		return s.crawlStorefront(ctx, r)
	})
	return nil
}

// serviceState is the slice of the embedded blob the crawl needs.
type serviceState struct {
	LogicService struct {
		GlobalConstants []map[string]any `json:"globalConstants"`
	} `json:"LogicService"`
	CategoryService struct {
		// Keyed by store id.
		Categories map[string][]map[string]any `json:"categories"`
	} `json:"CategoryService"`
	RouterService struct {
		// Keyed by store id.
		ManufacturerRoutes map[string]any `json:"manufacturerRoutes"`
	} `json:"RouterService"`
}

// crawlStorefront fetches the entry page, emits the three snapshot records,
// and schedules one listing chain per (area, product-bearing category).
func (s *Spider) crawlStorefront(ctx context.Context, r *crawl.Runner) error {
	resp, err := r.Fetch(ctx, fetch.Get(s.baseURL))
	if err != nil {
		return err
	}

	state, stateErr := parseServiceState(resp.Body)
	if stateErr != nil {
		return stateErr
	}

	apiKey, keyErr := extractAPIKey(resp.Body)
	if keyErr != nil {
		return keyErr
	}

	storeKey := strconv.Itoa(storeID)

	if len(state.LogicService.GlobalConstants) == 0 {
		return errors.New("service state has no global constants")
	}
	shopMetadata := state.LogicService.GlobalConstants[0]

	categories, ok := state.CategoryService.Categories[storeKey]
	if !ok {
		return fmt.Errorf("service state has no categories for store %s", storeKey)
	}

	brands, ok := state.RouterService.ManufacturerRoutes[storeKey]
	if !ok {
		return fmt.Errorf("service state has no manufacturer routes for store %s", storeKey)
	}

	if emitErr := s.emit.Emit(shopMetadata, domain.KindChaldalShopMetadata); emitErr != nil {
		return emitErr
	}
	if emitErr := s.emit.Emit(categories, domain.KindChaldalCategories); emitErr != nil {
		return emitErr
	}
	if emitErr := s.emit.Emit(brands, domain.KindChaldalBrands); emitErr != nil {
		return emitErr
	}

	areas, areasErr := deliveryAreas(shopMetadata)
	if areasErr != nil {
		return areasErr
	}

	scheduled := 0
	for _, category := range categories {
		contains, containsOK := category["ContainsProducts"].(bool)
		if !containsOK {
			return fmt.Errorf("category missing ContainsProducts flag")
		}
		if !contains {
			continue
		}

		categoryID, idErr := intField(category, "Id")
		if idErr != nil {
			return fmt.Errorf("category item: %w", idErr)
		}

		for _, area := range areas {
			req := s.newSearchRequest(apiKey, categoryID, area)
			branch := fmt.Sprintf("listing:%d:%d", categoryID, area.WarehouseID)
			r.Go(branch, func(ctx context.Context) error {
				return s.crawlListings(ctx, r, req, area)
			})
			scheduled++
		}
	}

	s.log.Info("storefront parsed",
		"vendor", s.Vendor(),
		"categories", len(categories),
		"areas", len(areas),
		"listing_branches", scheduled,
	)

	return nil
}

// parseServiceState pulls the embedded JSON blob out of the first body
// script tag.
func parseServiceState(page []byte) (*serviceState, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse storefront html: %w", err)
	}

	script := doc.Find("body > script").First().Text()
	if !strings.Contains(script, serviceStatePrefix) {
		return nil, ErrNoServiceState
	}
	blob := strings.Replace(script, serviceStatePrefix, "", 1)

	var state serviceState
	if decodeErr := json.Unmarshal([]byte(blob), &state); decodeErr != nil {
		return nil, fmt.Errorf("decode service state: %w", decodeErr)
	}
	return &state, nil
}

// extractAPIKey reads the catalog API key from its fixed offset in the page
// source.
func extractAPIKey(page []byte) (string, error) {
	idx := bytes.Index(page, []byte(apiKeyMarker))
	if idx < 0 || idx+apiKeySkip+apiKeyLen > len(page) {
		return "", ErrNoAPIKey
	}
	return string(page[idx+apiKeySkip : idx+apiKeySkip+apiKeyLen]), nil
}

// area is one delivery area from the shop metadata.
type area struct {
	WarehouseID        int64
	MetropolitanAreaID int64
}

// deliveryAreas reads the Areas mapping out of the shop metadata.
func deliveryAreas(shopMetadata map[string]any) ([]area, error) {
	raw, ok := shopMetadata["Areas"].(map[string]any)
	if !ok {
		return nil, errors.New("shop metadata has no Areas mapping")
	}

	areas := make([]area, 0, len(raw))
	for name, value := range raw {
		entry, entryOK := value.(map[string]any)
		if !entryOK {
			return nil, fmt.Errorf("area %q is %T, want object", name, value)
		}

		warehouseID, whErr := intField(entry, "WarehouseId")
		if whErr != nil {
			return nil, fmt.Errorf("area %q: %w", name, whErr)
		}
		metroID, metroErr := intField(entry, "MetropolitanAreaId")
		if metroErr != nil {
			return nil, fmt.Errorf("area %q: %w", name, metroErr)
		}

		areas = append(areas, area{WarehouseID: warehouseID, MetropolitanAreaID: metroID})
	}
	return areas, nil
}

// newSearchRequest builds the catalog search body for one (category, area)
// pair. The case/fields wrappers mirror the catalog API's union encoding.
func (s *Spider) newSearchRequest(apiKey string, categoryID int64, a area) map[string]any {
	return map[string]any{
		"apiKey":             apiKey,
		"storeId":            storeID,
		"warehouseId":        a.WarehouseID,
		"pageSize":           s.pageSize,
		"currentPageIndex":   0,
		"metropolitanAreaId": a.MetropolitanAreaID,
		"query":              "",
		"productVariantId":   -1,
		"bundleId":           map[string]any{"case": "None"},
		"canSeeOutOfStock":   "false",
		"filters":            []string{"categories%3D" + strconv.FormatInt(categoryID, 10)},
		"shouldShowAlternateProductsForAllOutOfStock": map[string]any{
			"case":   "Some",
			"fields": []any{true},
		},
		"customerGuid":                           map[string]any{"case": "None"},
		"deliveryAreaId":                         map[string]any{"case": "None"},
		"shouldShowCategoryBasedRecommendations": map[string]any{"case": "None"},
	}
}

// crawlListings walks one catalog search pagination chain. Every hit is
// enriched with its warehouse/metropolitan correlation before emission; the
// chain re-issues the same request with the next page index while the
// response reports more pages.
func (s *Spider) crawlListings(ctx context.Context, r *crawl.Runner, req map[string]any, a area) error {
	for {
		fetchReq := fetch.PostJSON(s.catalogURL, req)
		fetchReq.Tags = map[string]string{
			"warehouse":    strconv.FormatInt(a.WarehouseID, 10),
			"metropolitan": strconv.FormatInt(a.MetropolitanAreaID, 10),
		}

		resp, err := r.Fetch(ctx, fetchReq)
		if err != nil {
			return err
		}

		var page struct {
			Page    int              `json:"page"`
			NbPages int              `json:"nbPages"`
			Hits    []map[string]any `json:"hits"`
		}
		if decodeErr := resp.JSON(&page); decodeErr != nil {
			return decodeErr
		}

		for _, hit := range page.Hits {
			hit["warehouse"] = a.WarehouseID
			hit["metropolitan"] = a.MetropolitanAreaID
			if emitErr := s.emit.Emit(hit, domain.KindChaldalListing); emitErr != nil {
				return emitErr
			}
		}

		if page.Page >= page.NbPages {
			return nil
		}
		req["currentPageIndex"] = req["currentPageIndex"].(int) + 1
	}
}

// intField reads an integral number out of a decoded JSON object.
func intField(obj map[string]any, field string) (int64, error) {
	value, ok := obj[field]
	if !ok {
		return 0, fmt.Errorf("missing field %q", field)
	}

	switch v := value.(type) {
	case float64:
		return int64(v), nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("field %q is %T, want number", field, value)
	}
}
