package etl

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/banalytics/harvester/internal/domain"
	"github.com/banalytics/harvester/internal/logger"
	"github.com/banalytics/harvester/internal/stream"
)

// Metadata labels for the non-row record kinds.
const (
	metaCategories    = "categories"
	metaBrands        = "brands"
	metaShopMetadata  = "shop_metadata"
	metaDeliveryAreas = "delivery_areas"
	metaBranches      = "branches"
)

// ErrMissingUniqueKey is returned when a listing record arrives without a
// dedup key. Listings are never exempt, so this is stream corruption.
var ErrMissingUniqueKey = errors.New("listing record has no unique key")

// ErrMissingListingField is returned when a listing payload lacks a field
// the row shape requires. Only a zero price is a recoverable data-quality
// signal; an absent field means the payload shape changed under us.
var ErrMissingListingField = errors.New("listing payload missing required field")

// Result is the normalized output of one run artifact.
type Result struct {
	// Rows are the validated price datapoints, zero-priced rows excluded.
	Rows []domain.Row
	// Metadata holds the non-row payloads keyed by stable labels.
	Metadata map[string]any
	// SkippedZeroPrice counts listings dropped for a zero price.
	SkippedZeroPrice int
}

// Normalizer turns tagged records into the uniform row shape.
type Normalizer struct {
	log logger.Interface
}

// NewNormalizer creates a normalizer.
func NewNormalizer(log logger.Interface) *Normalizer {
	return &Normalizer{log: log}
}

// Load consumes a record stream and normalizes every record. An unknown
// kind or malformed payload aborts the load: both indicate a schema
// mismatch, not skippable data.
func (n *Normalizer) Load(r io.Reader) (*Result, error) {
	result := &Result{Metadata: make(map[string]any)}
	reader := stream.NewReader(r)

	for {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return result, nil
		}
		if err != nil {
			return nil, err
		}

		if procErr := n.process(rec, result); procErr != nil {
			return nil, procErr
		}
	}
}

// process dispatches one record by kind into rows or metadata.
func (n *Normalizer) process(rec *domain.Record, result *Result) error {
	switch rec.Kind {
	case domain.KindChaldalListing:
		return n.addRow(rec, result, buildChaldalRow, domain.VendorChaldal)
	case domain.KindMeenabazarListing:
		return n.addRow(rec, result, buildMeenabazarRow, domain.VendorMeenabazar)
	case domain.KindChaldalCategories, domain.KindMeenabazarCategories:
		result.Metadata[metaCategories] = rec.Payload
	case domain.KindChaldalBrands:
		result.Metadata[metaBrands] = rec.Payload
	case domain.KindChaldalShopMetadata:
		result.Metadata[metaShopMetadata] = rec.Payload
	case domain.KindMeenabazarDeliveryArea:
		appendMetadata(result.Metadata, metaDeliveryAreas, rec.Payload)
	case domain.KindMeenabazarBranch:
		appendMetadata(result.Metadata, metaBranches, rec.Payload)
	default:
		return fmt.Errorf("%w: %q", domain.ErrUnknownKind, rec.Kind)
	}
	return nil
}

// rowBuilder extracts a Row from one vendor's listing payload.
type rowBuilder func(rec *domain.Record) (domain.Row, error)

// addRow builds a row and keeps it unless its price is zero: a zero price
// means "currently unavailable", which is logged and dropped, not stored.
func (n *Normalizer) addRow(rec *domain.Record, result *Result, build rowBuilder, vendor string) error {
	if rec.UniqueKey == nil {
		return fmt.Errorf("%w: kind %q", ErrMissingUniqueKey, rec.Kind)
	}

	row, err := build(rec)
	if err != nil {
		return fmt.Errorf("normalize %s listing: %w", vendor, err)
	}

	if row.Price == 0 {
		n.log.Warn("skipping zero-priced item",
			"item_id", row.ID,
			"vendor", vendor,
		)
		result.SkippedZeroPrice++
		return nil
	}

	result.Rows = append(result.Rows, row)
	return nil
}

// appendMetadata accumulates payloads for kinds that repeat within a run.
func appendMetadata(metadata map[string]any, label string, payload any) {
	existing, _ := metadata[label].([]any)
	metadata[label] = append(existing, payload)
}

// chaldalListing is the slice of a chaldal catalog hit the row needs.
type chaldalListing struct {
	ObjectID           string  `mapstructure:"objectID"`
	NameWithoutSubText string  `mapstructure:"nameWithoutSubText"`
	SubText            string  `mapstructure:"subText"`
	MRP                float64 `mapstructure:"mrp"`
	Price              float64 `mapstructure:"price"`
}

// buildChaldalRow maps a chaldal hit onto the uniform row shape. MRP is the
// list price; the "price" field is the effective sale price.
func buildChaldalRow(rec *domain.Record) (domain.Row, error) {
	var listing chaldalListing
	if err := decodePayload(rec.Payload, &listing); err != nil {
		return domain.Row{}, err
	}

	quantity, unit, err := QuantityAndUnit(listing.SubText)
	if err != nil {
		return domain.Row{}, err
	}

	return domain.Row{
		ID:        listing.ObjectID,
		Name:      listing.NameWithoutSubText,
		Quantity:  quantity,
		Unit:      unit,
		Price:     listing.MRP,
		SalePrice: listing.Price,
		UniqueKey: *rec.UniqueKey,
		FetchedAt: rec.Date,
	}, nil
}

// meenabazarListing is the slice of a meenabazar listing the row needs.
type meenabazarListing struct {
	ItemID             string  `mapstructure:"ItemId"`
	ItemDisplayName    string  `mapstructure:"ItemDisplayName"`
	Unit               string  `mapstructure:"Unit"`
	UnitSalesPrice     float64 `mapstructure:"UnitSalesPrice"`
	DiscountSalesPrice float64 `mapstructure:"DiscountSalesPrice"`
}

// buildMeenabazarRow maps a meenabazar listing onto the uniform row shape.
func buildMeenabazarRow(rec *domain.Record) (domain.Row, error) {
	var listing meenabazarListing
	if err := decodePayload(rec.Payload, &listing); err != nil {
		return domain.Row{}, err
	}

	quantity, unit, err := QuantityAndUnit(listing.Unit)
	if err != nil {
		return domain.Row{}, err
	}

	return domain.Row{
		ID:        listing.ItemID,
		Name:      listing.ItemDisplayName,
		Quantity:  quantity,
		Unit:      unit,
		Price:     listing.UnitSalesPrice,
		SalePrice: listing.DiscountSalesPrice,
		UniqueKey: *rec.UniqueKey,
		FetchedAt: rec.Date,
	}, nil
}

// decodePayload decodes a listing payload into its typed shape. Weak typing
// tolerates numeric ids arriving as JSON numbers, but every field of the
// target shape must be present in the payload.
func decodePayload(payload any, out any) error {
	var meta mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		Metadata:         &meta,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("build payload decoder: %w", err)
	}

	if decodeErr := decoder.Decode(payload); decodeErr != nil {
		return fmt.Errorf("decode listing payload: %w", decodeErr)
	}

	if len(meta.Unset) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingListingField, strings.Join(meta.Unset, ", "))
	}
	return nil
}
