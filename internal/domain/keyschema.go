package domain

import (
	"errors"
	"fmt"
)

// ErrUnknownKind is returned when a kind has no key schema entry and is not
// dedup-exempt. It indicates a code/schema mismatch, not bad input data.
var ErrUnknownKind = errors.New("unknown record kind")

// keySchemas maps each deduplicated kind to the ordered payload fields whose
// values form its unique key. This table is the single source of truth; every
// kind must appear either here or in dedupExempt.
var keySchemas = map[Kind][]string{
	KindMeenabazarDeliveryArea: {"AreaId"},
	KindMeenabazarListing:      {"subunit", "ItemId"},
	KindMeenabazarBranch:       {"SubUnitId"},
	KindChaldalListing:         {"warehouse", "objectID"},
}

// dedupExempt holds the kinds whose payloads are coarse once-per-run
// snapshots. They carry no unique key and always pass deduplication.
var dedupExempt = map[Kind]struct{}{
	KindMeenabazarCategories: {},
	KindChaldalCategories:    {},
	KindChaldalBrands:        {},
	KindChaldalShopMetadata:  {},
}

// KeyFields returns the ordered key fields for kind, or nil for
// dedup-exempt kinds. A kind missing from both tables is an error.
func KeyFields(kind Kind) ([]string, error) {
	if _, exempt := dedupExempt[kind]; exempt {
		return nil, nil
	}
	fields, ok := keySchemas[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return fields, nil
}

// DedupExempt reports whether kind is exempt from deduplication.
func DedupExempt(kind Kind) bool {
	_, exempt := dedupExempt[kind]
	return exempt
}
