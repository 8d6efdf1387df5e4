// Package domain defines the record model shared by the crawl and load
// sides of the harvester: record kinds, the tagged record envelope, and
// the normalized row/run shapes loaded into Postgres.
package domain

// Kind identifies a (vendor, entity-type) pair for an extracted record.
// The values are wire-stable: they appear verbatim in the record stream.
type Kind string

// Meenabazar record kinds.
const (
	KindMeenabazarDeliveryArea Kind = "meenabazar_delivery_area"
	KindMeenabazarCategories   Kind = "meenabazar_categories"
	KindMeenabazarListing      Kind = "meenabazar_listing"
	KindMeenabazarBranch       Kind = "meenabazar_branch"
)

// Chaldal record kinds.
const (
	KindChaldalCategories   Kind = "chaldal_categories"
	KindChaldalBrands       Kind = "chaldal_brands"
	KindChaldalListing      Kind = "chaldal_listing"
	KindChaldalShopMetadata Kind = "chaldal_shop_metadata"
)

// Vendor names used in run artifact filenames and load summaries.
const (
	VendorMeenabazar = "meenabazar"
	VendorChaldal    = "chaldal"
)

// Kinds returns every defined record kind. Exhaustiveness checks over the
// key schema and the normalizer dispatch iterate this list.
func Kinds() []Kind {
	return []Kind{
		KindMeenabazarDeliveryArea,
		KindMeenabazarCategories,
		KindMeenabazarListing,
		KindMeenabazarBranch,
		KindChaldalCategories,
		KindChaldalBrands,
		KindChaldalListing,
		KindChaldalShopMetadata,
	}
}

// Valid reports whether k is one of the defined kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}
