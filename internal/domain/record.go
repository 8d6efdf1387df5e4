package domain

import "time"

// Record is the tagged envelope around one extracted payload. It is created
// once by the tagger, never mutated afterwards, and serialized one-per-line
// into the run artifact.
type Record struct {
	// Payload is the raw vendor payload. Listing and area records carry a
	// JSON object; the exempt snapshot kinds may carry a JSON array.
	Payload any `json:"payload"`
	// Date is when the record was tagged.
	Date time.Time `json:"date"`
	// Kind identifies the vendor entity type.
	Kind Kind `json:"kind"`
	// RunID ties the record to one crawl invocation.
	RunID string `json:"run_id"`
	// UniqueKey is the dedup key derived from the key schema. It is nil
	// exactly for dedup-exempt kinds.
	UniqueKey *string `json:"unique_key"`
}

// Row is one normalized price/quantity datapoint produced from a listing
// record. Rows with Price == 0 are dropped before they ever exist.
type Row struct {
	ID        string    `db:"item_id"`
	Name      string    `db:"name"`
	Quantity  float64   `db:"quantity"`
	Unit      string    `db:"unit"`
	Price     float64   `db:"price"`
	SalePrice float64   `db:"sale_price"`
	UniqueKey string    `db:"unique_key"`
	FetchedAt time.Time `db:"fetched_at"`
}

// Run describes one complete crawl execution plus the non-row metadata its
// records carried (category trees, brand lists, shop metadata, areas).
type Run struct {
	RunID     string
	Vendor    string
	StartedAt time.Time
	EndedAt   time.Time
	Metadata  map[string]any
}
