package etl_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banalytics/harvester/internal/domain"
	"github.com/banalytics/harvester/internal/etl"
	"github.com/banalytics/harvester/internal/logger"
	"github.com/banalytics/harvester/internal/stream"
)

// captureLogger records warn messages for assertions.
type captureLogger struct {
	logger.NoOpLogger
	warns []string
}

func (c *captureLogger) Warn(msg string, fields ...any) {
	c.warns = append(c.warns, msg)
}

func encodeRecords(t *testing.T, recs ...*domain.Record) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	w := stream.NewWriter(&buf)
	for _, rec := range recs {
		require.NoError(t, w.Write(rec))
	}
	return &buf
}

func keyPtr(key string) *string { return &key }

func TestLoadBuildsRowsAndMetadata(t *testing.T) {
	fetchedAt := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	buf := encodeRecords(t,
		&domain.Record{
			Payload: map[string]any{
				"ItemId":             float64(42),
				"ItemDisplayName":    "Mustard Oil",
				"Unit":               "500 Gram ±",
				"UnitSalesPrice":     float64(120),
				"DiscountSalesPrice": float64(110),
				"subunit":            float64(7),
			},
			Date:      fetchedAt,
			Kind:      domain.KindMeenabazarListing,
			RunID:     "run-1",
			UniqueKey: keyPtr("subunit=7&ItemId=42"),
		},
		&domain.Record{
			Payload: []any{map[string]any{"ItemCategoryId": float64(3)}},
			Kind:    domain.KindMeenabazarCategories,
			RunID:   "run-1",
		},
		&domain.Record{
			Payload:   map[string]any{"AreaId": float64(1), "AreaName": "Banani"},
			Kind:      domain.KindMeenabazarDeliveryArea,
			RunID:     "run-1",
			UniqueKey: keyPtr("AreaId=1"),
		},
		&domain.Record{
			Payload:   map[string]any{"AreaId": float64(2), "AreaName": "Gulshan"},
			Kind:      domain.KindMeenabazarDeliveryArea,
			RunID:     "run-1",
			UniqueKey: keyPtr("AreaId=2"),
		},
	)

	result, err := etl.NewNormalizer(logger.NewNoOp()).Load(buf)
	require.NoError(t, err)

	require.Len(t, result.Rows, 1)
	row := result.Rows[0]
	assert.Equal(t, "42", row.ID)
	assert.Equal(t, "Mustard Oil", row.Name)
	assert.Equal(t, 500.0, row.Quantity)
	assert.Equal(t, "gram", row.Unit)
	assert.Equal(t, 120.0, row.Price)
	assert.Equal(t, 110.0, row.SalePrice)
	assert.Equal(t, "subunit=7&ItemId=42", row.UniqueKey)
	assert.Equal(t, fetchedAt, row.FetchedAt)

	assert.Contains(t, result.Metadata, "categories")
	areas, ok := result.Metadata["delivery_areas"].([]any)
	require.True(t, ok)
	assert.Len(t, areas, 2)
}

func TestLoadChaldalListing(t *testing.T) {
	buf := encodeRecords(t, &domain.Record{
		Payload: map[string]any{
			"objectID":           float64(9001),
			"nameWithoutSubText": "Fresh Milk",
			"subText":            "1000g",
			"mrp":                float64(95),
			"price":              float64(90),
			"warehouse":          float64(3),
		},
		Date:      time.Now().UTC(),
		Kind:      domain.KindChaldalListing,
		RunID:     "run-1",
		UniqueKey: keyPtr("warehouse=3&objectID=9001"),
	})

	result, err := etl.NewNormalizer(logger.NewNoOp()).Load(buf)
	require.NoError(t, err)

	require.Len(t, result.Rows, 1)
	assert.Equal(t, "9001", result.Rows[0].ID)
	assert.Equal(t, 1000.0, result.Rows[0].Quantity)
	assert.Equal(t, "g", result.Rows[0].Unit)
	assert.Equal(t, 95.0, result.Rows[0].Price)
}

// A zero price means "currently unavailable": the row is logged and
// dropped, never an error.
func TestLoadSkipsZeroPricedRows(t *testing.T) {
	buf := encodeRecords(t, &domain.Record{
		Payload: map[string]any{
			"objectID":           float64(7),
			"nameWithoutSubText": "Out Of Stock Ghee",
			"subText":            "250 Gm",
			"mrp":                float64(0),
			"price":              float64(0),
		},
		Date:      time.Now().UTC(),
		Kind:      domain.KindChaldalListing,
		RunID:     "run-1",
		UniqueKey: keyPtr("warehouse=3&objectID=7"),
	})

	log := &captureLogger{}
	result, err := etl.NewNormalizer(log).Load(buf)
	require.NoError(t, err)

	assert.Empty(t, result.Rows)
	assert.Equal(t, 1, result.SkippedZeroPrice)
	assert.Len(t, log.warns, 1)
}

func TestLoadUnknownKindIsFatal(t *testing.T) {
	buf := encodeRecords(t, &domain.Record{
		Payload: map[string]any{},
		Kind:    domain.Kind("chaldal_coupons"),
		RunID:   "run-1",
	})

	_, err := etl.NewNormalizer(logger.NewNoOp()).Load(buf)
	assert.ErrorIs(t, err, domain.ErrUnknownKind)
}

func TestLoadListingMissingIdentityFieldsIsFatal(t *testing.T) {
	tests := []struct {
		name string
		rec  *domain.Record
	}{
		{
			// Prices alone must never become a row with an empty id and
			// name.
			name: "chaldal prices only",
			rec: &domain.Record{
				Payload: map[string]any{
					"mrp":   float64(95),
					"price": float64(90),
				},
				Kind:      domain.KindChaldalListing,
				RunID:     "run-1",
				UniqueKey: keyPtr("warehouse=3&objectID=9001"),
			},
		},
		{
			name: "meenabazar without item id",
			rec: &domain.Record{
				Payload: map[string]any{
					"ItemDisplayName":    "Mustard Oil",
					"Unit":               "500 Gram",
					"UnitSalesPrice":     float64(120),
					"DiscountSalesPrice": float64(110),
				},
				Kind:      domain.KindMeenabazarListing,
				RunID:     "run-1",
				UniqueKey: keyPtr("subunit=7&ItemId=42"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := encodeRecords(t, tt.rec)

			result, err := etl.NewNormalizer(logger.NewNoOp()).Load(buf)
			assert.ErrorIs(t, err, etl.ErrMissingListingField)
			assert.Nil(t, result)
		})
	}
}

func TestLoadListingWithoutKeyIsFatal(t *testing.T) {
	buf := encodeRecords(t, &domain.Record{
		Payload: map[string]any{"objectID": float64(1)},
		Kind:    domain.KindChaldalListing,
		RunID:   "run-1",
	})

	_, err := etl.NewNormalizer(logger.NewNoOp()).Load(buf)
	assert.ErrorIs(t, err, etl.ErrMissingUniqueKey)
}
