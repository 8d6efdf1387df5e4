// Package record tags raw vendor payloads into immutable domain.Records,
// deriving the dedup key from the kind's key schema.
package record

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/banalytics/harvester/internal/domain"
)

// ErrMissingKeyField is returned when a payload lacks a field the key schema
// requires. The schema is a contract with the payload shape, so this is
// fatal for the record, not a condition to default around.
var ErrMissingKeyField = errors.New("payload missing key field")

// Tag wraps payload in a Record of the given kind. For deduplicated kinds
// the unique key is derived from the key schema; the payload is normalized
// for hashing first but the input is never mutated.
func Tag(payload any, kind domain.Kind, runID string) (*domain.Record, error) {
	fields, err := domain.KeyFields(kind)
	if err != nil {
		return nil, err
	}

	normalized := NormalizeForHash(kind, payload)

	rec := &domain.Record{
		Payload: normalized,
		Date:    time.Now().UTC(),
		Kind:    kind,
		RunID:   runID,
	}

	if fields == nil {
		return rec, nil
	}

	obj, ok := normalized.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("kind %q: payload is %T, want object", kind, payload)
	}

	key, keyErr := encodeKey(fields, obj)
	if keyErr != nil {
		return nil, fmt.Errorf("kind %q: %w", kind, keyErr)
	}
	rec.UniqueKey = &key

	return rec, nil
}

// encodeKey builds the canonical query-string key in schema field order.
// Keys are percent-encoded so two equal keys are equal as plain strings.
func encodeKey(fields []string, payload map[string]any) (string, error) {
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		value, ok := payload[field]
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrMissingKeyField, field)
		}
		parts = append(parts, field+"="+url.QueryEscape(formatValue(value)))
	}
	return strings.Join(parts, "&"), nil
}

// formatValue renders a payload field value the way it appears in the
// vendor JSON: integral numbers without a decimal point.
func formatValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
