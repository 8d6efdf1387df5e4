package record

import "github.com/banalytics/harvester/internal/domain"

// availabilityField holds per-warehouse availability objects whose nested
// timestamps change between otherwise identical chaldal listings.
const availabilityField = "productAvailabilityForSelectedWarehouse"

// volatileTimestampField is zeroed so repeated snapshots of the same listing
// hash and compare equal.
const volatileTimestampField = "UnixTimeMilliseconds"

// NormalizeForHash returns a copy of payload with volatile sub-fields
// rewritten to stable values, so key derivation and downstream comparison
// see a deterministic shape. The input payload is never modified.
func NormalizeForHash(kind domain.Kind, payload any) any {
	if kind != domain.KindChaldalListing {
		return payload
	}

	obj, ok := payload.(map[string]any)
	if !ok {
		return payload
	}

	avail, ok := obj[availabilityField].([]any)
	if !ok {
		return payload
	}

	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[k] = v
	}

	normalized := make([]any, 0, len(avail))
	for _, elt := range avail {
		entry, entryOK := elt.(map[string]any)
		if !entryOK {
			normalized = append(normalized, elt)
			continue
		}

		copied := make(map[string]any, len(entry))
		for k, v := range entry {
			if nested, nestedOK := v.(map[string]any); nestedOK {
				nestedCopy := make(map[string]any, len(nested))
				for nk, nv := range nested {
					nestedCopy[nk] = nv
				}
				nestedCopy[volatileTimestampField] = 0
				copied[k] = nestedCopy
				continue
			}
			copied[k] = v
		}
		normalized = append(normalized, copied)
	}
	out[availabilityField] = normalized

	return out
}
