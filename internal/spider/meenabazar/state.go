package meenabazar

import (
	"fmt"
	"sort"
	"sync"
)

// crawlState tracks the subunit ids discovered during the area stage. Many
// prefix branches mutate it concurrently, so access is mutex-guarded.
type crawlState struct {
	mu       sync.Mutex
	subunits map[int64]struct{}
}

func newCrawlState() *crawlState {
	return &crawlState{subunits: make(map[int64]struct{})}
}

// addSubunit records id and reports whether it was first seen. The caller
// schedules the branch-name lookup only on first sight, keeping the
// fan-out idempotent.
func (c *crawlState) addSubunit(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, seen := c.subunits[id]; seen {
		return false
	}
	c.subunits[id] = struct{}{}
	return true
}

// subunitIDs returns the discovered subunit ids in stable order.
func (c *crawlState) subunitIDs() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]int64, 0, len(c.subunits))
	for id := range c.subunits {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
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

// stringField reads a string out of a decoded JSON object.
func stringField(obj map[string]any, field string) (string, error) {
	value, ok := obj[field]
	if !ok {
		return "", fmt.Errorf("missing field %q", field)
	}

	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("field %q is %T, want string", field, value)
	}
	return s, nil
}
