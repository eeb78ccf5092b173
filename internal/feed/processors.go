package feed

import (
	"fmt"
	"time"
)

// Ready-made processors for common feed shaping. They are ordinary
// ProcessorFuncs; callers register them with Engine.AddProcessor like any
// custom transform.

// MaxItems suppresses every item past the first n of the running list.
func MaxItems(n int) ProcessorFunc {
	return func(items []Item) (Enhancement, error) {
		if n < 0 {
			return Enhancement{}, fmt.Errorf("max items: negative limit %d", n)
		}
		if len(items) <= n {
			return Enhancement{}, nil
		}
		var enh Enhancement
		for _, it := range items[n:] {
			enh.Suppress = append(enh.Suppress, it.ID)
		}
		return enh, nil
	}
}

// MaxAge suppresses items whose timestamp is older than maxAge relative to
// now. now may be nil, in which case the wall clock is used.
func MaxAge(maxAge time.Duration, now func() time.Time) ProcessorFunc {
	if now == nil {
		now = time.Now
	}
	return func(items []Item) (Enhancement, error) {
		cutoff := now().Add(-maxAge)
		var enh Enhancement
		for _, it := range items {
			if it.Timestamp.Before(cutoff) {
				enh.Suppress = append(enh.Suppress, it.ID)
			}
		}
		return enh, nil
	}
}

// GroupByType collects all items of the given type into a single group when
// at least two are present.
func GroupByType(itemType, summary string) ProcessorFunc {
	return func(items []Item) (Enhancement, error) {
		var ids []string
		for _, it := range items {
			if it.Type == itemType {
				ids = append(ids, it.ID)
			}
		}
		if len(ids) < 2 {
			return Enhancement{}, nil
		}
		return Enhancement{Groups: []Group{{ItemIDs: ids, Summary: summary}}}, nil
	}
}
