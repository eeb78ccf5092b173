package feed

import (
	"sort"
	"time"
)

// Context is the accumulated world-state snapshot handed through the source
// graph during one refresh. A snapshot is immutable: extending it with With
// produces a new snapshot, so a source can safely hold the one it was given.
type Context struct {
	// Time is the instant the snapshot was assembled.
	Time time.Time

	values map[string]any
}

// Partial is the set of context entries contributed by a single source.
// Keys are namespaced by convention ("location", "weather", ...).
type Partial map[string]any

// NewContext returns an empty snapshot stamped at now.
func NewContext(now time.Time) Context {
	return Context{Time: now, values: make(map[string]any)}
}

// With returns a new snapshot containing all entries of c plus those of p,
// stamped at now. Entries in p overwrite same-keyed entries in c.
func (c Context) With(p Partial, now time.Time) Context {
	next := make(map[string]any, len(c.values)+len(p))
	for k, v := range c.values {
		next[k] = v
	}
	for k, v := range p {
		next[k] = v
	}
	return Context{Time: now, values: next}
}

// Value returns the entry stored under key.
func (c Context) Value(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Keys returns all entry keys in lexical order.
func (c Context) Keys() []string {
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of entries.
func (c Context) Len() int {
	return len(c.values)
}
