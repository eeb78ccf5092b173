package feed

import (
	"fmt"
	"time"
)

// TimeRelevance hints how soon an item matters to the user.
type TimeRelevance string

const (
	RelevanceImminent TimeRelevance = "imminent"
	RelevanceUpcoming TimeRelevance = "upcoming"
	RelevanceAmbient  TimeRelevance = "ambient"
)

// Signals are opaque ranking hints attached by a source. The engine passes
// them through untouched.
type Signals struct {
	Urgency       float64       `json:"urgency"`
	TimeRelevance TimeRelevance `json:"timeRelevance,omitempty"`
}

// Item is one unit of feed content. IDs must be unique within a single feed;
// a source that wants cross-refresh identity keeps its IDs stable.
type Item struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
	Signals   *Signals       `json:"signals,omitempty"`
}

// Group references items that belong together in presentation.
type Group struct {
	ItemIDs []string `json:"itemIds"`
	Summary string   `json:"summary"`
}

// SourceError records a failure scoped to one source or processor. The
// refresh that produced it still completed.
type SourceError struct {
	SourceID string
	Err      error
}

func (e SourceError) Error() string {
	return fmt.Sprintf("%s: %v", e.SourceID, e.Err)
}

func (e SourceError) Unwrap() error {
	return e.Err
}

// Result is the outcome of one refresh, pull or reactive. It is the unit
// cached by the engine and delivered to subscribers.
type Result struct {
	Context Context
	Items   []Item
	Errors  []SourceError
	// Groups is nil when no post-processor produced a surviving group.
	Groups []Group
}
