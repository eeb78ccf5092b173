// Package sources provides the built-in feed source adapters. Each adapter
// implements a subset of the feed capability interfaces; the engine discovers
// what a source can do by type assertion.
package sources

import (
	"context"
	"fmt"
	"sync"

	"github.com/stellarlinkco/dayfeed/internal/feed"
)

const (
	LocationID = "dayfeed.location"

	// ContextKeyLocation holds a Position in the shared context.
	ContextKeyLocation = "location"

	ActionSetLocation = "location.set"
)

// Position is the user's current location as stored in the context.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Label     string  `json:"label,omitempty"`
}

// LocationSource holds the user's position. It contributes the "location"
// context entry, pushes a context update whenever the position changes, and
// handles the location.set action.
type LocationSource struct {
	mu      sync.Mutex
	pos     *Position
	pushers map[int]func(feed.Partial)
	nextID  int
}

// NewLocation creates a location source. initial may be nil, in which case
// the source contributes nothing until location.set is executed.
func NewLocation(initial *Position) *LocationSource {
	return &LocationSource{pos: initial, pushers: make(map[int]func(feed.Partial))}
}

func (s *LocationSource) ID() string { return LocationID }

func (s *LocationSource) FetchContext(_ context.Context, _ feed.Context) (feed.Partial, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos == nil {
		return nil, nil
	}
	return feed.Partial{ContextKeyLocation: *s.pos}, nil
}

func (s *LocationSource) OnContextUpdate(push func(feed.Partial), _ feed.ContextAccessor) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.pushers[id] = push
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.pushers, id)
		s.mu.Unlock()
	}
}

func (s *LocationSource) Actions() map[string]feed.ActionDefinition {
	return map[string]feed.ActionDefinition{
		ActionSetLocation: {
			ID:          ActionSetLocation,
			Name:        "Set location",
			Description: "Update the user's current position (latitude, longitude, optional label)",
		},
	}
}

func (s *LocationSource) ExecuteAction(_ context.Context, actionID string, params map[string]any) (any, error) {
	if actionID != ActionSetLocation {
		return nil, fmt.Errorf("unknown action %q", actionID)
	}
	lat, err := floatParam(params, "latitude")
	if err != nil {
		return nil, err
	}
	lon, err := floatParam(params, "longitude")
	if err != nil {
		return nil, err
	}
	label, _ := params["label"].(string)
	pos := Position{Latitude: lat, Longitude: lon, Label: label}

	s.mu.Lock()
	s.pos = &pos
	pushers := make([]func(feed.Partial), 0, len(s.pushers))
	for _, push := range s.pushers {
		pushers = append(pushers, push)
	}
	s.mu.Unlock()

	for _, push := range pushers {
		push(feed.Partial{ContextKeyLocation: pos})
	}
	return pos, nil
}

// Current returns the held position, if any.
func (s *LocationSource) Current() (Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos == nil {
		return Position{}, false
	}
	return *s.pos, true
}

func floatParam(params map[string]any, key string) (float64, error) {
	v, ok := params[key]
	if !ok {
		return 0, fmt.Errorf("missing parameter %q", key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("parameter %q must be a number, got %T", key, v)
	}
}
