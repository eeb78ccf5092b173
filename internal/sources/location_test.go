package sources

import (
	"context"
	"testing"
	"time"

	"github.com/stellarlinkco/dayfeed/internal/feed"
)

func TestLocation_NoPositionNoContribution(t *testing.T) {
	s := NewLocation(nil)
	partial, err := s.FetchContext(context.Background(), feed.NewContext(time.Now()))
	if err != nil {
		t.Fatalf("FetchContext error: %v", err)
	}
	if partial != nil {
		t.Errorf("partial = %v, want nil contribution", partial)
	}
}

func TestLocation_FetchContext(t *testing.T) {
	s := NewLocation(&Position{Latitude: 59.91, Longitude: 10.75, Label: "Oslo"})
	partial, err := s.FetchContext(context.Background(), feed.NewContext(time.Now()))
	if err != nil {
		t.Fatalf("FetchContext error: %v", err)
	}
	pos, ok := partial[ContextKeyLocation].(Position)
	if !ok || pos.Label != "Oslo" {
		t.Errorf("partial = %v, want Oslo position under %q", partial, ContextKeyLocation)
	}
}

func TestLocation_SetActionPushes(t *testing.T) {
	s := NewLocation(nil)

	var pushed []feed.Partial
	unsub := s.OnContextUpdate(func(p feed.Partial) { pushed = append(pushed, p) }, nil)

	result, err := s.ExecuteAction(context.Background(), ActionSetLocation, map[string]any{
		"latitude":  59.91,
		"longitude": 10.75,
		"label":     "Oslo",
	})
	if err != nil {
		t.Fatalf("ExecuteAction error: %v", err)
	}
	pos, ok := result.(Position)
	if !ok || pos.Label != "Oslo" {
		t.Errorf("result = %v, want the new position", result)
	}
	if got, ok := s.Current(); !ok || got.Latitude != 59.91 {
		t.Errorf("Current = %v, %v", got, ok)
	}
	if len(pushed) != 1 {
		t.Fatalf("pushed %d updates, want 1", len(pushed))
	}
	if _, ok := pushed[0][ContextKeyLocation]; !ok {
		t.Errorf("push missing %q entry: %v", ContextKeyLocation, pushed[0])
	}

	unsub()
	if _, err := s.ExecuteAction(context.Background(), ActionSetLocation, map[string]any{
		"latitude":  1.0,
		"longitude": 2.0,
	}); err != nil {
		t.Fatalf("ExecuteAction error: %v", err)
	}
	if len(pushed) != 1 {
		t.Errorf("pushed %d updates after unsubscribe, want still 1", len(pushed))
	}
}

func TestLocation_SetActionValidation(t *testing.T) {
	s := NewLocation(nil)

	tests := []struct {
		name   string
		params map[string]any
	}{
		{"missing latitude", map[string]any{"longitude": 10.0}},
		{"missing longitude", map[string]any{"latitude": 10.0}},
		{"wrong type", map[string]any{"latitude": "north", "longitude": 10.0}},
	}
	for _, tt := range tests {
		if _, err := s.ExecuteAction(context.Background(), ActionSetLocation, tt.params); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
	if _, ok := s.Current(); ok {
		t.Error("failed action must not mutate the position")
	}
}

func TestLocation_UnknownAction(t *testing.T) {
	s := NewLocation(nil)
	if _, err := s.ExecuteAction(context.Background(), "location.teleport", nil); err == nil {
		t.Error("expected error for unknown action")
	}
}

func TestLocation_ActionsKeyMatchesID(t *testing.T) {
	for key, def := range NewLocation(nil).Actions() {
		if key != def.ID {
			t.Errorf("action key %q != definition id %q", key, def.ID)
		}
	}
}
