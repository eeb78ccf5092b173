package sources

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stellarlinkco/dayfeed/internal/feed"
)

func writeCalendar(t *testing.T, path string, events []CalendarEvent) {
	t.Helper()
	data, err := json.Marshal(map[string]any{"events": events})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
}

func TestCalendar_MissingFile(t *testing.T) {
	s := NewCalendar(filepath.Join(t.TempDir(), "calendar.json"))
	items, err := s.FetchItems(context.Background(), feed.NewContext(time.Now()))
	if err != nil {
		t.Fatalf("FetchItems error: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("items = %v, want none for a missing file", items)
	}
}

func TestCalendar_FetchItems(t *testing.T) {
	now := time.Date(2026, 8, 23, 8, 0, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "calendar.json")
	writeCalendar(t, path, []CalendarEvent{
		{ID: "standup", Title: "Standup", Start: now.Add(30 * time.Minute), End: now.Add(45 * time.Minute)},
		{ID: "review", Title: "Review", Start: now.Add(4 * time.Hour), End: now.Add(5 * time.Hour)},
		{ID: "offsite", Title: "Offsite", Start: now.Add(3 * 24 * time.Hour), End: now.Add(3*24*time.Hour + time.Hour)},
		{ID: "past", Title: "Yesterday", Start: now.Add(-25 * time.Hour), End: now.Add(-24 * time.Hour)},
		{ID: "far", Title: "Next month", Start: now.Add(40 * 24 * time.Hour), End: now.Add(40*24*time.Hour + time.Hour)},
	})

	s := NewCalendar(path, WithCalendarClock(func() time.Time { return now }))
	items, err := s.FetchItems(context.Background(), feed.NewContext(now))
	if err != nil {
		t.Fatalf("FetchItems error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("items = %d, want 3 (past and beyond-horizon excluded)", len(items))
	}

	tests := []struct {
		id   string
		want feed.TimeRelevance
	}{
		{"calendar.standup", feed.RelevanceImminent},
		{"calendar.review", feed.RelevanceUpcoming},
		{"calendar.offsite", feed.RelevanceAmbient},
	}
	for i, tt := range tests {
		if items[i].ID != tt.id {
			t.Errorf("items[%d].ID = %s, want %s", i, items[i].ID, tt.id)
			continue
		}
		if items[i].Signals == nil || items[i].Signals.TimeRelevance != tt.want {
			t.Errorf("%s signals = %+v, want %s", tt.id, items[i].Signals, tt.want)
		}
	}
}

func TestCalendar_OngoingEventIncluded(t *testing.T) {
	now := time.Date(2026, 8, 23, 8, 0, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "calendar.json")
	writeCalendar(t, path, []CalendarEvent{
		{ID: "allhands", Title: "All hands", Start: now.Add(-30 * time.Minute), End: now.Add(30 * time.Minute)},
	})

	s := NewCalendar(path, WithCalendarClock(func() time.Time { return now }))
	items, err := s.FetchItems(context.Background(), feed.NewContext(now))
	if err != nil {
		t.Fatalf("FetchItems error: %v", err)
	}
	if len(items) != 1 || items[0].Signals.TimeRelevance != feed.RelevanceImminent {
		t.Errorf("ongoing event should be an imminent item, got %v", items)
	}
}

func TestCalendar_WatchPushesOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "calendar.json")
	writeCalendar(t, path, nil)

	s := NewCalendar(path)
	pushed := make(chan struct{}, 4)
	unsub := s.OnItemsUpdate(func() { pushed <- struct{}{} })
	defer unsub()

	// Give the watcher goroutine a moment to arm.
	time.Sleep(50 * time.Millisecond)
	writeCalendar(t, path, []CalendarEvent{{ID: "e1", Title: "New", Start: time.Now().Add(time.Hour)}})

	select {
	case <-pushed:
	case <-time.After(2 * time.Second):
		t.Fatal("no push after calendar file write")
	}
}

func TestCalendar_UnsubscribeIdempotent(t *testing.T) {
	s := NewCalendar(filepath.Join(t.TempDir(), "calendar.json"))
	unsub := s.OnItemsUpdate(func() {})
	unsub()
	unsub() // must not panic on double close
}

func TestCalendar_ParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calendar.json")
	if err := os.WriteFile(path, []byte("not json"), 0644); err != nil {
		t.Fatal(err)
	}
	s := NewCalendar(path)
	if _, err := s.FetchItems(context.Background(), feed.NewContext(time.Now())); err == nil {
		t.Fatal("expected parse error")
	}
}
