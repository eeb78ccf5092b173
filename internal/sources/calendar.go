package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stellarlinkco/dayfeed/internal/feed"
)

const (
	CalendarID = "dayfeed.calendar"

	// DefaultCalendarHorizon bounds how far ahead events become items.
	DefaultCalendarHorizon = 7 * 24 * time.Hour

	imminentWindow = time.Hour
	upcomingWindow = 24 * time.Hour
)

// CalendarEvent is one entry in the calendar file.
type CalendarEvent struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Location string    `json:"location,omitempty"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

// CalendarOption configures a CalendarSource.
type CalendarOption func(*CalendarSource)

func WithCalendarHorizon(horizon time.Duration) CalendarOption {
	return func(s *CalendarSource) { s.horizon = horizon }
}

func WithCalendarClock(now func() time.Time) CalendarOption {
	return func(s *CalendarSource) { s.now = now }
}

// CalendarSource produces items for upcoming events read from a JSON file
// ({"events": [...]}) and pushes an items update whenever the file changes.
type CalendarSource struct {
	path    string
	horizon time.Duration
	now     func() time.Time
}

func NewCalendar(path string, opts ...CalendarOption) *CalendarSource {
	s := &CalendarSource{
		path:    path,
		horizon: DefaultCalendarHorizon,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CalendarSource) ID() string { return CalendarID }

func (s *CalendarSource) FetchItems(_ context.Context, snap feed.Context) ([]feed.Item, error) {
	events, err := s.load()
	if err != nil {
		return nil, err
	}

	now := s.now()
	var items []feed.Item
	for _, ev := range events {
		end := ev.End
		if end.IsZero() {
			end = ev.Start
		}
		if end.Before(now) || ev.Start.After(now.Add(s.horizon)) {
			continue
		}
		items = append(items, feed.Item{
			ID:        "calendar." + ev.ID,
			Type:      "calendar.event",
			Timestamp: ev.Start,
			Data: map[string]any{
				"title":    ev.Title,
				"location": ev.Location,
				"start":    ev.Start,
				"end":      end,
			},
			Signals: eventSignals(now, ev.Start),
		})
	}
	return items, nil
}

// OnItemsUpdate watches the calendar file's directory and pushes whenever
// the file is written or recreated (editors often replace rather than
// rewrite). A watcher that cannot be created logs and degrades to pull-only.
func (s *CalendarSource) OnItemsUpdate(push func()) func() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("[calendar] watch unavailable, pull-only: %v", err)
		return func() {}
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		log.Printf("[calendar] watch %s: %v", filepath.Dir(s.path), err)
		watcher.Close()
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name == s.path && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					push()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[calendar] watch error: %v", err)
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			watcher.Close()
		})
	}
}

func (s *CalendarSource) load() ([]CalendarEvent, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read calendar: %w", err)
	}
	var payload struct {
		Events []CalendarEvent `json:"events"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}
	return payload.Events, nil
}

func eventSignals(now, start time.Time) *feed.Signals {
	switch {
	case start.Before(now.Add(imminentWindow)):
		return &feed.Signals{Urgency: 0.7, TimeRelevance: feed.RelevanceImminent}
	case start.Before(now.Add(upcomingWindow)):
		return &feed.Signals{Urgency: 0.4, TimeRelevance: feed.RelevanceUpcoming}
	default:
		return &feed.Signals{Urgency: 0.1, TimeRelevance: feed.RelevanceAmbient}
	}
}
