package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stellarlinkco/dayfeed/internal/feed"
)

func weatherContext(t *testing.T, cond Conditions) feed.Context {
	t.Helper()
	now := time.Date(2026, 8, 23, 8, 0, 0, 0, time.UTC)
	return feed.NewContext(now).With(feed.Partial{ContextKeyWeather: cond}, now)
}

func TestWeather_NoLocationNoContribution(t *testing.T) {
	s := NewWeather()
	partial, err := s.FetchContext(context.Background(), feed.NewContext(time.Now()))
	if err != nil {
		t.Fatalf("FetchContext error: %v", err)
	}
	if partial != nil {
		t.Errorf("partial = %v, want nil without a location", partial)
	}
}

func TestWeather_FetchContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("latitude"); got != "59.9100" {
			t.Errorf("latitude = %s, want 59.9100", got)
		}
		fmt.Fprint(w, `{"current_weather":{"temperature":18.5,"windspeed":12.0,"weathercode":61}}`)
	}))
	defer server.Close()

	s := NewWeather(WithWeatherBaseURL(server.URL))
	now := time.Now()
	snap := feed.NewContext(now).With(feed.Partial{
		ContextKeyLocation: Position{Latitude: 59.91, Longitude: 10.75},
	}, now)

	partial, err := s.FetchContext(context.Background(), snap)
	if err != nil {
		t.Fatalf("FetchContext error: %v", err)
	}
	cond, ok := partial[ContextKeyWeather].(Conditions)
	if !ok {
		t.Fatalf("partial = %v, want Conditions under %q", partial, ContextKeyWeather)
	}
	if cond.Temperature != 18.5 || cond.Description != "rain" {
		t.Errorf("conditions = %+v", cond)
	}
}

func TestWeather_FetchContext_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	s := NewWeather(WithWeatherBaseURL(server.URL))
	now := time.Now()
	snap := feed.NewContext(now).With(feed.Partial{
		ContextKeyLocation: Position{Latitude: 1, Longitude: 2},
	}, now)

	if _, err := s.FetchContext(context.Background(), snap); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestWeather_FetchItems(t *testing.T) {
	s := NewWeather()
	items, err := s.FetchItems(context.Background(), weatherContext(t, Conditions{
		Temperature: 18.5,
		Description: "rain",
		Code:        61,
	}))
	if err != nil {
		t.Fatalf("FetchItems error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1 (no alert for ordinary rain)", len(items))
	}
	it := items[0]
	if it.ID != "weather.current" || it.Type != "weather" {
		t.Errorf("item = %+v", it)
	}
	if it.Signals == nil || it.Signals.TimeRelevance != feed.RelevanceAmbient {
		t.Errorf("signals = %+v, want ambient", it.Signals)
	}
}

func TestWeather_FetchItems_SevereAlert(t *testing.T) {
	s := NewWeather()
	items, err := s.FetchItems(context.Background(), weatherContext(t, Conditions{
		Description: "thunderstorm",
		Code:        95,
	}))
	if err != nil {
		t.Fatalf("FetchItems error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want current + alert", len(items))
	}
	alert := items[1]
	if alert.Type != "weather.alert" {
		t.Errorf("alert type = %s", alert.Type)
	}
	if alert.Signals == nil || alert.Signals.Urgency < 0.9 || alert.Signals.TimeRelevance != feed.RelevanceImminent {
		t.Errorf("alert signals = %+v, want urgent imminent", alert.Signals)
	}
}

func TestWeather_FetchItems_NoConditions(t *testing.T) {
	s := NewWeather()
	items, err := s.FetchItems(context.Background(), feed.NewContext(time.Now()))
	if err != nil {
		t.Fatalf("FetchItems error: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("items = %v, want none without conditions", items)
	}
}

func TestDescribeWeatherCode(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{0, "clear sky"},
		{2, "partly cloudy"},
		{61, "rain"},
		{71, "snow"},
		{95, "thunderstorm"},
	}
	for _, tt := range tests {
		if got := describeWeatherCode(tt.code); got != tt.want {
			t.Errorf("describeWeatherCode(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}
