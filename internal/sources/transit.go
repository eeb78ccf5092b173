package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/stellarlinkco/dayfeed/internal/feed"
)

const TransitID = "dayfeed.transit"

// TransitOption configures a TransitSource.
type TransitOption func(*TransitSource)

func WithTransitHTTPClient(c HTTPClient) TransitOption {
	return func(s *TransitSource) { s.httpClient = c }
}

func WithTransitBaseURL(url string) TransitOption {
	return func(s *TransitSource) { s.baseURL = url }
}

// WithTransitRoutes restricts alerts to the given route names. Empty means
// all routes.
func WithTransitRoutes(routes []string) TransitOption {
	return func(s *TransitSource) { s.routes = routes }
}

// TransitSource produces one feed item per active service alert on the
// user's routes.
type TransitSource struct {
	baseURL    string
	routes     []string
	httpClient HTTPClient
}

func NewTransit(baseURL string, opts ...TransitOption) *TransitSource {
	s := &TransitSource{
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TransitSource) ID() string { return TransitID }

type transitAlert struct {
	ID          string `json:"id"`
	Route       string `json:"route"`
	Severity    string `json:"severity"`
	Header      string `json:"header"`
	Description string `json:"description"`
	UpdatedAt   string `json:"updated_at"`
}

func (s *TransitSource) FetchItems(ctx context.Context, snap feed.Context) ([]feed.Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/alerts", nil)
	if err != nil {
		return nil, fmt.Errorf("build alerts request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch alerts: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("alerts API returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read alerts response: %w", err)
	}

	var payload struct {
		Alerts []transitAlert `json:"alerts"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse alerts response: %w", err)
	}

	var items []feed.Item
	for _, alert := range payload.Alerts {
		if len(s.routes) > 0 && !slices.Contains(s.routes, alert.Route) {
			continue
		}
		id := alert.ID
		if id == "" {
			id = uuid.NewString()
		}
		ts := snap.Time
		if parsed, err := time.Parse(time.RFC3339, alert.UpdatedAt); err == nil {
			ts = parsed
		}
		items = append(items, feed.Item{
			ID:        "transit." + id,
			Type:      "transit.alert",
			Timestamp: ts,
			Data: map[string]any{
				"route":       alert.Route,
				"header":      alert.Header,
				"description": alert.Description,
				"severity":    alert.Severity,
			},
			Signals: severitySignals(alert.Severity),
		})
	}
	return items, nil
}

func severitySignals(severity string) *feed.Signals {
	switch severity {
	case "severe":
		return &feed.Signals{Urgency: 0.9, TimeRelevance: feed.RelevanceImminent}
	case "warning":
		return &feed.Signals{Urgency: 0.6, TimeRelevance: feed.RelevanceUpcoming}
	default:
		return &feed.Signals{Urgency: 0.3, TimeRelevance: feed.RelevanceAmbient}
	}
}
