package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/stellarlinkco/dayfeed/internal/feed"
)

const (
	WeatherID = "dayfeed.weather"

	// ContextKeyWeather holds a Conditions in the shared context.
	ContextKeyWeather = "weather"

	defaultWeatherBaseURL = "https://api.open-meteo.com"
)

// HTTPClient is the transport seam shared by the HTTP-backed sources;
// injecting it lets tests point a source at an httptest server.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// WeatherOption configures a WeatherSource.
type WeatherOption func(*WeatherSource)

// WithWeatherHTTPClient sets a custom HTTP client.
func WithWeatherHTTPClient(c HTTPClient) WeatherOption {
	return func(s *WeatherSource) { s.httpClient = c }
}

// WithWeatherBaseURL overrides the forecast API base URL.
func WithWeatherBaseURL(url string) WeatherOption {
	return func(s *WeatherSource) { s.baseURL = url }
}

// Conditions is the current weather as stored in the context.
type Conditions struct {
	Temperature float64 `json:"temperature"`
	WindSpeed   float64 `json:"windSpeed"`
	Code        int     `json:"code"`
	Description string  `json:"description"`
}

// WeatherSource fetches current conditions for the user's position. It
// depends on the location source: no position in the context means no
// contribution, not an error.
type WeatherSource struct {
	baseURL    string
	httpClient HTTPClient
}

func NewWeather(opts ...WeatherOption) *WeatherSource {
	s := &WeatherSource{
		baseURL:    defaultWeatherBaseURL,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *WeatherSource) ID() string { return WeatherID }

func (s *WeatherSource) Dependencies() []string { return []string{LocationID} }

func (s *WeatherSource) FetchContext(ctx context.Context, snap feed.Context) (feed.Partial, error) {
	v, ok := snap.Value(ContextKeyLocation)
	if !ok {
		return nil, nil
	}
	pos, ok := v.(Position)
	if !ok {
		return nil, fmt.Errorf("context entry %q has unexpected type %T", ContextKeyLocation, v)
	}

	url := fmt.Sprintf("%s/v1/forecast?latitude=%.4f&longitude=%.4f&current_weather=true",
		s.baseURL, pos.Latitude, pos.Longitude)
	body, err := s.get(ctx, url)
	if err != nil {
		return nil, err
	}

	var resp struct {
		CurrentWeather struct {
			Temperature float64 `json:"temperature"`
			WindSpeed   float64 `json:"windspeed"`
			WeatherCode int     `json:"weathercode"`
		} `json:"current_weather"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse forecast response: %w", err)
	}

	cond := Conditions{
		Temperature: resp.CurrentWeather.Temperature,
		WindSpeed:   resp.CurrentWeather.WindSpeed,
		Code:        resp.CurrentWeather.WeatherCode,
		Description: describeWeatherCode(resp.CurrentWeather.WeatherCode),
	}
	return feed.Partial{ContextKeyWeather: cond}, nil
}

func (s *WeatherSource) FetchItems(_ context.Context, snap feed.Context) ([]feed.Item, error) {
	v, ok := snap.Value(ContextKeyWeather)
	if !ok {
		return nil, nil
	}
	cond, ok := v.(Conditions)
	if !ok {
		return nil, fmt.Errorf("context entry %q has unexpected type %T", ContextKeyWeather, v)
	}

	items := []feed.Item{{
		ID:        "weather.current",
		Type:      "weather",
		Timestamp: snap.Time,
		Data: map[string]any{
			"temperature": cond.Temperature,
			"windSpeed":   cond.WindSpeed,
			"description": cond.Description,
		},
		Signals: &feed.Signals{Urgency: 0.2, TimeRelevance: feed.RelevanceAmbient},
	}}

	if severeWeatherCode(cond.Code) {
		items = append(items, feed.Item{
			ID:        "weather.alert",
			Type:      "weather.alert",
			Timestamp: snap.Time,
			Data: map[string]any{
				"description": cond.Description,
			},
			Signals: &feed.Signals{Urgency: 0.9, TimeRelevance: feed.RelevanceImminent},
		})
	}
	return items, nil
}

func (s *WeatherSource) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build forecast request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch forecast: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("forecast API returned %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// WMO interpretation codes, abridged.
func describeWeatherCode(code int) string {
	switch {
	case code == 0:
		return "clear sky"
	case code <= 3:
		return "partly cloudy"
	case code <= 48:
		return "fog"
	case code <= 57:
		return "drizzle"
	case code <= 67:
		return "rain"
	case code <= 77:
		return "snow"
	case code <= 82:
		return "rain showers"
	case code <= 86:
		return "snow showers"
	default:
		return "thunderstorm"
	}
}

func severeWeatherCode(code int) bool {
	return code >= 95
}
