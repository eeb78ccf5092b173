package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	DefaultTTLSeconds         = 300
	DefaultItemTimeoutSeconds = 10
	DefaultCalendarHorizonHrs = 168
	DefaultWeatherBaseURL     = "https://api.open-meteo.com"
)

type Config struct {
	Feed     FeedConfig     `json:"feed"`
	Sources  SourcesConfig  `json:"sources"`
	Schedule ScheduleConfig `json:"schedule"`
}

type FeedConfig struct {
	TTLSeconds         int `json:"ttlSeconds"`
	ItemTimeoutSeconds int `json:"itemTimeoutSeconds"`
}

type SourcesConfig struct {
	Location LocationConfig `json:"location"`
	Weather  WeatherConfig  `json:"weather"`
	Calendar CalendarConfig `json:"calendar"`
	Transit  TransitConfig  `json:"transit"`
}

type LocationConfig struct {
	Enabled   bool    `json:"enabled"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	Label     string  `json:"label,omitempty"`
}

type WeatherConfig struct {
	Enabled bool   `json:"enabled"`
	BaseURL string `json:"baseUrl,omitempty"`
}

type CalendarConfig struct {
	Enabled      bool   `json:"enabled"`
	Path         string `json:"path,omitempty"`
	HorizonHours int    `json:"horizonHours,omitempty"`
}

type TransitConfig struct {
	Enabled bool     `json:"enabled"`
	BaseURL string   `json:"baseUrl,omitempty"`
	Routes  []string `json:"routes,omitempty"`
}

type ScheduleConfig struct {
	StorePath string      `json:"storePath,omitempty"`
	Jobs      []JobConfig `json:"jobs,omitempty"`
}

// JobConfig seeds a named cron job at startup. Jobs already in the store are
// not duplicated.
type JobConfig struct {
	Name string `json:"name"`
	Expr string `json:"expr"`
}

func DefaultConfig() *Config {
	return &Config{
		Feed: FeedConfig{
			TTLSeconds:         DefaultTTLSeconds,
			ItemTimeoutSeconds: DefaultItemTimeoutSeconds,
		},
		Sources: SourcesConfig{
			Location: LocationConfig{Enabled: true},
			Weather:  WeatherConfig{Enabled: true, BaseURL: DefaultWeatherBaseURL},
			Calendar: CalendarConfig{
				Enabled:      true,
				Path:         filepath.Join(ConfigDir(), "calendar.json"),
				HorizonHours: DefaultCalendarHorizonHrs,
			},
			Transit: TransitConfig{},
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".dayfeed")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("DAYFEED_TTL_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Feed.TTLSeconds = parsed
		}
	}
	if v := os.Getenv("DAYFEED_ITEM_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Feed.ItemTimeoutSeconds = parsed
		}
	}
	if v := os.Getenv("DAYFEED_WEATHER_BASE_URL"); v != "" {
		cfg.Sources.Weather.BaseURL = v
	}
	if v := os.Getenv("DAYFEED_CALENDAR_PATH"); v != "" {
		cfg.Sources.Calendar.Path = v
	}
	if v := os.Getenv("DAYFEED_TRANSIT_BASE_URL"); v != "" {
		cfg.Sources.Transit.BaseURL = v
		cfg.Sources.Transit.Enabled = true
	}
	if v := os.Getenv("DAYFEED_TRANSIT_ROUTES"); v != "" {
		cfg.Sources.Transit.Routes = splitList(v)
	}
	if v := os.Getenv("DAYFEED_LATITUDE"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Sources.Location.Latitude = parsed
		}
	}
	if v := os.Getenv("DAYFEED_LONGITUDE"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Sources.Location.Longitude = parsed
		}
	}
	if v := os.Getenv("DAYFEED_LOCATION_LABEL"); v != "" {
		cfg.Sources.Location.Label = v
	}

	if cfg.Feed.TTLSeconds <= 0 {
		cfg.Feed.TTLSeconds = DefaultTTLSeconds
	}
	if cfg.Feed.ItemTimeoutSeconds <= 0 {
		cfg.Feed.ItemTimeoutSeconds = DefaultItemTimeoutSeconds
	}
	if cfg.Sources.Calendar.HorizonHours <= 0 {
		cfg.Sources.Calendar.HorizonHours = DefaultCalendarHorizonHrs
	}
	if cfg.Sources.Calendar.Path == "" {
		cfg.Sources.Calendar.Path = DefaultConfig().Sources.Calendar.Path
	}
	if cfg.Schedule.StorePath == "" {
		cfg.Schedule.StorePath = filepath.Join(ConfigDir(), "data", "schedule", "jobs.json")
	}

	return cfg, nil
}

func SaveConfig(cfg *Config) error {
	if err := os.MkdirAll(ConfigDir(), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(ConfigPath(), data, 0644)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
