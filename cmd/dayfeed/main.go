package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/stellarlinkco/dayfeed/internal/config"
	"github.com/stellarlinkco/dayfeed/internal/feed"
	"github.com/stellarlinkco/dayfeed/internal/schedule"
	"github.com/stellarlinkco/dayfeed/internal/sources"
)

var rootCmd = &cobra.Command{
	Use:   "dayfeed",
	Short: "dayfeed - personal feed aggregation engine",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine with reactive sources and scheduled refreshes",
	RunE:  runServe,
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Run one refresh and print the feed as JSON",
	RunE:  runRefresh,
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List configured sources and their capabilities",
	RunE:  runSources,
}

var actionsCmd = &cobra.Command{
	Use:   "actions <source-id>",
	Short: "List the actions a source exposes",
	Args:  cobra.ExactArgs(1),
	RunE:  runActions,
}

var runActionCmd = &cobra.Command{
	Use:   "run-action <source-id> <action-id> [key=value ...]",
	Short: "Execute a source action",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runRunAction,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config and a sample calendar",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show dayfeed status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(serveCmd, refreshCmd, sourcesCmd, actionsCmd, runActionCmd, onboardCmd, statusCmd)
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildEngine assembles an engine from config: one source per enabled adapter,
// registered dependencies-first so refresh order is stable.
func buildEngine(cfg *config.Config) (*feed.Engine, []feed.Source) {
	engine := feed.NewEngine(feed.Options{
		TTL:         time.Duration(cfg.Feed.TTLSeconds) * time.Second,
		ItemTimeout: time.Duration(cfg.Feed.ItemTimeoutSeconds) * time.Second,
	})

	var registered []feed.Source
	register := func(src feed.Source) {
		engine.Register(src)
		registered = append(registered, src)
	}

	if cfg.Sources.Location.Enabled {
		var initial *sources.Position
		if cfg.Sources.Location.Latitude != 0 || cfg.Sources.Location.Longitude != 0 {
			initial = &sources.Position{
				Latitude:  cfg.Sources.Location.Latitude,
				Longitude: cfg.Sources.Location.Longitude,
				Label:     cfg.Sources.Location.Label,
			}
		}
		register(sources.NewLocation(initial))
	}
	if cfg.Sources.Weather.Enabled {
		var opts []sources.WeatherOption
		if cfg.Sources.Weather.BaseURL != "" {
			opts = append(opts, sources.WithWeatherBaseURL(cfg.Sources.Weather.BaseURL))
		}
		register(sources.NewWeather(opts...))
	}
	if cfg.Sources.Calendar.Enabled {
		horizon := time.Duration(cfg.Sources.Calendar.HorizonHours) * time.Hour
		register(sources.NewCalendar(cfg.Sources.Calendar.Path, sources.WithCalendarHorizon(horizon)))
	}
	if cfg.Sources.Transit.Enabled {
		register(sources.NewTransit(cfg.Sources.Transit.BaseURL,
			sources.WithTransitRoutes(cfg.Sources.Transit.Routes)))
	}

	engine.AddProcessor("max-items", feed.MaxItems(50))
	return engine, registered
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	engine, registered := buildEngine(cfg)
	if len(registered) == 0 {
		return fmt.Errorf("no sources enabled; edit %s or run 'dayfeed onboard'", config.ConfigPath())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	unsub := engine.Subscribe(func(r *feed.Result) {
		log.Printf("[serve] feed updated: %d items, %d errors", len(r.Items), len(r.Errors))
	})
	defer unsub()

	engine.Start()
	defer engine.Stop()

	if _, err := engine.Refresh(ctx); err != nil {
		return fmt.Errorf("initial refresh: %w", err)
	}

	sched := schedule.NewService(cfg.Schedule.StorePath)
	sched.OnTrigger = func(job schedule.Job) error {
		_, err := engine.Refresh(context.Background())
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start schedule: %w", err)
	}
	defer sched.Stop()
	for _, job := range cfg.Schedule.Jobs {
		if err := sched.EnsureJob(job.Name, job.Expr); err != nil {
			log.Printf("[serve] seed job %s: %v", job.Name, err)
		}
	}

	log.Printf("[serve] running with %d sources; press Ctrl-C to stop", len(registered))
	<-ctx.Done()
	log.Printf("[serve] shutting down")
	return nil
}

func runRefresh(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	engine, registered := buildEngine(cfg)
	if len(registered) == 0 {
		return fmt.Errorf("no sources enabled; edit %s or run 'dayfeed onboard'", config.ConfigPath())
	}

	result, err := engine.Refresh(cmd.Context())
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	return printFeed(cmd.OutOrStdout(), result)
}

func runSources(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	_, registered := buildEngine(cfg)
	out := cmd.OutOrStdout()
	if len(registered) == 0 {
		fmt.Fprintln(out, "No sources enabled.")
		return nil
	}
	for _, src := range registered {
		fmt.Fprintf(out, "%s  [%s]\n", src.ID(), strings.Join(capabilities(src), ", "))
	}
	return nil
}

func runActions(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	engine, _ := buildEngine(cfg)
	actions, err := engine.ListActions(args[0])
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(actions))
	for id := range actions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := cmd.OutOrStdout()
	for _, id := range ids {
		def := actions[id]
		fmt.Fprintf(out, "%s  %s\n", def.ID, def.Name)
		if def.Description != "" {
			fmt.Fprintf(out, "    %s\n", def.Description)
		}
	}
	return nil
}

func runRunAction(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	params, err := parseParams(args[2:])
	if err != nil {
		return err
	}

	engine, _ := buildEngine(cfg)
	result, err := engine.ExecuteAction(cmd.Context(), args[0], args[1], params)
	if err != nil {
		return err
	}
	if result == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "ok")
		return nil
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func runOnboard(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfgPath := config.ConfigPath()

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.SaveConfig(config.DefaultConfig()); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Fprintf(out, "Created config: %s\n", cfgPath)
	} else {
		fmt.Fprintf(out, "Config already exists: %s\n", cfgPath)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	calPath := cfg.Sources.Calendar.Path
	if _, err := os.Stat(calPath); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(calPath), 0755); err != nil {
			return fmt.Errorf("create calendar dir: %w", err)
		}
		if err := os.WriteFile(calPath, []byte(sampleCalendar), 0644); err != nil {
			return fmt.Errorf("write calendar: %w", err)
		}
		fmt.Fprintf(out, "Created sample calendar: %s\n", calPath)
	}

	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintf(out, "  1. Set your location: dayfeed run-action %s %s latitude=59.91 longitude=10.75 label=Oslo\n",
		sources.LocationID, sources.ActionSetLocation)
	fmt.Fprintln(out, "  2. Run 'dayfeed refresh' to see your feed")
	fmt.Fprintln(out, "  3. Run 'dayfeed serve' to keep it live")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(out, "Config: error (%v)\n", err)
		return nil
	}

	fmt.Fprintf(out, "Config: %s\n", config.ConfigPath())
	fmt.Fprintf(out, "Feed TTL: %ds\n", cfg.Feed.TTLSeconds)
	fmt.Fprintf(out, "Location: enabled=%v", cfg.Sources.Location.Enabled)
	if cfg.Sources.Location.Label != "" {
		fmt.Fprintf(out, " (%s)", cfg.Sources.Location.Label)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Weather: enabled=%v\n", cfg.Sources.Weather.Enabled)
	fmt.Fprintf(out, "Calendar: enabled=%v path=%s\n", cfg.Sources.Calendar.Enabled, cfg.Sources.Calendar.Path)
	fmt.Fprintf(out, "Transit: enabled=%v\n", cfg.Sources.Transit.Enabled)

	sched := schedule.NewService(cfg.Schedule.StorePath)
	jobs := sched.ListJobs()
	fmt.Fprintf(out, "Scheduled jobs: %d\n", len(jobs))
	return nil
}

// feedView is the JSON rendering of a refresh result. Errors collapse to
// strings and the context becomes a plain key/value map.
type feedView struct {
	Time    time.Time      `json:"time"`
	Context map[string]any `json:"context,omitempty"`
	Items   []feed.Item    `json:"items"`
	Groups  []feed.Group   `json:"groups,omitempty"`
	Errors  []string       `json:"errors,omitempty"`
}

func printFeed(w io.Writer, result *feed.Result) error {
	view := feedView{
		Time:   result.Context.Time,
		Items:  result.Items,
		Groups: result.Groups,
	}
	if keys := result.Context.Keys(); len(keys) > 0 {
		view.Context = make(map[string]any, len(keys))
		for _, key := range keys {
			v, _ := result.Context.Value(key)
			view.Context[key] = v
		}
	}
	for _, srcErr := range result.Errors {
		view.Errors = append(view.Errors, srcErr.Error())
	}

	data, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return fmt.Errorf("encode feed: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// capabilities reports which optional interfaces a source implements, in the
// order the engine probes them.
func capabilities(src feed.Source) []string {
	caps := []string{"source"}
	if _, ok := src.(feed.Dependent); ok {
		caps = append(caps, "dependent")
	}
	if _, ok := src.(feed.ContextProducer); ok {
		caps = append(caps, "context")
	}
	if _, ok := src.(feed.ContextPusher); ok {
		caps = append(caps, "context-push")
	}
	if _, ok := src.(feed.ItemProducer); ok {
		caps = append(caps, "items")
	}
	if _, ok := src.(feed.ItemsPusher); ok {
		caps = append(caps, "items-push")
	}
	if _, ok := src.(feed.ActionProvider); ok {
		caps = append(caps, "actions")
	}
	return caps
}

// parseParams turns key=value CLI arguments into an action parameter map.
// Values parse as bool or number when they look like one, string otherwise.
func parseParams(args []string) (map[string]any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, want key=value", arg)
		}
		switch {
		case raw == "true" || raw == "false":
			params[key] = raw == "true"
		default:
			if n, err := strconv.ParseFloat(raw, 64); err == nil {
				params[key] = n
			} else {
				params[key] = raw
			}
		}
	}
	return params, nil
}

const sampleCalendar = `{
  "events": [
    {
      "id": "sample",
      "title": "Edit this calendar",
      "start": "2026-01-01T09:00:00Z",
      "end": "2026-01-01T10:00:00Z"
    }
  ]
}
`
