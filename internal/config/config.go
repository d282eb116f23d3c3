// Package config loads netglobe settings from a YAML file, then applies
// NETGLOBE_* environment overrides. Command-line flags are layered on top
// by cmd.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"netglobe/internal/capture"
	"netglobe/internal/category"
	"netglobe/internal/dedup"
	"netglobe/internal/geo"
	"netglobe/internal/logging"
	"netglobe/internal/sink"
	"netglobe/internal/web"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

const EnvPrefix = "NETGLOBE_"

// Cache backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
	BackendPebble = "pebble"
	BackendNone   = "none"
)

// Console formats.
const (
	ConsoleAuto  = "auto"
	ConsoleTable = "table"
	ConsoleJSON  = "json"
)

type Config struct {
	DBPath string `yaml:"db_path" env:"DB_PATH"`

	Capture  Capture        `yaml:"capture" envPrefix:"CAPTURE_"`
	Dedup    dedup.Timeouts `yaml:"dedup" envPrefix:"DEDUP_"`
	Geo      Geo            `yaml:"geo" envPrefix:"GEO_"`
	Pipeline Pipeline       `yaml:"pipeline" envPrefix:"PIPELINE_"`
	Sinks    Sinks          `yaml:"sinks" envPrefix:"SINK_"`
	Admin    Admin          `yaml:"admin" envPrefix:"ADMIN_"`
	Log      logging.Config `yaml:"log" envPrefix:"LOG_"`

	// Categories replaces the built-in rule table when non-empty.
	Categories []category.Rule `yaml:"categories"`
}

type Capture struct {
	// Mode is auto, stream or snapshot.
	Mode             string           `yaml:"mode" env:"MODE"`
	Stream           capture.Strategy `yaml:"stream"`
	Snapshot         capture.Strategy `yaml:"snapshot"`
	PollInterval     time.Duration    `yaml:"poll_interval" env:"POLL_INTERVAL"`
	ProbeTimeout     time.Duration    `yaml:"probe_timeout" env:"PROBE_TIMEOUT"`
	MaxStartAttempts int              `yaml:"max_start_attempts" env:"MAX_START_ATTEMPTS"`
	RestartBaseDelay time.Duration    `yaml:"restart_base_delay" env:"RESTART_BASE_DELAY"`
}

type Geo struct {
	BaseURL              string        `yaml:"base_url" env:"BASE_URL"`
	Timeout              time.Duration `yaml:"timeout" env:"TIMEOUT"`
	CacheDuration        time.Duration `yaml:"cache_duration" env:"CACHE_DURATION"`
	CacheFailures        bool          `yaml:"cache_failures" env:"CACHE_FAILURES"`
	FailureCacheDuration time.Duration `yaml:"failure_cache_duration" env:"FAILURE_CACHE_DURATION"`
	MaxConcurrent        int           `yaml:"max_concurrent" env:"MAX_CONCURRENT"`
	RateLimitDelay       time.Duration `yaml:"rate_limit_delay" env:"RATE_LIMIT_DELAY"`
	MaxRetries           int           `yaml:"max_retries" env:"MAX_RETRIES"`
	RetryBaseDelay       time.Duration `yaml:"retry_base_delay" env:"RETRY_BASE_DELAY"`
	CacheBackend         string        `yaml:"cache_backend" env:"CACHE_BACKEND"`
	// CachePath defaults per backend; unused for sqlite.
	CachePath            string        `yaml:"cache_path" env:"CACHE_PATH"`
}

type Pipeline struct {
	CleanupInterval    time.Duration `yaml:"cleanup_interval" env:"CLEANUP_INTERVAL"`
	IgnorePollInterval time.Duration `yaml:"ignore_poll_interval" env:"IGNORE_POLL_INTERVAL"`
	// HistoryRetention prunes history rows older than this. Zero keeps everything.
	HistoryRetention   time.Duration `yaml:"history_retention" env:"HISTORY_RETENTION"`
}

type Sinks struct {
	Console       bool            `yaml:"console" env:"CONSOLE"`
	ConsoleFormat string          `yaml:"console_format" env:"CONSOLE_FORMAT"`
	JSONLines     string          `yaml:"jsonlines" env:"JSONLINES"`
	History       bool            `yaml:"history" env:"HISTORY"`
	RecentSize    int             `yaml:"recent_size" env:"RECENT_SIZE"`
	MQTT          sink.MQTTConfig `yaml:"mqtt" envPrefix:"MQTT_"`
}

type Admin struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Listen  string `yaml:"listen" env:"LISTEN"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	g := geo.DefaultConfig()
	return Config{
		Capture: Capture{
			Mode:             "auto",
			Stream:           capture.DefaultStream,
			Snapshot:         capture.DefaultSnapshot,
			PollInterval:     500 * time.Millisecond,
			ProbeTimeout:     3 * time.Second,
			MaxStartAttempts: 3,
			RestartBaseDelay: time.Second,
		},
		Dedup: dedup.DefaultTimeouts,
		Geo: Geo{
			BaseURL:              g.BaseURL,
			Timeout:              g.Timeout,
			CacheDuration:        g.CacheDuration,
			FailureCacheDuration: g.FailureCacheDuration,
			MaxConcurrent:        g.MaxConcurrent,
			RateLimitDelay:       g.RateLimitDelay,
			MaxRetries:           g.MaxRetries,
			RetryBaseDelay:       g.RetryBaseDelay,
			CacheBackend:         BackendJSON,
		},
		Pipeline: Pipeline{
			CleanupInterval:    30 * time.Second,
			IgnorePollInterval: time.Second,
			HistoryRetention:   30 * 24 * time.Hour,
		},
		Sinks: Sinks{
			Console:       true,
			ConsoleFormat: ConsoleAuto,
			History:       true,
			RecentSize:    500,
		},
		Admin: Admin{
			Enabled: true,
			Listen:  web.DefaultListen,
		},
		Log: logging.Config{Level: "info"},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// A missing file is only an error when required is set.
func Load(path string, required bool) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := decodeYAML(data, &cfg); err != nil {
				return cfg, fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !required:
		default:
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}

	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overlays NETGLOBE_* variables onto cfg.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("%w: environment: %v", ErrInvalid, err)
	}
	return nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if _, err := ParseMode(c.Capture.Mode); err != nil {
		errs = append(errs, err)
	}
	if c.Capture.Stream.Command == "" || c.Capture.Snapshot.Command == "" {
		bad("capture commands must not be empty")
	}
	if c.Capture.PollInterval <= 0 {
		bad("capture.poll_interval must be positive")
	}
	if c.Capture.MaxStartAttempts < 1 {
		bad("capture.max_start_attempts must be at least 1")
	}

	if c.Dedup.Connection <= 0 || c.Dedup.Address <= 0 {
		bad("dedup timeouts must be positive")
	}

	if !strings.HasPrefix(c.Geo.BaseURL, "http://") && !strings.HasPrefix(c.Geo.BaseURL, "https://") {
		bad("geo.base_url must be an http(s) URL (got %q)", c.Geo.BaseURL)
	}
	if c.Geo.MaxConcurrent < 1 {
		bad("geo.max_concurrent must be at least 1")
	}
	if c.Geo.MaxRetries < 0 || c.Geo.RateLimitDelay < 0 || c.Geo.RetryBaseDelay < 0 {
		bad("geo retry and rate limit settings must not be negative")
	}
	if c.Geo.CacheDuration <= 0 {
		bad("geo.cache_duration must be positive")
	}
	switch c.Geo.CacheBackend {
	case BackendJSON, BackendSQLite, BackendPebble, BackendNone:
	default:
		bad("geo.cache_backend must be json, sqlite, pebble or none (got %q)", c.Geo.CacheBackend)
	}

	if c.Pipeline.CleanupInterval <= 0 || c.Pipeline.IgnorePollInterval <= 0 {
		bad("pipeline intervals must be positive")
	}
	if c.Pipeline.HistoryRetention < 0 {
		bad("pipeline.history_retention must not be negative")
	}

	switch c.Sinks.ConsoleFormat {
	case ConsoleAuto, ConsoleTable, ConsoleJSON:
	default:
		bad("sinks.console_format must be auto, table or json (got %q)", c.Sinks.ConsoleFormat)
	}
	if err := c.Sinks.MQTT.Validate(); err != nil {
		errs = append(errs, err)
	}

	for i, r := range c.Categories {
		if strings.TrimSpace(r.Category) == "" || len(r.Patterns) == 0 {
			bad("categories[%d] needs a category and at least one pattern", i)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

// ParseMode maps a configured capture mode name to capture.Mode.
func ParseMode(s string) (capture.Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return capture.ModeAuto, nil
	case "stream":
		return capture.ModeStream, nil
	case "snapshot":
		return capture.ModeSnapshot, nil
	}
	return capture.ModeAuto, fmt.Errorf("capture.mode must be auto, stream or snapshot (got %q)", s)
}

// CaptureConfig converts the capture section. Logger and Clock are left for
// the caller.
func (c Config) CaptureConfig() capture.Config {
	mode, _ := ParseMode(c.Capture.Mode)
	return capture.Config{
		Stream:           c.Capture.Stream,
		Snapshot:         c.Capture.Snapshot,
		Mode:             mode,
		PollInterval:     c.Capture.PollInterval,
		ProbeTimeout:     c.Capture.ProbeTimeout,
		MaxStartAttempts: c.Capture.MaxStartAttempts,
		RestartBaseDelay: c.Capture.RestartBaseDelay,
	}
}

// GeoConfig converts the geo section. Store, Logger and Clock are left for
// the caller.
func (c Config) GeoConfig(userAgent string) geo.Config {
	return geo.Config{
		BaseURL:              c.Geo.BaseURL,
		UserAgent:            userAgent,
		Timeout:              c.Geo.Timeout,
		CacheDuration:        c.Geo.CacheDuration,
		CacheFailures:        c.Geo.CacheFailures,
		FailureCacheDuration: c.Geo.FailureCacheDuration,
		MaxConcurrent:        c.Geo.MaxConcurrent,
		RateLimitDelay:       c.Geo.RateLimitDelay,
		MaxRetries:           c.Geo.MaxRetries,
		RetryBaseDelay:       c.Geo.RetryBaseDelay,
	}
}

// Classifier builds the category classifier from the configured rules.
func (c Config) Classifier() *category.Classifier {
	return category.New(c.Categories)
}
