package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"netglobe/internal/capture"
	"netglobe/internal/category"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 30*time.Second, cfg.Dedup.Connection)
	assert.Equal(t, 60*time.Second, cfg.Dedup.Address)
	assert.Equal(t, 1400*time.Millisecond, cfg.Geo.RateLimitDelay)
	assert.Equal(t, 3, cfg.Geo.MaxConcurrent)
	assert.Equal(t, "127.0.0.1:6060", cfg.Admin.Listen)
}

func TestLoadMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	cfg, err := Load(missing, false)
	require.NoError(t, err)
	assert.Equal(t, Default().Geo, cfg.Geo)

	_, err = Load(missing, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
capture:
  mode: snapshot
  poll_interval: 2s
dedup:
  connection: 45s
  address: 90s
geo:
  base_url: https://geo.example.test/json
  cache_backend: pebble
  cache_failures: true
  rate_limit_delay: 0s
sinks:
  console_format: json
  mqtt:
    broker: tcp://localhost:1883
    topic_prefix: lab/netglobe
categories:
  - category: editors
    patterns: [vim, emacs]
`)

	cfg, err := Load(path, true)
	require.NoError(t, err)

	assert.Equal(t, "snapshot", cfg.Capture.Mode)
	assert.Equal(t, 2*time.Second, cfg.Capture.PollInterval)
	assert.Equal(t, capture.DefaultStream, cfg.Capture.Stream)
	assert.Equal(t, 45*time.Second, cfg.Dedup.Connection)
	assert.Equal(t, 90*time.Second, cfg.Dedup.Address)
	assert.Equal(t, BackendPebble, cfg.Geo.CacheBackend)
	assert.True(t, cfg.Geo.CacheFailures)
	assert.Zero(t, cfg.Geo.RateLimitDelay)
	assert.Equal(t, ConsoleJSON, cfg.Sinks.ConsoleFormat)
	assert.True(t, cfg.Sinks.MQTT.Enabled())

	cc := cfg.CaptureConfig()
	assert.Equal(t, capture.ModeSnapshot, cc.Mode)

	gc := cfg.GeoConfig("netglobe/test")
	assert.Equal(t, "netglobe/test", gc.UserAgent)
	assert.Zero(t, gc.RateLimitDelay)

	cl := cfg.Classifier()
	assert.Equal(t, "editors", cl.Classify("nvim"))
	assert.Equal(t, "other", cl.Classify("firefox"))
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "geo:\n  base_urll: http://x\n")
	_, err := Load(path, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "geo:\n  max_concurrent: 2\nadmin:\n  listen: 127.0.0.1:7000\n")

	t.Setenv("NETGLOBE_GEO_MAX_CONCURRENT", "5")
	t.Setenv("NETGLOBE_DEDUP_ADDRESS", "2m")
	t.Setenv("NETGLOBE_SINK_MQTT_QOS", "1")
	t.Setenv("NETGLOBE_LOG_LEVEL", "debug")
	t.Setenv("NETGLOBE_DB_PATH", "/tmp/netglobe-test.db")

	cfg, err := Load(path, true)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Geo.MaxConcurrent)
	assert.Equal(t, 2*time.Minute, cfg.Dedup.Address)
	assert.Equal(t, byte(1), cfg.Sinks.MQTT.QoS)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/tmp/netglobe-test.db", cfg.DBPath)
	assert.Equal(t, "127.0.0.1:7000", cfg.Admin.Listen)
}

func TestEnvParseError(t *testing.T) {
	t.Setenv("NETGLOBE_GEO_MAX_CONCURRENT", "lots")
	_, err := Load("", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Capture.Mode = "ebpf" }},
		{"empty stream command", func(c *Config) { c.Capture.Stream.Command = "" }},
		{"zero dedup", func(c *Config) { c.Dedup.Connection = 0 }},
		{"non http base url", func(c *Config) { c.Geo.BaseURL = "ip-api.com/json" }},
		{"zero concurrency", func(c *Config) { c.Geo.MaxConcurrent = 0 }},
		{"negative retries", func(c *Config) { c.Geo.MaxRetries = -1 }},
		{"unknown backend", func(c *Config) { c.Geo.CacheBackend = "redis" }},
		{"bad console format", func(c *Config) { c.Sinks.ConsoleFormat = "xml" }},
		{"mqtt wildcard", func(c *Config) {
			c.Sinks.MQTT.Broker = "tcp://localhost:1883"
			c.Sinks.MQTT.TopicPrefix = "net/#"
		}},
		{"empty category", func(c *Config) { c.Categories = []category.Rule{{Category: "", Patterns: []string{"x"}}} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Capture.Mode = "nope"
	cfg.Geo.CacheBackend = "nope"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capture.mode")
	assert.Contains(t, err.Error(), "geo.cache_backend")
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]capture.Mode{
		"":         capture.ModeAuto,
		"auto":     capture.ModeAuto,
		"Stream":   capture.ModeStream,
		"snapshot": capture.ModeSnapshot,
	} {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
