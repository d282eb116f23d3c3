package cmd

import (
	"fmt"
	"os"

	"netglobe/internal/config"

	"github.com/spf13/pflag"
)

var (
	configPath = pflag.StringP("config", "c", "", "path to YAML config (default: user config dir)")
	dbPath     = pflag.String("db", "", "SQLite database path")

	captureMode  = pflag.String("mode", "", "capture mode: auto | stream | snapshot")
	pollInterval = pflag.Duration("poll-interval", 0, "snapshot poll interval")

	connTimeout = pflag.Duration("conn-timeout", 0, "suppression window for a repeated connection")
	addrTimeout = pflag.Duration("addr-timeout", 0, "suppression window for a repeated destination")

	geoURL        = pflag.String("geo-url", "", "geolocation endpoint base URL")
	cacheBackend  = pflag.String("cache-backend", "", "geo cache backend: json | sqlite | pebble | none")
	cacheFailures = pflag.Bool("cache-failures", false, "cache failed lookups for the failure window")

	noConsole     = pflag.Bool("no-console", false, "do not print events to stdout")
	consoleFormat = pflag.String("format", "", "console format: auto | table | json")
	jsonLines     = pflag.String("jsonl", "", "append events as JSON lines to this file (- for stdout)")
	noHistory     = pflag.Bool("no-history", false, "do not record events in the history table")
	mqttBroker    = pflag.String("mqtt-broker", "", "publish events to this MQTT broker (tcp://host:1883)")

	adminListen = pflag.String("admin-listen", "", "admin endpoint listen address")
	noAdmin     = pflag.Bool("no-admin", false, "disable the admin endpoint")

	logDir   = pflag.String("log-dir", "", "log directory")
	logLevel = pflag.String("log-level", "", "log level: debug | info | warn | error")
	verbose  = pflag.BoolP("verbose", "v", false, "also write logs to stderr")

	jsonOut     = pflag.Bool("json", false, "machine-readable output for lookup")
	serviceUser = pflag.String("service-user", "", "account the installed service runs as (systemd)")
	showVersion = pflag.Bool("version", false, "print version and exit")
	showHelp    = pflag.BoolP("help", "h", false, "show help")
)

// setupFlagsAndParse sets up the command-line flags and parses them.
func setupFlagsAndParse() {
	pflag.Usage = printHelp
	pflag.CommandLine.SortFlags = false
	pflag.Parse()

	if *showHelp {
		printHelp()
		os.Exit(0)
	}
	if *showVersion {
		fmt.Println("netglobe", Version)
		os.Exit(0)
	}
}

// applyFlags layers explicitly set flags over cfg.
func applyFlags(cfg *config.Config) {
	set := func(name string) bool { return pflag.CommandLine.Changed(name) }

	if set("db") {
		cfg.DBPath = *dbPath
	}
	if set("mode") {
		cfg.Capture.Mode = *captureMode
	}
	if set("poll-interval") {
		cfg.Capture.PollInterval = *pollInterval
	}
	if set("conn-timeout") {
		cfg.Dedup.Connection = *connTimeout
	}
	if set("addr-timeout") {
		cfg.Dedup.Address = *addrTimeout
	}
	if set("geo-url") {
		cfg.Geo.BaseURL = *geoURL
	}
	if set("cache-backend") {
		cfg.Geo.CacheBackend = *cacheBackend
	}
	if set("cache-failures") {
		cfg.Geo.CacheFailures = *cacheFailures
	}
	if *noConsole {
		cfg.Sinks.Console = false
	}
	if set("format") {
		cfg.Sinks.ConsoleFormat = *consoleFormat
	}
	if set("jsonl") {
		cfg.Sinks.JSONLines = *jsonLines
	}
	if *noHistory {
		cfg.Sinks.History = false
	}
	if set("mqtt-broker") {
		cfg.Sinks.MQTT.Broker = *mqttBroker
	}
	if set("admin-listen") {
		cfg.Admin.Listen = *adminListen
	}
	if *noAdmin {
		cfg.Admin.Enabled = false
	}
	if set("log-dir") {
		cfg.Log.Dir = *logDir
	}
	if set("log-level") {
		cfg.Log.Level = *logLevel
	}
	if *verbose {
		cfg.Log.Stderr = true
	}
}
