package cmd

import (
	"fmt"

	"github.com/Des1red/clihelp"
)

func printHelp() {
	fmt.Println("netglobe - Geolocate the outbound connections of local processes")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  netglobe [flags] [command] [args]")
	fmt.Println()

	// ─── Core ────────────────────────────────────────────────
	fmt.Println("Core:")
	clihelp.Print(
		clihelp.F("--config, -c", "path", "YAML config file"),
		clihelp.F("--db", "path", "SQLite database (history, ignore list, admin)"),
		clihelp.F("--version", "", "Print version"),
	)
	fmt.Println()

	// ─── Capture ─────────────────────────────────────────────
	fmt.Println("Capture:")
	clihelp.Print(
		clihelp.F("--mode", "string", "auto | stream | snapshot"),
		clihelp.F("--poll-interval", "duration", "Snapshot poll interval"),
		clihelp.F("--conn-timeout", "duration", "Suppress a repeated connection for this long"),
		clihelp.F("--addr-timeout", "duration", "Suppress a repeated destination for this long"),
	)
	fmt.Println()

	// ─── Geolocation ─────────────────────────────────────────
	fmt.Println("Geolocation:")
	clihelp.Print(
		clihelp.F("--geo-url", "url", "Lookup endpoint base URL"),
		clihelp.F("--cache-backend", "string", "json | sqlite | pebble | none"),
		clihelp.F("--cache-failures", "", "Cache failed lookups briefly"),
	)
	fmt.Println()

	// ─── Output ──────────────────────────────────────────────
	fmt.Println("Output:")
	clihelp.Print(
		clihelp.F("--no-console", "", "Do not print events"),
		clihelp.F("--format", "string", "auto | table | json"),
		clihelp.F("--jsonl", "path", "Append events as JSON lines (- for stdout)"),
		clihelp.F("--no-history", "", "Do not record history"),
		clihelp.F("--mqtt-broker", "url", "Publish events to an MQTT broker"),
		clihelp.F("--admin-listen", "address", "Admin endpoint address"),
		clihelp.F("--no-admin", "", "Disable the admin endpoint"),
	)
	fmt.Println()

	// ─── Logging ─────────────────────────────────────────────
	fmt.Println("Logging:")
	clihelp.Print(
		clihelp.F("--log-dir", "path", "Log directory"),
		clihelp.F("--log-level", "string", "debug | info | warn | error"),
		clihelp.F("--verbose, -v", "", "Also log to stderr"),
	)
	fmt.Println()

	fmt.Println("Commands:")
	clihelp.Print(
		clihelp.F("run", "", "Capture and geolocate connections (default)"),
		clihelp.F("lookup", "ip...", "Resolve addresses (--json for raw records)"),
		clihelp.F("classify", "name...", "Show the category of process names"),
		clihelp.F("categories", "", "Print the category rule table"),
		clihelp.F("list-connections", "", "Recent events from a running instance"),
		clihelp.F("history", "[n]", "Last n recorded events"),
	)
	fmt.Println()

	fmt.Println("Geo cache:")
	clihelp.Print(
		clihelp.F("cache-list", "", "Print cached locations"),
		clihelp.F("cache-evict", "", "Drop expired entries"),
		clihelp.F("cache-clear", "", "Drop every entry"),
	)
	fmt.Println()

	fmt.Println("Ignore list:")
	clihelp.Print(
		clihelp.F("ignore-dest", "ip|cidr", "Never report this destination"),
		clihelp.F("unignore-dest", "ip|cidr", "Disable an ignore rule"),
		clihelp.F("del-ignore", "ip|cidr", "Delete an ignore rule"),
		clihelp.F("list-ignored", "", "Print ignore rules"),
	)
	fmt.Println()

	fmt.Println("Administration:")
	clihelp.Print(
		clihelp.F("set-admin-password", "", "Set or rotate the admin endpoint password"),
		clihelp.F("install-service", "", "Install netglobe as a system service"),
		clihelp.F("remove-service", "", "Remove the system service"),
		clihelp.F("doctor", "", "Check tools, paths and endpoints"),
	)
	fmt.Println()

	// ─── Notes ───────────────────────────────────────────────
	fmt.Println("Notes:")
	fmt.Println("  • Private, loopback and link-local destinations are never reported")
	fmt.Println("  • Environment overrides use NETGLOBE_<SECTION>_<KEY>, e.g. NETGLOBE_GEO_MAX_CONCURRENT")
	fmt.Println("  • The admin endpoint needs a password when bound beyond loopback")
	fmt.Println("  • install-service requires root; use a compiled binary (not `go run`)")
}
