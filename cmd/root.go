package cmd

import (
	"fmt"
	"os"

	"netglobe/cmd/commands"
	"netglobe/internal/config"
	"netglobe/internal/logging"
	"netglobe/internal/models"
	"netglobe/internal/system"

	"github.com/spf13/pflag"
)

// Version is set at build time with -ldflags "-X netglobe/cmd.Version=...".
var Version = "dev"

// Execute runs the main execution flow
func Execute() {
	// Setup flags and parse them
	setupFlagsAndParse()

	// Load config file, environment and flags
	cfg, path := loadConfig()

	// Setup structured logging
	if err := logging.SetupLogger(cfg.Log); err != nil {
		exit(models.Wrap(models.CodeConfigInvalid, models.ExitConfig, "failed to set up logging", err))
	}

	env := &commands.Env{
		Config:     cfg,
		ConfigPath: path,
		Version:    Version,
		Log:        logging.GetLogger(),
	}

	// Handle management commands first (lookup, ignore-dest, ...)
	opts := commands.Options{JSON: *jsonOut, ServiceUser: *serviceUser}
	if handled := commands.DispatchSystemCommands(env, pflag.Args(), opts, printHelp); handled {
		return
	}

	if err := run(env); err != nil {
		exit(err)
	}
}

func loadConfig() (config.Config, string) {
	path, required := *configPath, true
	if path == "" {
		required = false
		if p, err := system.DefaultConfigPath(); err == nil {
			path = p
		}
	}

	cfg, err := config.Load(path, required)
	if err == nil {
		applyFlags(&cfg)
		err = cfg.Validate()
	}
	if err != nil {
		exit(models.Wrap(models.CodeConfigInvalid, models.ExitConfig, "invalid configuration", err))
	}

	// running on defaults
	if !required {
		if _, err := os.Stat(path); err != nil {
			path = ""
		}
	}
	return cfg, path
}

func exit(err error) {
	msg, code := models.FormatForUser(err)
	logging.GetLogger().WithError(err).Error("exiting")
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(code)
}
