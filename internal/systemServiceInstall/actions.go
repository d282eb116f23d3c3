package systemserviceinstall

import (
	"fmt"
	"runtime"
)

const serviceName = "netglobe"

type InstallConfig struct {
	BinaryPath string
	ConfigPath string // optional, passed as --config
	User       string // optional, systemd only
}

// Args is the command line the service manager runs.
func (c InstallConfig) Args() []string {
	args := []string{c.BinaryPath}
	if c.ConfigPath != "" {
		args = append(args, "--config", c.ConfigPath)
	}
	return append(args, "--no-console", "run")
}

func Install(cfg InstallConfig) error {
	if cfg.BinaryPath == "" {
		return fmt.Errorf("binary path is required")
	}
	switch runtime.GOOS {
	case "linux":
		return installSystemd(cfg)
	case "darwin":
		return installLaunchd(cfg)
	default:
		return fmt.Errorf("unsupported OS: %s", runtime.GOOS)
	}
}

func Remove() error {
	switch runtime.GOOS {
	case "linux":
		return removeSystemd()
	case "darwin":
		return removeLaunchd()
	default:
		return fmt.Errorf("unsupported OS: %s", runtime.GOOS)
	}
}
