package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"netglobe/internal/models"
	systemserviceinstall "netglobe/internal/systemServiceInstall"
)

func currentBinaryPath() string {
	p, err := os.Executable()
	if err != nil {
		fatal(models.Wrap("SERVICE_BINARY", models.ExitIO, "failed to determine binary path", err))
	}
	p, err = filepath.EvalSymlinks(p)
	if err != nil {
		fatal(models.Wrap("SERVICE_BINARY", models.ExitIO, "failed to resolve binary path", err))
	}
	return p
}

// install-service runs capture as root so lsof can see every process.
func runInstallService(e *Env, user string) {
	if os.Geteuid() != 0 {
		fatal(
			models.NewCLIError("SERVICE_PRIV", models.ExitUsage, "installing the service requires root privileges").
				WithHint("usage: sudo ./netglobe --config /etc/netglobe/config.yaml install-service"),
		)
	}

	configPath := e.ConfigPath
	if configPath != "" {
		if abs, err := filepath.Abs(configPath); err == nil {
			configPath = abs
		}
	}

	installCfg := systemserviceinstall.InstallConfig{
		BinaryPath: currentBinaryPath(),
		ConfigPath: configPath,
		User:       user,
	}

	if err := systemserviceinstall.Install(installCfg); err != nil {
		fatal(models.Wrap("SERVICE_INSTALL", models.ExitExternal, "service installation failed", err))
	}

	fmt.Println("service installed successfully")
}

func runRemoveService() {
	if err := systemserviceinstall.Remove(); err != nil {
		fatal(models.Wrap("SERVICE_REMOVE", models.ExitExternal, "service removal failed", err))
	}
	fmt.Println("service removed successfully")
}
