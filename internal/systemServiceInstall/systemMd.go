package systemserviceinstall

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

const systemdUnitPath = "/etc/systemd/system/" + serviceName + ".service"

const systemdUnit = `[Unit]
Description=netglobe connection geolocation
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
%sExecStart=%s
Restart=on-failure
RestartSec=3
KillSignal=SIGTERM
TimeoutStopSec=10

[Install]
WantedBy=multi-user.target
`

// SystemdUnit renders the unit file for cfg.
func SystemdUnit(cfg InstallConfig) string {
	user := ""
	if cfg.User != "" {
		user = "User=" + cfg.User + "\n"
	}

	args := cfg.Args()
	quoted := make([]string, len(args))
	for i, a := range args {
		if strings.ContainsAny(a, " \t\"") {
			a = strconv.Quote(a)
		}
		quoted[i] = a
	}
	return fmt.Sprintf(systemdUnit, user, strings.Join(quoted, " "))
}

func installSystemd(cfg InstallConfig) error {
	if selinuxEnforcing() {
		bin, err := installSELinuxBinary(cfg.BinaryPath)
		if err != nil {
			return fmt.Errorf("selinux binary install: %w", err)
		}
		cfg.BinaryPath = bin
	}

	if err := os.WriteFile(systemdUnitPath, []byte(SystemdUnit(cfg)), 0644); err != nil {
		return err
	}

	steps := [][]string{
		{"systemctl", "daemon-reload"},
		{"systemctl", "enable", serviceName},
		{"systemctl", "restart", serviceName},
	}

	for _, cmd := range steps {
		if err := exec.Command(cmd[0], cmd[1:]...).Run(); err != nil {
			return fmt.Errorf("%s: %w", strings.Join(cmd, " "), err)
		}
	}

	return nil
}

func removeSystemd() error {
	_ = exec.Command("systemctl", "disable", "--now", serviceName).Run()

	if err := os.Remove(systemdUnitPath); err != nil && !os.IsNotExist(err) {
		return err
	}

	return exec.Command("systemctl", "daemon-reload").Run()
}
