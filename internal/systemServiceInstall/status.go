package systemserviceinstall

import (
	"os"
	"os/exec"
	"runtime"
)

type Status string

const (
	StatusRunning      Status = "running"
	StatusStopped      Status = "installed, not running"
	StatusNotInstalled Status = "not installed"
	StatusUnsupported  Status = "unsupported on this OS"
)

// statusController reports on the installed service for one platform.
type statusController interface {
	installed() bool
	running() bool
}

type systemdStatus struct{}

func (systemdStatus) installed() bool { return fileExists(systemdUnitPath) }

func (systemdStatus) running() bool {
	return exec.Command("systemctl", "is-active", "--quiet", serviceName).Run() == nil
}

type launchdStatus struct{}

func (launchdStatus) installed() bool { return fileExists(launchdPlistPath) }

func (launchdStatus) running() bool {
	return exec.Command("launchctl", "print", "system/"+launchdLabel).Run() == nil
}

func controller() statusController {
	switch runtime.GOOS {
	case "linux":
		return systemdStatus{}
	case "darwin":
		return launchdStatus{}
	}
	return nil
}

// ServiceStatus reports whether the netglobe service is installed and running.
func ServiceStatus() Status {
	return statusOf(controller())
}

func statusOf(c statusController) Status {
	switch {
	case c == nil:
		return StatusUnsupported
	case !c.installed():
		return StatusNotInstalled
	case c.running():
		return StatusRunning
	default:
		return StatusStopped
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
