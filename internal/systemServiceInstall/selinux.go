package systemserviceinstall

import (
	"os"
	"os/exec"
	"strings"
)

const selinuxBinaryPath = "/usr/local/bin/netglobe"

func selinuxEnforcing() bool {
	data, err := os.ReadFile("/sys/fs/selinux/enforce")
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) == "1"
}

// installSELinuxBinary copies the binary to a bin_t location so systemd may
// execute it under an enforcing policy.
func installSELinuxBinary(src string) (string, error) {
	if err := exec.Command("cp", src, selinuxBinaryPath).Run(); err != nil {
		return "", err
	}

	if err := exec.Command("chmod", "755", selinuxBinaryPath).Run(); err != nil {
		return "", err
	}

	// fix label
	_ = exec.Command("restorecon", "-v", selinuxBinaryPath).Run()

	return selinuxBinaryPath, nil
}
