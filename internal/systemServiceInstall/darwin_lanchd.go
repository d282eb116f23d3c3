package systemserviceinstall

import (
	"encoding/xml"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

const (
	launchdLabel     = "com.netglobe.capture"
	launchdPlistPath = "/Library/LaunchDaemons/" + launchdLabel + ".plist"
)

const launchdPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN"
 "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
  <key>Label</key>
  <string>%s</string>
  <key>ProgramArguments</key>
  <array>
%s
  </array>
  <key>RunAtLoad</key><true/>
  <key>KeepAlive</key><true/>
</dict>
</plist>
`

// LaunchdPlist renders the launch daemon definition for cfg.
func LaunchdPlist(cfg InstallConfig) string {
	args := cfg.Args()
	lines := make([]string, 0, len(args))
	for _, a := range args {
		var b strings.Builder
		_ = xml.EscapeText(&b, []byte(a))
		lines = append(lines, fmt.Sprintf("    <string>%s</string>", b.String()))
	}
	return fmt.Sprintf(launchdPlist, launchdLabel, strings.Join(lines, "\n"))
}

func installLaunchd(cfg InstallConfig) error {
	if err := os.WriteFile(launchdPlistPath, []byte(LaunchdPlist(cfg)), 0644); err != nil {
		return err
	}

	cmds := [][]string{
		{"launchctl", "bootout", "system/" + launchdLabel},
		{"launchctl", "bootstrap", "system", launchdPlistPath},
	}

	// bootout fails when nothing is loaded yet
	for _, c := range cmds {
		_ = exec.Command(c[0], c[1:]...).Run()
	}

	return nil
}

func removeLaunchd() error {
	_ = exec.Command("launchctl", "bootout", "system/"+launchdLabel).Run()

	if err := os.Remove(launchdPlistPath); err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}
