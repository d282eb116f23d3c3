package commands

import (
	"fmt"
	"os"

	"netglobe/internal/logging"
	"netglobe/internal/models"
)

func fatal(err error) {
	msg, code := models.FormatForUser(err)
	logging.GetLogger().WithError(err).Debug("command failed")
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(code)
}
