package commands

import (
	"fmt"
	"os"

	"netglobe/internal/models"

	"golang.org/x/term"
)

func promptPassword(label string) string {
	fmt.Print(label + ": ")
	bytePwd, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		fatal(models.Wrap(models.CodeAdminPassword, models.ExitUsage, "failed to read password", err))
	}
	return string(bytePwd)
}
