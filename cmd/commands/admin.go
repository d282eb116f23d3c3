package commands

import (
	"database/sql"
	"errors"
	"fmt"

	"netglobe/internal/models"
	"netglobe/internal/system"
)

func runSetAdminPassword(db *sql.DB) {
	exists, err := system.AdminPasswordConfigured(db)
	if err != nil {
		fatal(
			models.Wrap(
				models.CodeAdminPassword,
				models.ExitIO,
				"failed to check admin password status",
				err,
			),
		)
	}

	var current *string
	if exists {
		pwd := promptPassword("Current admin password")
		current = &pwd
	}

	newPwd := promptPassword("New admin password")
	confirm := promptPassword("Confirm admin password")

	if newPwd != confirm {
		fatal(
			models.NewCLIError(
				models.CodeAdminPassword,
				models.ExitUsage,
				"passwords do not match",
			),
		)
	}

	if err := system.SetOrRotateAdminPassword(db, current, newPwd); err != nil {
		exit := models.ExitIO
		if errors.Is(err, system.ErrBadCredential) {
			exit = models.ExitAuth
		}
		fatal(
			models.Wrap(
				models.CodeAdminPassword,
				exit,
				"failed to set admin password",
				err,
			),
		)
	}

	fmt.Println("admin password updated")
}
