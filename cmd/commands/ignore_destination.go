package commands

import (
	"database/sql"
	"errors"
	"fmt"

	"netglobe/internal/models"
	"netglobe/internal/system"
)

func ignoreErr(action, target string, err error) error {
	exit := models.ExitIO
	if errors.Is(err, system.ErrIgnoreRuleMissing) || errors.Is(err, system.ErrEmptyPattern) {
		exit = models.ExitUsage
	} else if _, _, nerr := system.NormalizeIgnorePattern(target); nerr != nil {
		exit = models.ExitUsage
	}
	return models.Wrap(
		models.CodeIgnoreListInvalid,
		exit,
		fmt.Sprintf("failed to %s %q", action, target),
		err,
	)
}

// ignore-dest
func runIgnoreDestination(db *sql.DB, target string) {
	rule, err := system.IgnoreDestination(db, target)
	if err != nil {
		fatal(ignoreErr("ignore destination", target, err))
	}
	fmt.Printf("destination ignored: %s (%s)\n", rule.Pattern, rule.Type)
}

// unignore-dest
func runUnignoreDestination(db *sql.DB, target string) {
	if err := system.UnignoreDestination(db, target); err != nil {
		fatal(ignoreErr("unignore destination", target, err))
	}
	fmt.Printf("destination no longer ignored: %s\n", target)
}

// del-ignore
func runDeleteIgnoreRule(db *sql.DB, target string) {
	if err := system.DeleteIgnoreRule(db, target); err != nil {
		fatal(ignoreErr("delete ignore rule", target, err))
	}
	fmt.Printf("ignore rule deleted: %s\n", target)
}

// list-ignored
func runListIgnored(db *sql.DB) {
	rules, err := system.ListIgnoreList(db)
	if err != nil {
		fatal(models.Wrap(models.CodeIgnoreListInvalid, models.ExitIO, "failed to list ignore rules", err))
	}

	if len(rules) == 0 {
		fmt.Println("ignore list is empty")
		return
	}

	version, _ := system.GetIgnoreListVersion(db)
	fmt.Printf("IGNORED DESTINATIONS (version %d)\n", version)
	fmt.Println("----------------------------------------------")
	for _, r := range rules {
		state := "DISABLED"
		if r.Enabled {
			state = "ENABLED"
		}
		fmt.Printf("[%-8s] %-5s %s\n", state, r.Type, r.Pattern)
	}
}
