package commands

import (
	"fmt"
	"os"
	"strings"
)

// Names lists the commands accepted as the first argument.
var Names = []string{
	"run", "lookup", "classify", "categories",
	"cache-list", "cache-evict", "cache-clear",
	"history", "list-connections",
	"ignore-dest", "unignore-dest", "del-ignore", "list-ignored",
	"set-admin-password", "install-service", "remove-service", "doctor",
}

// Options are command-specific flags parsed by cmd.
type Options struct {
	JSON        bool
	ServiceUser string
}

// DispatchSystemCommands runs a management command. It returns false when
// args name no command, so the caller starts capture instead.
func DispatchSystemCommands(e *Env, args []string, opts Options, printHelp func()) bool {
	if len(args) == 0 || args[0] == "run" {
		return false
	}
	defer e.Close()

	switch args[0] {
	case "lookup":
		if len(args) < 2 {
			usage("lookup <ip>...")
		}
		runLookup(e, args[1:], opts.JSON)

	case "classify":
		if len(args) < 2 {
			usage("classify <process-name>...")
		}
		runClassify(e.Config.Classifier(), args[1:])

	case "categories":
		runListCategories(e.Config.Classifier())

	case "cache-list":
		runCacheList(e)

	case "cache-evict":
		runCacheEvict(e)

	case "cache-clear":
		runCacheClear(e)

	case "history":
		runHistory(e.MustDB(), args[1:])

	case "list-connections":
		runListConnections(e)

	case "ignore-dest":
		if len(args) != 2 {
			usage("ignore-dest <ip|cidr>")
		}
		runIgnoreDestination(e.MustDB(), args[1])

	case "unignore-dest":
		if len(args) != 2 {
			usage("unignore-dest <ip|cidr>")
		}
		runUnignoreDestination(e.MustDB(), args[1])

	case "del-ignore":
		if len(args) != 2 {
			usage("del-ignore <ip|cidr>")
		}
		runDeleteIgnoreRule(e.MustDB(), args[1])

	case "list-ignored":
		runListIgnored(e.MustDB())

	case "set-admin-password":
		runSetAdminPassword(e.MustDB())

	case "install-service":
		runInstallService(e, opts.ServiceUser)

	case "remove-service":
		runRemoveService()

	case "doctor":
		runDoctor(e)

	default:
		fmt.Printf("unknown command: %s\n", args[0])
		fmt.Printf("commands: %s\n\n", strings.Join(Names, ", "))
		printHelp()
		os.Exit(2)
	}

	return true
}
