// Command daylog runs the personal data sync engine: it pulls lifelogs,
// news, weather, and archived tweets into a local SQLite-backed store on
// a schedule, draining embeddings as rows arrive.
//
// Usage:
//
//	daylog run                  Start the scheduler and block until signaled
//	daylog sync <namespace>     Trigger one out-of-band sync and exit
//	daylog health               Print the current sync health view and exit
//	daylog import-archive <zip> Import a Twitter/X export zip and exit
package main

import (
	"context"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"daylog/internal/platform/logger"
)

func main() {
	var (
		tuningPath = flag.String("tuning", "", "path to a YAML tuning fixture overriding per-namespace defaults")
		verbose    = flag.CountP("verbose", "v", "increase log verbosity (-v, -vv)")
	)
	flag.SetInterspersed(false)
	flag.Usage = printUsage
	flag.Parse()

	if *verbose > 0 {
		os.Setenv("LOG_LEVEL", "debug")
	}
	setupLogging()
	l := logger.Get()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}

	ctx := context.Background()
	app, err := buildApp(ctx, *tuningPath)
	if err != nil {
		l.Fatal().Err(err).Msg("daylog: failed to initialize")
	}
	defer app.Close()

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "run":
		runCommand(ctx, app, rest)
	case "sync":
		syncCommand(ctx, app, rest)
	case "health":
		healthCommand(ctx, app, rest)
	case "import-archive":
		importCommand(ctx, app, rest)
	default:
		fmt.Fprintf(os.Stderr, "daylog: unknown command %q\n\n", cmd)
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `daylog - personal data sync engine

Usage:
  daylog [global flags] <command> [command flags]

Commands:
  run                    start the scheduler and Sync Manager, block until signaled
  sync <namespace>       trigger one out-of-band sync for namespace and exit
  health                 print the sync health view and exit
  import-archive <zip>   import a Twitter/X export zip and exit

Global Flags:
  --tuning <path>   YAML tuning fixture overriding per-namespace defaults
  -v, --verbose     increase log verbosity (-v, -vv)
`)
}
