package main

import (
	"context"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"daylog/internal/platform/logger"
)

// importCommand drives the ArchiveAdapter's offline import path: parse the
// given Twitter/X export zip into Records, then run them through the same
// processor-chain-and-store pipeline a live sync would use
func importCommand(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("import-archive", flag.ExitOnError)
	_ = fs.Parse(args)

	l := logger.Get()

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "daylog: import-archive requires exactly one zip path argument")
		os.Exit(2)
	}
	if a.archive == nil {
		l.Fatal().Msg("daylog: TWITTER_ARCHIVE_ENABLED is not set, nothing to import into")
	}
	zipPath := fs.Arg(0)

	records, err := a.archive.ImportZip(ctx, zipPath)
	if err != nil {
		l.Fatal().Err(err).Str("zip", zipPath).Msg("daylog: archive import failed")
	}
	if len(records) == 0 {
		l.Info().Str("zip", zipPath).Msg("daylog: archive import found no new tweets")
		return
	}

	summary, err := a.ingest.ImportRecords(ctx, "twitter", records)
	if err != nil {
		l.Fatal().Err(err).Str("zip", zipPath).Msg("daylog: archive import failed to store records")
	}
	if !summary.Success {
		for _, e := range summary.Errors {
			l.Warn().Str("zip", zipPath).Str("error", e).Msg("daylog: archive import item error")
		}
	}
	l.Info().Str("zip", zipPath).Int("stored", summary.ItemsStored).Int("skipped", summary.ItemsSkipped).
		Msg("daylog: archive import complete")
}
