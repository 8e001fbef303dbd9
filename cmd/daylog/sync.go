package main

import (
	"context"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"daylog/internal/platform/logger"
	"daylog/internal/scheduler"
)

// syncCommand registers every configured source as a job (mirroring run's
// wiring) but only triggers the requested namespace, waiting for that one
// run to finish before exiting
func syncCommand(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	timeout := fs.Duration("timeout", 5*time.Minute, "maximum time to wait for the sync to finish")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "daylog: sync requires exactly one namespace argument")
		os.Exit(2)
	}
	namespace := fs.Arg(0)
	l := logger.Get()

	if err := a.sync.Start(ctx); err != nil {
		l.Fatal().Err(err).Msg("daylog: sync manager failed to start")
	}

	if !a.sched.TriggerNow(namespace) {
		l.Fatal().Str("namespace", namespace).Msg("daylog: unknown or busy namespace")
	}

	deadline := time.Now().Add(*timeout)
	for time.Now().Before(deadline) {
		snap, ok := a.sched.Snapshot(namespace)
		if !ok {
			l.Fatal().Str("namespace", namespace).Msg("daylog: namespace disappeared mid-sync")
		}
		if snap.Status != scheduler.StatusRunning && !snap.LastRun.IsZero() {
			reportSyncResult(l, namespace, snap)
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	l.Fatal().Str("namespace", namespace).Msg("daylog: sync timed out")
}

func reportSyncResult(l *logger.Logger, namespace string, snap scheduler.Snapshot) {
	if snap.LastError != "" {
		l.Error().Str("namespace", namespace).Str("error", snap.LastError).
			Dur("duration", snap.LastDuration).Msg("daylog: sync failed")
		os.Exit(1)
	}
	l.Info().Str("namespace", namespace).Dur("duration", snap.LastDuration).Msg("daylog: sync complete")
}
