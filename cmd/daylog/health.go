package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	flag "github.com/spf13/pflag"

	"daylog/internal/syncmanager"
)

type healthReport struct {
	Sources        map[string]syncmanager.HealthEntry `json:"sources"`
	BacklogWarning bool                                `json:"embedding_backlog_warning"`
	BacklogPending int                                 `json:"embedding_backlog_pending"`
}

// healthCommand starts the sync manager just long enough to populate a
// snapshot, then prints CheckServiceHealth plus the embedding backlog
// warning and exits
func healthCommand(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "print the report as JSON")
	_ = fs.Parse(args)

	if err := a.sync.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "daylog: sync manager failed to start: %v\n", err)
		os.Exit(1)
	}

	warning, pending, err := a.sync.EmbeddingBacklogWarning(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "daylog: failed to read embedding backlog: %v\n", err)
	}

	report := healthReport{
		Sources:        a.sync.CheckServiceHealth(),
		BacklogWarning: warning,
		BacklogPending: pending,
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
		return
	}
	printHealthReport(report)
}

func printHealthReport(report healthReport) {
	namespaces := make([]string, 0, len(report.Sources))
	for ns := range report.Sources {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)

	for _, ns := range namespaces {
		e := report.Sources[ns]
		fmt.Printf("%-16s %-15s errors=%-3d last_run=%s\n", ns, e.Status, e.ErrorCount, formatLastRun(e))
	}
	if report.BacklogWarning {
		fmt.Printf("\nembedding backlog warning: %d rows pending\n", report.BacklogPending)
	}
}

func formatLastRun(e syncmanager.HealthEntry) string {
	if e.LastRun.IsZero() {
		return "never"
	}
	return e.LastRun.Format("2006-01-02T15:04:05Z07:00")
}
