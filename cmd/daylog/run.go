package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"daylog/internal/platform/config"
	"daylog/internal/platform/logger"
)

// embedDrainNamespace is the Scheduler namespace the embedding-drain job
// registers under; it has no Source Adapter, only a recurring closure
const embedDrainNamespace = "_embeddings"

// runCommand starts every registered source's scheduler job, a dedicated
// embedding-drain job, and an optional metrics server, then blocks until
// SIGINT/SIGTERM
func runCommand(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	metricsAddr := fs.String("metrics-addr", "", "address to serve /metrics on (empty disables the server)")
	_ = fs.Parse(args)

	l := logger.Get()
	root := config.New()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	drainInterval := root.MayDuration("DAYLOG_EMBED_DRAIN_INTERVAL", 30*time.Second)
	a.sched.Register(embedDrainNamespace, drainInterval, 2*drainInterval, func(jobCtx context.Context) error {
		return drainEmbeddings(jobCtx, a)
	})

	// Manager.Start registers every configured source and starts the
	// scheduler dispatcher bound to runCtx, so cancelling runCtx below
	// stops every job, including the one just registered above
	if err := a.sync.Start(runCtx); err != nil {
		l.Fatal().Err(err).Msg("daylog: sync manager failed to start")
	}

	if *metricsAddr != "" {
		go serveMetrics(a, *metricsAddr)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	l.Info().Str("signal", sig.String()).Msg("daylog: shutting down")
	cancel()
	a.sched.Wait()
}

func drainEmbeddings(ctx context.Context, a *app) error {
	pending, err := a.ingest.ProcessPendingEmbeddings(ctx, 20)
	if err != nil {
		return err
	}
	retried, err := a.ingest.ReprocessFailedEmbeddings(ctx)
	if err != nil {
		return err
	}
	depth := 0
	if _, n, err := a.sync.EmbeddingBacklogWarning(ctx); err == nil {
		depth = n
	}
	a.metrics.RecordEmbedDrain(pending.Successful+retried.Successful, pending.Failed+retried.Failed, depth)
	return nil
}

func serveMetrics(a *app, addr string) {
	l := logger.Get()
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		l.Error().Err(err).Msg("daylog: metrics server exited")
	}
}
