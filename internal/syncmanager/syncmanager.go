// Package syncmanager binds Source Adapters to Scheduler jobs and owns
// auto-discovery at startup, grounded on the teacher's hallmonitor
// module wiring (internal/services/hallmonitor/module/module.go binds a
// Repo + GitHub client into one Svc at construction time) generalized
// into a namespace-registry-plus-health-view shape.
package syncmanager

import (
	"context"
	"time"

	"daylog/internal/adapter"
	"daylog/internal/ingestion"
	"daylog/internal/platform/logger"
	"daylog/internal/scheduler"
	"daylog/internal/store"
)

// HealthStatus classifies one namespace's sync health
type HealthStatus string

const (
	HealthCritical      HealthStatus = "critical"
	HealthStaleCritical HealthStatus = "stale_critical"
	HealthStaleWarning  HealthStatus = "stale_warning"
	HealthPaused        HealthStatus = "paused"
	HealthHealthy       HealthStatus = "healthy"
)

// staleWarningFactor and staleCriticalFactor express "> Nx interval since
// last run" per spec §4.G's health view classification
const (
	staleWarningFactor  = 2
	staleCriticalFactor = 4
	criticalErrorCount  = 3
)

// pendingWarningThreshold surfaces a warning once the embedding backlog
// crosses this size, per spec §5's backpressure note: ingestion itself
// is never throttled, only the health view is annotated
const pendingWarningThreshold = 1000

// HealthEntry reports one namespace's sync status
type HealthEntry struct {
	Namespace  string
	Status     HealthStatus
	ErrorCount int
	LastError  string
	LastRun    time.Time
	Interval   time.Duration
}

// SourceConfig describes one namespace's registration: whether it has a
// valid configuration (API key present, feature flag on) and, if so,
// its adapter, sync interval, and source-type tag for data_sources
type SourceConfig struct {
	Namespace  string
	Valid      bool
	Adapter    adapter.Adapter
	SourceType string
	ConfigJSON string
	Interval   time.Duration
	Timeout    time.Duration

	// Cadenced is false for sources with no time-based cadence (e.g.
	// archive imports), which are never auto-triggered on startup
	Cadenced bool
}

// Manager binds Source Adapters to Scheduler jobs and exposes the
// aggregate health view consumed by the out-of-scope REST layer
type Manager struct {
	store     *store.Store
	ingestion *ingestion.Service
	scheduler *scheduler.Scheduler
	sources   []SourceConfig
	now       func() time.Time
}

// New builds a Manager over an already-constructed Ingestion Service and
// Scheduler; sources are the candidate namespace configurations
// evaluated at Start
func New(st *store.Store, svc *ingestion.Service, sched *scheduler.Scheduler, sources []SourceConfig) *Manager {
	return &Manager{
		store:     st,
		ingestion: svc,
		scheduler: sched,
		sources:   sources,
		now:       time.Now,
	}
}

// Start implements spec §4.G's 3-step startup sequence: register valid
// namespaces, evaluate ShouldSyncOnStartup, start the scheduler
func (m *Manager) Start(ctx context.Context) error {
	for _, src := range m.sources {
		if !src.Valid {
			logger.C(ctx).Warn().Str("namespace", src.Namespace).Msg("syncmanager: skipping invalid source configuration")
			continue
		}

		m.ingestion.RegisterAdapter(src.Namespace, src.Adapter)
		if err := m.store.UpsertDataSource(ctx, src.Namespace, src.SourceType, src.ConfigJSON); err != nil {
			logger.C(ctx).Error().Err(err).Str("namespace", src.Namespace).Msg("syncmanager: failed to register data source")
			continue
		}

		namespace := src.Namespace
		m.scheduler.Register(namespace, src.Interval, src.Timeout, func(runCtx context.Context) error {
			summary, err := m.ingestion.IngestFromSource(runCtx, namespace, ingestion.IngestOptions{})
			if err != nil {
				return err
			}
			if !summary.Success {
				return &syncError{namespace: namespace, errs: summary.Errors}
			}
			return nil
		})

		if src.Cadenced {
			due, err := m.shouldSyncOnStartup(ctx, src)
			if err != nil {
				logger.C(ctx).Warn().Err(err).Str("namespace", namespace).Msg("syncmanager: startup eligibility check failed")
			} else if due {
				m.scheduler.TriggerNow(namespace)
			}
		}
	}

	m.scheduler.Start(ctx)
	return nil
}

// shouldSyncOnStartup implements spec §4.G step 2: true iff there is no
// recorded last_sync, or now - last_sync >= the configured interval
func (m *Manager) shouldSyncOnStartup(ctx context.Context, src SourceConfig) (bool, error) {
	lastSync, ok, err := m.store.LastSync(ctx, src.Namespace)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return m.now().Sub(lastSync) >= src.Interval, nil
}

// CheckServiceHealth aggregates per-namespace status per spec §4.G
func (m *Manager) CheckServiceHealth() map[string]HealthEntry {
	out := make(map[string]HealthEntry, len(m.sources))
	snaps := m.scheduler.Snapshots()

	for _, src := range m.sources {
		if !src.Valid {
			continue
		}
		snap, ok := snaps[src.Namespace]
		if !ok {
			continue
		}

		entry := HealthEntry{
			Namespace:  src.Namespace,
			ErrorCount: snap.ErrorCount,
			LastError:  snap.LastError,
			LastRun:    snap.LastRun,
			Interval:   src.Interval,
		}
		entry.Status = m.classify(snap)
		out[src.Namespace] = entry
	}
	return out
}

// EmbeddingBacklogWarning reports whether the pending-embedding queue
// has grown past pendingWarningThreshold. Per spec §5, ingestion is
// never throttled on this condition; only the health view is annotated
func (m *Manager) EmbeddingBacklogWarning(ctx context.Context) (bool, int, error) {
	n, err := m.store.PendingEmbeddingCount(ctx)
	if err != nil {
		return false, 0, err
	}
	return n > pendingWarningThreshold, n, nil
}

func (m *Manager) classify(snap scheduler.Snapshot) HealthStatus {
	if snap.Status == scheduler.StatusPaused {
		return HealthPaused
	}
	if snap.ErrorCount >= criticalErrorCount {
		return HealthCritical
	}
	if !snap.LastRun.IsZero() && snap.Interval > 0 {
		age := m.now().Sub(snap.LastRun)
		switch {
		case age > time.Duration(staleCriticalFactor)*snap.Interval:
			return HealthStaleCritical
		case age > time.Duration(staleWarningFactor)*snap.Interval:
			return HealthStaleWarning
		}
	}
	return HealthHealthy
}

// syncError wraps a sync summary's collected errors into a single Go
// error so a failed sync also registers as a scheduler job failure
type syncError struct {
	namespace string
	errs      []string
}

func (e *syncError) Error() string {
	msg := "syncmanager: ingest_from_source(" + e.namespace + ") reported errors: "
	for i, s := range e.errs {
		if i > 0 {
			msg += "; "
		}
		msg += s
	}
	return msg
}
