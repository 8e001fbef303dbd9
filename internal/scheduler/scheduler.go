// Package scheduler implements the cooperative in-process job scheduler
// that fires per-namespace sync jobs at their configured interval.
// Grounded on the teacher's hallmonitor worker loop
// (internal/services/hallmonitor/service/worker.go's ticker-per-loop
// idiom and its recover-and-contain error handling) and backfill's
// exponential-backoff-with-jitter retry
// (internal/services/backfill/service/service.go's runHourWithRetry),
// generalized from a fixed two-loop shape into an arbitrary job table.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"daylog/internal/platform/logger"
)

// Status is a Job's position in its state machine
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
)

// criticalThreshold is the consecutive-failure count at which the Sync
// Manager's health view surfaces a job as critical
const criticalThreshold = 3

// Closure is the unit of work a Job runs on each tick. It MUST honor
// ctx cancellation at suspension points; the scheduler does not kill
// goroutines, it only stops waiting for them
type Closure func(ctx context.Context) error

// Job is one scheduled unit of recurring work, owned exclusively by the
// Scheduler that created it
type Job struct {
	ID           string
	Namespace    string
	Interval     time.Duration
	Timeout      time.Duration
	NextRun      time.Time
	Status       Status
	ErrorCount   int
	LastError    string
	LastRun      time.Time
	LastDuration time.Duration

	closure Closure
	mu      sync.Mutex // serializes runs of this job; never held across a run
	trigger bool       // set by TriggerNow, consumed by the next tick
}

// Snapshot is a point-in-time copy of a Job's public fields, safe to
// hand to callers outside the scheduler's lock
type Snapshot struct {
	ID           string
	Namespace    string
	Interval     time.Duration
	NextRun      time.Time
	Status       Status
	ErrorCount   int
	LastError    string
	LastRun      time.Time
	LastDuration time.Duration
	Critical     bool
}

// Scheduler runs a single dispatcher goroutine that ticks every
// TickInterval, checking every registered Job for due work
type Scheduler struct {
	mu      sync.RWMutex
	jobs    map[string]*Job
	byNS    map[string]string // namespace -> job id, one job per namespace
	tick    time.Duration
	now     func() time.Time
	doneCh  chan struct{}
	started bool
	onRun   func(namespace string, duration time.Duration, errorCount int, failed bool)
}

// OnRun registers a callback invoked after every job run completes, whether
// it succeeded or failed. Intended for feeding run-stats into a metrics
// collector; must not block
func (s *Scheduler) OnRun(fn func(namespace string, duration time.Duration, errorCount int, failed bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRun = fn
}

// New builds a Scheduler. tickInterval <= 0 defaults to 1s, matching the
// teacher's sub-second ticker cadence for its queue loops
func New(tickInterval time.Duration) *Scheduler {
	if tickInterval <= 0 {
		tickInterval = 1 * time.Second
	}
	return &Scheduler{
		jobs:   map[string]*Job{},
		byNS:   map[string]string{},
		tick:   tickInterval,
		now:    time.Now,
		doneCh: make(chan struct{}),
	}
}

// Register creates a scheduled job for namespace running fn every
// interval, with a per-run timeout. It panics if namespace already has
// a job, since spec §4.F requires at most one job per namespace
func (s *Scheduler) Register(namespace string, interval, timeout time.Duration, fn Closure) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byNS[namespace]; exists {
		panic("scheduler: namespace " + namespace + " already has a job")
	}

	j := &Job{
		ID:        uuid.NewString(),
		Namespace: namespace,
		Interval:  interval,
		Timeout:   timeout,
		NextRun:   s.now(),
		Status:    StatusScheduled,
		closure:   fn,
	}
	s.jobs[j.ID] = j
	s.byNS[namespace] = j.ID
	return j
}

// Start launches the dispatcher goroutine. It is a no-op if already
// started. Stop via ctx cancellation
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go s.dispatch(ctx)
}

// Wait blocks until the dispatcher goroutine has exited, used by tests
// and graceful-shutdown paths that need to know the loop actually stopped
func (s *Scheduler) Wait() {
	<-s.doneCh
}

func (s *Scheduler) dispatch(ctx context.Context) {
	defer close(s.doneCh)
	t := time.NewTicker(s.tick)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.runDueJobs(ctx)
		}
	}
}

// runDueJobs spawns a goroutine per due job; jobs are unordered relative
// to each other, matching spec §4.F's "no cross-job ordering guarantees"
func (s *Scheduler) runDueJobs(ctx context.Context) {
	now := s.now()

	s.mu.RLock()
	due := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		j.mu.Lock()
		ready := j.Status == StatusScheduled && (j.trigger || !j.NextRun.After(now))
		readyPaused := j.Status == StatusPaused && j.trigger
		j.mu.Unlock()
		if ready || readyPaused {
			due = append(due, j)
		}
	}
	s.mu.RUnlock()

	for _, j := range due {
		go s.runOne(ctx, j)
	}
}

// runOne executes a single job run: it contains panics, applies the
// per-run timeout, and transitions the job's state machine on exit
func (s *Scheduler) runOne(ctx context.Context, j *Job) {
	j.mu.Lock()
	wasPaused := j.Status == StatusPaused
	if j.Status != StatusScheduled && !wasPaused {
		j.mu.Unlock()
		return
	}
	j.trigger = false
	j.Status = StatusRunning
	j.mu.Unlock()

	runCtx := ctx
	var cancel context.CancelFunc
	if j.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	started := s.now()
	runErr := j.runClosureContained(runCtx)
	duration := s.now().Sub(started)

	j.mu.Lock()
	j.LastRun = started
	j.LastDuration = duration
	if runErr != nil {
		j.ErrorCount++
		j.LastError = runErr.Error()
		logger.Get().Warn().Str("namespace", j.Namespace).Str("job_id", j.ID).
			Int("error_count", j.ErrorCount).Err(runErr).Msg("scheduler: job run failed")
	} else {
		j.ErrorCount = 0
		j.LastError = ""
	}

	switch {
	case j.Status == StatusCancelled:
		// a cancellation requested mid-run; leave it terminal
	case wasPaused, j.Status == StatusPaused:
		j.Status = StatusPaused
	default:
		j.Status = StatusScheduled
		j.NextRun = s.now().Add(j.Interval)
	}
	j.mu.Unlock()

	s.mu.RLock()
	onRun := s.onRun
	s.mu.RUnlock()
	if onRun != nil {
		onRun(j.Namespace, duration, j.ErrorCount, runErr != nil)
	}
}

// runClosureContained invokes the job's closure with panic containment,
// matching spec §4.F's "exceptions escaping the closure MUST be caught
// inside the scheduler; they MUST NEVER propagate to the dispatcher". A
// timed-out closure is abandoned (its goroutine is left to finish or
// leak, best-effort cancellation only) rather than forcibly killed
func (j *Job) runClosureContained(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- panicToError(r)
			}
		}()
		done <- j.closure(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errors.New("job timeout: " + ctx.Err().Error())
		}
		return ctx.Err()
	}
}

// TriggerNow requests an out-of-band run of namespace's job. A job
// currently running ignores the request; a paused job runs once and
// then returns to paused
func (s *Scheduler) TriggerNow(namespace string) bool {
	j, ok := s.jobByNamespace(namespace)
	if !ok {
		return false
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status == StatusRunning || j.Status == StatusCancelled {
		return false
	}
	j.trigger = true
	return true
}

// Pause blocks new runs of namespace's job without interrupting one
// already in flight
func (s *Scheduler) Pause(namespace string) bool {
	j, ok := s.jobByNamespace(namespace)
	if !ok {
		return false
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status == StatusCancelled {
		return false
	}
	j.Status = StatusPaused
	return true
}

// Resume returns a paused job to scheduled, computing its next run from now
func (s *Scheduler) Resume(namespace string) bool {
	j, ok := s.jobByNamespace(namespace)
	if !ok {
		return false
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status != StatusPaused {
		return false
	}
	j.Status = StatusScheduled
	j.NextRun = s.now()
	return true
}

// Cancel terminally stops namespace's job. Cancellation is cooperative:
// a run already in flight is not interrupted, but no further runs occur
func (s *Scheduler) Cancel(namespace string) bool {
	j, ok := s.jobByNamespace(namespace)
	if !ok {
		return false
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = StatusCancelled
	return true
}

// Snapshot returns a copy of namespace's job state
func (s *Scheduler) Snapshot(namespace string) (Snapshot, bool) {
	j, ok := s.jobByNamespace(namespace)
	if !ok {
		return Snapshot{}, false
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return Snapshot{
		ID:           j.ID,
		Namespace:    j.Namespace,
		Interval:     j.Interval,
		NextRun:      j.NextRun,
		Status:       j.Status,
		ErrorCount:   j.ErrorCount,
		LastError:    j.LastError,
		LastRun:      j.LastRun,
		LastDuration: j.LastDuration,
		Critical:     j.ErrorCount >= criticalThreshold,
	}, true
}

// Snapshots returns every registered job's state, keyed by namespace
func (s *Scheduler) Snapshots() map[string]Snapshot {
	s.mu.RLock()
	namespaces := make([]string, 0, len(s.byNS))
	for ns := range s.byNS {
		namespaces = append(namespaces, ns)
	}
	s.mu.RUnlock()

	out := make(map[string]Snapshot, len(namespaces))
	for _, ns := range namespaces {
		if snap, ok := s.Snapshot(ns); ok {
			out[ns] = snap
		}
	}
	return out
}

func (s *Scheduler) jobByNamespace(namespace string) (*Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byNS[namespace]
	if !ok {
		return nil, false
	}
	return s.jobs[id], true
}

func panicToError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return &panicError{r}
}

type panicError struct{ v any }

func (p *panicError) Error() string { return "panic: " + toString(p.v) }

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return "recovered non-string panic value"
}
