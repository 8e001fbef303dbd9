package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

func TestRegisterPanicsOnDuplicateNamespace(t *testing.T) {
	s := New(10 * time.Millisecond)
	s.Register("news", time.Hour, 0, func(ctx context.Context) error { return nil })
	assert.Panics(t, func() {
		s.Register("news", time.Hour, 0, func(ctx context.Context) error { return nil })
	})
}

func TestJobRunsAndReschedules(t *testing.T) {
	var calls int32
	s := New(5 * time.Millisecond)
	s.Register("news", 30*time.Millisecond, 0, func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&calls) >= 2 })

	snap, ok := s.Snapshot("news")
	require.True(t, ok)
	assert.Equal(t, StatusScheduled, snap.Status)
	assert.Equal(t, 0, snap.ErrorCount)
}

func TestJobFailureIncrementsErrorCountAndRecovers(t *testing.T) {
	s := New(5 * time.Millisecond)
	s.Register("news", 20*time.Millisecond, 0, func(ctx context.Context) error {
		return errors.New("boom")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	waitFor(t, time.Second, func() bool {
		snap, _ := s.Snapshot("news")
		return snap.ErrorCount >= 3
	})

	snap, _ := s.Snapshot("news")
	assert.True(t, snap.Critical)
	assert.Contains(t, snap.LastError, "boom")
	assert.Equal(t, StatusScheduled, snap.Status, "a failing job still returns to scheduled, never stuck in running")
}

func TestJobSuccessResetsErrorCount(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	s := New(5 * time.Millisecond)
	s.Register("news", 15*time.Millisecond, 0, func(ctx context.Context) error {
		if fail.Load() {
			return errors.New("transient")
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	waitFor(t, time.Second, func() bool {
		snap, _ := s.Snapshot("news")
		return snap.ErrorCount >= 1
	})
	fail.Store(false)

	waitFor(t, time.Second, func() bool {
		snap, _ := s.Snapshot("news")
		return snap.ErrorCount == 0 && !snap.LastRun.IsZero()
	})
}

func TestJobPanicIsContainedAsError(t *testing.T) {
	s := New(5 * time.Millisecond)
	s.Register("news", 20*time.Millisecond, 0, func(ctx context.Context) error {
		panic("job exploded")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	waitFor(t, time.Second, func() bool {
		snap, _ := s.Snapshot("news")
		return snap.ErrorCount >= 1
	})

	snap, _ := s.Snapshot("news")
	assert.Contains(t, snap.LastError, "job exploded")
	assert.Equal(t, StatusScheduled, snap.Status)
}

func TestJobTimeoutRecordsTimeoutError(t *testing.T) {
	s := New(5 * time.Millisecond)
	s.Register("news", 50*time.Millisecond, 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	waitFor(t, time.Second, func() bool {
		snap, _ := s.Snapshot("news")
		return snap.ErrorCount >= 1
	})

	snap, _ := s.Snapshot("news")
	assert.Contains(t, snap.LastError, "timeout")
}

func TestTriggerNowRunsImmediatelyAndIgnoresWhileRunning(t *testing.T) {
	var calls int32
	s := New(5 * time.Millisecond)
	s.Register("news", time.Hour, 0, func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		time.Sleep(50 * time.Millisecond)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	require.True(t, s.TriggerNow("news"))
	waitFor(t, time.Second, func() bool {
		snap, _ := s.Snapshot("news")
		return snap.Status == StatusRunning
	})

	// a second trigger while running must be ignored
	assert.False(t, s.TriggerNow("news"))

	waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&calls) == 1 })
}

func TestPausedJobDoesNotRunOnSchedule(t *testing.T) {
	var calls int32
	s := New(5 * time.Millisecond)
	s.Register("news", 10*time.Millisecond, 0, func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	require.True(t, s.Pause("news"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))

	snap, _ := s.Snapshot("news")
	assert.Equal(t, StatusPaused, snap.Status)
}

func TestTriggerNowOnPausedJobRunsOnceThenStaysPaused(t *testing.T) {
	var calls int32
	s := New(5 * time.Millisecond)
	s.Register("news", time.Hour, 0, func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	require.True(t, s.Pause("news"))
	require.True(t, s.TriggerNow("news"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&calls) == 1 })
	time.Sleep(50 * time.Millisecond)

	snap, _ := s.Snapshot("news")
	assert.Equal(t, StatusPaused, snap.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCancelIsTerminal(t *testing.T) {
	var calls int32
	s := New(5 * time.Millisecond)
	s.Register("news", 10*time.Millisecond, 0, func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	require.True(t, s.Cancel("news"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))

	assert.False(t, s.Resume("news"))
	assert.False(t, s.TriggerNow("news"))
}

func TestDispatcherStopsOnContextCancellation(t *testing.T) {
	s := New(5 * time.Millisecond)
	s.Register("news", time.Hour, 0, func(ctx context.Context) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancellation")
	}
}

func TestOnRunFiresAfterEveryRunWithOutcome(t *testing.T) {
	type observed struct {
		namespace string
		failed    bool
	}
	var mu sync.Mutex
	var runs []observed

	s := New(5 * time.Millisecond)
	s.OnRun(func(namespace string, duration time.Duration, errorCount int, failed bool) {
		mu.Lock()
		defer mu.Unlock()
		runs = append(runs, observed{namespace: namespace, failed: failed})
	})

	var calls int32
	s.Register("news", 30*time.Millisecond, 0, func(ctx context.Context) error {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return errors.New("boom")
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(runs) >= 2
	})

	mu.Lock()
	defer mu.Unlock()
	require.True(t, len(runs) >= 2)
	assert.Equal(t, "news", runs[0].namespace)
	assert.True(t, runs[0].failed)
	assert.False(t, runs[1].failed)
}
