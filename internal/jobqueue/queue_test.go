package jobqueue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// testAction runs a caller-supplied function and counts executions.
type testAction struct {
	name  string
	fn    func(ctx context.Context, data any, report ProgressFunc) (any, error)
	calls atomic.Int32
}

func (a *testAction) Execute(ctx context.Context, data any, report ProgressFunc) (any, error) {
	a.calls.Add(1)
	return a.fn(ctx, data, report)
}

func (a *testAction) Name() string { return a.name }

func testQueue(t *testing.T) *Queue {
	t.Helper()
	q := New(Config{
		MaxJobs:          10,
		ProcessInterval:  10 * time.Millisecond,
		ExecutionTimeout: 5 * time.Second,
		Retry: RetryConfig{
			Enabled:      true,
			MaxRetries:   2,
			InitialDelay: 10 * time.Millisecond,
			MaxDelay:     50 * time.Millisecond,
			Multiplier:   2.0,
		},
	})
	q.Start(context.Background())
	t.Cleanup(q.Stop)
	return q
}

// waitForStatus polls until the job reaches the wanted status or times out.
func waitForStatus(t *testing.T, q *Queue, id, want string) Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := q.GetJob(id)
		require.NoError(t, err)
		if snap.Status == want {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	snap, _ := q.GetJob(id)
	t.Fatalf("job %s never reached status %q, last status %q", id, want, snap.Status)
	return Snapshot{}
}

func TestQueueCompletesJobAndRetainsResult(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	q := testQueue(t)

	action := &testAction{
		name: "send_bulk_email",
		fn: func(ctx context.Context, data any, report ProgressFunc) (any, error) {
			report(Progress{Percent: 100, Detail: map[string]any{"sent": 3}})
			return map[string]int{"sent": 3, "skipped": 0, "errors": 0}, nil
		},
	}

	id, err := q.Enqueue(action, nil)
	require.NoError(t, err)

	snap := waitForStatus(t, q, id, "completed")
	assert.Equal(t, 1, snap.Attempts)
	assert.Equal(t, 100, snap.Progress.Percent)
	assert.Equal(t, map[string]int{"sent": 3, "skipped": 0, "errors": 0}, snap.Result)
	require.NotNil(t, snap.CompletedAt)

	// Completed jobs remain pollable.
	again, err := q.GetJob(id)
	require.NoError(t, err)
	assert.Equal(t, "completed", again.Status)
}

func TestQueueRetriesWithBackoffThenSucceeds(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	q := testQueue(t)

	action := &testAction{name: "flaky"}
	action.fn = func(ctx context.Context, data any, report ProgressFunc) (any, error) {
		if action.calls.Load() < 3 {
			return nil, errors.New("provider unavailable")
		}
		return "ok", nil
	}

	id, err := q.Enqueue(action, nil)
	require.NoError(t, err)

	snap := waitForStatus(t, q, id, "completed")
	assert.Equal(t, 3, snap.Attempts)
	assert.Equal(t, "ok", snap.Result)
	assert.Empty(t, snap.FailedReason)
}

func TestQueueFailsAfterMaxAttempts(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	q := testQueue(t)

	action := &testAction{
		name: "always_fails",
		fn: func(ctx context.Context, data any, report ProgressFunc) (any, error) {
			return nil, errors.New("boom")
		},
	}

	id, err := q.Enqueue(action, nil)
	require.NoError(t, err)

	snap := waitForStatus(t, q, id, "failed")
	// 1 initial attempt + 2 retries.
	assert.Equal(t, 3, snap.Attempts)
	assert.Equal(t, "boom", snap.FailedReason)

	stats := q.GetStats()
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 2, stats.Retried)
}

func TestQueueRecoversFromPanickingAction(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	q := New(Config{
		MaxJobs:          10,
		ProcessInterval:  10 * time.Millisecond,
		ExecutionTimeout: time.Second,
		Retry:            RetryConfig{Enabled: false},
	})
	q.Start(context.Background())
	t.Cleanup(q.Stop)

	action := &testAction{
		name: "panics",
		fn: func(ctx context.Context, data any, report ProgressFunc) (any, error) {
			panic("unexpected")
		},
	}

	id, err := q.Enqueue(action, nil)
	require.NoError(t, err)

	snap := waitForStatus(t, q, id, "failed")
	assert.Contains(t, snap.FailedReason, "action panicked")
}

func TestQueueRejectsNilActionAndUnknownJob(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	q := testQueue(t)

	_, err := q.Enqueue(nil, nil)
	assert.ErrorIs(t, err, ErrNilAction)

	_, err = q.GetJob("no-such-job")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestQueueEnforcesCapacity(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	q := New(Config{
		MaxJobs:         1,
		ProcessInterval: time.Hour, // never actually run anything
		Retry:           RetryConfig{Enabled: false},
	})
	q.Start(context.Background())
	t.Cleanup(q.Stop)

	block := &testAction{
		name: "noop",
		fn: func(ctx context.Context, data any, report ProgressFunc) (any, error) {
			return nil, nil
		},
	}

	_, err := q.Enqueue(block, nil)
	require.NoError(t, err)

	_, err = q.Enqueue(block, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue is full")
}

func TestQueueCapacityIgnoresFinishedJobs(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	q := New(Config{
		MaxJobs:         2,
		ProcessInterval: 10 * time.Millisecond,
		Retry:           RetryConfig{Enabled: false},
	})
	q.Start(context.Background())
	t.Cleanup(q.Stop)

	noop := &testAction{
		name: "noop",
		fn: func(ctx context.Context, data any, report ProgressFunc) (any, error) {
			return nil, nil
		},
	}

	// Fill the lifetime count past MaxJobs; finished jobs must not count
	// against capacity.
	for i := 0; i < 3; i++ {
		id, err := q.Enqueue(noop, nil)
		require.NoError(t, err)
		waitForStatus(t, q, id, "completed")
	}

	id, err := q.Enqueue(noop, nil)
	require.NoError(t, err)
	waitForStatus(t, q, id, "completed")
}

func TestQueueEvictsOldestArchivedJobs(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	q := New(Config{
		MaxJobs:         10,
		MaxArchivedJobs: 2,
		ProcessInterval: 10 * time.Millisecond,
		Retry:           RetryConfig{Enabled: false},
	})
	q.Start(context.Background())
	t.Cleanup(q.Stop)

	noop := &testAction{
		name: "noop",
		fn: func(ctx context.Context, data any, report ProgressFunc) (any, error) {
			return nil, nil
		},
	}

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		id, err := q.Enqueue(noop, nil)
		require.NoError(t, err)
		waitForStatus(t, q, id, "completed")
		ids = append(ids, id)
	}

	_, err := q.GetJob(ids[0])
	assert.ErrorIs(t, err, ErrJobNotFound)
	for _, id := range ids[1:] {
		snap, err := q.GetJob(id)
		require.NoError(t, err)
		assert.Equal(t, "completed", snap.Status)
	}
}

func TestQueueStopRejectsNewJobs(t *testing.T) {
	q := New(Config{MaxJobs: 10, ProcessInterval: 10 * time.Millisecond})
	q.Start(context.Background())
	q.Stop()

	action := &testAction{
		name: "late",
		fn: func(ctx context.Context, data any, report ProgressFunc) (any, error) {
			return nil, nil
		},
	}
	_, err := q.Enqueue(action, nil)
	assert.ErrorIs(t, err, ErrQueueStopped)
}
