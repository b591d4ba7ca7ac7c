// Package jobqueue provides a durable in-process job queue with whole-job
// retry and exponential backoff for the bulk operation pipeline. Callers get
// a job handle back and poll it for state, progress and result.
package jobqueue

import (
	"context"
	"errors"
	"time"
)

// Common errors that can be returned by job queue operations
var (
	ErrNilAction    = errors.New("cannot enqueue nil action")
	ErrQueueStopped = errors.New("job queue has been stopped")
	ErrJobNotFound  = errors.New("job not found in queue")
	ErrQueueFull    = errors.New("job queue is full")
)

// RetryConfig holds the configuration for retry behavior of an action.
// Retries are whole-job: a retried bulk-email job re-sends to recipients that
// already succeeded in the failed attempt.
type RetryConfig struct {
	Enabled      bool          // Whether retry is enabled for this action
	MaxRetries   int           // Maximum number of retry attempts
	InitialDelay time.Duration // Initial delay before first retry
	MaxDelay     time.Duration // Maximum delay between retries
	Multiplier   float64       // Backoff multiplier for each subsequent retry
}

// Progress is a point-in-time view of a running job, published by the action
// after each unit of work so callers can observe partial progress.
type Progress struct {
	Percent int            // 0-100
	Detail  map[string]any // action-specific tallies, e.g. sent/skipped/errors
}

// ProgressFunc is handed to the action; calling it replaces the job's
// current progress snapshot.
type ProgressFunc func(Progress)

// Action defines the interface that must be implemented by any action
// that can be executed by the job queue.
type Action interface {
	Execute(ctx context.Context, data any, report ProgressFunc) (any, error)
	Name() string
}

type jobIDKey struct{}

// withJobID tags an execution context with the running job's id.
func withJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, jobIDKey{}, id)
}

// JobIDFromContext returns the running job's id inside an action's Execute.
func JobIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(jobIDKey{}).(string)
	return id
}

// JobStatus represents the current status of a job in the queue
type JobStatus int

const (
	// JobStatusPending indicates the job is waiting to be executed
	JobStatusPending JobStatus = iota
	// JobStatusRunning indicates the job is currently being executed
	JobStatusRunning
	// JobStatusCompleted indicates the job has completed successfully
	JobStatusCompleted
	// JobStatusFailed indicates the job has failed and will not be retried
	JobStatusFailed
	// JobStatusRetrying indicates the job has failed but will be retried
	JobStatusRetrying
)

// String returns a string representation of the job status
func (s JobStatus) String() string {
	switch s {
	case JobStatusPending:
		return "pending"
	case JobStatusRunning:
		return "running"
	case JobStatusCompleted:
		return "completed"
	case JobStatusFailed:
		return "failed"
	case JobStatusRetrying:
		return "retrying"
	default:
		return "unknown"
	}
}
