package jobqueue

import (
	"sync"
	"time"
)

// Job represents a job in the queue. All mutable fields are guarded by mu;
// readers take Snapshot instead of touching fields directly.
type Job struct {
	ID          string
	Action      Action
	Data        any
	Attempts    int
	MaxAttempts int
	Status      JobStatus
	LastError   error
	NextRetryAt time.Time
	CreatedAt   time.Time
	CompletedAt time.Time
	Config      RetryConfig
	Progress    Progress
	Result      any

	mu sync.Mutex
}

// Snapshot is an immutable copy of a job's externally visible state,
// safe to hand to HTTP handlers while the job keeps running.
type Snapshot struct {
	ID           string     `json:"id"`
	Action       string     `json:"action"`
	Status       string     `json:"status"`
	Attempts     int        `json:"attempts"`
	Progress     Progress   `json:"progress"`
	Result       any        `json:"result,omitempty"`
	FailedReason string     `json:"failed_reason,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// Snapshot returns a copy of the job's current state.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	s := Snapshot{
		ID:        j.ID,
		Action:    j.Action.Name(),
		Status:    j.Status.String(),
		Attempts:  j.Attempts,
		Progress:  j.Progress,
		Result:    j.Result,
		CreatedAt: j.CreatedAt,
	}
	if j.LastError != nil && j.Status == JobStatusFailed {
		s.FailedReason = j.LastError.Error()
	}
	if !j.CompletedAt.IsZero() {
		t := j.CompletedAt
		s.CompletedAt = &t
	}
	return s
}

// setStatus transitions the job to a new status under the lock.
func (j *Job) setStatus(status JobStatus) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	if status == JobStatusCompleted || status == JobStatusFailed {
		j.CompletedAt = time.Now()
	}
}

// setProgress replaces the job's progress snapshot. Passed to actions as
// a ProgressFunc bound to this job.
func (j *Job) setProgress(p Progress) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress = p
}

// recordAttempt bumps the attempt counter and stores the outcome of one
// execution. A nil err marks success and captures the result.
func (j *Job) recordAttempt(result any, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Attempts++
	j.LastError = err
	if err == nil {
		j.Result = result
	}
}

// shouldRetry reports whether another attempt is allowed, and if so
// schedules the next retry time using exponential backoff.
func (j *Job) shouldRetry(now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.Config.Enabled || j.Attempts >= j.MaxAttempts {
		return false
	}

	delay := j.Config.InitialDelay
	for i := 1; i < j.Attempts; i++ {
		delay = time.Duration(float64(delay) * j.Config.Multiplier)
		if delay > j.Config.MaxDelay {
			delay = j.Config.MaxDelay
			break
		}
	}
	j.NextRetryAt = now.Add(delay)
	return true
}

// dueForRetry reports whether a retrying job's backoff has elapsed.
func (j *Job) dueForRetry(now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.Status == JobStatusRetrying && !now.Before(j.NextRetryAt)
}
