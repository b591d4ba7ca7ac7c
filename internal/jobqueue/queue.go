package jobqueue

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leadboard/leadboard-go/internal/conf"
	"github.com/leadboard/leadboard-go/internal/errors"
	"github.com/leadboard/leadboard-go/internal/logging"
)

// Config controls queue-wide limits and timing.
type Config struct {
	MaxJobs          int           // upper bound on pending jobs
	MaxArchivedJobs  int           // finished jobs retained for polling before eviction
	ProcessInterval  time.Duration // how often the queue scans for runnable jobs
	ExecutionTimeout time.Duration // per-attempt deadline handed to actions
	Retry            RetryConfig   // default retry policy for enqueued jobs
}

// DefaultConfig derives queue settings from application configuration.
func DefaultConfig(s *conf.JobsSettings) Config {
	cfg := Config{
		MaxJobs:          s.MaxJobs,
		MaxArchivedJobs:  100,
		ProcessInterval:  time.Second,
		ExecutionTimeout: 10 * time.Minute,
		Retry: RetryConfig{
			Enabled:      s.MaxRetries > 0,
			MaxRetries:   s.MaxRetries,
			InitialDelay: s.InitialDelay,
			MaxDelay:     s.MaxDelay,
			Multiplier:   s.Multiplier,
		},
	}
	if cfg.MaxJobs <= 0 {
		cfg.MaxJobs = 1000
	}
	return cfg
}

// Queue executes jobs sequentially on a single worker goroutine. Bulk
// operations are long-running and touch shared provider quotas, so one job
// at a time is deliberate.
type Queue struct {
	config   Config
	jobs     []*Job // pending and retrying jobs, FIFO
	archived []*Job // completed and failed jobs, oldest first, kept for polling
	byID     map[string]*Job
	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	started  bool
	stopped  bool
	logger   *slog.Logger
	stats    Stats
}

// Stats tracks lifetime queue counters.
type Stats struct {
	Enqueued  int
	Completed int
	Failed    int
	Retried   int
}

// New creates a job queue. Start must be called before jobs run.
func New(config Config) *Queue {
	if config.MaxJobs <= 0 {
		config.MaxJobs = 1000
	}
	if config.MaxArchivedJobs <= 0 {
		config.MaxArchivedJobs = 100
	}
	return &Queue{
		config: config,
		byID:   make(map[string]*Job),
		logger: logging.ForService("jobqueue"),
	}
}

// Start launches the processing loop. Calling Start twice is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true
	runCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.done = make(chan struct{})
	go q.run(runCtx)
}

// Stop cancels the processing loop and waits for the in-flight job, if any,
// to observe cancellation.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started || q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	cancel := q.cancel
	done := q.done
	q.mu.Unlock()

	cancel()
	<-done
}

// Enqueue adds a job for the given action and returns its id.
func (q *Queue) Enqueue(action Action, data any) (string, error) {
	if action == nil {
		return "", ErrNilAction
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return "", ErrQueueStopped
	}
	// Only pending work counts against capacity; finished jobs live in the
	// bounded archive and must not wedge the queue.
	if len(q.jobs) >= q.config.MaxJobs {
		return "", errors.New(ErrQueueFull).
			Component("jobqueue").
			Category(errors.CategoryJobQueue).
			Context("max_jobs", q.config.MaxJobs).
			Build()
	}

	job := &Job{
		ID:          uuid.New().String(),
		Action:      action,
		Data:        data,
		MaxAttempts: q.config.Retry.MaxRetries + 1,
		Status:      JobStatusPending,
		CreatedAt:   time.Now(),
		Config:      q.config.Retry,
	}
	q.jobs = append(q.jobs, job)
	q.byID[job.ID] = job
	q.stats.Enqueued++

	q.logger.Info("job enqueued", "job_id", job.ID, "action", action.Name())
	return job.ID, nil
}

// GetJob returns a snapshot of the job with the given id. Completed and
// failed jobs remain available until evicted from the archive.
func (q *Queue) GetJob(id string) (Snapshot, error) {
	q.mu.Lock()
	job, ok := q.byID[id]
	q.mu.Unlock()
	if !ok {
		return Snapshot{}, ErrJobNotFound
	}
	return job.Snapshot(), nil
}

// GetStats returns a copy of the lifetime counters.
func (q *Queue) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

func (q *Queue) run(ctx context.Context) {
	defer close(q.done)
	ticker := time.NewTicker(q.config.ProcessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.processNext(ctx)
		}
	}
}

// processNext pops the first runnable job and executes one attempt.
func (q *Queue) processNext(ctx context.Context) {
	job := q.takeRunnable()
	if job == nil {
		return
	}

	job.setStatus(JobStatusRunning)
	attemptCtx, cancel := context.WithTimeout(ctx, q.config.ExecutionTimeout)
	result, err := q.execute(attemptCtx, job)
	cancel()

	job.recordAttempt(result, err)

	if err == nil {
		job.setStatus(JobStatusCompleted)
		q.finalize(job, true)
		q.logger.Info("job completed", "job_id", job.ID, "action", job.Action.Name(), "attempts", job.Attempts)
		return
	}

	if job.shouldRetry(time.Now()) {
		// Small jitter so retried jobs do not realign with provider rate windows.
		job.mu.Lock()
		job.NextRetryAt = job.NextRetryAt.Add(time.Duration(rand.Int64N(int64(time.Second))))
		job.mu.Unlock()
		job.setStatus(JobStatusRetrying)
		q.requeue(job)
		q.logger.Warn("job failed, will retry",
			"job_id", job.ID, "action", job.Action.Name(), "attempts", job.Attempts, "error", err)
		return
	}

	job.setStatus(JobStatusFailed)
	q.finalize(job, false)
	q.logger.Error("job failed permanently",
		"job_id", job.ID, "action", job.Action.Name(), "attempts", job.Attempts, "error", err)
}

// execute runs a single attempt, converting panics into errors so a bad
// action cannot take down the queue worker.
func (q *Queue) execute(ctx context.Context, job *Job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(fmt.Errorf("action panicked: %v", r)).
				Component("jobqueue").
				Category(errors.CategoryJobQueue).
				Context("action", job.Action.Name()).
				Build()
		}
	}()
	return job.Action.Execute(withJobID(ctx, job.ID), job.Data, job.setProgress)
}

// takeRunnable removes and returns the first job that is pending, or
// retrying with an elapsed backoff. Returns nil when nothing is runnable.
func (q *Queue) takeRunnable() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := time.Now()
	for i, job := range q.jobs {
		job.mu.Lock()
		runnable := job.Status == JobStatusPending
		job.mu.Unlock()
		if !runnable {
			runnable = job.dueForRetry(now)
		}
		if runnable {
			q.jobs = append(q.jobs[:i], q.jobs[i+1:]...)
			return job
		}
	}
	return nil
}

func (q *Queue) requeue(job *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	q.stats.Retried++
}

// finalize parks a finished job in the archive and evicts the oldest
// snapshots past MaxArchivedJobs so lifetime throughput stays bounded.
func (q *Queue) finalize(job *Job, success bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.archived = append(q.archived, job)
	if excess := len(q.archived) - q.config.MaxArchivedJobs; excess > 0 {
		for _, old := range q.archived[:excess] {
			delete(q.byID, old.ID)
		}
		q.archived = q.archived[excess:]
	}
	if success {
		q.stats.Completed++
	} else {
		q.stats.Failed++
	}
}
