// Package queue runs background jobs on a worker pool with a declarative retry policy.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrClosed     = errors.New("queue is closed")
	ErrFull       = errors.New("queue is full")
	ErrNoCallback = errors.New("job has no run function")
)

// RetryPolicy bounds how often a failing job is attempted and how long to wait in between.
// Schedule[i] is the wait before attempt i+2; the last entry repeats when attempts outnumber it.
type RetryPolicy struct {
	MaxAttempts int
	Schedule    []time.Duration
}

// DefaultRetryPolicy makes three attempts, waiting 60s then 120s.
// A third delay of 180s applies when MaxAttempts is raised.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Schedule:    []time.Duration{60 * time.Second, 120 * time.Second, 180 * time.Second},
	}
}

// scheduleBackOff replays a fixed schedule and stops after MaxAttempts-1 waits.
type scheduleBackOff struct {
	policy RetryPolicy
	waits  int
}

func (b *scheduleBackOff) NextBackOff() time.Duration {
	if b.waits >= b.policy.MaxAttempts-1 {
		return backoff.Stop
	}
	var d time.Duration
	if n := len(b.policy.Schedule); n > 0 {
		i := b.waits
		if i >= n {
			i = n - 1
		}
		d = b.policy.Schedule[i]
	}
	b.waits++
	return d
}

func (b *scheduleBackOff) Reset() { b.waits = 0 }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Job is a unit of background work.
type Job struct {
	ID     string
	Name   string
	Run    func(ctx context.Context) error
	Policy RetryPolicy
	// OnFailure is called once the job failed for good.
	OnFailure func(err error)
}

// Queue dispatches jobs to a fixed number of workers.
type Queue struct {
	jobs    chan Job
	workers int
	log     *zap.SugaredLogger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a queue with the given worker count and channel capacity.
func New(workers, capacity int, log *zap.SugaredLogger) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if capacity < 1 {
		capacity = 1
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Queue{jobs: make(chan Job, capacity), workers: workers, log: log}
}

// Start launches the workers. Cancelling ctx aborts pending retry waits.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for job := range q.jobs {
				q.process(ctx, job)
			}
		}()
	}
}

// Enqueue hands a job to the workers and returns its id. It never waits for
// room: a full queue fails with ErrFull.
func (q *Queue) Enqueue(ctx context.Context, job Job) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if job.Run == nil {
		return "", ErrNoCallback
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Policy.MaxAttempts <= 0 {
		job.Policy.MaxAttempts = 1
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return "", ErrClosed
	}
	select {
	case q.jobs <- job:
		return job.ID, nil
	default:
		q.log.Warnw("job rejected, queue is full", "job_id", job.ID, "job", job.Name, "capacity", cap(q.jobs))
		return "", ErrFull
	}
}

// Stop refuses new jobs and waits for the queued ones to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *Queue) process(ctx context.Context, job Job) {
	attempt := 0
	op := func() error {
		attempt++
		return job.Run(ctx)
	}
	notify := func(err error, wait time.Duration) {
		q.log.Warnw("job attempt failed", "job_id", job.ID, "job", job.Name, "attempt", attempt, "retry_in", wait, "error", err)
	}

	b := backoff.WithContext(&scheduleBackOff{policy: job.Policy}, ctx)
	err := backoff.RetryNotify(op, b, notify)
	if err == nil {
		q.log.Infow("job finished", "job_id", job.ID, "job", job.Name, "attempts", attempt)
		return
	}

	q.log.Errorw("job failed", "job_id", job.ID, "job", job.Name, "attempts", attempt, "error", err)
	if job.OnFailure != nil {
		job.OnFailure(err)
	}
}
