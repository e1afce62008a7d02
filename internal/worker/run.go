// Package worker polls submitted synthesis jobs in the background.
// Each job gets its own goroutine; there is no queue.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"avatarsynth/internal/jobs"
	"avatarsynth/internal/metrics"
	"avatarsynth/internal/pkg/logger"
)

// ErrStopped is returned by Start after Shutdown.
var ErrStopped = errors.New("worker: runner stopped")

// Awaiter drives one job to a terminal outcome.
type Awaiter interface {
	Await(ctx context.Context, j *jobs.Job) *jobs.Job
}

type Runner struct {
	orch Awaiter
	log  *logger.Logger

	base   context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	jobs   map[string]context.CancelFunc
	closed bool
}

func NewRunner(orch Awaiter, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.NewDefault()
	}
	base, stop := context.WithCancel(context.Background())
	return &Runner{
		orch: orch,
		log:  log.WithComponent("worker"),
		base: base,
		stop: stop,
		jobs: make(map[string]context.CancelFunc),
	}
}

// Start polls a copy of j in a new goroutine until it is done or canceled.
// The caller keeps sole ownership of j.
func (r *Runner) Start(j *jobs.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrStopped
	}
	if _, ok := r.jobs[j.ID]; ok {
		return nil
	}

	ctx, cancel := context.WithCancel(logger.ContextWithJobID(r.base, j.ID))
	r.jobs[j.ID] = cancel
	r.wg.Add(1)
	metrics.BackgroundJobStarted()

	owned := *j
	go r.run(ctx, cancel, &owned)
	return nil
}

func (r *Runner) run(ctx context.Context, cancel context.CancelFunc, j *jobs.Job) {
	defer r.wg.Done()
	defer metrics.BackgroundJobFinished()
	defer func() {
		r.mu.Lock()
		delete(r.jobs, j.ID)
		r.mu.Unlock()
		cancel()
	}()

	jobLog := r.log.WithJobID(j.ID)
	jobLog.Info("processing job")
	startTime := time.Now()

	done := r.orch.Await(ctx, j)

	jobLog.Info("job completed",
		"outcome", string(done.Outcome),
		"duration_ms", time.Since(startTime).Milliseconds(),
	)
}

// Cancel stops the background poll of job id. It reports whether the job was running.
func (r *Runner) Cancel(id string) bool {
	r.mu.Lock()
	cancel, ok := r.jobs[id]
	r.mu.Unlock()

	if ok {
		r.log.WithJobID(id).Info("canceling job")
		cancel()
	}
	return ok
}

// Running reports whether job id is polled right now.
func (r *Runner) Running(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.jobs[id]
	return ok
}

// Active returns the number of jobs being polled.
func (r *Runner) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// Shutdown cancels every job and waits for their goroutines to record the
// cancellation, or for ctx to expire.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	n := len(r.jobs)
	r.mu.Unlock()

	r.log.Info("worker stopping", "active_jobs", n)
	r.stop()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
