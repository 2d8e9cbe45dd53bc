package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/opsdeck/deskflow/internal/workflow"
)

// Job is one queued notification: a job type plus an opaque payload.
// The engine enqueues one job per recipient (fan-out); delivery workers
// outside this repo consume them from the outbox.
type Job struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload workflow.Params `json:"payload"`
}

// Sink receives drained jobs, typically persisting them to the
// notification outbox table.
type Sink interface {
	Persist(ctx context.Context, job Job) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, job Job) error

// Persist implements Sink.
func (f SinkFunc) Persist(ctx context.Context, job Job) error {
	return f(ctx, job)
}

// Queue is a thread-safe FIFO notification queue.
//
// Enqueue is the non-blocking submit contract the engine depends on: it
// acknowledges acceptance into the queue and returns immediately.
// Nothing awaits delivery - that is a stated design decision, not an
// accidental dangling goroutine.
//
// The queue is unbounded so a notification fan-out over many recipients
// never blocks the rule chain. A channel signals availability to enable
// context-aware waiting in the Run loop.
type Queue struct {
	mu     sync.Mutex
	jobs   []Job
	closed bool
	signal chan struct{} // Signals job availability (buffered, size 1)
}

// NewQueue creates an empty notification queue.
func NewQueue() *Queue {
	return &Queue{
		jobs:   make([]Job, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue submits one job for asynchronous persistence.
// Thread-safe: may be called from any goroutine. Returns an error only
// when the queue has been closed.
func (q *Queue) Enqueue(jobType string, payload workflow.Params) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return fmt.Errorf("notification queue closed")
	}

	q.jobs = append(q.jobs, Job{
		ID:      uuid.Must(uuid.NewV7()).String(),
		Type:    jobType,
		Payload: payload,
	})

	// Non-blocking signal - buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return nil
}

// Len returns the current number of pending jobs.
// Useful for monitoring and testing.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Close stops the queue. Pending jobs are still drained by Run;
// subsequent Enqueue calls fail.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// tryDequeue removes the front job without blocking.
func (q *Queue) tryDequeue() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return Job{}, false
	}

	job := q.jobs[0]
	q.jobs = q.jobs[1:]

	// Re-signal if more jobs remain so the drain loop keeps going.
	if len(q.jobs) > 0 {
		select {
		case q.signal <- struct{}{}:
		default:
		}
	}

	return job, true
}

// isClosed reports whether Close has been called.
func (q *Queue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Run drains jobs to the sink until the context is cancelled or the
// queue is closed and empty. Call from exactly one goroutine.
//
// A sink failure is logged with full job context and the job is
// dropped. Retry policy belongs to the downstream worker, not the
// queue.
func (q *Queue) Run(ctx context.Context, sink Sink) error {
	for {
		job, ok := q.tryDequeue()
		if ok {
			if err := sink.Persist(ctx, job); err != nil {
				slog.Error("notification job persist failed",
					"error", err,
					"job_id", job.ID,
					"job_type", job.Type,
				)
			}
			continue
		}

		if q.isClosed() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.signal:
			// Signal received - loop back to tryDequeue
		}
	}
}

// Drain synchronously flushes all pending jobs to the sink.
// Used by the scenario runner and tests, where a background Run loop
// would make output nondeterministic.
func (q *Queue) Drain(ctx context.Context, sink Sink) error {
	for {
		job, ok := q.tryDequeue()
		if !ok {
			return nil
		}
		if err := sink.Persist(ctx, job); err != nil {
			return fmt.Errorf("persist job %s: %w", job.ID, err)
		}
	}
}
