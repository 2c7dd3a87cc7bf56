package dispatchq

import (
	"context"
	"log/slog"
	"sync"
)

// InProcQueue runs dispatch jobs on worker goroutines in single mode.
// Enqueue never blocks the evaluation pass: when the buffer is full the
// job is dropped and logged, matching the best-effort delivery contract.
// Params: buffered job channel and worker pool.
// Returns: Producer and Worker implementation without external broker.
type InProcQueue struct {
	jobs    chan Job
	logger  *slog.Logger
	wg      sync.WaitGroup
	closeMu sync.Mutex
	closed  bool
}

// NewInProcQueue starts in-process dispatch workers.
// Params: buffer size, worker count, logger, and per-job handler.
// Returns: running queue.
func NewInProcQueue(bufferSize, workers int, logger *slog.Logger, handler func(ctx context.Context, job Job) error) *InProcQueue {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if workers <= 0 {
		workers = 2
	}
	q := &InProcQueue{
		jobs:   make(chan Job, bufferSize),
		logger: logger,
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for job := range q.jobs {
				if handler == nil {
					continue
				}
				if err := handler(context.Background(), job); err != nil && logger != nil {
					logger.Error("dispatch job failed",
						"job_id", job.ID, "kind", job.Kind, "channel", job.Channel, "action", job.Action, "error", err.Error())
				}
			}
		}()
	}
	return q
}

// Enqueue hands one job to the worker pool without blocking.
// Params: context (unused; the hand-off is instant or dropped) and job.
// Returns: nil; a full buffer drops the job and logs it.
func (q *InProcQueue) Enqueue(_ context.Context, job Job) error {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return nil
	}
	select {
	case q.jobs <- job:
	default:
		if q.logger != nil {
			q.logger.Warn("dispatch queue full, job dropped", "job_id", job.ID, "kind", job.Kind)
		}
	}
	return nil
}

// Close stops intake and waits for in-flight jobs to finish.
// Params: none.
// Returns: nil after workers drain.
func (q *InProcQueue) Close() error {
	q.closeMu.Lock()
	if q.closed {
		q.closeMu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	q.closeMu.Unlock()
	q.wg.Wait()
	return nil
}
