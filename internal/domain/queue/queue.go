// Package queue provides the in-process FIFO handoff between job submission
// and the rendering worker. The queue holds job ids only; job state lives in
// the database, so queue contents are transient across restarts and are
// rebuilt at startup from persisted pending jobs.
package queue

import (
	"context"
	"sync"
)

// Queue is an unbounded FIFO of job ids. Enqueue never blocks and never
// drops. Dequeue blocks until an id is available or the context is done.
// Safe for concurrent use.
type Queue struct {
	mu     sync.Mutex
	items  []string
	notify chan struct{}
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{
		notify: make(chan struct{}, 1),
	}
}

// Enqueue appends a job id to the tail of the queue.
func (q *Queue) Enqueue(jobID string) {
	q.mu.Lock()
	q.items = append(q.items, jobID)
	q.mu.Unlock()

	// Non-blocking wake of a parked consumer.
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Dequeue removes and returns the oldest job id. It blocks until an id is
// available or ctx is done, in which case it returns ctx.Err().
func (q *Queue) Dequeue(ctx context.Context) (string, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			jobID := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return jobID, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-q.notify:
		}
	}
}

// Len returns the number of queued ids.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
