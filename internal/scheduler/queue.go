package scheduler

import (
	"context"
	"sync"

	"github.com/omnitensor/omnitensor-node/pkg/types"
)

// defaultQueueCapacity bounds the pending-task buffer when the configured
// capacity is unset.
const defaultQueueCapacity = 100

// Queue is a bounded, strict-FIFO buffer of pending tasks. Submit blocks the
// producer while the queue is full (backpressure); tasks are never dropped or
// reordered. One dispatcher consumes via TryDequeue.
type Queue struct {
	mu     sync.Mutex
	tasks  chan types.Task
	space  chan struct{}
	done   chan struct{}
	closed bool
}

// NewQueue builds a queue holding at most capacity pending tasks.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	return &Queue{
		tasks: make(chan types.Task, capacity),
		space: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Submit appends a task at the tail. Blocks while the queue is full until a
// slot frees, the caller's context ends, or the queue closes.
//
// The buffer send happens only while holding the mutex with closed unset, so
// every accepted task is in the buffer before Close can complete; a consumer
// that observes Closed and then drains sees every accepted task.
func (q *Queue) Submit(ctx context.Context, t types.Task) error {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return queueClosedError{}
		}
		select {
		case q.tasks <- t:
			if len(q.tasks) < cap(q.tasks) {
				q.signalSpace()
			}
			q.mu.Unlock()
			return nil
		default:
		}
		q.mu.Unlock()

		select {
		case <-q.space:
		case <-q.done:
			return queueClosedError{}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// signalSpace wakes one blocked submitter. Non-blocking; a pending signal is
// enough because the woken submitter re-signals while slots remain.
func (q *Queue) signalSpace() {
	select {
	case q.space <- struct{}{}:
	default:
	}
}

// TryDequeue removes and returns the head without blocking.
func (q *Queue) TryDequeue() (types.Task, bool) {
	select {
	case t := <-q.tasks:
		q.signalSpace()
		return t, true
	default:
		return types.Task{}, false
	}
}

// Len reports the current pending count.
func (q *Queue) Len() int { return len(q.tasks) }

// Cap reports the configured capacity.
func (q *Queue) Cap() int { return cap(q.tasks) }

// Close stops accepting submissions. Tasks already queued remain dequeueable
// so the dispatcher can drain them.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
