package cloudsync

import (
	"context"
	"fmt"
	"sync"
)

// Operation is a remote write deferred until the store is reachable.
type Operation func(ctx context.Context) error

type queuedOperation struct {
	name     string
	run      Operation
	attempts int
	done     chan error
}

// Queue holds operations issued while offline, in FIFO order.
type Queue struct {
	mu          sync.Mutex
	pending     []*queuedOperation
	maxAttempts int
}

// NewQueue creates an empty queue. An operation that fails maxAttempts drains
// is dropped with ErrOperationDropped; zero keeps retrying forever.
func NewQueue(maxAttempts int) *Queue {
	return &Queue{maxAttempts: maxAttempts}
}

// Enqueue appends op and returns a channel that receives its final result.
// The channel is buffered, so callers may ignore it.
func (q *Queue) Enqueue(name string, op Operation) <-chan error {
	done := make(chan error, 1)
	q.mu.Lock()
	q.pending = append(q.pending, &queuedOperation{name: name, run: op, done: done})
	q.mu.Unlock()
	return done
}

// Len returns the number of pending operations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Succeeded int
	Requeued  int
	Dropped   int
}

// Drain runs the operations pending when it starts, oldest first. Failed
// operations go back to the tail of the queue for the next drain. Draining
// stops early, keeping the remaining order, when keepGoing returns false or
// ctx is cancelled.
func (q *Queue) Drain(ctx context.Context, keepGoing func() bool) DrainResult {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()

	var (
		result DrainResult
		failed []*queuedOperation
	)
	for i, op := range batch {
		if ctx.Err() != nil || (keepGoing != nil && !keepGoing()) {
			q.restore(batch[i:], failed)
			return result
		}

		err := op.run(ctx)
		if err == nil {
			op.done <- nil
			result.Succeeded++
			continue
		}

		op.attempts++
		if q.maxAttempts > 0 && op.attempts >= q.maxAttempts {
			op.done <- fmt.Errorf("%w: %s: %w", ErrOperationDropped, op.name, err)
			result.Dropped++
			continue
		}
		failed = append(failed, op)
		result.Requeued++
	}

	q.restore(nil, failed)
	return result
}

// restore puts failed and unprocessed operations back in their original
// order, ahead of anything enqueued during the drain.
func (q *Queue) restore(unprocessed, failed []*queuedOperation) {
	if len(unprocessed) == 0 && len(failed) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	merged := make([]*queuedOperation, 0, len(unprocessed)+len(failed)+len(q.pending))
	merged = append(merged, failed...)
	merged = append(merged, unprocessed...)
	merged = append(merged, q.pending...)
	q.pending = merged
}
