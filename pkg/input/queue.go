package input

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// DefaultQueueCapacity bounds the sample queue between a producer process
// and its consuming capture loop.
const DefaultQueueCapacity = 10000

// DefaultPollTimeout is how long the consuming loop waits on an empty queue
// before re-checking cancellation and producer health.
const DefaultPollTimeout = 100 * time.Millisecond

// Queue is a bounded sample queue shared between exactly two parties: a
// producer offering samples and a consumer polling them. It favors producer
// liveness over completeness: offers never block, and a sample arriving at a
// full queue is dropped and counted.
type Queue struct {
	ch      chan Sample
	dropped atomic.Uint64
}

// NewQueue constructs a queue with the given capacity.
func NewQueue(capacity int) (*Queue, error) {
	if capacity <= 0 {
		return nil, errors.New("queue capacity must be positive")
	}
	return &Queue{ch: make(chan Sample, capacity)}, nil
}

// Offer attempts a non-blocking enqueue. It reports whether the sample was
// accepted; a full queue drops the sample silently and increments the drop
// counter.
func (q *Queue) Offer(s Sample) bool {
	select {
	case q.ch <- s:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Poll dequeues one sample, waiting up to timeout for one to arrive. The
// second return is false when the wait timed out or ctx was cancelled.
func (q *Queue) Poll(ctx context.Context, timeout time.Duration) (Sample, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case s := <-q.ch:
		return s, true
	case <-timer.C:
		return Sample{}, false
	case <-ctx.Done():
		return Sample{}, false
	}
}

// Len reports the number of queued samples.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Dropped reports how many samples were lost to backpressure.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}
