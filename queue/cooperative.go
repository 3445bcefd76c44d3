package queue

import (
	"context"
	"sync"
	"time"

	eapacheq "github.com/eapache/queue"
)

// cooperativeQueue is the single-threaded profile (spec §5): there is
// no dedicated flusher goroutine. The owner must call Flush from its
// own event loop tick to move queued messages to the Sender. Since
// nothing else will ever create room asynchronously, EnqueueBlocking
// has no useful wait semantics and reports ErrNotSupported.
type cooperativeQueue struct {
	mu      sync.Mutex
	backing *eapacheq.Queue
	opts    Options
	stats   Stats
	closed  bool
}

func newCooperativeQueue(opts Options) *cooperativeQueue {
	return &cooperativeQueue{
		backing: eapacheq.New(),
		opts:    opts,
	}
}

// Start is a no-op: the cooperative profile has nothing to run in the
// background.
func (q *cooperativeQueue) Start() {}

func (q *cooperativeQueue) Enqueue(msg Message) EnqueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return Rejected
	}
	if q.backing.Length() >= q.opts.MaxDepth {
		q.stats.Dropped++
		return Rejected
	}
	q.backing.Add(msg)
	q.stats.Enqueued++
	return Enqueued
}

func (q *cooperativeQueue) EnqueueBlocking(ctx context.Context, msg Message, timeout time.Duration) (EnqueueStatus, error) {
	return Rejected, ErrNotSupported
}

func (q *cooperativeQueue) EnqueueAsync(msg Message, timeout time.Duration, cb func(EnqueueStatus, error)) {
	status := q.Enqueue(msg)
	var err error
	if status == Rejected {
		err = ErrTimeout
	}
	if cb != nil {
		cb(status, err)
	}
}

func (q *cooperativeQueue) Flush(ctx context.Context) int {
	q.mu.Lock()
	var drained []Message
	for q.backing.Length() > 0 {
		drained = append(drained, q.backing.Remove().(Message))
	}
	q.mu.Unlock()

	sent := 0
	for _, msg := range drained {
		var err error
		if q.opts.Sender != nil {
			err = q.opts.Sender.Send(ctx, msg)
		}
		q.mu.Lock()
		if err != nil {
			q.stats.Errors++
		} else {
			q.stats.Sent++
			sent++
		}
		q.mu.Unlock()
	}
	return sent
}

func (q *cooperativeQueue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.stats
	s.Depth = q.backing.Length()
	return s
}

func (q *cooperativeQueue) Stop() Stats {
	q.Flush(context.Background())

	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	s := q.stats
	s.Depth = q.backing.Length()
	return s
}
