package queue

import (
	"sync"
	"time"
)

// waiter represents one pending EnqueueBlocking/EnqueueAsync caller
// parked waiting for queue depth to drop below MaxDepth. Resolution
// (by either the flusher freeing a slot, or the deadline firing) is
// guarded by sync.Once so exactly one of the two races wins, mirroring
// the cancel-once pattern used for session teardown.
type waiter struct {
	msg      Message
	resultCh chan waitResult
	once     sync.Once
	timer    *time.Timer
}

type waitResult struct {
	status EnqueueStatus
	err    error
}

func newWaiter(msg Message) *waiter {
	return &waiter{
		msg:      msg,
		resultCh: make(chan waitResult, 1),
	}
}

// resolve delivers a result exactly once; subsequent calls are no-ops.
func (w *waiter) resolve(status EnqueueStatus, err error) {
	w.once.Do(func() {
		if w.timer != nil {
			w.timer.Stop()
		}
		w.resultCh <- waitResult{status: status, err: err}
	})
}

// waiterList is a FIFO of parked waiters, drained in order whenever
// the queue gains room. Not safe for concurrent use; callers hold the
// owning queue's mutex.
type waiterList struct {
	items []*waiter
}

func (l *waiterList) push(w *waiter) {
	l.items = append(l.items, w)
}

func (l *waiterList) popFront() (*waiter, bool) {
	if len(l.items) == 0 {
		return nil, false
	}
	w := l.items[0]
	l.items = l.items[1:]
	return w, true
}

// remove drops w from the list by identity, returning true if it was
// still present. Called when a waiter is abandoned (timeout or context
// cancellation; Stop clears the list with drainAll instead) so a later
// Flush's popFront can never hand
// out a waiter whose caller has already been told Rejected/ErrTimeout.
func (l *waiterList) remove(w *waiter) bool {
	for i, cur := range l.items {
		if cur == w {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return true
		}
	}
	return false
}

func (l *waiterList) drainAll(status EnqueueStatus, err error) {
	for _, w := range l.items {
		w.resolve(status, err)
	}
	l.items = nil
}

func (l *waiterList) len() int {
	return len(l.items)
}
