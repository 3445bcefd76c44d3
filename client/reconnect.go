package client

import (
	"sync"
	"sync/atomic"
	"time"
)

// reconnectState implements spec §4.4's exponential-backoff algorithm:
// the delay used for the *next* attempt is whatever is currently
// stored; only after an attempt fires is the following delay computed
// as min(base * 2^count, max) and the count incremented. The count
// never resets on a successful reconnect (spec.md §9's Open Question,
// resolved explicitly); there is no reset method, and only a brand-new
// Client, with its own reconnectState, starts again from zero.
type reconnectState struct {
	mu      sync.Mutex
	base    time.Duration
	max     time.Duration
	delay   time.Duration
	count   atomic.Int64
	pending *time.Timer
}

func newReconnectState(base, max time.Duration) *reconnectState {
	if base <= 0 {
		base = DefaultReconnectDelay
	}
	if max <= 0 {
		max = DefaultMaxReconnectDelay
	}
	return &reconnectState{base: base, max: max, delay: base}
}

func (r *reconnectState) snapshotCount() int64 { return r.count.Load() }

// schedule waits the current delay (or returns early if stopCh closes
// first), then invokes fn. It does not loop on its own — each failed
// connect/close path calls schedule again, which is how the count and
// delay keep advancing across repeated failures.
func (r *reconnectState) schedule(stopCh <-chan struct{}, fn func()) {
	r.mu.Lock()
	wait := r.delay
	r.mu.Unlock()

	go func() {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-stopCh:
			return
		case <-timer.C:
		}

		r.advance()
		fn()
	}()
}

// advance computes and stores the next delay ahead of firing, per
// spec.md's precise ordering: the delay just used remains in effect
// for the call in progress; what we store now is what the *following*
// schedule call will wait.
func (r *reconnectState) advance() {
	n := r.count.Add(1)
	r.mu.Lock()
	next := time.Duration(float64(r.base) * pow2(n))
	if next > r.max || next <= 0 {
		next = r.max
	}
	r.delay = next
	r.mu.Unlock()
}

func pow2(n int64) float64 {
	if n < 0 {
		return 1
	}
	if n > 62 {
		return 1 << 62
	}
	return float64(int64(1) << uint(n))
}
