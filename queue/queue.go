// Package queue
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bounded send queue sitting between application Send calls and the
// wire transport. When a client is configured with a Queue, its
// outbound messages pass through it: callers enqueue, a flusher goroutine (or, in the cooperative
// profile, the caller's own tick) drains the queue and hands messages
// to a Sender for transport.
package queue

import (
	"context"
	"errors"
	"time"
)

// EnqueueStatus is the outcome of a non-blocking Enqueue call.
type EnqueueStatus int

const (
	// Enqueued means the message was accepted into the queue.
	Enqueued EnqueueStatus = iota
	// Rejected means the queue was at MaxDepth and dropped the message.
	Rejected
)

func (s EnqueueStatus) String() string {
	switch s {
	case Enqueued:
		return "enqueued"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// ErrQueueClosed is returned by a threaded queue's EnqueueBlocking
// (and passed to its EnqueueAsync callbacks) when called after Stop.
// Enqueue has no error result and reports Rejected after Stop.
var ErrQueueClosed = errors.New("queue: closed")

// ErrNotSupported is returned by EnqueueBlocking on a cooperative
// queue, which has no separate flusher goroutine to wait on.
var ErrNotSupported = errors.New("queue: blocking enqueue not supported by this profile")

// ErrTimeout is delivered to EnqueueAsync callbacks (and returned by
// EnqueueBlocking) when a message could not be accepted before its
// deadline elapsed.
var ErrTimeout = errors.New("queue: enqueue timed out")

// Profile selects the concurrency model backing a Queue (spec §5).
type Profile int

const (
	// Threaded runs a dedicated flusher goroutine draining the queue
	// on a ticker, independent of the caller's goroutine.
	Threaded Profile = iota
	// Cooperative has no dedicated flusher; Flush must be called by
	// the owner (e.g. once per reactor tick) to drain pending sends.
	Cooperative
)

// Message is one outbound item: the already-serialized wire payload
// plus the originating Event, kept for diagnostics/logging.
type Message struct {
	Payload string
	Meta    any
}

// Sender delivers a drained Message to the underlying transport.
// Implementations must not block indefinitely; Queue treats a Sender
// error as a per-message delivery failure (counted in Stats.Errors)
// and moves on to the next message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Stats is a point-in-time snapshot of queue counters. Depth is the
// current length of the backing FIFO. Enqueued counts accepted
// messages only; Dropped counts rejected and abandoned ones and is
// not part of Enqueued, so Enqueued-Sent-Dropped equals Depth only
// while nothing has been dropped. Once no flush is in progress,
// Depth == Enqueued-Sent-Errors. During a flush, messages already
// taken from the FIFO count in neither Depth nor Sent/Errors until
// their Send call returns.
type Stats struct {
	Depth    int
	Enqueued uint64
	Sent     uint64
	Dropped  uint64
	Errors   uint64
}

// Options configures a new Queue.
type Options struct {
	Profile     Profile
	MaxDepth    int           // 0 means DefaultMaxDepth
	FlushEvery  time.Duration // threaded profile tick interval; 0 means DefaultFlushInterval
	Sender      Sender
}

const (
	DefaultMaxDepth       = 256
	DefaultFlushInterval  = 10 * time.Millisecond
)

func (o Options) withDefaults() Options {
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.FlushEvery <= 0 {
		o.FlushEvery = DefaultFlushInterval
	}
	return o
}

// Queue is a bounded FIFO of outbound Messages with backpressure
// (spec §4.2 / C2). All methods are safe for concurrent use.
type Queue interface {
	// Enqueue attempts a non-blocking add. Returns Rejected if the
	// queue is at MaxDepth.
	Enqueue(msg Message) EnqueueStatus

	// EnqueueBlocking waits up to timeout for room in the queue. A
	// zero timeout behaves like Enqueue. Cooperative queues return
	// ErrNotSupported: there is no flusher to create room.
	EnqueueBlocking(ctx context.Context, msg Message, timeout time.Duration) (EnqueueStatus, error)

	// EnqueueAsync enqueues without blocking the caller and invokes cb
	// exactly once with the outcome. Threaded queues run the attempt on
	// a separate goroutine with EnqueueBlocking's semantics: cb gets
	// Enqueued once admitted, ErrTimeout if timeout elapses first, or
	// ErrQueueClosed after Stop. Cooperative queues call cb
	// synchronously, before EnqueueAsync returns, and do not wait: a
	// message that cannot be accepted at once gets Rejected/ErrTimeout
	// immediately, whatever timeout is.
	EnqueueAsync(msg Message, timeout time.Duration, cb func(EnqueueStatus, error))

	// Flush drains and delivers as many queued messages as are
	// currently available. Threaded queues call this from their own
	// flusher loop; cooperative queues require the owner to call it.
	Flush(ctx context.Context) int

	// Stats returns a snapshot of the queue's counters.
	Stats() Stats

	// Start begins background processing (no-op for Cooperative).
	Start()

	// Stop flushes all remaining queued messages to the Sender,
	// resolves every pending waiter with ErrTimeout, halts background
	// processing, and returns final Stats (spec §4.2's stop()).
	Stop() Stats
}

// New builds a Queue for the requested profile.
func New(opts Options) Queue {
	opts = opts.withDefaults()
	switch opts.Profile {
	case Cooperative:
		return newCooperativeQueue(opts)
	default:
		return newThreadedQueue(opts)
	}
}
