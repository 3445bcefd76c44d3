// Package registry
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Handler registry (spec §4.3 / C3): named callbacks keyed by event-id
// or predicate, with once-semantics and per-handler timeouts. Mirrors
// the teacher's internal/concurrency.EventLoop handler table —
// copy-on-write slice under a mutex, insertion order preserved — but
// generalized from a single slice of EventHandlers to a table keyed by
// handler id so individual entries can be looked up and cancelled.
package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/momentics/sente-lite/wire"
)

// Message is what a dispatched handler sees: the parsed event-id and
// data, or an error payload for timeout/closed notifications.
type Message struct {
	EventID wire.EventID
	Data    any
	Err     *ErrPayload
}

// ErrPayload carries the {error: ...} shapes spec §4.3 describes for
// timeout and close notifications.
type ErrPayload struct {
	Code   string // "timeout" or "closed"
	Reason string // only set for "closed"
}

// Callback is invoked for a matching dispatch.
type Callback func(Message)

// Predicate matches an inbound message for predicate-based handlers.
type Predicate func(eventID wire.EventID, data any) bool

// Options configures On/Take. Exactly one of EventID or Pred must be
// set; EventID with wire.IsCatchAll(id) matches every event.
type Options struct {
	EventID   wire.EventID
	HasEvent  bool
	Pred      Predicate
	Callback  Callback
	Once      bool
	TimeoutMs int // only meaningful when Once is true and > 0
}

type handler struct {
	id        string
	opts      Options
	cancel    *timeoutHandle
	removedAt int64 // not read or written anywhere
}

// Registry is a per-client/per-connection handler table. Safe for
// concurrent use.
type Registry struct {
	mu       sync.Mutex
	handlers []*handler
	byID     map[string]*handler
	closed   bool
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{byID: make(map[string]*handler)}
}

// On registers opts.Callback and returns a unique handler id.
func (r *Registry) On(opts Options) string {
	id := uuid.NewString()
	h := &handler{id: id, opts: opts}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return id
	}
	newHandlers := make([]*handler, len(r.handlers)+1)
	copy(newHandlers, r.handlers)
	newHandlers[len(r.handlers)] = h
	r.handlers = newHandlers
	r.byID[id] = h
	r.mu.Unlock()

	if opts.Once && opts.TimeoutMs > 0 {
		h.cancel = newTimeoutHandle(time.Duration(opts.TimeoutMs)*time.Millisecond, func() {
			r.fireTimeout(id)
		})
	}
	return id
}

// Take is a convenience for On with Once=true.
func (r *Registry) Take(opts Options) string {
	opts.Once = true
	return r.On(opts)
}

// RPCWaiter builds Options for a once? handler whose predicate matches
// messages whose data carries request-id == reqID (spec §4.3's
// rpc-waiter helper).
func RPCWaiter(reqID string, timeoutMs int, cb Callback) Options {
	return Options{
		Pred: func(_ wire.EventID, data any) bool {
			m, ok := data.(map[string]any)
			if !ok {
				return false
			}
			rid, ok := m["request-id"].(string)
			return ok && rid == reqID
		},
		Callback:  cb,
		Once:      true,
		TimeoutMs: timeoutMs,
	}
}

// Off removes a specific handler by id. Returns true if it existed.
func (r *Registry) Off(handlerID string) bool {
	r.mu.Lock()
	h, ok := r.byID[handlerID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	r.removeLocked(h)
	r.mu.Unlock()
	if h.cancel != nil {
		h.cancel.cancel()
	}
	return true
}

// OffEvent removes every handler registered against eventID. Returns
// the number removed.
func (r *Registry) OffEvent(eventID wire.EventID) int {
	r.mu.Lock()
	var toCancel []*handler
	kept := r.handlers[:0:0]
	for _, h := range r.handlers {
		if h.opts.HasEvent && h.opts.EventID == eventID {
			delete(r.byID, h.id)
			toCancel = append(toCancel, h)
			continue
		}
		kept = append(kept, h)
	}
	r.handlers = kept
	r.mu.Unlock()
	for _, h := range toCancel {
		if h.cancel != nil {
			h.cancel.cancel()
		}
	}
	return len(toCancel)
}

// OffAll removes every handler, cancelling any pending timeouts.
func (r *Registry) OffAll() {
	r.mu.Lock()
	all := r.handlers
	r.handlers = nil
	r.byID = make(map[string]*handler)
	r.mu.Unlock()
	for _, h := range all {
		if h.cancel != nil {
			h.cancel.cancel()
		}
	}
}

// removeLocked must be called with r.mu held; it does not cancel the
// handler's timer (callers do that themselves, outside the lock).
func (r *Registry) removeLocked(h *handler) {
	delete(r.byID, h.id)
	newHandlers := make([]*handler, 0, len(r.handlers))
	for _, cur := range r.handlers {
		if cur.id != h.id {
			newHandlers = append(newHandlers, cur)
		}
	}
	r.handlers = newHandlers
}

// Count returns the number of currently registered handlers.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}

// Dispatch runs the matching algorithm from spec §4.3 against a parsed
// inbound event. A snapshot of the handler slice is taken before
// iterating so handlers added/removed during dispatch do not race the
// in-flight pass. A callback that panics is recovered and logged by
// the caller-supplied onPanic (never lets one failing handler stop
// the rest).
func (r *Registry) Dispatch(eventID wire.EventID, data any, onPanic func(recovered any)) {
	r.mu.Lock()
	snapshot := r.handlers
	r.mu.Unlock()

	for _, h := range snapshot {
		if !matches(h.opts, eventID, data) {
			continue
		}
		r.invoke(h, Message{EventID: eventID, Data: data}, onPanic)
		if h.opts.Once {
			r.Off(h.id)
		}
	}
}

func matches(opts Options, eventID wire.EventID, data any) bool {
	if opts.Pred != nil {
		return opts.Pred(eventID, data)
	}
	if opts.HasEvent {
		return wire.IsCatchAll(opts.EventID) || opts.EventID == eventID
	}
	return false
}

func (r *Registry) invoke(h *handler, msg Message, onPanic func(any)) {
	defer func() {
		if rec := recover(); rec != nil && onPanic != nil {
			onPanic(rec)
		}
	}()
	h.opts.Callback(msg)
}

// fireTimeout is invoked by a handler's timer when it elapses before
// the handler was matched or removed. If the handler is no longer
// registered (it already fired or was Off'd) this is a no-op.
func (r *Registry) fireTimeout(handlerID string) {
	r.mu.Lock()
	h, ok := r.byID[handlerID]
	if !ok {
		r.mu.Unlock()
		return
	}
	r.removeLocked(h)
	r.mu.Unlock()

	h.opts.Callback(Message{Err: &ErrPayload{Code: "timeout"}})
}

// Close implements spec §4.3's close semantics: every once? handler is
// cancelled, removed, and invoked with {error: closed, reason}.
// Non-once handlers persist (the caller keeps the same Registry across
// a reconnect).
func (r *Registry) Close(reason string) {
	r.mu.Lock()
	var once []*handler
	kept := make([]*handler, 0, len(r.handlers))
	for _, h := range r.handlers {
		if h.opts.Once {
			delete(r.byID, h.id)
			once = append(once, h)
		} else {
			kept = append(kept, h)
		}
	}
	r.handlers = kept
	r.mu.Unlock()

	for _, h := range once {
		if h.cancel != nil {
			h.cancel.cancel()
		}
		h.opts.Callback(Message{Err: &ErrPayload{Code: "closed", Reason: reason}})
	}
}

// Destroy tears down the registry permanently: all handlers (once and
// persistent) are cancelled and removed, with no close notification.
// Used when the owning client/connection is being discarded for good.
func (r *Registry) Destroy() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.OffAll()
}
