package client

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// newCBUUID mints a callback correlation token for send-with-cb!
// (spec §4.1's cb-uuid), grounded on the same github.com/google/uuid
// dependency the handler registry uses for handler ids.
func newCBUUID() string { return uuid.NewString() }

// pendingRPC tracks one outstanding send-with-cb! call awaiting its
// [data, cb-uuid] reply. Exactly one of "reply arrived" or "timer
// fired" resolves it, guarded by sync.Once — the same race-free
// pattern registry/timeout.go uses for once? handler timeouts.
type pendingRPC struct {
	cb    func(Reply)
	timer *time.Timer
	once  sync.Once
}

func (p *pendingRPC) resolve(reply Reply) {
	p.once.Do(func() {
		if p.timer != nil {
			p.timer.Stop()
		}
		p.cb(reply)
	})
}

// rpcTable correlates reply payloads (spec §4.1's [data, cb-uuid]
// shape, which carries no event-id and so cannot flow through the
// general handler registry) back to their originating send-with-cb!
// call.
type rpcTable struct {
	mu      sync.Mutex
	waiters map[string]*pendingRPC
}

func newRPCTable() *rpcTable {
	return &rpcTable{waiters: make(map[string]*pendingRPC)}
}

func (t *rpcTable) register(cbUUID string, timeoutMs int, cb func(Reply)) {
	p := &pendingRPC{cb: cb}
	t.mu.Lock()
	t.waiters[cbUUID] = p
	t.mu.Unlock()

	if timeoutMs > 0 {
		p.timer = time.AfterFunc(time.Duration(timeoutMs)*time.Millisecond, func() {
			t.mu.Lock()
			delete(t.waiters, cbUUID)
			t.mu.Unlock()
			p.resolve(Reply{Err: &ReplyError{Code: "timeout"}})
		})
	}
}

// deliver resolves the waiter for cbUUID with data, if one is
// outstanding. Returns false when no waiter matched (a stray or
// already-timed-out reply).
func (t *rpcTable) deliver(cbUUID string, data any) bool {
	t.mu.Lock()
	p, ok := t.waiters[cbUUID]
	if ok {
		delete(t.waiters, cbUUID)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	p.resolve(Reply{Data: data})
	return true
}

// closeAll resolves every outstanding waiter with a closed
// notification, mirroring registry.Registry.Close's once?-handler
// behavior on disconnect.
func (t *rpcTable) closeAll(reason string) {
	t.mu.Lock()
	waiters := t.waiters
	t.waiters = make(map[string]*pendingRPC)
	t.mu.Unlock()

	for _, p := range waiters {
		p.resolve(Reply{Err: &ReplyError{Code: "closed", Reason: reason}})
	}
}
