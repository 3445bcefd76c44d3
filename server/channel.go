package server

import (
	"sync"
	"time"
)

// retainedMsg is one entry in a channel's retention ring, replayed to
// a newly-subscribed connection when retention-count > 0 (spec.md §9's
// Open Question, resolved SHOULD-implement — see DESIGN.md).
type retainedMsg struct {
	data any
	from string
}

// channel is one pub/sub topic (spec §4.5's channel invariants): its
// subscriber set never exceeds maxSubscribers, subscription is
// reference-counted by connection (idempotent re-subscribe), and a
// bounded retention ring holds the last retentionCount published
// messages. No direct teacher analog — follows the same
// mutex-guarded-map idiom internal/session/store.go uses for its
// connection table.
type channel struct {
	id string

	mu             sync.Mutex
	subscribers    map[string]*connRecord
	maxSubscribers int
	retentionCount int
	retention      []retainedMsg
	messageCount   uint64
	createdAt      time.Time
}

func newChannel(id string, maxSubscribers, retentionCount int) *channel {
	return &channel{
		id:             id,
		subscribers:    make(map[string]*connRecord),
		maxSubscribers: maxSubscribers,
		retentionCount: retentionCount,
		createdAt:      time.Now(),
	}
}

// subscribe adds conn to the channel's subscriber set. Re-subscribing
// an already-subscribed connection succeeds without changing the set's
// size (idempotent, per spec §4.5/§8's round-trip property). Returns
// false with ok=false when the set is already at maxSubscribers and
// conn was not already a member.
func (ch *channel) subscribe(conn *connRecord) (replay []retainedMsg, ok bool) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if _, already := ch.subscribers[conn.id]; already {
		return nil, true
	}
	if ch.maxSubscribers > 0 && len(ch.subscribers) >= ch.maxSubscribers {
		return nil, false
	}
	ch.subscribers[conn.id] = conn
	if ch.retentionCount > 0 && len(ch.retention) > 0 {
		replay = append(replay, ch.retention...)
	}
	return replay, true
}

// unsubscribe removes conn from the subscriber set. Returns false when
// conn was not a subscriber.
func (ch *channel) unsubscribe(connID string) bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if _, ok := ch.subscribers[connID]; !ok {
		return false
	}
	delete(ch.subscribers, connID)
	return true
}

// publish records the message in the retention ring and returns the
// current subscriber snapshot (excluding senderID when excludeSender is
// true) for the caller to fan out to outside the lock.
func (ch *channel) publish(data any, senderID string, excludeSender bool) []*connRecord {
	ch.mu.Lock()
	ch.messageCount++
	if ch.retentionCount > 0 {
		ch.retention = append(ch.retention, retainedMsg{data: data, from: senderID})
		if over := len(ch.retention) - ch.retentionCount; over > 0 {
			ch.retention = ch.retention[over:]
		}
	}
	targets := make([]*connRecord, 0, len(ch.subscribers))
	for id, c := range ch.subscribers {
		if excludeSender && id == senderID {
			continue
		}
		targets = append(targets, c)
	}
	ch.mu.Unlock()
	return targets
}

func (ch *channel) subscriberCount() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.subscribers)
}

func (ch *channel) stats() (subscriberCount int, messageCount uint64, createdAt time.Time, retentionCount int) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.subscribers), ch.messageCount, ch.createdAt, ch.retentionCount
}

// channelTable is the process-wide channel map (spec.md §9's "Process-
// wide client/connection tables" note, applied to channels).
type channelTable struct {
	mu       sync.RWMutex
	channels map[string]*channel
}

func newChannelTable() *channelTable {
	return &channelTable{channels: make(map[string]*channel)}
}

func (t *channelTable) get(id string) (*channel, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ch, ok := t.channels[id]
	return ch, ok
}

func (t *channelTable) getOrCreate(id string, maxSubscribers, retentionCount int) *channel {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ch, ok := t.channels[id]; ok {
		return ch
	}
	ch := newChannel(id, maxSubscribers, retentionCount)
	t.channels[id] = ch
	return ch
}

func (t *channelTable) removeConnFromAll(connID string) {
	t.mu.RLock()
	chans := make([]*channel, 0, len(t.channels))
	for _, ch := range t.channels {
		chans = append(chans, ch)
	}
	t.mu.RUnlock()
	for _, ch := range chans {
		ch.unsubscribe(connID)
	}
}

func (t *channelTable) snapshot() map[string]*channel {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]*channel, len(t.channels))
	for id, ch := range t.channels {
		out[id] = ch
	}
	return out
}

// clear removes every channel record (spec §8's I5: after close_server
// every channel record is cleared).
func (t *channelTable) clear() {
	t.mu.Lock()
	t.channels = make(map[string]*channel)
	t.mu.Unlock()
}
