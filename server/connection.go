package server

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/sente-lite/wire"
	"github.com/momentics/sente-lite/wsproto"
)

// connRecord is one accepted connection's server-side state (spec
// §4.5's "Per-connection lifecycle"), adapted from highlevel/conn.go
// and protocol/connection.go's per-connection bookkeeping — generalized
// from raw frame counters to event-vector-aware last-activity/
// last-pong/message-count tracking.
type connRecord struct {
	id   string
	conn *wsproto.Conn

	mu            sync.Mutex
	lastActivity  time.Time
	lastPong      time.Time
	subscriptions map[string]struct{}

	msgCount atomic.Uint64
	closed   atomic.Bool
}

func newConnRecord(id string, conn *wsproto.Conn) *connRecord {
	now := time.Now()
	return &connRecord{
		id:            id,
		conn:          conn,
		lastActivity:  now,
		lastPong:      now,
		subscriptions: make(map[string]struct{}),
	}
}

func (c *connRecord) touchActivity() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
	c.msgCount.Add(1)
}

func (c *connRecord) touchPong() {
	c.mu.Lock()
	c.lastPong = time.Now()
	c.mu.Unlock()
}

func (c *connRecord) pongAge() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.lastPong)
}

func (c *connRecord) addSubscription(channelID string) {
	c.mu.Lock()
	c.subscriptions[channelID] = struct{}{}
	c.mu.Unlock()
}

func (c *connRecord) removeSubscription(channelID string) {
	c.mu.Lock()
	delete(c.subscriptions, channelID)
	c.mu.Unlock()
}

func (c *connRecord) subscribedChannels() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subscriptions))
	for id := range c.subscriptions {
		out = append(out, id)
	}
	return out
}

func (c *connRecord) send(ev wire.Event, f wire.Format) error {
	payload, err := wire.Serialize(ev, f)
	if err != nil {
		return err
	}
	return c.conn.SendText([]byte(payload))
}
