package client

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/sente-lite/queue"
	"github.com/momentics/sente-lite/registry"
	"github.com/momentics/sente-lite/wire"
	"github.com/momentics/sente-lite/wire/edn"
	"github.com/momentics/sente-lite/wsproto"
)

// State is the client's connection state (spec §4.4's state machine).
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Stats is a snapshot of client-side counters exposed by GetStats.
type Stats struct {
	State          State
	UID            string
	ReconnectCount int64
	MessagesSent   uint64
	MessagesRecv   uint64
}

// Client is a reconnecting sente-lite connection (spec §4.4 / C4).
type Client struct {
	cfg      Config
	format   wire.Format
	registry *registry.Registry
	rpc      *rpcTable
	q        queue.Queue

	mu       sync.Mutex
	conn     *wsproto.Conn
	state    atomic.Int32
	uid      atomic.Value // string
	closed   atomic.Bool

	reconnect *reconnectState

	msgsSent atomic.Uint64
	msgsRecv atomic.Uint64

	stopCh chan struct{}
}

// New constructs and immediately dials a Client per spec §4.4's
// make_client. The returned Client is already attempting to connect;
// callers observe progress via the configured On* callbacks and
// GetStatus.
func New(cfg Config) *Client {
	if cfg.Format == nil {
		cfg.Format = edn.Format{}
	}
	c := &Client{
		cfg:      cfg,
		format:   cfg.Format,
		registry: registry.New(),
		rpc:      newRPCTable(),
		stopCh:   make(chan struct{}),
	}
	c.uid.Store("")
	c.reconnect = newReconnectState(cfg.ReconnectDelay, cfg.MaxReconnectDelay)

	if cfg.Queue != nil {
		opts := *cfg.Queue
		opts.Sender = senderFunc(c.rawSend)
		c.q = queue.New(opts)
	}

	go c.runConnectLoop()
	return c
}

// GetStatus returns the current connection state.
func (c *Client) GetStatus() State { return State(c.state.Load()) }

// GetUID returns the uid assigned by the most recent chsk/handshake,
// or "" before the first handshake.
func (c *Client) GetUID() string { return c.uid.Load().(string) }

// GetStats returns a snapshot of client counters.
func (c *Client) GetStats() Stats {
	return Stats{
		State:          c.GetStatus(),
		UID:            c.GetUID(),
		ReconnectCount: c.reconnect.snapshotCount(),
		MessagesSent:   c.msgsSent.Load(),
		MessagesRecv:   c.msgsRecv.Load(),
	}
}

// QueueStats returns the send queue's Stats, or a zero value when no
// queue is configured (direct-send mode).
func (c *Client) QueueStats() queue.Stats {
	if c.q == nil {
		return queue.Stats{}
	}
	return c.q.Stats()
}

// HandlerCount returns the number of currently registered handlers.
func (c *Client) HandlerCount() int { return c.registry.Count() }

// On registers a handler (spec §4.3).
func (c *Client) On(opts registry.Options) string { return c.registry.On(opts) }

// Off removes a handler by id.
func (c *Client) Off(handlerID string) bool { return c.registry.Off(handlerID) }

// Take registers a once? handler.
func (c *Client) Take(opts registry.Options) string { return c.registry.Take(opts) }

// SetReconnect configures whether this client reconnects after a
// socket close (spec §4.4's set-reconnect!).
func (c *Client) SetReconnect(enabled bool) {
	c.mu.Lock()
	c.cfg.AutoReconnect = enabled
	c.mu.Unlock()
}

// Close implements spec §4.4's close!: the client is removed from any
// further reconnect scheduling before the socket is closed, so the
// socket-close handler does not reschedule (the "any -> close!" table
// row).
func (c *Client) Close() bool {
	if !c.closed.CompareAndSwap(false, true) {
		return false
	}
	close(c.stopCh)
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.Close("client-closed")
	}
	if c.q != nil {
		c.q.Stop()
	}
	c.rpc.closeAll("client-closed")
	c.registry.Destroy()
	c.state.Store(int32(Disconnected))
	return true
}

func (c *Client) runConnectLoop() {
	c.attemptConnect()
}

func (c *Client) attemptConnect() {
	if c.closed.Load() {
		return
	}
	c.state.Store(int32(Connecting))

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeoutOr(c.cfg.DialTimeout))
	defer cancel()

	raw, err := wsproto.DialAndUpgrade(ctx, nil, c.cfg.URL, c.cfg.DialTimeout)
	if err != nil {
		c.onConnectFailure()
		return
	}

	conn := wsproto.NewConn(raw, wsproto.Config{
		Mask:    true,
		OnText:  c.handleText,
		OnClose: c.handleSocketClose,
	})
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	conn.Start()
	c.state.Store(int32(Connected))
	if c.q != nil {
		c.q.Start()
	}
}

func dialTimeoutOr(d time.Duration) time.Duration {
	if d <= 0 {
		return 5 * time.Second
	}
	return d
}

func (c *Client) onConnectFailure() {
	c.state.Store(int32(Disconnected))
	if c.closed.Load() {
		return
	}
	c.mu.Lock()
	auto := c.cfg.AutoReconnect
	c.mu.Unlock()
	if auto {
		c.reconnect.schedule(c.stopCh, c.attemptConnect)
	}
}

func (c *Client) handleSocketClose(reason string) {
	c.state.Store(int32(Disconnected))
	if c.cfg.OnClose != nil {
		c.cfg.OnClose(reason)
	}
	c.registry.Close("disconnected")
	c.rpc.closeAll("disconnected")

	if c.closed.Load() {
		return
	}
	c.mu.Lock()
	auto := c.cfg.AutoReconnect
	c.mu.Unlock()
	if auto {
		c.reconnect.schedule(c.stopCh, c.attemptConnect)
	}
}

// handleText is wsproto.Conn's OnText callback: a raw serialized
// payload arrives here for every inbound frame.
func (c *Client) handleText(payload []byte) {
	c.msgsRecv.Add(1)
	raw, err := c.format.DecodeValue(string(payload))
	if err != nil {
		log.Printf("sente-lite client: decode error: %v", err)
		return
	}

	// A reply carries no event-id (spec §4.1's [data, cb-uuid] shape),
	// so it must be checked before attempting the general event decode
	// below, which requires the first element to be a symbol.
	if vec, ok := raw.([]any); ok && len(vec) == 2 {
		if cbUUID, ok := vec[1].(string); ok {
			if c.rpc.deliver(cbUUID, vec[0]) {
				return
			}
		}
	}

	ev, err := wire.Decode(raw)
	if err != nil {
		log.Printf("sente-lite client: decode error: %v", err)
		return
	}

	if wire.IsSystemEvent(ev.ID) {
		c.handleSystemEvent(ev)
		return
	}

	eventID, data := c.normalizeInbound(ev)
	c.registry.Dispatch(eventID, data, c.logHandlerPanic)
	if c.cfg.OnMessage != nil {
		c.cfg.OnMessage(eventID, data)
	}
}

func (c *Client) handleSystemEvent(ev wire.Event) {
	switch ev.ID {
	case wire.EventChskHandshake:
		h, err := wire.ParseHandshakeData(ev.Data)
		if err != nil {
			log.Printf("sente-lite client: bad handshake data: %v", err)
			return
		}
		c.uid.Store(h.UID)
		if c.reconnect.snapshotCount() == 0 {
			if c.cfg.OnOpen != nil {
				c.cfg.OnOpen(h.UID)
			}
		} else if c.cfg.OnReconnect != nil {
			c.cfg.OnReconnect()
		}
		if c.cfg.OnChannelReady != nil {
			c.cfg.OnChannelReady()
		}
	case wire.EventChskWSPing:
		c.rawSend(context.Background(), queue.Message{
			Payload: c.mustSerialize(wire.NewBareEvent(wire.EventChskWSPong)),
		})
	case wire.EventChskWSPong:
		// liveness acknowledged; clients don't track their own pong
		// deadlines (only the server evicts on missed heartbeats).
	default:
		// unknown chsk/* events are ignored (spec.md §9 Open Question,
		// resolved: silent ignore).
	}
}

// normalizeInbound applies spec §4.1/§4.4's chsk/recv unwrap/wrap
// normalization ahead of handler dispatch: with wrap-recv? false
// (default) an inbound chsk/recv [inner-id inner-data] is unwrapped so
// handlers see the inner event directly; with wrap-recv? true every
// non-system event is presented to handlers re-wrapped as chsk/recv.
func (c *Client) normalizeInbound(ev wire.Event) (wire.EventID, any) {
	if c.cfg.WrapRecv {
		return wire.EventChskRecv, []any{ev.ID, ev.Data}
	}
	if ev.ID == wire.EventChskRecv {
		if pair, ok := ev.Data.([]any); ok && len(pair) == 2 {
			if inner, err := symbolOrID(pair[0]); err == nil {
				return inner, pair[1]
			}
		}
	}
	return ev.ID, ev.Data
}

func symbolOrID(v any) (wire.EventID, error) {
	switch t := v.(type) {
	case wire.Symbol:
		return t, nil
	case string:
		return wire.NewEventID(t)
	default:
		return wire.EventID{}, fmt.Errorf("client: chsk/recv inner event-id is not a symbol: %T", v)
	}
}

func (c *Client) logHandlerPanic(rec any) {
	log.Printf("sente-lite client: handler panicked: %v", rec)
}

func (c *Client) mustSerialize(ev wire.Event) string {
	s, err := wire.Serialize(ev, c.format)
	if err != nil {
		log.Printf("sente-lite client: serialize error: %v", err)
		return ""
	}
	return s
}

type senderFunc func(ctx context.Context, msg queue.Message) error

func (f senderFunc) Send(ctx context.Context, msg queue.Message) error { return f(ctx, msg) }

// rawSend writes msg.Payload directly to the socket, matching spec
// §4.4's "throws if not ready-state = OPEN" send_raw semantics: an
// error here is what the queue's Sender counts as a delivery failure.
func (c *Client) rawSend(ctx context.Context, msg queue.Message) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil || c.GetStatus() != Connected {
		return wsproto.ErrConnClosed
	}
	err := conn.SendText([]byte(msg.Payload))
	if err == nil {
		c.msgsSent.Add(1)
	}
	return err
}
