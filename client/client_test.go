package client

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/momentics/sente-lite/registry"
	"github.com/momentics/sente-lite/wire"
	"github.com/momentics/sente-lite/wire/edn"
	"github.com/momentics/sente-lite/wsproto"
)

// newTestClient builds a Client with background dialing suppressed, so
// unit tests can drive handleText/handleSystemEvent directly without a
// real socket.
func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	cfg := DefaultConfig("ws://unused.invalid/chsk", opts...)
	cfg.AutoReconnect = false
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
	return c
}

func TestReconnectStateNeverResetsAndCapsAtMax(t *testing.T) {
	r := newReconnectState(10*time.Millisecond, 80*time.Millisecond)
	if r.snapshotCount() != 0 {
		t.Fatalf("expected initial count 0, got %d", r.snapshotCount())
	}

	var prevDelay time.Duration = r.delay
	for i := 0; i < 6; i++ {
		r.advance()
		if r.snapshotCount() != int64(i+1) {
			t.Fatalf("count did not advance monotonically: want %d got %d", i+1, r.snapshotCount())
		}
		r.mu.Lock()
		cur := r.delay
		r.mu.Unlock()
		if cur > r.max {
			t.Fatalf("delay %v exceeded max %v", cur, r.max)
		}
		if cur < prevDelay && cur != r.max {
			t.Fatalf("delay decreased from %v to %v before reaching max", prevDelay, cur)
		}
		prevDelay = cur
	}
	if r.snapshotCount() == 0 {
		t.Fatal("reconnect count must not reset across repeated advances")
	}
}

func TestNormalizeInboundUnwrapsChskRecvByDefault(t *testing.T) {
	c := newTestClient(t)
	innerID, _ := wire.NewEventID("app/ping")
	wrapped := wire.NewEvent(wire.EventChskRecv, []any{innerID, "payload"})

	id, data := c.normalizeInbound(wrapped)
	if id != innerID {
		t.Fatalf("expected unwrapped id %v, got %v", innerID, id)
	}
	if data != "payload" {
		t.Fatalf("expected unwrapped data %q, got %v", "payload", data)
	}
}

func TestNormalizeInboundWrapsWhenConfigured(t *testing.T) {
	c := newTestClient(t, WithWrapRecv(true))
	innerID, _ := wire.NewEventID("app/ping")
	ev := wire.NewEvent(innerID, "payload")

	id, data := c.normalizeInbound(ev)
	if id != wire.EventChskRecv {
		t.Fatalf("expected wrapped id chsk/recv, got %v", id)
	}
	pair, ok := data.([]any)
	if !ok || len(pair) != 2 || pair[0] != innerID || pair[1] != "payload" {
		t.Fatalf("unexpected wrapped data: %#v", data)
	}
}

func TestHandleTextDispatchesApplicationEvent(t *testing.T) {
	c := newTestClient(t)
	got := make(chan registry.Message, 1)
	appID, _ := wire.NewEventID("app/ping")
	c.On(registry.Options{EventID: appID, HasEvent: true, Callback: func(m registry.Message) { got <- m }})

	payload, err := wire.Serialize(wire.NewEvent(appID, "hi"), c.format)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	c.handleText([]byte(payload))

	select {
	case m := <-got:
		if m.Data != "hi" {
			t.Fatalf("unexpected dispatched data: %v", m.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("handler never invoked")
	}
}

func TestHandleTextDeliversRPCReply(t *testing.T) {
	c := newTestClient(t)
	replies := make(chan Reply, 1)
	cbUUID := newCBUUID()
	c.rpc.register(cbUUID, 0, func(r Reply) { replies <- r })

	payload, err := c.format.EncodeValue([]any{"result-data", cbUUID})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	c.handleText([]byte(payload))

	select {
	case r := <-replies:
		if r.Err != nil {
			t.Fatalf("unexpected error reply: %+v", r.Err)
		}
		if r.Data != "result-data" {
			t.Fatalf("unexpected reply data: %v", r.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("RPC reply never delivered")
	}
}

func TestHandleTextHandshakeFiresOnOpenOnce(t *testing.T) {
	var mu sync.Mutex
	var opens, reconnects int
	c := newTestClient(t,
		WithOnOpen(func(uid string) { mu.Lock(); opens++; mu.Unlock() }),
		WithOnReconnect(func() { mu.Lock(); reconnects++; mu.Unlock() }),
	)

	hsPayload, _ := wire.Serialize(wire.NewEvent(wire.EventChskHandshake, wire.EncodeHandshakeData(wire.HandshakeData{UID: "u1", First: true})), c.format)
	c.handleText([]byte(hsPayload))

	mu.Lock()
	if opens != 1 || reconnects != 0 {
		t.Fatalf("expected one OnOpen and zero OnReconnect, got opens=%d reconnects=%d", opens, reconnects)
	}
	mu.Unlock()
	if c.GetUID() != "u1" {
		t.Fatalf("expected uid u1, got %q", c.GetUID())
	}

	c.reconnect.advance()
	c.handleText([]byte(hsPayload))

	mu.Lock()
	defer mu.Unlock()
	if opens != 1 || reconnects != 1 {
		t.Fatalf("expected OnReconnect after a non-zero reconnect count, got opens=%d reconnects=%d", opens, reconnects)
	}
}

// TestEndToEndConnectHandshakeAndEcho drives a real loopback WebSocket
// server through wsproto, exercising Client.New's full dial path:
// connect, receive chsk/handshake, dispatch an application event.
func TestEndToEndConnectHandshakeAndEcho(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	format := edn.Format{}
	appID, _ := wire.NewEventID("app/greet")

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		wrapped, _, err := wsproto.AcceptUpgrade(conn)
		if err != nil {
			return
		}
		sc := wsproto.NewConn(wrapped, wsproto.Config{Mask: false})
		sc.Start()

		hs, _ := wire.Serialize(wire.NewEvent(wire.EventChskHandshake, wire.EncodeHandshakeData(wire.HandshakeData{UID: "server-uid", First: true})), format)
		sc.SendText([]byte(hs))

		app, _ := wire.Serialize(wire.NewEvent(appID, "hello"), format)
		sc.SendText([]byte(app))
	}()

	opened := make(chan string, 1)
	received := make(chan any, 1)

	// OnMessage (unlike a registry handler registered after New
	// returns) is wired into cfg before the background connect
	// goroutine starts, so there is no race against the server's
	// immediate post-handshake send.
	cfg := DefaultConfig("ws://"+ln.Addr().String()+"/chsk",
		WithOnOpen(func(uid string) { opened <- uid }),
		WithOnMessage(func(id wire.EventID, data any) {
			if id == appID {
				received <- data
			}
		}),
		WithAutoReconnect(false),
	)
	c := New(cfg)
	defer c.Close()

	select {
	case uid := <-opened:
		if uid != "server-uid" {
			t.Fatalf("unexpected uid: %q", uid)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnOpen never fired")
	}

	select {
	case data := <-received:
		if data != "hello" {
			t.Fatalf("unexpected data: %v", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("application event never dispatched")
	}

	if c.GetStatus() != Connected {
		t.Fatalf("expected Connected, got %v", c.GetStatus())
	}
}

func TestCloseIsIdempotentAndStopsReconnects(t *testing.T) {
	c := newTestClient(t, WithAutoReconnect(true))
	if !c.Close() {
		t.Fatal("first Close should return true")
	}
	if c.Close() {
		t.Fatal("second Close should return false")
	}
	select {
	case <-c.stopCh:
	default:
		t.Fatal("stopCh should be closed after Close")
	}
}
