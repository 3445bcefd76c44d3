package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/momentics/sente-lite/client"
	"github.com/momentics/sente-lite/wire"
	"github.com/momentics/sente-lite/wsproto"
)

func startTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	s := New(DefaultConfig(), append([]Option{WithListenAddr("127.0.0.1:0")}, opts...)...)
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Shutdown(ctx)
	})
	return s
}

func dialTestClient(t *testing.T, s *Server, opts ...client.Option) *client.Client {
	t.Helper()
	url := "ws://127.0.0.1:" + strconv.Itoa(s.Port()) + "/chsk"
	cfg := client.DefaultConfig(url, append([]client.Option{client.WithAutoReconnect(false)}, opts...)...)
	c := client.New(cfg)
	t.Cleanup(func() { c.Close() })
	return c
}

func waitOpen(t *testing.T, c *client.Client) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.GetStatus() == client.Connected {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("client never reached Connected")
}

func TestServerSendsHandshakeOnConnect(t *testing.T) {
	s := startTestServer(t)
	opened := make(chan string, 1)
	c := dialTestClient(t, s, client.WithOnOpen(func(uid string) { opened <- uid }))
	_ = c

	select {
	case uid := <-opened:
		if uid == "" {
			t.Fatal("expected non-empty uid")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handshake never received")
	}
}

func TestDefaultEchoRoundTrip(t *testing.T) {
	s := startTestServer(t)
	echoID, _ := wire.NewEventID("sente-lite/echo")
	appID, _ := wire.NewEventID("app/unhandled")
	got := make(chan any, 1)

	c := dialTestClient(t, s, client.WithOnMessage(func(id wire.EventID, data any) {
		if id == echoID {
			got <- data
		}
	}))
	waitOpen(t, c)

	if _, err := c.Send(appID, "payload"); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case data := <-got:
		m, ok := data.(map[string]any)
		if !ok {
			t.Fatalf("unexpected echo data type: %T", data)
		}
		if m["original-data"] != "payload" {
			t.Fatalf("unexpected echoed payload: %v", m["original-data"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("echo never received")
	}
}

func TestUnknownSystemEventIsIgnoredNotEchoed(t *testing.T) {
	s := startTestServer(t)
	echoID, _ := wire.NewEventID("sente-lite/echo")
	got := make(chan any, 1)

	c := dialTestClient(t, s, client.WithOnMessage(func(id wire.EventID, data any) {
		if id == echoID {
			got <- data
		}
	}))
	waitOpen(t, c)

	// chsk/close is a reserved system event the routing table doesn't
	// special-case; spec.md §9's Open Question mandates ignoring it
	// rather than falling through to the app-facing echo default.
	if _, err := c.SendBare(wire.EventChskClose); err != nil {
		t.Fatalf("send: %v", err)
	}
	// Follow up with an ordinary app event: if chsk/close had produced
	// an echo it would have arrived before this one.
	appID, _ := wire.NewEventID("app/after-close")
	if _, err := c.Send(appID, "after"); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case data := <-got:
		m, ok := data.(map[string]any)
		if !ok {
			t.Fatalf("unexpected echo data type: %T", data)
		}
		if m["original-event-id"] != appID.String() {
			t.Fatalf("chsk/close produced an echo instead of being ignored: %v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("echo for the follow-up event never received")
	}
}

func TestSubscribePublishFanOut(t *testing.T) {
	s := startTestServer(t)
	subscribedID, _ := wire.NewEventID("sente-lite/subscribed")
	channelMsgID, _ := wire.NewEventID("sente-lite/channel-msg")

	acked1 := make(chan bool, 1)
	msgs := make(chan any, 1)
	c1 := dialTestClient(t, s, client.WithOnMessage(func(id wire.EventID, data any) {
		if id == subscribedID {
			m, _ := data.(map[string]any)
			acked1 <- m["success"] == true
		}
		if id == channelMsgID {
			msgs <- data
		}
	}))
	waitOpen(t, c1)

	if _, err := c1.Subscribe("room-1"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	select {
	case ok := <-acked1:
		if !ok {
			t.Fatal("expected successful subscribe ack")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe ack never received")
	}

	c2 := dialTestClient(t, s)
	waitOpen(t, c2)
	if _, err := c2.Publish("room-1", "hello-room", false); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case data := <-msgs:
		m, ok := data.(map[string]any)
		if !ok || m["data"] != "hello-room" {
			t.Fatalf("unexpected channel-msg: %#v", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel-msg never received")
	}
}

func TestShutdownClearsConnectionsAndChannels(t *testing.T) {
	s := New(DefaultConfig(), WithListenAddr("127.0.0.1:0"))
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	c := dialTestClient(t, s)
	waitOpen(t, c)
	if _, err := c.Subscribe("room-x"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	stats := s.Stats()
	if stats.ActiveConnections != 0 {
		t.Fatalf("expected 0 active connections after shutdown, got %d", stats.ActiveConnections)
	}
	if stats.ChannelCount != 0 {
		t.Fatalf("expected 0 channels after shutdown, got %d", stats.ChannelCount)
	}
}

// TestIntrospectionEndpoints verifies spec §6's optional HTTP surface
// (GET /health, /stats, /channels) reports live server state when
// enabled via WithIntrospection.
func TestIntrospectionEndpoints(t *testing.T) {
	introspectLn := findFreeAddr(t)
	s := startTestServer(t, WithIntrospection(introspectLn))
	c := dialTestClient(t, s)
	waitOpen(t, c)
	if _, err := c.Subscribe("room-introspect"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	base := "http://" + introspectLn

	healthResp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer healthResp.Body.Close()
	var health map[string]any
	if err := json.NewDecoder(healthResp.Body).Decode(&health); err != nil {
		t.Fatalf("decode /health: %v", err)
	}
	if health["status"] != "ok" {
		t.Fatalf("health status = %v, want ok", health["status"])
	}
	if health["connections"].(float64) != 1 {
		t.Fatalf("health connections = %v, want 1", health["connections"])
	}

	statsResp, err := http.Get(base + "/stats")
	if err != nil {
		t.Fatalf("GET /stats: %v", err)
	}
	defer statsResp.Body.Close()
	var stats map[string]any
	if err := json.NewDecoder(statsResp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode /stats: %v", err)
	}
	if stats["active_connections"].(float64) != 1 {
		t.Fatalf("stats active_connections = %v, want 1", stats["active_connections"])
	}
	if stats["server_config"] == nil {
		t.Fatalf("stats missing server_config")
	}

	channelsResp, err := http.Get(base + "/channels")
	if err != nil {
		t.Fatalf("GET /channels: %v", err)
	}
	defer channelsResp.Body.Close()
	var channels struct {
		Channels map[string]map[string]any `json:"channels"`
	}
	if err := json.NewDecoder(channelsResp.Body).Decode(&channels); err != nil {
		t.Fatalf("decode /channels: %v", err)
	}
	ch, ok := channels.Channels["room-introspect"]
	if !ok {
		t.Fatalf("expected room-introspect in /channels response, got %#v", channels.Channels)
	}
	if ch["subscriber_count"].(float64) != 1 {
		t.Fatalf("subscriber_count = %v, want 1", ch["subscriber_count"])
	}
}

// findFreeAddr binds an ephemeral TCP port and returns its address,
// then closes the listener so WithIntrospection can rebind it — the
// same "bind :0, read back the port" idiom startTestServer uses for
// the WebSocket listener itself.
func findFreeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("findFreeAddr: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

// TestHeartbeatEvictsStaleConnection connects a raw socket that never
// replies to chsk/ws-ping (unlike client.Client, which auto-pongs) to
// verify the sweeper actually evicts connections that stop responding,
// rather than merely exercising the keep-alive path.
func TestHeartbeatEvictsStaleConnection(t *testing.T) {
	disconnected := make(chan string, 1)
	s := New(DefaultConfig(),
		WithListenAddr("127.0.0.1:0"),
		WithHeartbeat(20, 40),
		WithOnDisconnect(func(connID, reason string) { disconnected <- reason }),
	)
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Shutdown(ctx)
	})

	raw, err := wsproto.DialAndUpgrade(context.Background(), nil, "ws://127.0.0.1:"+strconv.Itoa(s.Port())+"/chsk", 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer raw.Close()
	rc := wsproto.NewConn(raw, wsproto.Config{Mask: true})
	rc.Start()

	select {
	case reason := <-disconnected:
		if reason != "heartbeat timeout" {
			t.Fatalf("unexpected eviction reason: %q", reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stale connection was never evicted by heartbeat sweeper")
	}
}
