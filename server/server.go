// Package server
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A sente-lite WebSocket server (spec §4.5 / C5): accept loop,
// per-connection lifecycle, event routing, channel pub/sub, and a
// heartbeat sweeper. Adapted from the teacher's server/server.go +
// server/types.go + server/options.go: the same Config/DefaultConfig/
// ServerOption/Serve/Shutdown shape, generalized from a NUMA-aware
// zero-copy frame relay to full sente-lite event-vector semantics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/sente-lite/contable"
	"github.com/momentics/sente-lite/introspect"
	"github.com/momentics/sente-lite/wire"
	"github.com/momentics/sente-lite/wire/edn"
	"github.com/momentics/sente-lite/wsproto"
)

// ErrAlreadyRunning mirrors the teacher's guard against calling Start
// twice on the same Server.
var ErrAlreadyRunning = errors.New("server: already running")

// Stats reports process-wide connection and channel counts. The GET
// /stats route (spec §6) does not use this struct; it is built from
// introspectAdapter.
type Stats struct {
	ActiveConnections int
	TotalConnections  uint64
	ChannelCount      int
}

// Server accepts sente-lite WebSocket connections (spec §4.5's public
// contract: start_server/close_server/broadcast/send_to), grounded on
// the teacher's Server struct (listener/pool/control) with the NUMA
// buffer-pool machinery replaced by the connection and channel tables.
type Server struct {
	cfg    Config
	format wire.Format

	listener net.Listener

	// conns is the process-wide connection table (spec §9's "top-level
	// concurrent map from handle to state object"), shared-table idiom
	// factored into the contable package.
	conns  *contable.Table[*connRecord]
	nextID atomic.Uint64

	channels *channelTable

	totalConns atomic.Uint64
	totalMsgs  atomic.Uint64
	startedAt  time.Time

	introspectSrv *http.Server

	shutdown     chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup

	running atomic.Bool
}

// New constructs a Server without starting it. Call Start to bind the
// listener and begin accepting connections.
func New(cfg Config, opts ...Option) *Server {
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.Format == nil {
		cfg.Format = edn.Format{}
	}
	return &Server{
		cfg:      cfg,
		format:   cfg.Format,
		conns:    contable.New[*connRecord](),
		channels: newChannelTable(),
		shutdown: make(chan struct{}),
	}
}

// Start binds the configured listen address (spec §4.5: ":0" binds an
// ephemeral port, queryable afterward via Port) and launches the
// accept loop and heartbeat sweeper.
func (s *Server) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		s.running.Store(false)
		return fmt.Errorf("server: listen: %w", err)
	}
	s.listener = ln
	s.startedAt = time.Now()

	s.wg.Add(1)
	go s.acceptLoop()

	if s.cfg.Heartbeat.Enabled {
		s.wg.Add(1)
		go s.heartbeatLoop()
	}

	if s.cfg.IntrospectAddr != "" {
		introspectLn, err := net.Listen("tcp", s.cfg.IntrospectAddr)
		if err != nil {
			// The accept loop and heartbeat sweeper are already running;
			// Shutdown (not a second Start) is how the caller recovers.
			_ = s.Shutdown(context.Background())
			return fmt.Errorf("server: introspection listen: %w", err)
		}
		s.introspectSrv = &http.Server{
			Addr:    s.cfg.IntrospectAddr,
			Handler: introspect.NewHandler(introspectAdapter{s}),
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			_ = s.introspectSrv.Serve(introspectLn)
		}()
	}
	return nil
}

// Port returns the actual bound TCP port, useful after binding an
// ephemeral (":0") listen address.
func (s *Server) Port() int {
	if s.listener == nil {
		return 0
	}
	if tcpAddr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return tcpAddr.Port
	}
	return 0
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		raw, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				log.Printf("sente-lite server: accept error: %v", err)
				return
			}
		}
		s.wg.Add(1)
		go s.handleAccepted(raw)
	}
}

func (s *Server) handleAccepted(raw net.Conn) {
	defer s.wg.Done()

	wrapped, _, err := wsproto.AcceptUpgrade(raw)
	if err != nil {
		raw.Close()
		return
	}

	id := strconv.FormatUint(s.nextID.Add(1), 10)
	var rec *connRecord

	wsConn := wsproto.NewConn(wrapped, wsproto.Config{
		Mask: false,
		OnText: func(payload []byte) {
			s.onText(rec, payload)
		},
		OnClose: func(reason string) {
			s.onDisconnect(rec, reason)
		},
	})
	rec = newConnRecord(id, wsConn)

	s.conns.Store(id, rec)
	s.totalConns.Add(1)

	wsConn.Start()

	if s.cfg.OnConnect != nil {
		s.cfg.OnConnect(id)
	}

	hs := wire.NewEvent(wire.EventChskHandshake, wire.EncodeHandshakeData(wire.HandshakeData{UID: id, First: true}))
	if err := rec.send(hs, s.format); err != nil {
		wsConn.Close("handshake-send-failed")
	}

	<-wsConn.Done()
}

func (s *Server) onText(rec *connRecord, payload []byte) {
	raw, err := s.format.DecodeValue(string(payload))
	if err != nil {
		return
	}
	ev, err := wire.Decode(raw)
	if err != nil {
		return
	}
	s.route(rec, ev)
}

func (s *Server) onDisconnect(rec *connRecord, reason string) {
	if rec == nil || !rec.closed.CompareAndSwap(false, true) {
		return
	}
	s.conns.Delete(rec.id)
	s.channels.removeConnFromAll(rec.id)

	if s.cfg.OnDisconnect != nil {
		s.cfg.OnDisconnect(rec.id, reason)
	}
}

func (s *Server) closeConn(rec *connRecord, reason string) {
	rec.conn.Close(reason)
}

func (s *Server) snapshotConns() []*connRecord {
	return s.conns.Snapshot()
}

// Broadcast sends ev to every currently connected client.
func (s *Server) Broadcast(ev wire.Event) {
	for _, c := range s.snapshotConns() {
		_ = c.send(ev, s.format)
	}
}

// SendTo sends ev to one connection by id. Returns an error if connID
// is not currently connected.
func (s *Server) SendTo(connID string, ev wire.Event) error {
	rec, ok := s.conns.Load(connID)
	if !ok {
		return fmt.Errorf("server: connection %q not found", connID)
	}
	return rec.send(ev, s.format)
}

// Stats reports process-wide connection and channel counts.
func (s *Server) Stats() Stats {
	return Stats{
		ActiveConnections: s.conns.Len(),
		TotalConnections:  s.totalConns.Load(),
		ChannelCount:      len(s.channels.snapshot()),
	}
}

// Channels returns the channel table for introspection (spec §6's GET
// /channels shape). Exported read-only access: callers cannot mutate
// subscriber sets through the returned snapshot.
func (s *Server) Channels() map[string]ChannelStats {
	out := make(map[string]ChannelStats)
	for id, ch := range s.channels.snapshot() {
		subs, msgs, createdAt, retention := ch.stats()
		out[id] = ChannelStats{
			SubscriberCount: subs,
			MessageCount:    msgs,
			CreatedAt:       createdAt,
			RetentionCount:  retention,
		}
	}
	return out
}

// ChannelStats reports one channel's introspection fields (spec §6's
// GET /channels per-channel shape).
type ChannelStats struct {
	SubscriberCount int
	MessageCount    uint64
	CreatedAt       time.Time
	RetentionCount  int
}

// introspectAdapter satisfies introspect.Provider without introspect
// importing this package (which would create an import cycle, since
// this package imports introspect to mount the handler).
type introspectAdapter struct{ s *Server }

func (a introspectAdapter) ActiveConnections() int { return a.s.conns.Len() }

func (a introspectAdapter) TotalMessages() uint64 { return a.s.totalMsgs.Load() }

func (a introspectAdapter) Channels() map[string]introspect.ChannelInfo {
	out := make(map[string]introspect.ChannelInfo)
	for id, cs := range a.s.Channels() {
		out[id] = introspect.ChannelInfo{
			SubscriberCount: cs.SubscriberCount,
			MessageCount:    cs.MessageCount,
			CreatedAt:       cs.CreatedAt,
			RetentionCount:  cs.RetentionCount,
		}
	}
	return out
}

// ServerConfig reports the JSON-safe subset of Config (spec §6's GET
// /stats "server_config" field): callback and interface-typed fields
// (OnConnect, OnDisconnect, Format) are not representable as JSON and
// are omitted.
func (a introspectAdapter) ServerConfig() any {
	cfg := a.s.cfg
	return map[string]any{
		"listen_addr":      cfg.ListenAddr,
		"heartbeat":        cfg.Heartbeat,
		"channels":         cfg.Channels,
		"shutdown_timeout": cfg.ShutdownTimeout.String(),
		"introspect_addr":  cfg.IntrospectAddr,
	}
}

// Shutdown stops accepting new connections, closes every active
// connection, and clears the connection and channel tables (spec §8's
// I5: after close_server every connection and channel record is
// cleared).
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)
		if s.listener != nil {
			s.listener.Close()
		}
		if s.introspectSrv != nil {
			_ = s.introspectSrv.Close()
		}
		for _, c := range s.snapshotConns() {
			c.conn.Close("server-shutdown")
		}
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	select {
	case <-done:
	case <-time.After(timeout):
	case <-ctx.Done():
	}

	s.conns.Clear()
	s.channels.clear()
	return nil
}
