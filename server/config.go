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
	"time"

	"github.com/momentics/sente-lite/wire"
)

// HeartbeatConfig controls the server-side liveness sweeper (spec
// §4.5's "Heartbeat sweeper").
type HeartbeatConfig struct {
	Enabled    bool
	IntervalMs int
	TimeoutMs  int
}

// ChannelDefaults configures newly auto-created channels (spec §6's
// server configuration shape).
type ChannelDefaults struct {
	AutoCreate       bool
	MaxSubscribers   int
	RetentionCount   int
}

// Config mirrors spec §4.5/§6's start_server configuration.
type Config struct {
	ListenAddr string // "host:port"; port 0 binds an ephemeral port

	Heartbeat HeartbeatConfig
	Channels  ChannelDefaults

	Format wire.Format // defaults to edn.Format{}

	ShutdownTimeout time.Duration

	// IntrospectAddr, when non-empty, binds a second, plain-HTTP
	// listener serving spec §6's optional GET /health, /stats,
	// /channels routes (package introspect). Empty disables the
	// surface entirely, matching spec's "optional, when an HTTP
	// surface is exposed alongside WS."
	IntrospectAddr string

	// OnConnect/OnDisconnect observe connection lifecycle events for
	// applications that want them (not part of spec's public contract
	// but harmless to expose, mirroring the teacher's middleware hook).
	OnConnect    func(connID string)
	OnDisconnect func(connID string, reason string)
}

const (
	DefaultHeartbeatIntervalMs = 30_000
	DefaultHeartbeatTimeoutMs  = 60_000
	DefaultMaxSubscribers      = 1000
)

// DefaultConfig returns spec-mandated defaults (§4.5: "heartbeat
// interval and timeout", default 30s/60s).
func DefaultConfig() Config {
	return Config{
		ListenAddr: ":0",
		Heartbeat: HeartbeatConfig{
			Enabled:    true,
			IntervalMs: DefaultHeartbeatIntervalMs,
			TimeoutMs:  DefaultHeartbeatTimeoutMs,
		},
		Channels: ChannelDefaults{
			AutoCreate:     true,
			MaxSubscribers: DefaultMaxSubscribers,
			RetentionCount: 0,
		},
		ShutdownTimeout: 10 * time.Second,
	}
}

// Option configures a Config via functional options, grounded on the
// teacher's ServerOption pattern (server/options.go), adapted from
// mutating a live *Server to mutating the pre-construction Config.
type Option func(*Config)

func WithListenAddr(addr string) Option { return func(c *Config) { c.ListenAddr = addr } }

func WithHeartbeat(intervalMs, timeoutMs int) Option {
	return func(c *Config) {
		c.Heartbeat.Enabled = true
		c.Heartbeat.IntervalMs = intervalMs
		c.Heartbeat.TimeoutMs = timeoutMs
	}
}

func WithHeartbeatDisabled() Option { return func(c *Config) { c.Heartbeat.Enabled = false } }

func WithChannelDefaults(autoCreate bool, maxSubscribers, retentionCount int) Option {
	return func(c *Config) {
		c.Channels.AutoCreate = autoCreate
		c.Channels.MaxSubscribers = maxSubscribers
		c.Channels.RetentionCount = retentionCount
	}
}

func WithFormat(f wire.Format) Option { return func(c *Config) { c.Format = f } }

func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Config) { c.ShutdownTimeout = d }
}

func WithOnConnect(fn func(connID string)) Option { return func(c *Config) { c.OnConnect = fn } }

func WithOnDisconnect(fn func(connID, reason string)) Option {
	return func(c *Config) { c.OnDisconnect = fn }
}

// WithIntrospection enables spec §6's optional HTTP introspection
// surface (GET /health, /stats, /channels) on addr, bound alongside
// the WebSocket listener when Start is called.
func WithIntrospection(addr string) Option {
	return func(c *Config) { c.IntrospectAddr = addr }
}
