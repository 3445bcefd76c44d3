// Package client
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A reconnecting sente-lite client (spec §4.4 / C4), adapted from the
// teacher's client/client.go: functional-options configuration and a
// dial-then-run connection loop — generalized from a raw-frame
// batch-IO stress client to the full event-vector client described by
// the spec. The client runs no heartbeat timer of its own; it answers
// the server's chsk/ws-ping with chsk/ws-pong.
package client

import (
	"time"

	"github.com/momentics/sente-lite/queue"
	"github.com/momentics/sente-lite/wire"
)

const (
	DefaultReconnectDelay    = 1000 * time.Millisecond
	DefaultMaxReconnectDelay = 30000 * time.Millisecond
)

// Config mirrors spec §4.4's make_client config keys.
type Config struct {
	URL string // required

	OnOpen          func(uid string)
	OnReconnect     func()
	OnChannelReady  func()
	OnMessage       func(eventID wire.EventID, data any)
	OnClose         func(reason string)

	AutoReconnect     bool
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration

	// WrapRecv controls receive normalization (spec §4.1/§4.4): when
	// false (default) an inbound chsk/recv [inner-id inner-data] is
	// unwrapped before reaching handlers; when true, non-system events
	// are wrapped as chsk/recv before delivery.
	WrapRecv bool

	// Queue, when non-nil, enables the queued send path (spec §4.4's
	// "Send paths"). When nil, Send writes directly to the socket.
	Queue *queue.Options

	Format wire.Format // defaults to edn.Format{}

	DialTimeout time.Duration
}

// Option configures a Config via functional options, matching the
// teacher's ClientOption pattern (client/client.go's WithDialer).
type Option func(*Config)

func WithURL(url string) Option { return func(c *Config) { c.URL = url } }

func WithOnOpen(fn func(uid string)) Option { return func(c *Config) { c.OnOpen = fn } }

func WithOnReconnect(fn func()) Option { return func(c *Config) { c.OnReconnect = fn } }

func WithOnChannelReady(fn func()) Option { return func(c *Config) { c.OnChannelReady = fn } }

func WithOnMessage(fn func(wire.EventID, any)) Option {
	return func(c *Config) { c.OnMessage = fn }
}

func WithOnClose(fn func(reason string)) Option { return func(c *Config) { c.OnClose = fn } }

func WithAutoReconnect(v bool) Option { return func(c *Config) { c.AutoReconnect = v } }

func WithReconnectDelay(d time.Duration) Option {
	return func(c *Config) { c.ReconnectDelay = d }
}

func WithMaxReconnectDelay(d time.Duration) Option {
	return func(c *Config) { c.MaxReconnectDelay = d }
}

func WithWrapRecv(v bool) Option { return func(c *Config) { c.WrapRecv = v } }

func WithQueue(opts queue.Options) Option {
	return func(c *Config) { c.Queue = &opts }
}

func WithFormat(f wire.Format) Option { return func(c *Config) { c.Format = f } }

func WithDialTimeout(d time.Duration) Option { return func(c *Config) { c.DialTimeout = d } }

// DefaultConfig returns a Config with spec-mandated defaults applied,
// matching the teacher's DefaultConfig() constructors (e.g.
// server/types.go's DefaultConfig).
func DefaultConfig(url string, opts ...Option) Config {
	c := Config{
		URL:               url,
		AutoReconnect:     true,
		ReconnectDelay:    DefaultReconnectDelay,
		MaxReconnectDelay: DefaultMaxReconnectDelay,
		DialTimeout:       5 * time.Second,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
