// Package introspect implements spec.md §6's optional HTTP
// introspection surface (GET /health, /stats, /channels), built the
// way the teacher's highlevel.Server builds its own lightweight path
// router — an exact-match map, no external web framework, since none
// (gin/echo/chi) appears anywhere in the retrieved corpus.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package introspect

import (
	"encoding/json"
	"net/http"
	"time"
)

// ChannelInfo is one channel's entry in GET /channels's response
// (spec §6: "channels: {id -> {subscriber_count, message_count,
// created_at, retention_count}}").
type ChannelInfo struct {
	SubscriberCount int       `json:"subscriber_count"`
	MessageCount    uint64    `json:"message_count"`
	CreatedAt       time.Time `json:"created_at"`
	RetentionCount  int       `json:"retention_count"`
}

// Provider supplies the live counters the introspection routes report.
// Implemented by server.Server via a small adapter so this package
// never imports server (which would create an import cycle once
// server mounts this handler).
type Provider interface {
	ActiveConnections() int
	TotalMessages() uint64
	Channels() map[string]ChannelInfo
	ServerConfig() any
}

// Handler serves spec §6's three introspection routes over plain
// net/http, matching highlevel/server.go's exact-match router shape
// (mux.HandleFunc per path, no middleware chain needed for three
// read-only routes).
type Handler struct {
	mux       *http.ServeMux
	provider  Provider
	startedAt time.Time
}

// NewHandler builds the introspection http.Handler. startedAt is
// recorded at construction time for GET /health's uptime_ms field.
func NewHandler(p Provider) *Handler {
	h := &Handler{provider: p, startedAt: time.Now()}
	h.mux = http.NewServeMux()
	h.mux.HandleFunc("/health", h.handleHealth)
	h.mux.HandleFunc("/stats", h.handleStats)
	h.mux.HandleFunc("/channels", h.handleChannels)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// handleHealth implements spec §6's GET /health ->
// {status, connections, uptime_ms}.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":      "ok",
		"connections": h.provider.ActiveConnections(),
		"uptime_ms":   time.Since(h.startedAt).Milliseconds(),
	})
}

// handleStats implements spec §6's GET /stats ->
// {active_connections, total_messages, server_config, channel_stats}.
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"active_connections": h.provider.ActiveConnections(),
		"total_messages":     h.provider.TotalMessages(),
		"server_config":      h.provider.ServerConfig(),
		"channel_stats":      h.provider.Channels(),
	})
}

// handleChannels implements spec §6's GET /channels ->
// {channels: {id -> {subscriber_count, message_count, created_at,
// retention_count}}}.
func (h *Handler) handleChannels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"channels": h.provider.Channels(),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	_ = enc.Encode(v)
}
