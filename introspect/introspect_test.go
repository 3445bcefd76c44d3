package introspect

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type stubProvider struct{}

func (stubProvider) ActiveConnections() int { return 3 }
func (stubProvider) TotalMessages() uint64  { return 42 }
func (stubProvider) Channels() map[string]ChannelInfo {
	return map[string]ChannelInfo{
		"room/1": {SubscriberCount: 2, MessageCount: 5, CreatedAt: time.Unix(0, 0), RetentionCount: 10},
	}
}
func (stubProvider) ServerConfig() any { return map[string]any{"heartbeat_enabled": true} }

func TestHandleHealth(t *testing.T) {
	h := NewHandler(stubProvider{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("status = %v, want ok", body["status"])
	}
	if body["connections"].(float64) != 3 {
		t.Fatalf("connections = %v, want 3", body["connections"])
	}
	if _, ok := body["uptime_ms"]; !ok {
		t.Fatalf("missing uptime_ms")
	}
}

func TestHandleStats(t *testing.T) {
	h := NewHandler(stubProvider{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["total_messages"].(float64) != 42 {
		t.Fatalf("total_messages = %v, want 42", body["total_messages"])
	}
	if body["server_config"] == nil {
		t.Fatalf("missing server_config")
	}
	if body["channel_stats"] == nil {
		t.Fatalf("missing channel_stats")
	}
}

func TestHandleChannels(t *testing.T) {
	h := NewHandler(stubProvider{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/channels", nil))

	var body struct {
		Channels map[string]ChannelInfo `json:"channels"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	ch, ok := body.Channels["room/1"]
	if !ok {
		t.Fatalf("missing room/1 channel")
	}
	if ch.SubscriberCount != 2 || ch.MessageCount != 5 || ch.RetentionCount != 10 {
		t.Fatalf("unexpected channel info: %+v", ch)
	}
}
