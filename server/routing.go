package server

import (
	"time"

	"github.com/momentics/sente-lite/wire"
)

// route dispatches one inbound event from conn through the server's
// routing table (spec §4.5's routing behaviors). Grounded on the
// teacher's middleware-chain dispatch in server/server.go's Serve,
// generalized from a single raw-frame handler to a per-event-id table.
func (s *Server) route(conn *connRecord, ev wire.Event) {
	conn.touchActivity()
	s.totalMsgs.Add(1)

	switch ev.ID {
	case wire.EventChskWSPing:
		_ = conn.send(wire.NewBareEvent(wire.EventChskWSPong), s.format)
		return

	case wire.EventChskWSPong:
		conn.touchPong()
		return

	case wire.EventChskHandshake:
		// Clients never send handshake; ignore per spec.
		return

	case wire.EventSubscribe:
		s.handleSubscribe(conn, ev)
		return

	case wire.EventUnsubscribe:
		s.handleUnsubscribe(conn, ev)
		return

	case wire.EventPublish:
		s.handlePublish(conn, ev)
		return
	}

	// Any other chsk/* event (chsk/close, chsk/recv, chsk/bad-event, or
	// a future addition) is reserved-namespace and unhandled here; spec
	// §9's Open Question decision is to ignore it rather than echo it.
	if wire.IsSystemEvent(ev.ID) {
		return
	}

	s.handleDefaultEcho(conn, ev)
}

func dataMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func (s *Server) handleSubscribe(conn *connRecord, ev wire.Event) {
	m := dataMap(ev.Data)
	channelID, _ := m["channel-id"].(string)
	ack := map[string]any{"channel-id": channelID}

	if channelID == "" {
		ack["success"] = false
		ack["error"] = "missing channel-id"
		s.sendAck(conn, ack)
		return
	}

	ch, ok := s.channels.get(channelID)
	if !ok {
		if !s.cfg.Channels.AutoCreate {
			ack["success"] = false
			ack["error"] = "channel not found"
			s.sendAck(conn, ack)
			return
		}
		ch = s.channels.getOrCreate(channelID, s.cfg.Channels.MaxSubscribers, s.cfg.Channels.RetentionCount)
	}

	replay, ok := ch.subscribe(conn)
	if !ok {
		ack["success"] = false
		ack["error"] = "channel full"
		s.sendAck(conn, ack)
		return
	}
	conn.addSubscription(channelID)
	ack["success"] = true
	s.sendAck(conn, ack)

	for _, r := range replay {
		_ = conn.send(wire.NewEvent(wire.EventChannelMsg, map[string]any{
			"channel-id": channelID,
			"data":       r.data,
			"from":       r.from,
		}), s.format)
	}
}

func (s *Server) handleUnsubscribe(conn *connRecord, ev wire.Event) {
	m := dataMap(ev.Data)
	channelID, _ := m["channel-id"].(string)
	ack := map[string]any{"channel-id": channelID}

	ch, ok := s.channels.get(channelID)
	if !ok {
		ack["success"] = false
		ack["error"] = "channel not found"
		s.sendAck(conn, ack)
		return
	}
	wasSubscribed := ch.unsubscribe(conn.id)
	conn.removeSubscription(channelID)
	if !wasSubscribed {
		ack["success"] = false
		ack["error"] = "not subscribed"
		s.sendAck(conn, ack)
		return
	}
	ack["success"] = true
	s.sendAck(conn, ack)
}

func (s *Server) handlePublish(conn *connRecord, ev wire.Event) {
	m := dataMap(ev.Data)
	channelID, _ := m["channel-id"].(string)
	excludeSender, _ := m["exclude-sender"].(bool)
	payload := m["data"]

	ch, ok := s.channels.get(channelID)
	if !ok {
		if !s.cfg.Channels.AutoCreate {
			return // silent no-op: spec's missing-channel-without-auto-create behavior
		}
		ch = s.channels.getOrCreate(channelID, s.cfg.Channels.MaxSubscribers, s.cfg.Channels.RetentionCount)
	}

	targets := ch.publish(payload, conn.id, excludeSender)
	msg := wire.NewEvent(wire.EventChannelMsg, map[string]any{
		"channel-id": channelID,
		"data":       payload,
		"from":       conn.id,
	})
	for _, t := range targets {
		_ = t.send(msg, s.format)
	}
}

func (s *Server) handleDefaultEcho(conn *connRecord, ev wire.Event) {
	echo := wire.NewEvent(wire.EventEcho, map[string]any{
		"original-event-id": ev.ID.String(),
		"original-data":     ev.Data,
		"conn-id":           conn.id,
		"timestamp":         time.Now().UnixMilli(),
	})
	_ = conn.send(echo, s.format)
}

func (s *Server) sendAck(conn *connRecord, ack map[string]any) {
	_ = conn.send(wire.NewEvent(wire.EventSubscribed, ack), s.format)
}
