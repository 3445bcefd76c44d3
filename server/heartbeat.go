package server

import (
	"time"

	"github.com/momentics/sente-lite/wire"
)

// heartbeatLoop runs as a single background task (spec §4.5/§5: "a
// single background task periodically sweeps connections"), grounded
// on the teacher's scheduler.go ticker-driven loop, generalized from
// buffer-pool GC to connection-liveness eviction.
func (s *Server) heartbeatLoop() {
	defer s.wg.Done()

	interval := time.Duration(s.cfg.Heartbeat.IntervalMs) * time.Millisecond
	timeout := time.Duration(s.cfg.Heartbeat.TimeoutMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			s.sweepOnce(timeout)
		}
	}
}

func (s *Server) sweepOnce(timeout time.Duration) {
	for _, conn := range s.snapshotConns() {
		if conn.pongAge() > timeout {
			s.closeConn(conn, "heartbeat timeout")
			continue
		}
		_ = conn.send(wire.NewBareEvent(wire.EventChskWSPing), s.format)
	}
}
