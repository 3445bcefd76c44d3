package wsproto

import (
	"net"
	"sync"
	"sync/atomic"
)

// TextHandler receives a complete decoded text-frame payload (a
// serialized sente-lite event) for application-level parsing.
type TextHandler func(payload []byte)

// PingHandler is invoked for an inbound ping frame's payload just
// before Conn auto-replies with the matching pong.
type PingHandler func(payload []byte)

// PongHandler is invoked for an inbound pong frame's payload. The
// server's heartbeat does not use it: last-pong is recorded from
// chsk/ws-pong events.
type PongHandler func(payload []byte)

// CloseHandler is invoked once, when the connection is being torn
// down — either the peer sent a close frame or a read/write failed.
type CloseHandler func(reason string)

// Conn wraps a raw net.Conn with the RFC6455 framing layer: a recv
// loop that demultiplexes control frames (ping/pong/close) from text
// frames, and a send loop serializing writes from one outbox channel
// so concurrent Send callers never interleave frame bytes on the wire
// (adapted from the teacher's protocol.WSConnection: inbox/outbox
// channels, a done-channel-guarded Close, and handleControl's inline
// dispatch).
type Conn struct {
	raw    net.Conn
	mask   bool // true for client-side (outbound frames must be masked)
	outbox chan outboxItem
	done   chan struct{}
	closed int32
	once   sync.Once

	onText  TextHandler
	onPing  PingHandler
	onPong  PongHandler
	onClose CloseHandler

	bytesReceived  int64
	bytesSent      int64
	framesReceived int64
	framesSent     int64
}

type outboxItem struct {
	opcode  byte
	payload []byte
	errCh   chan error
}

// Config bundles the callbacks and masking direction for a new Conn.
type Config struct {
	Mask    bool
	OnText  TextHandler
	OnPing  PingHandler
	OnPong  PongHandler
	OnClose CloseHandler
}

// NewConn wraps raw in a Conn. Call Start to launch its loops.
func NewConn(raw net.Conn, cfg Config) *Conn {
	return &Conn{
		raw:     raw,
		mask:    cfg.Mask,
		outbox:  make(chan outboxItem, 64),
		done:    make(chan struct{}),
		onText:  cfg.OnText,
		onPing:  cfg.OnPing,
		onPong:  cfg.OnPong,
		onClose: cfg.OnClose,
	}
}

// Start launches the recv and send loops.
func (c *Conn) Start() {
	go c.recvLoop()
	go c.sendLoop()
}

// SendText enqueues a text frame (the event-vector wire payload) for
// transmission, blocking until the send loop has processed it.
func (c *Conn) SendText(payload []byte) error {
	return c.send(OpcodeText, payload)
}

// SendPing enqueues a ping control frame.
func (c *Conn) SendPing(payload []byte) error {
	return c.send(OpcodePing, payload)
}

// SendPong enqueues a pong control frame.
func (c *Conn) SendPong(payload []byte) error {
	return c.send(OpcodePong, payload)
}

func (c *Conn) send(opcode byte, payload []byte) error {
	if atomic.LoadInt32(&c.closed) == 1 {
		return ErrConnClosed
	}
	item := outboxItem{opcode: opcode, payload: payload, errCh: make(chan error, 1)}
	select {
	case c.outbox <- item:
	case <-c.done:
		return ErrConnClosed
	}
	select {
	case err := <-item.errCh:
		return err
	case <-c.done:
		return ErrConnClosed
	}
}

// Close idempotently tears the connection down. onClose (if set) is
// invoked at most once, from whichever path (recv error, explicit
// Close, or peer close frame) observes the transition first.
func (c *Conn) Close(reason string) error {
	var err error
	c.once.Do(func() {
		atomic.StoreInt32(&c.closed, 1)
		close(c.done)
		err = c.raw.Close()
		if c.onClose != nil {
			c.onClose(reason)
		}
	})
	return err
}

// Done returns a channel closed once the connection has torn down.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Stats returns byte/frame counters for introspection.
func (c *Conn) Stats() (bytesReceived, bytesSent, framesReceived, framesSent int64) {
	return atomic.LoadInt64(&c.bytesReceived),
		atomic.LoadInt64(&c.bytesSent),
		atomic.LoadInt64(&c.framesReceived),
		atomic.LoadInt64(&c.framesSent)
}

func (c *Conn) recvLoop() {
	defer c.Close("recv-loop-exit")
	for {
		frame, err := ReadFrame(c.raw)
		if err != nil {
			return
		}
		atomic.AddInt64(&c.framesReceived, 1)
		atomic.AddInt64(&c.bytesReceived, int64(len(frame.Payload)))

		switch frame.Opcode {
		case OpcodePing:
			if c.onPing != nil {
				c.onPing(frame.Payload)
			}
			_ = c.SendPong(frame.Payload)
		case OpcodePong:
			if c.onPong != nil {
				c.onPong(frame.Payload)
			}
		case OpcodeClose:
			_ = c.send(OpcodeClose, frame.Payload)
			return
		case OpcodeText, OpcodeBinary:
			if c.onText != nil {
				c.onText(frame.Payload)
			}
		default:
			// unknown/reserved opcode: ignore per RFC6455 §5.2's
			// forward-compatibility guidance for unassigned codes.
		}
	}
}

func (c *Conn) sendLoop() {
	for {
		select {
		case <-c.done:
			return
		case item := <-c.outbox:
			err := WriteFrame(c.raw, item.opcode, item.payload, c.mask)
			if err == nil {
				atomic.AddInt64(&c.framesSent, 1)
				atomic.AddInt64(&c.bytesSent, int64(len(item.payload)))
			}
			item.errCh <- err
			if err != nil {
				c.Close("send-error")
				return
			}
			if item.opcode == OpcodeClose {
				c.Close("close-frame-sent")
				return
			}
		}
	}
}
