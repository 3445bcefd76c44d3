package client

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/momentics/sente-lite/queue"
	"github.com/momentics/sente-lite/registry"
	"github.com/momentics/sente-lite/wire"
)

// SendOutcome reports what happened to a Send call, replacing spec
// §4.4's dynamically-typed `Ok | Rejected | true | false` return with
// one Go struct: Queued tells you which path was taken, Status is only
// meaningful when Queued is true, and Delivered reports the direct-send
// path's outcome when Queued is false.
type SendOutcome struct {
	Queued    bool
	Status    queue.EnqueueStatus
	Delivered bool
}

// Send serializes and transmits an application event (spec §4.4's
// send!; SendWithCB is send-with-cb!). When a Queue is configured the
// payload is enqueued (non-blocking; see SendBlocking for the waiting
// variant); otherwise it is written straight to the socket.
func (c *Client) Send(eventID wire.EventID, data any) (SendOutcome, error) {
	return c.send(wire.NewEvent(eventID, data))
}

// SendBare sends an event with no data payload (the [event-id] wire shape).
func (c *Client) SendBare(eventID wire.EventID) (SendOutcome, error) {
	return c.send(wire.NewBareEvent(eventID))
}

// SendWithCB sends an event carrying a callback correlation token and
// registers cb under that token in the client's cb-uuid reply table
// (spec §4.4's send-with-cb!; the handler registry is not involved).
// cb is invoked with the [data, cb-uuid] reply's data, or with a Reply
// whose Err has Code "timeout" if no reply arrives within timeoutMs
// (timeoutMs <= 0 sets no timer).
func (c *Client) SendWithCB(eventID wire.EventID, data any, timeoutMs int, cb func(Reply)) (SendOutcome, error) {
	cbUUID := newCBUUID()
	c.rpc.register(cbUUID, timeoutMs, cb)
	return c.send(wire.NewEvent(eventID, data).WithCB(cbUUID))
}

// Reply is what an RPC callback observes: either a decoded reply
// payload, or a timeout/close notification.
type Reply struct {
	Data any
	Err  *ReplyError
}

// ReplyError mirrors registry.ErrPayload for RPC callers that don't
// want to import the registry package directly.
type ReplyError struct {
	Code   string
	Reason string
}

func (c *Client) send(ev wire.Event) (SendOutcome, error) {
	payload, err := wire.Serialize(ev, c.format)
	if err != nil {
		return SendOutcome{}, err
	}
	msg := queue.Message{Payload: payload, Meta: ev}

	if c.q != nil {
		status := c.q.Enqueue(msg)
		return SendOutcome{Queued: true, Status: status}, nil
	}

	err = c.rawSend(context.Background(), msg)
	return SendOutcome{Delivered: err == nil}, err
}

// SendBlocking enqueues through the configured Queue, waiting up to
// timeout for room (spec §4.2's EnqueueBlocking). Only meaningful when
// a Queue is configured; on a direct-send Client it behaves like Send.
func (c *Client) SendBlocking(ctx context.Context, eventID wire.EventID, data any, timeout time.Duration) (SendOutcome, error) {
	ev := wire.NewEvent(eventID, data)
	payload, err := wire.Serialize(ev, c.format)
	if err != nil {
		return SendOutcome{}, err
	}
	msg := queue.Message{Payload: payload, Meta: ev}

	if c.q == nil {
		err := c.rawSend(ctx, msg)
		return SendOutcome{Delivered: err == nil}, err
	}
	status, err := c.q.EnqueueBlocking(ctx, msg, timeout)
	return SendOutcome{Queued: true, Status: status}, err
}

// SendRPC implements spec.md's primary RPC pattern (line 244: "first-
// class RPC is implemented by registering a once? handler whose
// predicate matches a request-id embedded in application data"),
// distinct from the advisory cb-uuid path SendWithCB offers. data's
// "request-id" key is set to a freshly minted id; cb fires once with
// the matching reply or a timeout/closed Message.
func (c *Client) SendRPC(eventID wire.EventID, data map[string]any, timeoutMs int, cb registry.Callback) (string, SendOutcome, error) {
	reqID := uuid.NewString()
	out := make(map[string]any, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	out["request-id"] = reqID

	c.registry.Take(registry.RPCWaiter(reqID, timeoutMs, cb))
	outcome, err := c.Send(eventID, out)
	return reqID, outcome, err
}

// Subscribe sends sente-lite/subscribe for channelID (spec §4.1's
// pub/sub extension events).
func (c *Client) Subscribe(channelID string) (SendOutcome, error) {
	return c.Send(wire.EventSubscribe, map[string]any{"channel-id": channelID})
}

// Unsubscribe sends sente-lite/unsubscribe for channelID.
func (c *Client) Unsubscribe(channelID string) (SendOutcome, error) {
	return c.Send(wire.EventUnsubscribe, map[string]any{"channel-id": channelID})
}

// Publish sends sente-lite/publish for channelID. When excludeSender
// is true, the server omits the publishing connection from fan-out.
func (c *Client) Publish(channelID string, data any, excludeSender bool) (SendOutcome, error) {
	return c.Send(wire.EventPublish, map[string]any{
		"channel-id":     channelID,
		"data":           data,
		"exclude-sender": excludeSender,
	})
}
