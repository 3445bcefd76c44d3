package wire

// Event is the decoded form of a wire event vector (spec §3/§4.1):
// either [event-id], [event-id, data], or [[event-id, data], cb-uuid].
type Event struct {
	ID      EventID
	Data    any
	HasData bool
	CBUUID  string
	HasCB   bool
}

// NewEvent builds an Event carrying data (the [event-id, data] shape).
func NewEvent(id EventID, data any) Event {
	return Event{ID: id, Data: data, HasData: true}
}

// NewBareEvent builds an Event with no data (the [event-id] shape).
func NewBareEvent(id EventID) Event {
	return Event{ID: id}
}

// WithCB returns a copy of e carrying a callback correlation token
// (the [[event-id, data], cb-uuid] shape). The event must already
// carry data; per spec §3 the cb-uuid form always wraps an
// [event-id, data] pair.
func (e Event) WithCB(cbUUID string) Event {
	e.HasCB = true
	e.CBUUID = cbUUID
	e.HasData = true
	return e
}

// IsCatchAll reports whether id is the ":*" catch-all handler marker.
func IsCatchAll(id EventID) bool {
	return id.Namespace == "" && id.Name == "*"
}

// Encode renders e as the raw EDN vector value described in spec §4.1.
// This is the `encode`/`encode_with_cb` operation.
func Encode(e Event) any {
	if e.HasCB {
		inner := []any{e.ID, e.Data}
		return []any{inner, e.CBUUID}
	}
	if e.HasData {
		return []any{e.ID, e.Data}
	}
	return []any{e.ID}
}

// Decode applies the decoding rules of spec §4.1, in order, to a raw
// value produced by an EDN/JSON reader:
//
//  1. v must be a vector ([]any).
//  2. A non-empty vector.
//  3. If length 2, first element is itself a vector, and second is a
//     string, it is the event-with-callback shape.
//  4. Otherwise the first element must decode to a namespaced symbol
//     (EventID); malformed input is reported, not silently dropped,
//     so the caller can wrap it as chsk/bad-event per spec §7.
func Decode(v any) (Event, error) {
	vec, ok := v.([]any)
	if !ok {
		return Event{}, newDecodeError(KindNotAVector, "")
	}
	if len(vec) == 0 {
		return Event{}, newDecodeError(KindEmpty, "")
	}

	if len(vec) == 2 {
		if inner, ok := vec[0].([]any); ok {
			if cb, ok := vec[1].(string); ok {
				ev, err := decodeIDDataPair(inner)
				if err != nil {
					return Event{}, err
				}
				return ev.WithCB(cb), nil
			}
		}
	}

	return decodeIDDataPair(vec)
}

// decodeIDDataPair handles the [event-id] and [event-id, data] shapes.
func decodeIDDataPair(vec []any) (Event, error) {
	if len(vec) == 0 {
		return Event{}, newDecodeError(KindEmpty, "")
	}
	id, err := symbolFromValue(vec[0])
	if err != nil {
		return Event{}, newDecodeError(KindInvalidEventID, "")
	}
	switch len(vec) {
	case 1:
		return NewBareEvent(id), nil
	case 2:
		return NewEvent(id, vec[1]), nil
	default:
		return Event{}, newDecodeError(KindInvalidFormat, "vector has more than 2 elements")
	}
}

// symbolFromValue accepts either a decoded Symbol or a plain string
// (callers that build vectors programmatically, e.g. in tests, often
// use plain Go strings for the event-id) and validates the namespace
// invariant from spec §3.
func symbolFromValue(v any) (Symbol, error) {
	switch t := v.(type) {
	case Symbol:
		if t.Namespace == "" {
			return Symbol{}, newDecodeError(KindInvalidEventID, "missing namespace")
		}
		return t, nil
	case string:
		return NewEventID(t)
	default:
		return Symbol{}, newDecodeError(KindInvalidEventID, "not a symbol")
	}
}

// WrapBadEvent builds the chsk/bad-event event carrying the original
// raw payload for application visibility, per spec §4.1/§7.
func WrapBadEvent(raw any, cause error) Event {
	data := map[string]any{
		"raw": raw,
	}
	if cause != nil {
		data["reason"] = cause.Error()
	}
	return NewEvent(EventChskBadEvent, data)
}
