package wire

// System event IDs (spec §4.1). The "chsk" namespace is reserved for
// protocol-level events; peers must not repurpose it.
var (
	EventChskHandshake = MustEventID("chsk/handshake")
	EventChskWSPing    = MustEventID("chsk/ws-ping")
	EventChskWSPong    = MustEventID("chsk/ws-pong")
	EventChskRecv      = MustEventID("chsk/recv")
	EventChskBadEvent  = MustEventID("chsk/bad-event")
	EventChskClose     = MustEventID("chsk/close")
)

// Extension event IDs for the built-in pub/sub layer (spec §4.1). The
// "sente-lite" namespace is reserved for this library's own
// extensions; applications are free to define their own namespaces
// for everything else.
var (
	EventSubscribe   = MustEventID("sente-lite/subscribe")
	EventUnsubscribe = MustEventID("sente-lite/unsubscribe")
	EventSubscribed  = MustEventID("sente-lite/subscribed")
	EventPublish     = MustEventID("sente-lite/publish")
	EventChannelMsg  = MustEventID("sente-lite/channel-msg")
	EventEcho        = MustEventID("sente-lite/echo")
)

// IsSystemEvent reports whether id belongs to the reserved "chsk"
// namespace.
func IsSystemEvent(id EventID) bool {
	return id.Namespace == "chsk"
}

// HandshakeData is the normalized form of the chsk/handshake payload
// (spec §4.1): [uid, csrf-or-nil, handshake-data, first-handshake?].
// A length-2 payload ([uid, csrf]) is accepted per spec §4.1, with
// First assumed true and Data left nil.
type HandshakeData struct {
	UID   string
	CSRF  string
	Data  any
	First bool
}

// ParseHandshakeData normalizes a decoded chsk/handshake event's Data
// field into a HandshakeData value.
func ParseHandshakeData(data any) (HandshakeData, error) {
	vec, ok := data.([]any)
	if !ok {
		return HandshakeData{}, newDecodeError(KindInvalidFormat, "handshake data is not a vector")
	}
	switch len(vec) {
	case 2:
		uid, _ := vec[0].(string)
		csrf, _ := vec[1].(string)
		return HandshakeData{UID: uid, CSRF: csrf, First: true}, nil
	case 4:
		uid, _ := vec[0].(string)
		csrf, _ := vec[1].(string)
		first, _ := vec[3].(bool)
		return HandshakeData{UID: uid, CSRF: csrf, Data: vec[2], First: first}, nil
	default:
		return HandshakeData{}, newDecodeError(KindInvalidFormat, "handshake data has unexpected length")
	}
}

// EncodeHandshakeData renders a HandshakeData back to its wire shape,
// always using the full 4-element form.
func EncodeHandshakeData(h HandshakeData) []any {
	var csrf any
	if h.CSRF != "" {
		csrf = h.CSRF
	}
	return []any{h.UID, csrf, h.Data, h.First}
}
