package wire

import (
	"fmt"
	"sort"
	"strings"
)

// Symbol represents an EDN symbol or keyword. Event IDs are always
// non-keyword namespaced symbols (e.g. chsk/handshake); standalone
// keyword tokens like :sente-lite/subscribe decode to Keyword==true.
// Map keys are not Symbols: the EDN reader turns them into plain
// strings.
type Symbol struct {
	Namespace string
	Name      string
	Keyword   bool
}

// String renders the symbol in EDN surface syntax.
func (s Symbol) String() string {
	var b strings.Builder
	if s.Keyword {
		b.WriteByte(':')
	}
	if s.Namespace != "" {
		b.WriteString(s.Namespace)
		b.WriteByte('/')
	}
	b.WriteString(s.Name)
	return b.String()
}

// Set models an EDN set #{...}. Distinct from a vector so codecs can
// round-trip the literal syntax; equality/uniqueness is not enforced.
type Set []any

// ParseSymbol splits "ns/name" (or "name") into a Symbol. namespace may
// be empty only when keyword is also false is not permitted for event
// IDs by the caller (see NewEventID); ParseSymbol itself is permissive.
func ParseSymbol(s string, keyword bool) (Symbol, error) {
	if s == "" {
		return Symbol{}, fmt.Errorf("wire: empty symbol")
	}
	if idx := strings.IndexByte(s, '/'); idx >= 0 && idx < len(s)-1 {
		return Symbol{Namespace: s[:idx], Name: s[idx+1:], Keyword: keyword}, nil
	}
	return Symbol{Name: s, Keyword: keyword}, nil
}

// EventID is a namespaced symbol identifying an event. The invariant
// from spec §3 ("event-id must carry a non-empty namespace") is
// enforced by NewEventID and by Decode; EventID itself is just a
// non-keyword Symbol alias so it composes with the general EDN value
// model.
type EventID = Symbol

// NewEventID builds an EventID from "namespace/name", validating the
// namespace is non-empty. The single token "*" (no leading colon) is
// accepted as the catch-all marker used by the handler registry, not
// as an event on the wire.
func NewEventID(s string) (EventID, error) {
	if s == "*" {
		return EventID{Name: "*"}, nil
	}
	idx := strings.IndexByte(s, '/')
	if idx <= 0 || idx == len(s)-1 {
		return EventID{}, newDecodeError(KindInvalidEventID, s)
	}
	return EventID{Namespace: s[:idx], Name: s[idx+1:]}, nil
}

// MustEventID panics on an invalid id; used only for compile-time-known
// constants in systemevents.go.
func MustEventID(s string) EventID {
	id, err := NewEventID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// Equal reports structural equality between two symbols.
func (s Symbol) Equal(o Symbol) bool {
	return s.Namespace == o.Namespace && s.Name == o.Name && s.Keyword == o.Keyword
}

// sortedKeys returns m's keys in sorted order, for deterministic
// serialization of EDN maps (Go map iteration order is randomized).
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
