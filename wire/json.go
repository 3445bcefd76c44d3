package wire

import "encoding/json"

// JSONFormat implements Format using the standard library's JSON
// encoder. JSON is an optional, negotiated alternative to EDN (spec
// §1): unlike EDN it has no symbol, keyword, or set literal, so
// Symbol values serialize as plain strings and Set values serialize
// as arrays. Decode() still accepts a plain string in the event-id
// slot (see symbolFromValue), so an event round-trips through JSON
// without loss of its event-id/data/cb-uuid structure even though
// the distinction between "symbol" and "string" data values is not
// preserved.
type JSONFormat struct{}

// Name returns "json".
func (JSONFormat) Name() string { return "json" }

// EncodeValue renders v as a JSON string.
func (JSONFormat) EncodeValue(v any) (string, error) {
	b, err := json.Marshal(toJSONable(v))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeValue parses s as a single JSON value.
func (JSONFormat) DecodeValue(s string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, &ParseError{Format: "json", Detail: err.Error()}
	}
	return v, nil
}

// toJSONable recursively lowers the EDN value model to types
// encoding/json already knows how to marshal.
func toJSONable(v any) any {
	switch t := v.(type) {
	case Symbol:
		return t.String()
	case Set:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = toJSONable(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = toJSONable(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for _, k := range sortedKeys(t) {
			out[k] = toJSONable(t[k])
		}
		return out
	default:
		return v
	}
}
