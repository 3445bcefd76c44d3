package wire

// Format encodes and decodes the raw EDN value model (nil, bool,
// int64, float64, string, Symbol, []any, Set, map[string]any) to and
// from a wire string. EDN is the mandatory format (spec §1); other
// formats are optional negotiated extensions.
type Format interface {
	Name() string
	EncodeValue(v any) (string, error)
	DecodeValue(s string) (any, error)
}

// Serialize encodes an Event through f, implementing the
// `serialize(event, format)` operation of spec §4.1.
func Serialize(e Event, f Format) (string, error) {
	return f.EncodeValue(Encode(e))
}

// Deserialize decodes a wire string through f and then applies Decode,
// implementing the `deserialize(string, format)` operation of spec
// §4.1. Parse errors from f are returned as-is; structural decode
// errors are *wire.DecodeError.
func Deserialize(s string, f Format) (Event, error) {
	v, err := f.DecodeValue(s)
	if err != nil {
		return Event{}, err
	}
	return Decode(v)
}
