// Package edn implements the subset of Clojure's EDN (extensible data
// notation) that the sente-lite wire format requires: nil, booleans,
// integers, floats, strings, symbols/keywords (including namespaced),
// vectors, sets, and keyword-keyed maps.
//
// No EDN library exists in the teacher corpus or, realistically, in
// the wider Go ecosystem the way encoding/json does for JSON, so this
// is a small hand-written recursive-descent reader and writer, built
// in the same spirit as the teacher's own hand-rolled wire codec
// (protocol/frame_codec.go): explicit cursor, explicit error values,
// no reflection.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package edn

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/momentics/sente-lite/wire"
)

// Format implements wire.Format for EDN, the mandatory wire encoding.
type Format struct{}

// Name returns "edn".
func (Format) Name() string { return "edn" }

// EncodeValue renders v as an EDN string.
func (Format) EncodeValue(v any) (string, error) {
	var b strings.Builder
	if err := writeValue(&b, v); err != nil {
		return "", err
	}
	return b.String(), nil
}

// DecodeValue parses s as a single EDN value.
func (Format) DecodeValue(s string) (any, error) {
	p := &parser{src: s}
	p.skipWS()
	v, err := p.readValue()
	if err != nil {
		return nil, &wire.ParseError{Format: "edn", Detail: err.Error()}
	}
	p.skipWS()
	if p.pos != len(p.src) {
		return nil, &wire.ParseError{Format: "edn", Detail: "trailing input after value"}
	}
	return v, nil
}

// ---- writer ----

func writeValue(b *strings.Builder, v any) error {
	switch t := v.(type) {
	case nil:
		b.WriteString("nil")
	case bool:
		if t {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case int:
		b.WriteString(strconv.Itoa(t))
	case int64:
		b.WriteString(strconv.FormatInt(t, 10))
	case float64:
		b.WriteString(strconv.FormatFloat(t, 'g', -1, 64))
		if !strings.ContainsAny(b.String()[lastTokenStart(b):], ".eE") {
			b.WriteString(".0")
		}
	case string:
		writeString(b, t)
	case wire.Symbol:
		b.WriteString(t.String())
	case []any:
		b.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				b.WriteByte(' ')
			}
			if err := writeValue(b, e); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	case wire.Set:
		b.WriteString("#{")
		for i, e := range t {
			if i > 0 {
				b.WriteByte(' ')
			}
			if err := writeValue(b, e); err != nil {
				return err
			}
		}
		b.WriteByte('}')
	case map[string]any:
		b.WriteByte('{')
		first := true
		for _, k := range sortedKeys(t) {
			if !first {
				b.WriteByte(' ')
			}
			first = false
			b.WriteByte(':')
			b.WriteString(k)
			b.WriteByte(' ')
			if err := writeValue(b, t[k]); err != nil {
				return err
			}
		}
		b.WriteByte('}')
	default:
		return fmt.Errorf("edn: cannot encode value of type %T", v)
	}
	return nil
}

func lastTokenStart(b *strings.Builder) int {
	// writeValue appends the numeric token as the final bytes written
	// so far; this helper exists only to check whether that token
	// already contains a decimal point or exponent.
	s := b.String()
	i := len(s)
	for i > 0 {
		c := s[i-1]
		if (c >= '0' && c <= '9') || c == '-' || c == '+' || c == '.' || c == 'e' || c == 'E' {
			i--
			continue
		}
		break
	}
	return i
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

func writeString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
}
