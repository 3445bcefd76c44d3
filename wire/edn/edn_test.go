package edn

import (
	"testing"

	"github.com/momentics/sente-lite/wire"
)

func TestRoundTripScalars(t *testing.T) {
	f := Format{}
	cases := []any{
		nil, true, false, int64(42), float64(3.5), "hello \"world\"",
	}
	for _, v := range cases {
		s, err := f.EncodeValue(v)
		if err != nil {
			t.Fatalf("EncodeValue(%#v): %v", v, err)
		}
		got, err := f.DecodeValue(s)
		if err != nil {
			t.Fatalf("DecodeValue(%q): %v", s, err)
		}
		if got != v {
			t.Fatalf("round-trip mismatch: want %#v got %#v (via %q)", v, got, s)
		}
	}
}

func TestRoundTripVectorAndMap(t *testing.T) {
	f := Format{}
	v := []any{
		wire.Symbol{Namespace: "chsk", Name: "handshake"},
		map[string]any{"a": int64(1), "b": "two"},
	}
	s, err := f.EncodeValue(v)
	if err != nil {
		t.Fatalf("EncodeValue: %v", err)
	}
	got, err := f.DecodeValue(s)
	if err != nil {
		t.Fatalf("DecodeValue(%q): %v", s, err)
	}
	seq, ok := got.([]any)
	if !ok || len(seq) != 2 {
		t.Fatalf("expected 2-element vector, got %#v", got)
	}
	sym, ok := seq[0].(wire.Symbol)
	if !ok || sym.String() != "chsk/handshake" {
		t.Fatalf("expected symbol chsk/handshake, got %#v", seq[0])
	}
	m, ok := seq[1].(map[string]any)
	if !ok || m["a"] != int64(1) || m["b"] != "two" {
		t.Fatalf("map mismatch: %#v", seq[1])
	}
}

func TestRoundTripSet(t *testing.T) {
	f := Format{}
	v := wire.Set{int64(1), int64(2), int64(3)}
	s, err := f.EncodeValue(v)
	if err != nil {
		t.Fatalf("EncodeValue: %v", err)
	}
	got, err := f.DecodeValue(s)
	if err != nil {
		t.Fatalf("DecodeValue(%q): %v", s, err)
	}
	set, ok := got.(wire.Set)
	if !ok || len(set) != 3 {
		t.Fatalf("expected 3-element set, got %#v", got)
	}
}

func TestDecodeNamespacedKeyword(t *testing.T) {
	f := Format{}
	got, err := f.DecodeValue(":sente-lite/subscribe")
	if err != nil {
		t.Fatalf("DecodeValue: %v", err)
	}
	sym, ok := got.(wire.Symbol)
	if !ok || !sym.Keyword || sym.Namespace != "sente-lite" || sym.Name != "subscribe" {
		t.Fatalf("unexpected symbol: %#v", got)
	}
}

func TestDecodeTrailingInputIsError(t *testing.T) {
	f := Format{}
	if _, err := f.DecodeValue("1 2"); err == nil {
		t.Fatal("expected trailing-input error")
	}
}
