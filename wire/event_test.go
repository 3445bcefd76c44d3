package wire_test

import (
	"testing"

	. "github.com/momentics/sente-lite/wire"
	"github.com/momentics/sente-lite/wire/edn"
)

func TestEncodeDecodeBareEvent(t *testing.T) {
	id, err := NewEventID("chsk/ws-ping")
	if err != nil {
		t.Fatalf("NewEventID: %v", err)
	}
	e := NewBareEvent(id)
	v := Encode(e)
	got, err := Decode(v)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.ID != id || got.HasData || got.HasCB {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
}

func TestEncodeDecodeEventWithData(t *testing.T) {
	id, _ := NewEventID("test/ping")
	e := NewEvent(id, map[string]any{"n": int64(1)})
	v := Encode(e)
	got, err := Decode(v)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	data, ok := got.Data.(map[string]any)
	if !ok || data["n"] != int64(1) {
		t.Fatalf("unexpected data: %#v", got.Data)
	}
}

func TestEncodeDecodeEventWithCB(t *testing.T) {
	id, _ := NewEventID("app/query")
	e := NewEvent(id, map[string]any{"request-id": "r1"}).WithCB("cb-123")
	v := Encode(e)
	got, err := Decode(v)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.CBUUID != "cb-123" || !got.HasCB {
		t.Fatalf("cb-uuid not preserved: %+v", got)
	}
}

func TestDecodeRejectsNonVector(t *testing.T) {
	_, err := Decode("not-a-vector")
	var de *DecodeError
	if err == nil {
		t.Fatal("expected error")
	}
	if !asDecodeError(err, &de) || de.Kind != KindNotAVector {
		t.Fatalf("expected KindNotAVector, got %v", err)
	}
}

func TestDecodeRejectsEmpty(t *testing.T) {
	_, err := Decode([]any{})
	var de *DecodeError
	if !asDecodeError(err, &de) || de.Kind != KindEmpty {
		t.Fatalf("expected KindEmpty, got %v", err)
	}
}

func TestDecodeRejectsMissingNamespace(t *testing.T) {
	_, err := Decode([]any{"no-namespace"})
	var de *DecodeError
	if !asDecodeError(err, &de) || de.Kind != KindInvalidEventID {
		t.Fatalf("expected KindInvalidEventID, got %v", err)
	}
}

func asDecodeError(err error, target **DecodeError) bool {
	de, ok := err.(*DecodeError)
	if ok {
		*target = de
	}
	return ok
}

func TestSerializeDeserializeEDNRoundTrip(t *testing.T) {
	f := edn.Format{}
	id, _ := NewEventID("sente-lite/publish")
	e := NewEvent(id, map[string]any{
		"channel-id":      "room/42",
		"data":            map[string]any{"msg": "hi"},
		"exclude-sender?": true,
	})

	s, err := Serialize(e, f)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	got, err := Deserialize(s, f)
	if err != nil {
		t.Fatalf("Deserialize(%q): %v", s, err)
	}
	if got.ID != id {
		t.Fatalf("event id mismatch: %+v", got.ID)
	}
	data := got.Data.(map[string]any)
	if data["channel-id"] != "room/42" {
		t.Fatalf("channel-id mismatch: %#v", data)
	}
	if data["exclude-sender?"] != true {
		t.Fatalf("exclude-sender? mismatch: %#v", data)
	}
}

func TestHandshakeDataLength2(t *testing.T) {
	h, err := ParseHandshakeData([]any{"uid-1", "csrf-1"})
	if err != nil {
		t.Fatalf("ParseHandshakeData: %v", err)
	}
	if h.UID != "uid-1" || h.CSRF != "csrf-1" || !h.First {
		t.Fatalf("unexpected handshake data: %+v", h)
	}
}

func TestHandshakeDataLength4(t *testing.T) {
	h, err := ParseHandshakeData([]any{"uid-1", nil, map[string]any{"v": int64(1)}, false})
	if err != nil {
		t.Fatalf("ParseHandshakeData: %v", err)
	}
	if h.UID != "uid-1" || h.First {
		t.Fatalf("unexpected handshake data: %+v", h)
	}
}
