// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

package hubproto

import (
	"errors"
	"strings"
	"testing"
)

func TestHandshakeRequest(t *testing.T) {
	t.Parallel()

	got := string(HandshakeRequest())
	want := `{"protocol":"json","version":1}` + "\x1e"
	if got != want {
		t.Errorf("HandshakeRequest() = %q, want %q", got, want)
	}
}

func TestParseHandshakeResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		wantRest string
		wantErr  error
	}{
		{"empty object", "{}\x1e", "", nil},
		{"trailing messages", "{}\x1e{\"type\":6}\x1e", "{\"type\":6}\x1e", nil},
		{"rejected", "{\"error\":\"Requested protocol 'json' is not available.\"}\x1e", "", ErrHandshakeRejected},
		{"unterminated", "{}", "", ErrMalformedRecord},
		{"not json", "hello\x1e", "", ErrMalformedRecord},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rest, err := ParseHandshakeResponse([]byte(tt.input))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(rest) != tt.wantRest {
				t.Errorf("rest = %q, want %q", rest, tt.wantRest)
			}
		})
	}
}

func TestDecode_MultipleRecordsInOneFrame(t *testing.T) {
	t.Parallel()

	frame := `{"type":1,"target":"StateChanged","arguments":[{"id":"roi-1","state":"active"}]}` + "\x1e" +
		`{"type":6}` + "\x1e" +
		`{"type":2,"invocationId":"1","item":{"vehicleGid":"v1"}}` + "\x1e"

	msgs, err := Decode([]byte(frame))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("len(msgs) = %d, want 3", len(msgs))
	}
	if msgs[0].Type != TypeInvocation || msgs[0].Target != "StateChanged" {
		t.Errorf("msgs[0] = %+v", msgs[0])
	}
	payload, ok := msgs[0].Payload()
	if !ok || !strings.Contains(string(payload), `"roi-1"`) {
		t.Errorf("invocation payload = %s, ok=%v", payload, ok)
	}
	if msgs[1].Type != TypePing {
		t.Errorf("msgs[1].Type = %v, want ping", msgs[1].Type)
	}
	if _, ok := msgs[1].Payload(); ok {
		t.Error("ping should carry no payload")
	}
	item, ok := msgs[2].Payload()
	if !ok || string(item) != `{"vehicleGid":"v1"}` {
		t.Errorf("stream item payload = %s, ok=%v", item, ok)
	}
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()

	msgs, err := Decode([]byte("{\"type\":6}\x1e{broken\x1e"))
	if !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("error = %v, want ErrMalformedRecord", err)
	}
	if len(msgs) != 1 {
		t.Errorf("expected records before the malformed one to be returned, got %d", len(msgs))
	}

	if _, err := Decode([]byte(`{"type":6}`)); !errors.Is(err, ErrMalformedRecord) {
		t.Errorf("unterminated error = %v, want ErrMalformedRecord", err)
	}
}

func TestEncode(t *testing.T) {
	t.Parallel()

	stream, err := NewStreamInvocation("1", "PositionRealtimeData")
	if err != nil {
		t.Fatalf("NewStreamInvocation() error = %v", err)
	}
	b, err := Encode(stream)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	want := `{"type":4,"invocationId":"1","target":"PositionRealtimeData","arguments":[]}` + "\x1e"
	if string(b) != want {
		t.Errorf("Encode(stream) = %q, want %q", b, want)
	}

	b, err = Encode(PingMessage())
	if err != nil {
		t.Fatalf("Encode(ping) error = %v", err)
	}
	if string(b) != "{\"type\":6}\x1e" {
		t.Errorf("Encode(ping) = %q", b)
	}

	b, err = Encode(NewCancelInvocation("7"))
	if err != nil {
		t.Fatalf("Encode(cancel) error = %v", err)
	}
	if string(b) != "{\"type\":5,\"invocationId\":\"7\"}\x1e" {
		t.Errorf("Encode(cancel) = %q", b)
	}
}

func TestMessageType_String(t *testing.T) {
	t.Parallel()

	if TypeClose.String() != "close" {
		t.Errorf("TypeClose.String() = %q", TypeClose.String())
	}
	if MessageType(42).String() != "unknown(42)" {
		t.Errorf("MessageType(42).String() = %q", MessageType(42).String())
	}
}
