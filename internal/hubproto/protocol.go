// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

// Package hubproto implements the JSON hub protocol spoken by the streaming
// service over WebSocket.
//
// Every record is a JSON object terminated by the ASCII record separator
// (0x1E); one WebSocket text frame may carry several records. A connection
// starts with a handshake:
//
//	client: {"protocol":"json","version":1}\x1e
//	server: {}\x1e                       (or {"error":"..."}\x1e)
//
// after which both sides exchange typed messages:
//
//	1 Invocation        server -> client method call ("StateChanged", ...)
//	2 StreamItem        one item of a client-requested stream
//	3 Completion        end of a stream or invocation
//	4 StreamInvocation  client request to open a server stream
//	5 CancelInvocation  client request to close a server stream
//	6 Ping              keep-alive, either direction
//	7 Close             server is closing the connection
package hubproto

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// RecordSeparator terminates every protocol record.
const RecordSeparator byte = 0x1e

// Protocol name and version negotiated in the handshake.
const (
	ProtocolName    = "json"
	ProtocolVersion = 1
)

// MessageType identifies a hub message.
type MessageType int

// Hub message types.
const (
	TypeInvocation       MessageType = 1
	TypeStreamItem       MessageType = 2
	TypeCompletion       MessageType = 3
	TypeStreamInvocation MessageType = 4
	TypeCancelInvocation MessageType = 5
	TypePing             MessageType = 6
	TypeClose            MessageType = 7
)

func (t MessageType) String() string {
	switch t {
	case TypeInvocation:
		return "invocation"
	case TypeStreamItem:
		return "stream_item"
	case TypeCompletion:
		return "completion"
	case TypeStreamInvocation:
		return "stream_invocation"
	case TypeCancelInvocation:
		return "cancel_invocation"
	case TypePing:
		return "ping"
	case TypeClose:
		return "close"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

var (
	// ErrHandshakeRejected is returned when the server answers the
	// handshake with an error.
	ErrHandshakeRejected = errors.New("hub handshake rejected")

	// ErrMalformedRecord is returned for records that are not valid
	// protocol JSON.
	ErrMalformedRecord = errors.New("malformed hub record")
)

// Message is the union of all hub message shapes. Fields not used by a given
// type stay empty and are omitted on the wire.
type Message struct {
	Type           MessageType       `json:"type"`
	InvocationID   string            `json:"invocationId,omitempty"`
	Target         string            `json:"target,omitempty"`
	Arguments      []json.RawMessage `json:"arguments,omitempty"`
	StreamIDs      []string          `json:"streamIds,omitempty"`
	Item           json.RawMessage   `json:"item,omitempty"`
	Result         json.RawMessage   `json:"result,omitempty"`
	Error          string            `json:"error,omitempty"`
	AllowReconnect bool              `json:"allowReconnect,omitempty"`
}

// invocationWire always carries an arguments array; servers reject
// invocations without one.
type invocationWire struct {
	Type         MessageType       `json:"type"`
	InvocationID string            `json:"invocationId,omitempty"`
	Target       string            `json:"target"`
	Arguments    []json.RawMessage `json:"arguments"`
	StreamIDs    []string          `json:"streamIds,omitempty"`
}

type handshakeRequest struct {
	Protocol string `json:"protocol"`
	Version  int    `json:"version"`
}

type handshakeResponse struct {
	Error string `json:"error,omitempty"`
}

// HandshakeRequest returns the framed client handshake.
func HandshakeRequest() []byte {
	b, _ := json.Marshal(handshakeRequest{Protocol: ProtocolName, Version: ProtocolVersion})
	return append(b, RecordSeparator)
}

// ParseHandshakeResponse consumes the server handshake record at the start
// of data and returns whatever follows it, which may already contain
// messages.
func ParseHandshakeResponse(data []byte) (rest []byte, err error) {
	i := bytes.IndexByte(data, RecordSeparator)
	if i < 0 {
		return nil, fmt.Errorf("%w: handshake response is not terminated", ErrMalformedRecord)
	}
	var resp handshakeResponse
	if err := json.Unmarshal(data[:i], &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrHandshakeRejected, resp.Error)
	}
	return data[i+1:], nil
}

// Encode serializes msg as one framed record.
func Encode(msg *Message) ([]byte, error) {
	var v any = msg
	if msg.Type == TypeInvocation || msg.Type == TypeStreamInvocation {
		args := msg.Arguments
		if args == nil {
			args = []json.RawMessage{}
		}
		v = invocationWire{
			Type:         msg.Type,
			InvocationID: msg.InvocationID,
			Target:       msg.Target,
			Arguments:    args,
			StreamIDs:    msg.StreamIDs,
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s message: %w", msg.Type, err)
	}
	return append(b, RecordSeparator), nil
}

// Decode parses every record in data, in order. Empty records are skipped.
// Decoding stops at the first malformed record.
func Decode(data []byte) ([]Message, error) {
	var out []Message
	for len(data) > 0 {
		i := bytes.IndexByte(data, RecordSeparator)
		if i < 0 {
			return out, fmt.Errorf("%w: unterminated record", ErrMalformedRecord)
		}
		record := bytes.TrimSpace(data[:i])
		data = data[i+1:]
		if len(record) == 0 {
			continue
		}
		var msg Message
		if err := json.Unmarshal(record, &msg); err != nil {
			return out, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
		}
		out = append(out, msg)
	}
	return out, nil
}

// PingMessage is the keep-alive message.
func PingMessage() *Message {
	return &Message{Type: TypePing}
}

// NewStreamInvocation asks the server to open the stream named target.
func NewStreamInvocation(invocationID, target string, args ...any) (*Message, error) {
	raw := make([]json.RawMessage, 0, len(args))
	for _, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("encode argument for %s: %w", target, err)
		}
		raw = append(raw, b)
	}
	return &Message{
		Type:         TypeStreamInvocation,
		InvocationID: invocationID,
		Target:       target,
		Arguments:    raw,
	}, nil
}

// NewCancelInvocation asks the server to close a stream.
func NewCancelInvocation(invocationID string) *Message {
	return &Message{Type: TypeCancelInvocation, InvocationID: invocationID}
}

// Payload returns the value a handler should decode: the first argument of
// an invocation or the item of a stream item. ok is false when the message
// carries no payload.
func (m *Message) Payload() (raw json.RawMessage, ok bool) {
	switch m.Type {
	case TypeInvocation:
		if len(m.Arguments) == 0 {
			return nil, false
		}
		return m.Arguments[0], true
	case TypeStreamItem:
		return m.Item, len(m.Item) > 0
	default:
		return nil, false
	}
}
