// Package protocol defines the relay's websocket frame format and event names.
//
// Every websocket text message carries one JSON frame:
//
//	{"event": "send_message", "data": {"roomId": "r1", "message": "hello", "language": "en"}}
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// Inbound event names.
const (
	EventJoinRoom       = "join_room"
	EventSendMessage    = "send_message"
	EventTyping         = "typing"
	EventUpdateLanguage = "update_language"
	EventLeaveRoom      = "leave_room"
)

// Outbound event names.
const (
	EventUserJoined      = "user_joined"
	EventUserLeft        = "user_left"
	EventMessageReceived = "message_received"
	EventTypingIndicator = "typing_indicator"
	EventError           = "error"
)

// MaxFrameSize is the largest inbound frame the relay accepts (16KB).
const MaxFrameSize = 16384

var (
	ErrFrameTooLarge = errors.New("protocol: frame too large")
	ErrInvalidJSON   = errors.New("protocol: frame is not valid JSON")
	ErrMissingEvent  = errors.New("protocol: frame has no event name")
)

// Frame is one decoded websocket message.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Decode parses a raw frame. Data is nil when the frame carries no payload.
func Decode(raw []byte) (Frame, error) {
	if len(raw) > MaxFrameSize {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(raw))
	}
	if !gjson.ValidBytes(raw) {
		return Frame{}, ErrInvalidJSON
	}
	event := gjson.GetBytes(raw, "event")
	if event.Type != gjson.String || event.Str == "" {
		return Frame{}, ErrMissingEvent
	}
	f := Frame{Event: event.Str}
	if data := gjson.GetBytes(raw, "data"); data.Exists() && data.Type != gjson.Null {
		f.Data = json.RawMessage(data.Raw)
	}
	return f, nil
}

// DecodeData unmarshals a frame payload into v. A frame without data leaves v zeroed.
func DecodeData(f Frame, v any) error {
	if len(f.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("protocol: decode %s payload: %w", f.Event, err)
	}
	return nil
}

// Encode builds the wire form of an outbound event.
func Encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal %s: %w", event, err)
	}
	out, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal frame: %w", err)
	}
	return out, nil
}
