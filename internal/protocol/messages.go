package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ent0n29/agrigenius/internal/chat"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeChatRequest   MessageType = "chat_request"
	TypeClientControl MessageType = "client_control"
	TypeChatTextDelta MessageType = "chat_text_delta"
	TypeChatDone      MessageType = "chat_done"
	TypeSystemEvent   MessageType = "system_event"
	TypeErrorEvent    MessageType = "error_event"
)

// Client control actions.
const (
	ActionCancel = "cancel"
	ActionPing   = "ping"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ChatRequest carries the same fields as the POST /api/gemini body next to
// the envelope. Request is decoded with the same loose rules.
type ChatRequest struct {
	Type      MessageType  `json:"type"`
	RequestID string       `json:"request_id,omitempty"`
	Request   chat.Request `json:"-"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	Action    string      `json:"action"`
}

type ChatTextDelta struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	TurnID    string      `json:"turn_id"`
	Seq       int         `json:"seq"`
	TextDelta string      `json:"text_delta"`
}

type ChatDone struct {
	Type       MessageType      `json:"type"`
	RequestID  string           `json:"request_id,omitempty"`
	TurnID     string           `json:"turn_id"`
	Text       string           `json:"text"`
	References []chat.Reference `json:"references"`
}

type SystemEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	TurnID    string      `json:"turn_id,omitempty"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeChatRequest:
		var msg ChatRequest
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		msg.Request = chat.ParseRequest(raw)
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		msg.Action = strings.ToLower(strings.TrimSpace(msg.Action))
		switch msg.Action {
		case ActionCancel, ActionPing:
		default:
			return nil, errors.New("invalid client_control")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
