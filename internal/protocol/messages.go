// Package protocol defines the JSON messages exchanged on the conversation
// websocket.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientText     MessageType = "client_text"
	TypeClientAudio    MessageType = "client_audio"
	TypeClientControl  MessageType = "client_control"
	TypeAssistantReply MessageType = "assistant_reply"
	TypeSystemEvent    MessageType = "system_event"
	TypeErrorEvent     MessageType = "error_event"
)

// Control actions accepted in client_control.
const (
	ActionReset = "reset"
	ActionPing  = "ping"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientText struct {
	Type        MessageType `json:"type"`
	Participant string      `json:"participant"`
	Text        string      `json:"text"`
}

type ClientAudio struct {
	Type        MessageType `json:"type"`
	Participant string      `json:"participant"`
	AudioBase64 string      `json:"audio_base64"`
	Format      string      `json:"format,omitempty"`
}

type ClientControl struct {
	Type   MessageType `json:"type"`
	Action string      `json:"action"`
}

type AssistantReply struct {
	Type        MessageType `json:"type"`
	TurnID      string      `json:"turn_id"`
	Participant string      `json:"participant"`
	Reply       string      `json:"reply"`
	Emotion     string      `json:"emotion,omitempty"`
	Fallback    bool        `json:"fallback"`
	Transcript  string      `json:"transcript,omitempty"`
	AudioBase64 string      `json:"audio_base64,omitempty"`
	AudioFormat string      `json:"audio_format,omitempty"`
}

type SystemEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func NewErrorEvent(code, source, detail string, retryable bool) ErrorEvent {
	return ErrorEvent{Type: TypeErrorEvent, Code: code, Source: source, Retryable: retryable, Detail: detail}
}

func NewSystemEvent(code, detail string) SystemEvent {
	return SystemEvent{Type: TypeSystemEvent, Code: code, Detail: detail}
}

// ParseClientMessage decodes and validates one inbound frame. The result is
// a ClientText, ClientAudio or ClientControl value.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientText:
		var msg ClientText
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.Participant) == "" || strings.TrimSpace(msg.Text) == "" {
			return nil, errors.New("invalid client_text")
		}
		return msg, nil
	case TypeClientAudio:
		var msg ClientAudio
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.Participant) == "" || msg.AudioBase64 == "" {
			return nil, errors.New("invalid client_audio")
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		switch msg.Action {
		case ActionReset, ActionPing:
			return msg, nil
		default:
			return nil, fmt.Errorf("invalid client_control action %q", msg.Action)
		}
	default:
		return nil, ErrUnsupportedType
	}
}
