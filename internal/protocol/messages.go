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
	TypeSend       MessageType = "send"
	TypePing       MessageType = "ping"
	TypeReply      MessageType = "reply"
	TypePong       MessageType = "pong"
	TypeErrorEvent MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// Send carries the same fields as POST /api/send. RequestID is echoed back
// on the matching reply or error.
type Send struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	ThreadID  string      `json:"thread_id,omitempty"`
	Text      string      `json:"text"`
	Web       bool        `json:"web,omitempty"`
	UseMemory *bool       `json:"use_memory,omitempty"`
	Model     string      `json:"model,omitempty"`
	Files     []string    `json:"files,omitempty"`
}

type Ping struct {
	Type MessageType `json:"type"`
}

type Reply struct {
	Type       MessageType `json:"type"`
	RequestID  string      `json:"request_id,omitempty"`
	ThreadID   string      `json:"thread_id"`
	Reply      string      `json:"reply"`
	Tokens     int         `json:"tokens"`
	Candidates any         `json:"candidates,omitempty"`
}

type Pong struct {
	Type MessageType `json:"type"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
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
	case TypeSend:
		var msg Send
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.Text) == "" {
			return nil, errors.New("invalid send: empty text")
		}
		return msg, nil
	case TypePing:
		return Ping{Type: TypePing}, nil
	default:
		return nil, ErrUnsupportedType
	}
}
