// Package protocol defines the websocket messages exchanged with balloon
// boards.
package protocol

import (
	"encoding/json"
	"errors"
	"time"
)

type MessageType string

const (
	// server to client
	MsgConnected    MessageType = "connected"
	MsgBoard        MessageType = "board"
	MsgConnection   MessageType = "connection"
	MsgDelivered    MessageType = "delivered"
	MsgNotification MessageType = "notification"
	MsgPong         MessageType = "pong"
	MsgError        MessageType = "error"

	// client to server
	MsgPing          MessageType = "ping"
	MsgMarkDelivered MessageType = "mark_delivered"
)

var ErrMissingType = errors.New("message type is required")

type Message struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

type ConnectedPayload struct {
	UserID   string `json:"userId"`
	ClientID string `json:"clientId"`
}

type MarkDeliveredPayload struct {
	ID string `json:"id"`
}

type NotificationPayload struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewMessage(t MessageType, payload interface{}) (*Message, error) {
	return NewMessageWithRequestID(t, payload, "")
}

func NewMessageWithRequestID(t MessageType, payload interface{}, requestID string) (*Message, error) {
	msg := &Message{
		Type:      t,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Payload = data
	}
	return msg, nil
}

func NewErrorMessage(code, message, requestID string) (*Message, error) {
	return NewMessageWithRequestID(MsgError, ErrorPayload{Code: code, Message: message}, requestID)
}

func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Type == "" {
		return nil, ErrMissingType
	}
	return &msg, nil
}

func (m *Message) ToBytes() ([]byte, error) {
	return json.Marshal(m)
}
