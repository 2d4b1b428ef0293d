// Copyright (C) 2025 PeerFusion contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package realtime

import (
	"encoding/json"
	"fmt"
)

// Event types
const (
	EventNewMessage = "new_message"
	EventUserTyping = "user_typing"
	EventTyping     = "typing"
	EventPing       = "ping"
	EventPong       = "pong"
	EventError      = "error"
)

// Envelope is the wire format for every WebSocket frame.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TypingPayload is sent by a client while composing.
type TypingPayload struct {
	ReceiverID int64 `json:"receiverId"`
	IsTyping   bool  `json:"isTyping"`
}

// UserTypingPayload tells a client that userId started or stopped typing.
type UserTypingPayload struct {
	UserID   int64 `json:"userId"`
	IsTyping bool  `json:"isTyping"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func Encode(eventType string, payload any) ([]byte, error) {
	env := Envelope{Type: eventType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}
