// Copyright (C) 2025 PeerFusion contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package models

import (
	"strconv"
	"time"
)

const (
	DefaultMessageType = "text"
	MaxContentLength   = 5000

	selfConversationPrefix = "self_"
)

// Message is a direct message between two users. A message whose sender and
// receiver are the same user is a self-note.
type Message struct {
	ID          int64     `json:"id" db:"id"`
	SenderID    int64     `json:"sender_id" db:"sender_id"`
	ReceiverID  int64     `json:"receiver_id" db:"receiver_id"`
	Content     string    `json:"content" db:"content"`
	MessageType string    `json:"message_type" db:"message_type"`
	IsRead      bool      `json:"is_read" db:"is_read"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

func (m Message) IsSelfNote() bool {
	return m.SenderID == m.ReceiverID
}

// Involves reports whether the message belongs to the conversation between a and b.
func (m Message) Involves(a, b int64) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

// ChatMessage is a history entry annotated with its sender's display fields.
type ChatMessage struct {
	Message
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Avatar    *string `json:"avatar"`
}

type SenderInfo struct {
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Avatar    *string `json:"avatar"`
}

// SentMessage is returned from send and pushed to live sessions.
type SentMessage struct {
	Message
	Sender SenderInfo `json:"sender"`
}

type SendRequest struct {
	ReceiverID  int64  `json:"receiverId" validate:"required,gt=0"`
	Content     string `json:"content" validate:"required"`
	MessageType string `json:"messageType"`
}

// ConversationSummary is one row of the conversation list. ID is the decimal
// conversation id, or "self_<user id>" for the synthesized self-conversation.
type ConversationSummary struct {
	ID                  string     `json:"id"`
	LastMessageAt       *time.Time `json:"last_message_at"`
	LastMessageID       *int64     `json:"last_message_id"`
	LastMessageContent  *string    `json:"last_message_content"`
	LastMessageSenderID *int64     `json:"last_message_sender_id"`
	OtherUserID         int64      `json:"other_user_id"`
	FirstName           string     `json:"first_name"`
	LastName            string     `json:"last_name"`
	Email               string     `json:"email"`
	Avatar              *string    `json:"avatar"`
}

func SelfConversationID(userID int64) string {
	return selfConversationPrefix + strconv.FormatInt(userID, 10)
}

func (c ConversationSummary) IsSelf() bool {
	return c.ID == SelfConversationID(c.OtherUserID)
}
