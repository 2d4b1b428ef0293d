// Copyright (C) 2025 PeerFusion contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/peerfusion/peerfusion/backend/models"
	"github.com/peerfusion/peerfusion/backend/respond"
)

type Messenger interface {
	ListConversations(ctx context.Context, userID int64) ([]models.ConversationSummary, error)
	ChatHistory(ctx context.Context, userID, otherID int64) ([]models.ChatMessage, error)
	Send(ctx context.Context, senderID int64, req models.SendRequest) (*models.SentMessage, error)
	MarkRead(ctx context.Context, userID, senderID int64) (int64, error)
	UnreadCount(ctx context.Context, userID int64) (int64, error)
}

type MessageHandler struct {
	messages Messenger
	log      *zap.SugaredLogger
}

func NewMessageHandler(messages Messenger, log *zap.SugaredLogger) *MessageHandler {
	return &MessageHandler{messages: messages, log: log}
}

// GetConversations lists the caller's conversations, newest first.
func (h *MessageHandler) GetConversations(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	conversations, err := h.messages.ListConversations(r.Context(), userID)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, conversations)
}

// GetChatHistory returns the conversation with {userId} and marks the
// counterpart's messages read.
func (h *MessageHandler) GetChatHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	otherID, err := pathID(r, "userId", "invalid user id")
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	history, err := h.messages.ChatHistory(r.Context(), userID, otherID)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, history)
}

func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	var req models.SendRequest
	if err := decodeJSON(w, r, &req, "receiver id and content are required"); err != nil {
		respond.Error(w, h.log, err)
		return
	}

	sent, err := h.messages.Send(r.Context(), userID, req)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusCreated, sent)
}

func (h *MessageHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	senderID, err := pathID(r, "senderId", "invalid sender id")
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	updated, err := h.messages.MarkRead(r.Context(), userID, senderID)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{
		"message": "Messages marked as read",
		"updated": updated,
	})
}

func (h *MessageHandler) GetUnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	count, err := h.messages.UnreadCount(r.Context(), userID)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]int64{"unreadCount": count})
}
