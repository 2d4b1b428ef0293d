// Copyright (C) 2025 PeerFusion contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package messaging

//go:generate mockgen -destination=../mocks/mock_messaging.go -package=mocks github.com/peerfusion/peerfusion/backend/messaging Dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/peerfusion/peerfusion/backend/apperrors"
	"github.com/peerfusion/peerfusion/backend/events"
	"github.com/peerfusion/peerfusion/backend/metrics"
	"github.com/peerfusion/peerfusion/backend/models"
	"github.com/peerfusion/peerfusion/backend/storage"
)

const fanoutTimeout = 5 * time.Second

// Dispatcher pushes a new message to every live session of a user.
type Dispatcher interface {
	NewMessage(ctx context.Context, recipientID int64, msg *models.SentMessage) error
}

type Service struct {
	store     storage.MessageStore
	dispatch  Dispatcher
	publisher events.Publisher
	metrics   *metrics.Metrics
	log       *zap.SugaredLogger
}

// NewService wires the messaging operations. metrics may be nil.
func NewService(store storage.MessageStore, dispatch Dispatcher, publisher events.Publisher, m *metrics.Metrics, log *zap.SugaredLogger) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{
		store:     store,
		dispatch:  dispatch,
		publisher: publisher,
		metrics:   m,
		log:       log,
	}
}

// ListConversations returns the user's conversations newest first, with the
// self-conversation merged in when the user has self-notes.
func (s *Service) ListConversations(ctx context.Context, userID int64) ([]models.ConversationSummary, error) {
	conversations, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal("failed to fetch conversations", err)
	}

	self, err := s.store.GetSelfConversation(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal("failed to fetch conversations", err)
	}
	if self != nil {
		conversations = append(conversations, *self)
	}

	sortByLastMessage(conversations)
	return conversations, nil
}

// sortByLastMessage orders newest first. A missing timestamp sorts as the
// earliest possible time.
func sortByLastMessage(conversations []models.ConversationSummary) {
	sort.SliceStable(conversations, func(i, j int) bool {
		return lastMessageTime(conversations[i]).After(lastMessageTime(conversations[j]))
	})
}

func lastMessageTime(c models.ConversationSummary) time.Time {
	if c.LastMessageAt == nil {
		return time.Time{}
	}
	return *c.LastMessageAt
}

// ChatHistory returns the conversation between userID and otherID oldest
// first. Viewing a conversation with someone else marks their messages read.
func (s *Service) ChatHistory(ctx context.Context, userID, otherID int64) ([]models.ChatMessage, error) {
	if otherID <= 0 {
		return nil, apperrors.InvalidArg("invalid user id")
	}

	history, err := s.store.FetchChatHistory(ctx, userID, otherID, userID != otherID)
	if err != nil {
		return nil, apperrors.Internal("failed to fetch chat history", err)
	}
	return history, nil
}

// ValidateSend normalizes req and reports the first validation fault.
func ValidateSend(req *models.SendRequest) error {
	if req.ReceiverID <= 0 || strings.TrimSpace(req.Content) == "" {
		return apperrors.InvalidArg("receiver id and content are required")
	}
	if utf8.RuneCountInString(req.Content) > models.MaxContentLength {
		return apperrors.InvalidArg(fmt.Sprintf("message content exceeds %d characters", models.MaxContentLength))
	}
	if req.MessageType == "" {
		req.MessageType = models.DefaultMessageType
	}
	return nil
}

// Send persists a message from senderID and fans it out to live sessions.
// Fan-out is best effort and never changes the result.
func (s *Service) Send(ctx context.Context, senderID int64, req models.SendRequest) (*models.SentMessage, error) {
	if err := ValidateSend(&req); err != nil {
		return nil, err
	}

	sent, err := s.store.SaveMessage(ctx, senderID, req.ReceiverID, req.Content, req.MessageType)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.NotFound("receiver not found")
	}
	if errors.Is(err, storage.ErrUnknownSender) {
		return nil, apperrors.Unauthorized("user no longer exists")
	}
	if err != nil {
		return nil, apperrors.Internal("failed to send message", err)
	}
	if s.metrics != nil {
		s.metrics.MessagesSent.Inc()
	}

	// The request may be cancelled as soon as the response is written.
	fanoutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fanoutTimeout)
	defer cancel()
	s.fanout(fanoutCtx, sent)

	return sent, nil
}

func (s *Service) fanout(ctx context.Context, sent *models.SentMessage) {
	recipients := []int64{sent.ReceiverID}
	if sent.SenderID != sent.ReceiverID {
		// The sender's other tabs and devices
		recipients = append(recipients, sent.SenderID)
	}

	for _, userID := range recipients {
		if err := s.dispatch.NewMessage(ctx, userID, sent); err != nil {
			s.fanoutFailed("realtime", err, sent.ID, userID)
		}
	}

	err := s.publisher.PublishMessageSent(ctx, events.MessageSent{
		MessageID:   sent.ID,
		SenderID:    sent.SenderID,
		ReceiverID:  sent.ReceiverID,
		MessageType: sent.MessageType,
		CreatedAt:   sent.CreatedAt,
	})
	if err != nil {
		s.fanoutFailed("events", err, sent.ID, sent.ReceiverID)
	}
}

func (s *Service) fanoutFailed(sink string, err error, messageID, userID int64) {
	s.log.Warnw("fan-out failed", "sink", sink, "error", err, "message_id", messageID, "user_id", userID)
	if s.metrics != nil {
		s.metrics.FanoutErrors.WithLabelValues(sink).Inc()
	}
}

// MarkRead flips every unread message from senderID to userID. Calling it
// again is a no-op.
func (s *Service) MarkRead(ctx context.Context, userID, senderID int64) (int64, error) {
	if senderID <= 0 {
		return 0, apperrors.InvalidArg("invalid sender id")
	}

	updated, err := s.store.MarkAsRead(ctx, userID, senderID)
	if err != nil {
		return 0, apperrors.Internal("failed to mark messages as read", err)
	}
	return updated, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	count, err := s.store.CountUnread(ctx, userID)
	if err != nil {
		return 0, apperrors.Internal("failed to get unread count", err)
	}
	return count, nil
}
