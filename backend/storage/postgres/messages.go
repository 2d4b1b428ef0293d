// Copyright (C) 2025 PeerFusion contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/peerfusion/peerfusion/backend/models"
	"github.com/peerfusion/peerfusion/backend/storage"
)

func (s *Store) ListConversations(ctx context.Context, userID int64) ([]models.ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.last_message_at, c.last_message_id, m.content, m.sender_id,
			u.id, u.first_name, u.last_name, u.email, u.avatar
		FROM conversations c
		LEFT JOIN messages m ON m.id = c.last_message_id
		JOIN users u ON u.id = CASE WHEN c.user1_id = $1 THEN c.user2_id ELSE c.user1_id END
		WHERE c.user1_id = $1 OR c.user2_id = $1
		ORDER BY c.last_message_at DESC NULLS LAST, c.id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	conversations := []models.ConversationSummary{}
	for rows.Next() {
		var (
			conv        models.ConversationSummary
			id          int64
			lastAt      sql.NullTime
			lastID      sql.NullInt64
			lastContent sql.NullString
			lastSender  sql.NullInt64
			avatar      sql.NullString
		)
		if err := rows.Scan(&id, &lastAt, &lastID, &lastContent, &lastSender,
			&conv.OtherUserID, &conv.FirstName, &conv.LastName, &conv.Email, &avatar); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conv.ID = strconv.FormatInt(id, 10)
		if lastAt.Valid {
			conv.LastMessageAt = &lastAt.Time
		}
		if lastID.Valid {
			conv.LastMessageID = &lastID.Int64
		}
		if lastSender.Valid {
			conv.LastMessageSenderID = &lastSender.Int64
		}
		conv.LastMessageContent = nullableString(lastContent)
		conv.Avatar = nullableString(avatar)
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read conversations: %w", err)
	}
	return conversations, nil
}

// GetSelfConversation builds the self-conversation from the user's latest
// self-note. Ties on created_at go to the higher id.
func (s *Store) GetSelfConversation(ctx context.Context, userID int64) (*models.ConversationSummary, error) {
	var (
		conv    models.ConversationSummary
		lastID  int64
		lastAt  time.Time
		content string
		avatar  sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT m.id, m.content, m.created_at, u.first_name, u.last_name, u.email, u.avatar
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.sender_id = $1 AND m.receiver_id = $1
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT 1`,
		userID).Scan(&lastID, &content, &lastAt, &conv.FirstName, &conv.LastName, &conv.Email, &avatar)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query self conversation: %w", err)
	}

	sender := userID
	conv.ID = models.SelfConversationID(userID)
	conv.OtherUserID = userID
	conv.LastMessageID = &lastID
	conv.LastMessageAt = &lastAt
	conv.LastMessageContent = &content
	conv.LastMessageSenderID = &sender
	conv.Avatar = nullableString(avatar)
	return &conv, nil
}

func (s *Store) FetchChatHistory(ctx context.Context, viewerID, otherID int64, markRead bool) ([]models.ChatMessage, error) {
	history := []models.ChatMessage{}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if markRead {
			if _, err := tx.ExecContext(ctx, `
				UPDATE messages SET is_read = TRUE
				WHERE sender_id = $1 AND receiver_id = $2 AND is_read = FALSE`,
				otherID, viewerID); err != nil {
				return fmt.Errorf("failed to mark history read: %w", err)
			}
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT m.id, m.sender_id, m.receiver_id, m.content, m.message_type, m.is_read, m.created_at,
				u.first_name, u.last_name, u.avatar
			FROM messages m
			JOIN users u ON u.id = m.sender_id
			WHERE (m.sender_id = $1 AND m.receiver_id = $2)
				OR (m.sender_id = $2 AND m.receiver_id = $1)
			ORDER BY m.created_at ASC, m.id ASC`,
			viewerID, otherID)
		if err != nil {
			return fmt.Errorf("failed to query history: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				msg    models.ChatMessage
				avatar sql.NullString
			)
			if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Content,
				&msg.MessageType, &msg.IsRead, &msg.CreatedAt,
				&msg.FirstName, &msg.LastName, &avatar); err != nil {
				return fmt.Errorf("failed to scan message: %w", err)
			}
			msg.Avatar = nullableString(avatar)
			history = append(history, msg)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return history, nil
}

// SaveMessage persists a message and, for distinct users, moves the pair's
// conversation pointer. The pointer only moves forward in (time, id) order so
// concurrent sends in the same pair cannot regress it.
func (s *Store) SaveMessage(ctx context.Context, senderID, receiverID int64, content, messageType string) (*models.SentMessage, error) {
	var sent models.SentMessage
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, receiverID).
			Scan(&exists); err != nil {
			return fmt.Errorf("failed to check receiver: %w", err)
		}
		if !exists {
			return storage.ErrNotFound
		}

		var avatar sql.NullString
		err := tx.QueryRowContext(ctx, `SELECT first_name, last_name, avatar FROM users WHERE id = $1`, senderID).
			Scan(&sent.Sender.FirstName, &sent.Sender.LastName, &avatar)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("sender %d: %w", senderID, storage.ErrUnknownSender)
		}
		if err != nil {
			return fmt.Errorf("failed to load sender: %w", err)
		}
		sent.Sender.Avatar = nullableString(avatar)

		err = tx.QueryRowContext(ctx, `
			INSERT INTO messages (sender_id, receiver_id, content, message_type)
			VALUES ($1, $2, $3, $4)
			RETURNING id, sender_id, receiver_id, content, message_type, is_read, created_at`,
			senderID, receiverID, content, messageType).
			Scan(&sent.ID, &sent.SenderID, &sent.ReceiverID, &sent.Content,
				&sent.MessageType, &sent.IsRead, &sent.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}

		if senderID == receiverID {
			return nil
		}

		user1, user2 := senderID, receiverID
		if user1 > user2 {
			user1, user2 = user2, user1
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO conversations (user1_id, user2_id, last_message_id, last_message_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user1_id, user2_id) DO UPDATE
			SET last_message_id = EXCLUDED.last_message_id,
				last_message_at = EXCLUDED.last_message_at
			WHERE conversations.last_message_at IS NULL
				OR (conversations.last_message_at, conversations.last_message_id)
					< (EXCLUDED.last_message_at, EXCLUDED.last_message_id)`,
			user1, user2, sent.ID, sent.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert conversation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sent, nil
}

func (s *Store) MarkAsRead(ctx context.Context, receiverID, senderID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE messages SET is_read = TRUE
		WHERE sender_id = $1 AND receiver_id = $2 AND is_read = FALSE`,
		senderID, receiverID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", err)
	}
	return result.RowsAffected()
}

// CountUnread excludes self-notes.
func (s *Store) CountUnread(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE receiver_id = $1 AND sender_id <> $1 AND is_read = FALSE`,
		userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}
