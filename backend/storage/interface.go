// Copyright (C) 2025 PeerFusion contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package storage

//go:generate mockgen -destination=../mocks/mock_storage.go -package=mocks github.com/peerfusion/peerfusion/backend/storage UserStore,MessageStore

import (
	"context"
	"errors"

	"github.com/peerfusion/peerfusion/backend/models"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrUnknownSender means the authenticated user no longer exists.
	ErrUnknownSender = errors.New("sender does not exist")
)

type UserStore interface {
	CreateUser(ctx context.Context, user models.NewUser) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetCredentialsByEmail(ctx context.Context, email string) (*models.Credentials, error)
	UpdateProfile(ctx context.Context, id int64, update models.ProfileUpdate) (*models.User, error)
}

type MessageStore interface {
	// Conversations with other users, newest pointer first.
	ListConversations(ctx context.Context, userID int64) ([]models.ConversationSummary, error)
	// Returns nil when the user has no self-notes.
	GetSelfConversation(ctx context.Context, userID int64) (*models.ConversationSummary, error)

	// FetchChatHistory returns the messages between viewer and other, oldest
	// first. With markRead set, unread messages from other to viewer are
	// flagged read in the same transaction before the rows are read.
	FetchChatHistory(ctx context.Context, viewerID, otherID int64, markRead bool) ([]models.ChatMessage, error)

	// SaveMessage inserts the message and moves the pair's conversation pointer
	// atomically. Returns ErrNotFound when the receiver does not exist and
	// ErrUnknownSender when the sender does not.
	SaveMessage(ctx context.Context, senderID, receiverID int64, content, messageType string) (*models.SentMessage, error)

	MarkAsRead(ctx context.Context, receiverID, senderID int64) (int64, error)
	CountUnread(ctx context.Context, userID int64) (int64, error)
}

type Store interface {
	UserStore
	MessageStore
}
