// Copyright (C) 2025 PeerFusion contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang/mock/gomock"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/peerfusion/peerfusion/backend/accounts"
	"github.com/peerfusion/peerfusion/backend/events"
	"github.com/peerfusion/peerfusion/backend/messaging"
	"github.com/peerfusion/peerfusion/backend/metrics"
	"github.com/peerfusion/peerfusion/backend/middleware"
	"github.com/peerfusion/peerfusion/backend/mocks"
	"github.com/peerfusion/peerfusion/backend/models"
	"github.com/peerfusion/peerfusion/backend/storage"
	redisstore "github.com/peerfusion/peerfusion/backend/storage/redis"
)

type app struct {
	handler  http.Handler
	messages *mocks.MockMessageStore
	users    *mocks.MockUserStore
	dispatch *mocks.MockDispatcher
	tokens   *middleware.TokenManager
	healthy  error
}

func newApp(t *testing.T) *app {
	ctrl := gomock.NewController(t)
	log := zap.NewNop().Sugar()
	a := &app{
		messages: mocks.NewMockMessageStore(ctrl),
		users:    mocks.NewMockUserStore(ctrl),
		dispatch: mocks.NewMockDispatcher(ctrl),
		tokens:   middleware.NewTokenManager("secret", "peerfusion", time.Hour),
	}

	a.handler = NewHandler(Config{
		Messages: messaging.NewService(a.messages, a.dispatch, events.NopPublisher{}, nil, log),
		Accounts: accounts.NewService(a.users, a.tokens, bcrypt.MinCost, log),
		Tokens:   a.tokens,
		HealthChecks: map[string]HealthCheck{
			"postgres": func(context.Context) error { return a.healthy },
		},
		Metrics:        metrics.New(),
		Log:            log,
		AllowedOrigins: []string{"http://localhost:3000"},
		RequestTimeout: time.Second,
	})
	return a
}

func (a *app) do(t *testing.T, method, path string, userID int64, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID > 0 {
		token, err := a.tokens.Issue(userID)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func ts(minutes int) time.Time {
	return time.Date(2025, 5, 1, 9, minutes, 0, 0, time.UTC)
}

// A sends B "hi": B sees one unread message and the conversation; viewing
// the chat clears it.
func TestDirectMessageScenario(t *testing.T) {
	a := newApp(t)
	const alice, bob = int64(1), int64(2)

	sent := &models.SentMessage{
		Message: models.Message{ID: 100, SenderID: alice, ReceiverID: bob, Content: "hi", MessageType: "text", CreatedAt: ts(0)},
		Sender:  models.SenderInfo{FirstName: "Alice", LastName: "A"},
	}
	a.messages.EXPECT().SaveMessage(gomock.Any(), alice, bob, "hi", "text").Return(sent, nil)
	a.dispatch.EXPECT().NewMessage(gomock.Any(), bob, sent).Return(nil)
	a.dispatch.EXPECT().NewMessage(gomock.Any(), alice, sent).Return(nil)

	rec := a.do(t, http.MethodPost, "/api/messages/send", alice, map[string]any{"receiverId": bob, "content": "hi"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var got models.SentMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(100), got.ID)
	assert.False(t, got.IsRead)
	assert.Equal(t, "Alice", got.Sender.FirstName)

	a.messages.EXPECT().CountUnread(gomock.Any(), bob).Return(int64(1), nil)
	rec = a.do(t, http.MethodGet, "/api/messages/unread/count", bob, nil)
	assert.JSONEq(t, `{"unreadCount":1}`, rec.Body.String())

	last := ts(0)
	a.messages.EXPECT().ListConversations(gomock.Any(), bob).Return([]models.ConversationSummary{{
		ID: "7", OtherUserID: alice, FirstName: "Alice", LastMessageAt: &last,
		LastMessageID: &sent.ID, LastMessageContent: &sent.Content, LastMessageSenderID: &sent.SenderID,
	}}, nil)
	a.messages.EXPECT().GetSelfConversation(gomock.Any(), bob).Return(nil, nil)
	rec = a.do(t, http.MethodGet, "/api/messages/conversations", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var convs []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &convs))
	require.Len(t, convs, 1)
	assert.Equal(t, "7", convs[0]["id"])
	assert.Equal(t, "hi", convs[0]["last_message_content"])

	a.messages.EXPECT().FetchChatHistory(gomock.Any(), bob, alice, true).Return([]models.ChatMessage{{
		Message:   models.Message{ID: 100, SenderID: alice, ReceiverID: bob, Content: "hi", IsRead: true},
		FirstName: "Alice",
	}}, nil)
	rec = a.do(t, http.MethodGet, "/api/messages/chat/1", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []models.ChatMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 1)
	assert.True(t, history[0].IsRead)

	a.messages.EXPECT().CountUnread(gomock.Any(), bob).Return(int64(0), nil)
	rec = a.do(t, http.MethodGet, "/api/messages/unread/count", bob, nil)
	assert.JSONEq(t, `{"unreadCount":0}`, rec.Body.String())
}

// A writes a note to self: it shows as the self conversation, never as unread.
func TestSelfNoteScenario(t *testing.T) {
	a := newApp(t)
	const alice = int64(1)

	note := &models.SentMessage{
		Message: models.Message{ID: 5, SenderID: alice, ReceiverID: alice, Content: "note", MessageType: "text", CreatedAt: ts(3)},
	}
	a.messages.EXPECT().SaveMessage(gomock.Any(), alice, alice, "note", "text").Return(note, nil)
	a.dispatch.EXPECT().NewMessage(gomock.Any(), alice, note).Return(nil)

	rec := a.do(t, http.MethodPost, "/api/messages/send", alice, map[string]any{"receiverId": alice, "content": "note"})
	require.Equal(t, http.StatusCreated, rec.Code)

	noteAt := ts(3)
	older := ts(1)
	a.messages.EXPECT().ListConversations(gomock.Any(), alice).Return([]models.ConversationSummary{
		{ID: "9", OtherUserID: 2, LastMessageAt: &older},
	}, nil)
	a.messages.EXPECT().GetSelfConversation(gomock.Any(), alice).Return(&models.ConversationSummary{
		ID: models.SelfConversationID(alice), OtherUserID: alice, LastMessageAt: &noteAt,
	}, nil)

	rec = a.do(t, http.MethodGet, "/api/messages/conversations", alice, nil)
	var convs []models.ConversationSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &convs))
	require.Len(t, convs, 2)
	assert.Equal(t, "self_1", convs[0].ID)
	assert.Equal(t, alice, convs[0].OtherUserID)

	a.messages.EXPECT().FetchChatHistory(gomock.Any(), alice, alice, false).Return([]models.ChatMessage{}, nil)
	rec = a.do(t, http.MethodGet, "/api/messages/chat/1", alice, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestMessageValidation(t *testing.T) {
	a := newApp(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   string
	}{
		{"missing receiver", http.MethodPost, "/api/messages/send", map[string]any{"content": "hi"}, "receiver id and content are required"},
		{"blank content", http.MethodPost, "/api/messages/send", map[string]any{"receiverId": 2, "content": "   "}, "receiver id and content are required"},
		{"bad json", http.MethodPost, "/api/messages/send", "not an object", "invalid request body"},
		{"bad chat id", http.MethodGet, "/api/messages/chat/abc", nil, "invalid user id"},
		{"zero chat id", http.MethodGet, "/api/messages/chat/0", nil, "invalid user id"},
		{"bad sender id", http.MethodPut, "/api/messages/read/x", nil, "invalid sender id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := a.do(t, tc.method, tc.path, 1, tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.JSONEq(t, `{"error":"`+tc.want+`"}`, rec.Body.String())
		})
	}
}

func TestSendToUnknownReceiver(t *testing.T) {
	a := newApp(t)
	a.messages.EXPECT().SaveMessage(gomock.Any(), int64(1), int64(42), "hi", "text").
		Return(nil, fmt.Errorf("receiver 42: %w", storage.ErrNotFound))

	rec := a.do(t, http.MethodPost, "/api/messages/send", 1, map[string]any{"receiverId": 42, "content": "hi"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"receiver not found"}`, rec.Body.String())
}

func TestMarkRead(t *testing.T) {
	a := newApp(t)
	a.messages.EXPECT().MarkAsRead(gomock.Any(), int64(2), int64(1)).Return(int64(3), nil)

	rec := a.do(t, http.MethodPut, "/api/messages/read/1", 2, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Messages marked as read","updated":3}`, rec.Body.String())
}

func TestInternalErrorsAreGeneric(t *testing.T) {
	a := newApp(t)
	a.messages.EXPECT().ListConversations(gomock.Any(), int64(1)).Return(nil, errors.New("pq: password authentication failed"))

	rec := a.do(t, http.MethodGet, "/api/messages/conversations", 1, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"failed to fetch conversations"}`, rec.Body.String())
}

func TestRoutesRequireToken(t *testing.T) {
	a := newApp(t)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/messages/conversations"},
		{http.MethodGet, "/api/messages/chat/2"},
		{http.MethodPost, "/api/messages/send"},
		{http.MethodPut, "/api/messages/read/2"},
		{http.MethodGet, "/api/messages/unread/count"},
		{http.MethodGet, "/api/auth/me"},
		{http.MethodGet, "/api/users/me"},
		{http.MethodPut, "/api/users/profile"},
	} {
		rec := a.do(t, route.method, route.path, 0, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, route.path)
	}
}

func TestRegisterLoginAndProfile(t *testing.T) {
	a := newApp(t)

	a.users.EXPECT().CreateUser(gomock.Any(), gomock.Any()).
		Return(&models.User{ID: 3, Email: "ada@example.com", FirstName: "Ada", LastName: "L"}, nil)
	rec := a.do(t, http.MethodPost, "/api/auth/register", 0, map[string]string{
		"email": "ada@example.com", "password": "pw", "first_name": "Ada", "last_name": "L",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var auth models.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &auth))
	assert.NotEmpty(t, auth.Token)
	assert.NotContains(t, rec.Body.String(), "password")

	claims, err := a.tokens.Verify(auth.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(3), claims.UserID)

	rec = a.do(t, http.MethodPost, "/api/auth/register", 0, map[string]string{
		"email": "not-an-email", "password": "pw", "first_name": "Ada", "last_name": "L",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"email must be a valid email address"}`, rec.Body.String())

	a.users.EXPECT().GetUserByID(gomock.Any(), int64(3)).Return(&models.User{ID: 3}, nil).Times(2)
	rec = a.do(t, http.MethodGet, "/api/users/me", 3, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = a.do(t, http.MethodGet, "/api/auth/me", 3, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/users/abc", 3, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPut, "/api/users/profile", 3, map[string]string{"first_name": "Ada"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"first name and last name are required"}`, rec.Body.String())
}

func TestHealth(t *testing.T) {
	a := newApp(t)

	rec := a.do(t, http.MethodGet, "/health", 0, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	a.healthy = errors.New("connection refused")
	rec = a.do(t, http.MethodGet, "/health", 0, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCORSPreflightAndUnknownRoutes(t *testing.T) {
	a := newApp(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/messages/send", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = a.do(t, http.MethodGet, "/api/projects", 1, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}

func TestSendRateLimit(t *testing.T) {
	a := newApp(t)
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	log := zap.NewNop().Sugar()
	handler := NewHandler(Config{
		Messages:       messaging.NewService(a.messages, a.dispatch, nil, nil, log),
		Accounts:       accounts.NewService(a.users, a.tokens, bcrypt.MinCost, log),
		Tokens:         a.tokens,
		SendLimiter:    redisstore.NewRateLimiter(rdb, "send", 1, time.Minute),
		Log:            log,
		RequestTimeout: time.Second,
	})

	sent := &models.SentMessage{Message: models.Message{ID: 1, SenderID: 1, ReceiverID: 2, Content: "hi"}}
	a.messages.EXPECT().SaveMessage(gomock.Any(), int64(1), int64(2), "hi", "text").Return(sent, nil).Times(1)
	a.dispatch.EXPECT().NewMessage(gomock.Any(), gomock.Any(), sent).Return(nil).Times(2)

	token, err := a.tokens.Issue(1)
	require.NoError(t, err)
	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/messages/send", bytes.NewBufferString(`{"receiverId":2,"content":"hi"}`))
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusCreated, send())
	assert.Equal(t, http.StatusTooManyRequests, send())
}
