// Copyright (C) 2025 PeerFusion contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerfusion/peerfusion/backend/models"
)

type fakeChatAPI struct {
	conversations []models.ConversationSummary
	history       map[int64][]models.ChatMessage
	historyErr    error
	historyErrFor map[int64]error
	sendErr       error
	nextID        int64
	block         chan struct{}
	blockFor      map[int64]chan struct{}
}

func (f *fakeChatAPI) Conversations(context.Context) ([]models.ConversationSummary, error) {
	return f.conversations, nil
}

func (f *fakeChatAPI) ChatHistory(_ context.Context, userID int64) ([]models.ChatMessage, error) {
	if f.block != nil {
		<-f.block
	}
	if ch, ok := f.blockFor[userID]; ok {
		<-ch
	}
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	if err, ok := f.historyErrFor[userID]; ok {
		return nil, err
	}
	return f.history[userID], nil
}

func (f *fakeChatAPI) SendMessage(_ context.Context, receiverID int64, content string) (*models.SentMessage, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.nextID++
	return &models.SentMessage{Message: models.Message{
		ID: f.nextID, SenderID: alice.ID, ReceiverID: receiverID, Content: content, CreatedAt: time.Now(),
	}}, nil
}

type typingCall struct {
	receiverID int64
	isTyping   bool
}

type fakeTyping struct {
	mu    sync.Mutex
	calls []typingCall
}

func (f *fakeTyping) SendTyping(receiverID int64, isTyping bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, typingCall{receiverID, isTyping})
	return nil
}

func (f *fakeTyping) Calls() []typingCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]typingCall(nil), f.calls...)
}

var alice = models.User{ID: 1, FirstName: "Alice", LastName: "A", Email: "alice@example.com"}

func at(minute int) *time.Time {
	t := time.Date(2025, 5, 1, 9, minute, 0, 0, time.UTC)
	return &t
}

func newMessageEvent(t *testing.T, msg models.SentMessage) Event {
	payload, err := json.Marshal(msg)
	require.NoError(t, err)
	return Event{Type: EventNewMessage, Payload: payload}
}

func newView(t *testing.T) (*ChatView, *fakeChatAPI, *fakeTyping) {
	api := &fakeChatAPI{
		conversations: []models.ConversationSummary{
			{ID: "10", OtherUserID: 2, LastMessageAt: at(5)},
			{ID: "11", OtherUserID: 3, LastMessageAt: at(1)},
		},
		history: map[int64][]models.ChatMessage{
			2: {{Message: models.Message{ID: 1, SenderID: 2, ReceiverID: 1, Content: "hey"}}},
		},
		nextID: 100,
	}
	typing := &fakeTyping{}
	view := NewChatView(api, typing, alice)
	view.TypingIdle = 20 * time.Millisecond
	t.Cleanup(view.Close)
	require.NoError(t, view.LoadConversations(context.Background()))
	return view, api, typing
}

func TestSelectLoadsHistory(t *testing.T) {
	view, _, _ := newView(t)
	assert.Equal(t, StateNoSelection, view.State())

	require.NoError(t, view.Select(context.Background(), view.Conversations()[0]))
	assert.Equal(t, StateIdle, view.State())
	assert.Equal(t, int64(2), view.Selected().OtherUserID)
	require.Len(t, view.Messages(), 1)
	assert.Equal(t, "hey", view.Messages()[0].Content)
}

func TestSelectFailureRestoresState(t *testing.T) {
	view, api, _ := newView(t)
	api.historyErr = errors.New("boom")

	err := view.Select(context.Background(), view.Conversations()[0])
	require.Error(t, err)
	assert.Equal(t, StateNoSelection, view.State())
	assert.Nil(t, view.Selected())

	api.historyErr = nil
	require.NoError(t, view.Select(context.Background(), view.Conversations()[0]))
	api.historyErr = errors.New("boom")
	require.Error(t, view.Select(context.Background(), view.Conversations()[1]))
	assert.Equal(t, StateIdle, view.State())
	assert.Equal(t, int64(2), view.Selected().OtherUserID)
}

func TestStateWhileLoading(t *testing.T) {
	view, api, _ := newView(t)
	api.block = make(chan struct{})

	done := make(chan error)
	go func() { done <- view.Select(context.Background(), view.Conversations()[0]) }()

	assert.Eventually(t, func() bool { return view.State() == StateLoading }, time.Second, time.Millisecond)
	assert.Error(t, view.Send(context.Background(), "too early"))
	close(api.block)
	require.NoError(t, <-done)
	assert.Equal(t, StateIdle, view.State())
}

func TestSend(t *testing.T) {
	view, api, _ := newView(t)
	ctx := context.Background()

	assert.ErrorIs(t, view.Send(ctx, "hi"), ErrNoSelection)

	require.NoError(t, view.Select(ctx, view.Conversations()[1]))
	require.NoError(t, view.Send(ctx, "   "))
	assert.Empty(t, view.Messages())

	require.NoError(t, view.Send(ctx, "  hello  "))
	msgs := view.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, StateIdle, view.State())

	// The sent conversation moves to the top.
	convs := view.Conversations()
	assert.Equal(t, int64(3), convs[0].OtherUserID)
	assert.Equal(t, "hello", *convs[0].LastMessageContent)

	api.sendErr = errors.New("offline")
	require.Error(t, view.Send(ctx, "again"))
	assert.Equal(t, StateIdle, view.State())
	assert.Len(t, view.Messages(), 1)
}

func TestNewMessageForSelectedConversation(t *testing.T) {
	view, _, _ := newView(t)
	ctx := context.Background()
	require.NoError(t, view.Select(ctx, view.Conversations()[0]))

	msg := models.SentMessage{Message: models.Message{ID: 2, SenderID: 2, ReceiverID: 1, Content: "you there?", CreatedAt: *at(9)}}
	require.NoError(t, view.HandleEvent(newMessageEvent(t, msg)))
	// Same message over a second session is not duplicated.
	require.NoError(t, view.HandleEvent(newMessageEvent(t, msg)))

	msgs := view.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "you there?", msgs[1].Content)
	assert.Equal(t, "you there?", *view.Conversations()[0].LastMessageContent)
}

func TestNewMessageForOtherConversation(t *testing.T) {
	view, _, _ := newView(t)
	ctx := context.Background()
	require.NoError(t, view.Select(ctx, view.Conversations()[0]))

	msg := models.SentMessage{Message: models.Message{ID: 7, SenderID: 3, ReceiverID: 1, Content: "ping", CreatedAt: *at(9)}}
	require.NoError(t, view.HandleEvent(newMessageEvent(t, msg)))

	assert.Len(t, view.Messages(), 1)
	convs := view.Conversations()
	assert.Equal(t, int64(3), convs[0].OtherUserID)
	assert.Equal(t, "ping", *convs[0].LastMessageContent)
	assert.Equal(t, int64(3), *convs[0].LastMessageSenderID)
}

func TestOlderMessageKeepsPreview(t *testing.T) {
	view, _, _ := newView(t)

	msg := models.SentMessage{Message: models.Message{ID: 7, SenderID: 2, ReceiverID: 1, Content: "old", CreatedAt: *at(0)}}
	require.NoError(t, view.HandleEvent(newMessageEvent(t, msg)))
	assert.Nil(t, view.Conversations()[0].LastMessageContent)
}

func TestTypingUsers(t *testing.T) {
	view, _, _ := newView(t)

	on := Event{Type: EventUserTyping, Payload: json.RawMessage(`{"userId":3,"isTyping":true}`)}
	off := Event{Type: EventUserTyping, Payload: json.RawMessage(`{"userId":3,"isTyping":false}`)}
	other := Event{Type: EventUserTyping, Payload: json.RawMessage(`{"userId":2,"isTyping":true}`)}

	require.NoError(t, view.HandleEvent(on))
	require.NoError(t, view.HandleEvent(other))
	assert.Equal(t, []int64{2, 3}, view.TypingUsers())
	require.NoError(t, view.HandleEvent(off))
	assert.Equal(t, []int64{2}, view.TypingUsers())

	assert.Error(t, view.HandleEvent(Event{Type: EventUserTyping, Payload: json.RawMessage(`nope`)}))
}

func TestTypingDebounce(t *testing.T) {
	view, _, typing := newView(t)
	ctx := context.Background()

	view.Typing()
	assert.Empty(t, typing.Calls(), "no conversation selected")

	require.NoError(t, view.Select(ctx, view.Conversations()[0]))
	view.Typing()
	view.Typing()
	view.Typing()
	assert.Equal(t, []typingCall{{2, true}}, typing.Calls())

	assert.Eventually(t, func() bool { return len(typing.Calls()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, typingCall{2, false}, typing.Calls()[1])
}

func TestSendStopsTyping(t *testing.T) {
	view, _, typing := newView(t)
	ctx := context.Background()
	view.TypingIdle = time.Hour

	require.NoError(t, view.Select(ctx, view.Conversations()[0]))
	view.Typing()
	require.NoError(t, view.Send(ctx, "done"))
	assert.Equal(t, []typingCall{{2, true}, {2, false}}, typing.Calls())
}

func TestSelectSelf(t *testing.T) {
	view, api, typing := newView(t)
	api.history[alice.ID] = nil

	require.NoError(t, view.SelectSelf(context.Background()))
	selected := view.Selected()
	assert.Equal(t, "self_1", selected.ID)
	assert.Equal(t, alice.ID, selected.OtherUserID)
	assert.Equal(t, "Alice", selected.FirstName)

	// No typing indicator toward oneself.
	view.Typing()
	assert.Empty(t, typing.Calls())

	note := models.SentMessage{Message: models.Message{ID: 50, SenderID: 1, ReceiverID: 1, Content: "note"}}
	require.NoError(t, view.HandleEvent(newMessageEvent(t, note)))
	require.Len(t, view.Messages(), 1)
}

func TestOverlappingSelectsSettle(t *testing.T) {
	view, api, _ := newView(t)
	ctx := context.Background()
	release := make(chan struct{})
	api.blockFor = map[int64]chan struct{}{2: release}
	api.historyErrFor = map[int64]error{3: errors.New("boom")}

	first := make(chan error)
	go func() { first <- view.Select(ctx, view.Conversations()[0]) }()
	require.Eventually(t, func() bool { return view.State() == StateLoading }, time.Second, time.Millisecond)

	require.Error(t, view.Select(ctx, view.Conversations()[1]))
	assert.Equal(t, StateNoSelection, view.State())

	close(release)
	require.NoError(t, <-first)
	assert.Equal(t, StateNoSelection, view.State())
	assert.Nil(t, view.Selected())

	// With a conversation open, a failed overlapping load falls back to idle.
	api.blockFor = nil
	require.NoError(t, view.Select(ctx, view.Conversations()[0]))
	release = make(chan struct{})
	api.blockFor = map[int64]chan struct{}{2: release}

	go func() { first <- view.Select(ctx, view.Conversations()[0]) }()
	require.Eventually(t, func() bool { return view.State() == StateLoading }, time.Second, time.Millisecond)
	require.Error(t, view.Select(ctx, view.Conversations()[1]))
	close(release)
	require.NoError(t, <-first)

	assert.Equal(t, StateIdle, view.State())
	assert.Equal(t, int64(2), view.Selected().OtherUserID)
	require.NoError(t, view.Send(ctx, "still works"))
}

func TestSelectSelfPrefersListedConversation(t *testing.T) {
	view, api, _ := newView(t)
	noteAt := at(7)
	api.conversations = append(api.conversations, models.ConversationSummary{
		ID: models.SelfConversationID(alice.ID), OtherUserID: alice.ID, LastMessageAt: noteAt,
	})
	require.NoError(t, view.LoadConversations(context.Background()))

	require.NoError(t, view.SelectSelf(context.Background()))
	assert.Equal(t, noteAt, view.Selected().LastMessageAt)
}
