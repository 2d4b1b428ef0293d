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
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/peerfusion/peerfusion/backend/models"
)

const TypingIdle = time.Second

var ErrNoSelection = errors.New("no conversation selected")

type State int

const (
	StateNoSelection State = iota
	StateLoading
	StateIdle
	StateSending
)

func (s State) String() string {
	switch s {
	case StateNoSelection:
		return "no-selection"
	case StateLoading:
		return "loading"
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ChatAPI is the subset of API the chat view calls.
type ChatAPI interface {
	Conversations(ctx context.Context) ([]models.ConversationSummary, error)
	ChatHistory(ctx context.Context, userID int64) ([]models.ChatMessage, error)
	SendMessage(ctx context.Context, receiverID int64, content string) (*models.SentMessage, error)
}

type TypingSender interface {
	SendTyping(receiverID int64, isTyping bool) error
}

// ChatView holds what a chat screen shows: the conversation list, the
// selected conversation and its messages, and who is typing. It is safe for
// concurrent use; network calls run without holding the lock.
type ChatView struct {
	api    ChatAPI
	typing TypingSender
	self   models.User

	// TypingIdle is how long after the last keystroke the stop signal goes out.
	TypingIdle time.Duration

	mu            sync.Mutex
	state         State
	seq           uint64
	conversations []models.ConversationSummary
	selected      *models.ConversationSummary
	messages      []models.ChatMessage
	typingUsers   map[int64]struct{}
	typingTo      int64
	typingTimer   *time.Timer
}

// NewChatView builds a view for self. typing may be nil when no event
// stream is connected.
func NewChatView(api ChatAPI, typing TypingSender, self models.User) *ChatView {
	return &ChatView{
		api:         api,
		typing:      typing,
		self:        self,
		TypingIdle:  TypingIdle,
		state:       StateNoSelection,
		typingUsers: make(map[int64]struct{}),
	}
}

func (v *ChatView) LoadConversations(ctx context.Context) error {
	conversations, err := v.api.Conversations(ctx)
	if err != nil {
		return fmt.Errorf("load conversations: %w", err)
	}

	v.mu.Lock()
	v.conversations = conversations
	v.mu.Unlock()
	return nil
}

// Select loads the history of conv and makes it the open conversation. On
// failure the view returns to its last settled state. When selections overlap
// only the latest one settles the view.
func (v *ChatView) Select(ctx context.Context, conv models.ConversationSummary) error {
	v.mu.Lock()
	if v.state == StateSending {
		v.mu.Unlock()
		return errors.New("send in progress")
	}
	v.state = StateLoading
	v.seq++
	seq := v.seq
	v.mu.Unlock()

	history, err := v.api.ChatHistory(ctx, conv.OtherUserID)

	v.mu.Lock()
	defer v.mu.Unlock()
	if seq != v.seq {
		// A later Select owns the view now.
		return nil
	}
	if err != nil {
		v.state = v.stableStateLocked()
		return fmt.Errorf("load chat history: %w", err)
	}

	if v.selected != nil && v.selected.OtherUserID != conv.OtherUserID {
		v.stopTypingLocked()
	}
	v.selected = &conv
	v.messages = history
	v.state = StateIdle
	return nil
}

// SelectSelf opens the self-conversation, synthesizing an empty one when the
// user has no notes yet.
func (v *ChatView) SelectSelf(ctx context.Context) error {
	v.mu.Lock()
	conv := models.ConversationSummary{
		ID:          models.SelfConversationID(v.self.ID),
		OtherUserID: v.self.ID,
		FirstName:   v.self.FirstName,
		LastName:    v.self.LastName,
		Email:       v.self.Email,
		Avatar:      v.self.Avatar,
	}
	for _, c := range v.conversations {
		if c.IsSelf() {
			conv = c
			break
		}
	}
	v.mu.Unlock()

	return v.Select(ctx, conv)
}

// Send posts text to the open conversation. Blank text is ignored.
func (v *ChatView) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	v.mu.Lock()
	if v.selected == nil {
		v.mu.Unlock()
		return ErrNoSelection
	}
	if v.state != StateIdle {
		state := v.state
		v.mu.Unlock()
		return fmt.Errorf("cannot send while %s", state)
	}
	receiverID := v.selected.OtherUserID
	v.state = StateSending
	v.mu.Unlock()

	sent, err := v.api.SendMessage(ctx, receiverID, text)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.state = StateIdle
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	v.appendLocked(sent)
	v.updatePreviewLocked(sent)
	v.stopTypingLocked()
	return nil
}

// HandleEvent applies a server event to the view.
func (v *ChatView) HandleEvent(ev Event) error {
	switch ev.Type {
	case EventNewMessage:
		var msg models.SentMessage
		if err := json.Unmarshal(ev.Payload, &msg); err != nil {
			return fmt.Errorf("decode %s: %w", ev.Type, err)
		}

		v.mu.Lock()
		if v.selected != nil && msg.Involves(v.self.ID, v.selected.OtherUserID) {
			v.appendLocked(&msg)
		}
		v.updatePreviewLocked(&msg)
		v.mu.Unlock()

	case EventUserTyping:
		var t UserTyping
		if err := json.Unmarshal(ev.Payload, &t); err != nil {
			return fmt.Errorf("decode %s: %w", ev.Type, err)
		}

		v.mu.Lock()
		if t.IsTyping {
			v.typingUsers[t.UserID] = struct{}{}
		} else {
			delete(v.typingUsers, t.UserID)
		}
		v.mu.Unlock()
	}
	return nil
}

// Typing records a keystroke in the open conversation. The first keystroke
// sends a start signal; a stop signal follows TypingIdle after the last one.
func (v *ChatView) Typing() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.typing == nil || v.selected == nil || v.selected.IsSelf() {
		return
	}

	receiverID := v.selected.OtherUserID
	if v.typingTo != receiverID {
		v.stopTypingLocked()
		v.typingTo = receiverID
		v.typing.SendTyping(receiverID, true)
	}

	if v.typingTimer != nil {
		v.typingTimer.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(v.TypingIdle, func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		if v.typingTimer == timer {
			v.stopTypingLocked()
		}
	})
	v.typingTimer = timer
}

// stableStateLocked is the state the view rests in when nothing is in flight.
func (v *ChatView) stableStateLocked() State {
	if v.selected == nil {
		return StateNoSelection
	}
	return StateIdle
}

func (v *ChatView) stopTypingLocked() {
	if v.typingTimer != nil {
		v.typingTimer.Stop()
		v.typingTimer = nil
	}
	if v.typingTo != 0 {
		v.typing.SendTyping(v.typingTo, false)
		v.typingTo = 0
	}
}

// Close stops a pending typing signal.
func (v *ChatView) Close() {
	v.mu.Lock()
	v.stopTypingLocked()
	v.mu.Unlock()
}

func (v *ChatView) appendLocked(msg *models.SentMessage) {
	for _, m := range v.messages {
		if m.ID == msg.ID {
			return
		}
	}
	v.messages = append(v.messages, models.ChatMessage{
		Message:   msg.Message,
		FirstName: msg.Sender.FirstName,
		LastName:  msg.Sender.LastName,
		Avatar:    msg.Sender.Avatar,
	})
}

// updatePreviewLocked moves the conversation msg belongs to to the top of the
// list with msg as its last message.
func (v *ChatView) updatePreviewLocked(msg *models.SentMessage) {
	other := msg.SenderID
	if other == v.self.ID {
		other = msg.ReceiverID
	}

	for i := range v.conversations {
		c := &v.conversations[i]
		if c.OtherUserID != other {
			continue
		}
		if c.LastMessageAt != nil && c.LastMessageAt.After(msg.CreatedAt) {
			return
		}
		at, id, content, sender := msg.CreatedAt, msg.ID, msg.Content, msg.SenderID
		c.LastMessageAt = &at
		c.LastMessageID = &id
		c.LastMessageContent = &content
		c.LastMessageSenderID = &sender

		updated := *c
		copy(v.conversations[1:i+1], v.conversations[:i])
		v.conversations[0] = updated
		return
	}
}

func (v *ChatView) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Selected returns the open conversation, or nil.
func (v *ChatView) Selected() *models.ConversationSummary {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.selected == nil {
		return nil
	}
	c := *v.selected
	return &c
}

func (v *ChatView) Messages() []models.ChatMessage {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]models.ChatMessage(nil), v.messages...)
}

func (v *ChatView) Conversations() []models.ConversationSummary {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]models.ConversationSummary(nil), v.conversations...)
}

// TypingUsers returns the ids of users currently typing, ascending.
func (v *ChatView) TypingUsers() []int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	ids := make([]int64, 0, len(v.typingUsers))
	for id := range v.typingUsers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
