// Copyright (C) 2025 PeerFusion contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/peerfusion/peerfusion/backend/metrics"
	"github.com/peerfusion/peerfusion/backend/models"
	redisstore "github.com/peerfusion/peerfusion/backend/storage/redis"
)

// Hub tracks the WebSocket sessions connected to this instance and routes
// notifications from Redis to them.
type Hub struct {
	notifier      *redisstore.Notifier
	metrics       *metrics.Metrics
	log           *zap.SugaredLogger
	msgsPerSecond int

	mu       sync.RWMutex
	sessions map[int64]map[*Client]struct{}

	pubsub *redis.PubSub
	done   chan struct{}
}

// NewHub builds a hub. metrics may be nil.
func NewHub(notifier *redisstore.Notifier, msgsPerSecond int, m *metrics.Metrics, log *zap.SugaredLogger) *Hub {
	return &Hub{
		notifier:      notifier,
		metrics:       m,
		log:           log,
		msgsPerSecond: msgsPerSecond,
		sessions:      make(map[int64]map[*Client]struct{}),
	}
}

// Start subscribes to notifications and routes them until Close is called.
// It returns once the subscription is confirmed.
func (h *Hub) Start(ctx context.Context) error {
	pubsub := h.notifier.Subscribe(ctx)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("failed to subscribe to notifications: %w", err)
	}

	h.pubsub = pubsub
	h.done = make(chan struct{})
	go h.route(pubsub.Channel())
	return nil
}

func (h *Hub) route(ch <-chan *redis.Message) {
	defer close(h.done)
	for msg := range ch {
		userID, ok := redisstore.UserIDFromChannel(msg.Channel)
		if !ok {
			continue
		}
		h.deliverLocal(userID, []byte(msg.Payload))
	}
}

// Close stops routing and disconnects every local session.
func (h *Hub) Close() error {
	var err error
	if h.pubsub != nil {
		err = h.pubsub.Close()
		<-h.done
	}

	h.mu.RLock()
	for _, clients := range h.sessions {
		for c := range clients {
			c.conn.Close()
		}
	}
	h.mu.RUnlock()
	return err
}

// NewMessage implements messaging.Dispatcher.
func (h *Hub) NewMessage(ctx context.Context, recipientID int64, msg *models.SentMessage) error {
	payload, err := Encode(EventNewMessage, msg)
	if err != nil {
		return err
	}

	queued, err := h.notifier.Deliver(ctx, recipientID, payload)
	if err != nil {
		return err
	}
	if queued && h.metrics != nil {
		h.metrics.NotificationsQueued.Inc()
	}
	return nil
}

// typing relays a typing indicator to an online receiver. Indicators are
// never queued.
func (h *Hub) typing(ctx context.Context, fromID int64, in TypingPayload) error {
	online, err := h.notifier.IsOnline(ctx, in.ReceiverID)
	if err != nil || !online {
		return err
	}

	payload, err := Encode(EventUserTyping, UserTypingPayload{UserID: fromID, IsTyping: in.IsTyping})
	if err != nil {
		return err
	}
	return h.notifier.Publish(ctx, in.ReceiverID, payload)
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	clients, ok := h.sessions[c.userID]
	if !ok {
		clients = make(map[*Client]struct{})
		h.sessions[c.userID] = clients
	}
	clients[c] = struct{}{}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.Connections.Inc()
	}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if clients, ok := h.sessions[c.userID]; ok {
		if _, ok := clients[c]; ok {
			delete(clients, c)
			close(c.send)
			if h.metrics != nil {
				h.metrics.Connections.Dec()
			}
		}
		if len(clients) == 0 {
			delete(h.sessions, c.userID)
		}
	}
	h.mu.Unlock()
}

// deliverLocal queues payload on every local session of the user. A session
// whose buffer is full is disconnected.
func (h *Hub) deliverLocal(userID int64, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.sessions[userID] {
		select {
		case c.send <- payload:
		default:
			h.log.Warnw("dropping slow websocket client", "user_id", userID, "session_id", c.id)
			c.conn.Close()
		}
	}
}

// SessionCount returns the number of sessions the user has on this instance.
func (h *Hub) SessionCount(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID])
}
