// Copyright (C) 2025 PeerFusion contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 * 1024
	sendBuffer     = 256
	storeTimeout   = 3 * time.Second
	replayBatch    = 100
)

// Client is one WebSocket session of an authenticated user.
type Client struct {
	id      string
	userID  int64
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
}

func newClient(hub *Hub, conn *websocket.Conn, id string, userID int64) *Client {
	return &Client{
		id:      id,
		userID:  userID,
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		limiter: rate.NewLimiter(rate.Limit(hub.msgsPerSecond), hub.msgsPerSecond),
	}
}

// readPump handles inbound frames until the connection fails, then tears the
// session down.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()

		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := c.hub.notifier.RemoveSession(ctx, c.userID, c.id); err != nil {
			c.hub.log.Warnw("failed to clear presence", "error", err, "user_id", c.userID)
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.heartbeat()
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debugw("websocket closed", "error", err, "user_id", c.userID)
			}
			return
		}

		if !c.limiter.Allow() {
			c.sendError("rate limit exceeded")
			continue
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.sendError("malformed frame")
			continue
		}
		c.handle(env)
	}
}

func (c *Client) handle(env Envelope) {
	switch env.Type {
	case EventTyping:
		var in TypingPayload
		if err := json.Unmarshal(env.Payload, &in); err != nil || in.ReceiverID <= 0 {
			c.sendError("invalid typing payload")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := c.hub.typing(ctx, c.userID, in); err != nil {
			c.hub.log.Warnw("failed to relay typing indicator", "error", err, "user_id", c.userID)
		}

	case EventPing:
		c.heartbeat()
		if frame, err := Encode(EventPong, nil); err == nil {
			c.enqueue(frame)
		}

	default:
		// Messages are sent over HTTP, never relayed from a socket.
		c.sendError("unsupported event type: " + env.Type)
	}
}

func (c *Client) heartbeat() {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := c.hub.notifier.RefreshSession(ctx, c.userID, c.id); err != nil {
		c.hub.log.Warnw("failed to refresh presence", "error", err, "user_id", c.userID)
	}
}

func (c *Client) sendError(msg string) {
	if frame, err := Encode(EventError, ErrorPayload{Message: msg}); err == nil {
		c.enqueue(frame)
	}
}

// enqueue is only called from the read goroutine, which is also the only
// goroutine that closes send.
func (c *Client) enqueue(frame []byte) {
	select {
	case c.send <- frame:
	default:
		c.conn.Close()
	}
}

// writePump owns all writes to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
