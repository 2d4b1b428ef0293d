// Copyright (C) 2025 PeerFusion contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/peerfusion/peerfusion/backend/middleware"
	"github.com/peerfusion/peerfusion/backend/respond"
)

// Handler upgrades authenticated requests to WebSocket sessions.
type Handler struct {
	hub      *Hub
	tokens   *middleware.TokenManager
	upgrader websocket.Upgrader
}

func NewHandler(hub *Hub, tokens *middleware.TokenManager, allowedOrigins []string) *Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}

	return &Handler{
		hub:    hub,
		tokens: tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					// Non-browser clients
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r, true)
	if !ok {
		respond.Message(w, http.StatusUnauthorized, "access token required")
		return
	}
	claims, err := h.tokens.Verify(token)
	if err != nil {
		respond.Message(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.hub.log.Debugw("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(h.hub, conn, uuid.NewString(), claims.UserID)
	h.hub.register(c)

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := h.hub.notifier.AddSession(ctx, c.userID, c.id); err != nil {
		h.hub.log.Warnw("failed to record presence", "error", err, "user_id", c.userID)
	}

	// Frames queued while the user was offline predate anything the hub has
	// buffered in send since AddSession, so they go out first, written here
	// before the write pump starts.
	replayed, err := h.replayPending(ctx, c)
	if err != nil {
		h.hub.log.Warnw("pending replay failed", "error", err, "user_id", c.userID, "replayed", replayed)
		conn.Close()
	}

	go c.writePump()

	h.hub.log.Debugw("websocket connected", "user_id", c.userID, "session_id", c.id, "pending", replayed)
	c.readPump()
}

// replayPending writes queued frames in batches and removes each batch only
// after it was written, so a dropped connection leaves the rest queued.
func (h *Handler) replayPending(ctx context.Context, c *Client) (int, error) {
	replayed := 0
	for {
		frames, err := h.hub.notifier.PeekPending(ctx, c.userID, replayBatch)
		if err != nil {
			return replayed, err
		}
		if len(frames) == 0 {
			return replayed, nil
		}

		for _, frame := range frames {
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return replayed, err
			}
		}
		if err := h.hub.notifier.AckPending(ctx, c.userID, len(frames)); err != nil {
			return replayed, err
		}
		replayed += len(frames)
	}
}
