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
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	EventNewMessage = "new_message"
	EventUserTyping = "user_typing"
	EventError      = "error"

	eventTyping = "typing"
	eventPing   = "ping"

	streamWriteWait = 10 * time.Second
)

// Event is one frame received from the server.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type UserTyping struct {
	UserID   int64 `json:"userId"`
	IsTyping bool  `json:"isTyping"`
}

// Stream is a live WebSocket session. Reads must come from a single
// goroutine; writes may come from any.
type Stream struct {
	conn *websocket.Conn

	writeMu sync.Mutex
}

// Dial opens the event stream for the API's current token.
func (a *API) Dial(ctx context.Context) (*Stream, error) {
	token := a.Token()
	if token == "" {
		return nil, errors.New("peerfusion: not logged in")
	}

	u, err := url.Parse(a.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"token": {token}}.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			if resp.StatusCode == http.StatusUnauthorized {
				a.SetToken("")
			}
			return nil, &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return nil, fmt.Errorf("dial event stream: %w", err)
	}
	return &Stream{conn: conn}, nil
}

// Next blocks until the next event arrives or the connection fails.
func (s *Stream) Next() (Event, error) {
	var ev Event
	if err := s.conn.ReadJSON(&ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// SendTyping announces to receiverID that the caller started or stopped typing.
func (s *Stream) SendTyping(receiverID int64, isTyping bool) error {
	payload, err := json.Marshal(struct {
		ReceiverID int64 `json:"receiverId"`
		IsTyping   bool  `json:"isTyping"`
	}{receiverID, isTyping})
	if err != nil {
		return err
	}
	return s.write(Event{Type: eventTyping, Payload: payload})
}

func (s *Stream) Ping() error {
	return s.write(Event{Type: eventPing})
}

func (s *Stream) write(ev Event) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return s.conn.WriteJSON(ev)
}

func (s *Stream) Close() error {
	s.writeMu.Lock()
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.writeMu.Unlock()
	return s.conn.Close()
}
