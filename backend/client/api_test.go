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
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerfusion/peerfusion/backend/models"
)

func newTestAPI(t *testing.T, h http.HandlerFunc) *API {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewAPI(Config{BaseURL: srv.URL, Timeout: time.Second, RetryMaxElapsed: 2 * time.Second})
}

func TestGetRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"unreadCount":4}`))
	})
	api.SetToken("tok")

	n, err := api.UnreadCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid user id"}`))
	})

	_, err := api.ChatHistory(context.Background(), 0)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "invalid user id", apiErr.Message)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPostIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"failed to send message"}`))
	})

	_, err := api.SendMessage(context.Background(), 2, "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to send message")
	assert.Equal(t, int32(1), calls.Load())
}

func TestUnauthorizedClearsToken(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid or expired token"}`))
	})
	api.SetToken("stale")

	_, err := api.Conversations(context.Background())
	assert.True(t, IsUnauthorized(err))
	assert.Empty(t, api.Token())
}

func TestLoginStoresToken(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/login", r.URL.Path)
		var req models.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ada@example.com", req.Email)
		json.NewEncoder(w).Encode(models.AuthResponse{Message: "Login successful", Token: "fresh", User: &models.User{ID: 3}})
	})

	resp, err := api.Login(context.Background(), "ada@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, int64(3), resp.User.ID)
	assert.Equal(t, "fresh", api.Token())
}

func TestSendAndMarkRead(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/messages/send":
			var req models.SendRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "text", req.MessageType)
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(models.SentMessage{Message: models.Message{ID: 9, ReceiverID: req.ReceiverID, Content: req.Content}})
		case "/api/messages/read/2":
			assert.Equal(t, http.MethodPut, r.Method)
			w.Write([]byte(`{"message":"Messages marked as read","updated":2}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	sent, err := api.SendMessage(context.Background(), 2, "hi")
	require.NoError(t, err)
	assert.Equal(t, int64(9), sent.ID)

	updated, err := api.MarkRead(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)
}

func TestStream(t *testing.T) {
	frames := make(chan Event, 1)
	upgrader := websocket.Upgrader{}
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" || r.URL.Query().Get("token") != "tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteJSON(Event{Type: EventUserTyping, Payload: json.RawMessage(`{"userId":2,"isTyping":true}`)})
		var ev Event
		if conn.ReadJSON(&ev) == nil {
			frames <- ev
		}
	})

	_, err := api.Dial(context.Background())
	require.Error(t, err)

	api.SetToken("bad")
	_, err = api.Dial(context.Background())
	assert.True(t, IsUnauthorized(err))
	assert.Empty(t, api.Token())

	api.SetToken("tok")
	stream, err := api.Dial(context.Background())
	require.NoError(t, err)
	defer stream.Close()

	ev, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, EventUserTyping, ev.Type)

	require.NoError(t, stream.SendTyping(2, true))
	select {
	case got := <-frames:
		assert.Equal(t, "typing", got.Type)
		assert.JSONEq(t, `{"receiverId":2,"isTyping":true}`, string(got.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("typing frame not received")
	}
}
