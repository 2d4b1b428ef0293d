// Copyright (C) 2025 PeerFusion contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package client is a Go SDK for the PeerFusion API: a REST client, a
// WebSocket event stream and the chat view state used by interactive clients.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/peerfusion/peerfusion/backend/models"
)

type Config struct {
	BaseURL         string
	Timeout         time.Duration
	RetryMaxElapsed time.Duration
}

// APIError is a non-2xx response. Message is the server's "error" field.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("peerfusion: %d %s", e.Status, e.Message)
}

// IsUnauthorized reports whether err is a 401 from the API.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

type API struct {
	http            *http.Client
	baseURL         string
	retryMaxElapsed time.Duration

	mu    sync.RWMutex
	token string
}

func NewAPI(cfg Config) *API {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RetryMaxElapsed <= 0 {
		cfg.RetryMaxElapsed = 10 * time.Second
	}
	tr := &http.Transport{
		DialContext:     (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
	}
	return &API{
		http:            &http.Client{Transport: tr, Timeout: cfg.Timeout},
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		retryMaxElapsed: cfg.RetryMaxElapsed,
	}
}

func (a *API) SetToken(token string) {
	a.mu.Lock()
	a.token = token
	a.mu.Unlock()
}

func (a *API) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

func (a *API) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	var resp models.AuthResponse
	if err := a.do(ctx, http.MethodPost, "/api/auth/register", req, &resp); err != nil {
		return nil, err
	}
	a.SetToken(resp.Token)
	return &resp, nil
}

func (a *API) Login(ctx context.Context, email, password string) (*models.AuthResponse, error) {
	var resp models.AuthResponse
	err := a.do(ctx, http.MethodPost, "/api/auth/login", models.LoginRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return nil, err
	}
	a.SetToken(resp.Token)
	return &resp, nil
}

func (a *API) Me(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := a.do(ctx, http.MethodGet, "/api/auth/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (a *API) Conversations(ctx context.Context) ([]models.ConversationSummary, error) {
	var conversations []models.ConversationSummary
	if err := a.do(ctx, http.MethodGet, "/api/messages/conversations", nil, &conversations); err != nil {
		return nil, err
	}
	return conversations, nil
}

func (a *API) ChatHistory(ctx context.Context, userID int64) ([]models.ChatMessage, error) {
	var history []models.ChatMessage
	path := "/api/messages/chat/" + strconv.FormatInt(userID, 10)
	if err := a.do(ctx, http.MethodGet, path, nil, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func (a *API) SendMessage(ctx context.Context, receiverID int64, content string) (*models.SentMessage, error) {
	var sent models.SentMessage
	req := models.SendRequest{ReceiverID: receiverID, Content: content, MessageType: models.DefaultMessageType}
	if err := a.do(ctx, http.MethodPost, "/api/messages/send", req, &sent); err != nil {
		return nil, err
	}
	return &sent, nil
}

func (a *API) MarkRead(ctx context.Context, senderID int64) (int64, error) {
	var resp struct {
		Updated int64 `json:"updated"`
	}
	path := "/api/messages/read/" + strconv.FormatInt(senderID, 10)
	if err := a.do(ctx, http.MethodPut, path, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

func (a *API) UnreadCount(ctx context.Context) (int64, error) {
	var resp struct {
		UnreadCount int64 `json:"unreadCount"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/messages/unread/count", nil, &resp); err != nil {
		return 0, err
	}
	return resp.UnreadCount, nil
}

// do sends one API call. GETs are retried with exponential backoff on
// transport errors and 5xx responses; 4xx responses are final. A 401 drops
// the stored token.
func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if token := a.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := a.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			apiErr := decodeError(resp)
			if resp.StatusCode == http.StatusUnauthorized {
				a.SetToken("")
			}
			if resp.StatusCode >= 500 {
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}

		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode response: %w", err))
		}
		return nil
	}

	if method != http.MethodGet {
		err := operation()
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return permanent.Err
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = a.retryMaxElapsed
	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}

func decodeError(resp *http.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		apiErr.Message = body.Error
	}
	return apiErr
}
