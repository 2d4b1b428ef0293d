// Copyright (C) 2025 PeerFusion contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/peerfusion/peerfusion/backend/models"
	"github.com/peerfusion/peerfusion/backend/respond"
)

type Accounts interface {
	Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	UpdateProfile(ctx context.Context, id int64, update models.ProfileUpdate) (*models.User, error)
}

type AuthHandler struct {
	accounts Accounts
	log      *zap.SugaredLogger
}

func NewAuthHandler(accounts Accounts, log *zap.SugaredLogger) *AuthHandler {
	return &AuthHandler{accounts: accounts, log: log}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := decodeJSON(w, r, &req, ""); err != nil {
		respond.Error(w, h.log, err)
		return
	}

	resp, err := h.accounts.Register(r.Context(), req)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusCreated, resp)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decodeJSON(w, r, &req, "email and password are required"); err != nil {
		respond.Error(w, h.log, err)
		return
	}

	resp, err := h.accounts.Login(r.Context(), req)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, resp)
}

// Me returns the caller's own profile.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	user, err := h.accounts.GetUser(r.Context(), userID)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, user)
}
