// Copyright (C) 2025 PeerFusion contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/peerfusion/peerfusion/backend/models"
	"github.com/peerfusion/peerfusion/backend/respond"
)

type UserHandler struct {
	accounts Accounts
	log      *zap.SugaredLogger
}

func NewUserHandler(accounts Accounts, log *zap.SugaredLogger) *UserHandler {
	return &UserHandler{accounts: accounts, log: log}
}

// GetUser serves /users/{id}, where id may be "me".
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	callerID, err := currentUser(r)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	userID := callerID
	if mux.Vars(r)["id"] != "me" {
		if userID, err = pathID(r, "id", "invalid user id"); err != nil {
			respond.Error(w, h.log, err)
			return
		}
	}

	user, err := h.accounts.GetUser(r.Context(), userID)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, user)
}

func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	var update models.ProfileUpdate
	if err := decodeJSON(w, r, &update, "first name and last name are required"); err != nil {
		respond.Error(w, h.log, err)
		return
	}

	user, err := h.accounts.UpdateProfile(r.Context(), userID, update)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, user)
}
