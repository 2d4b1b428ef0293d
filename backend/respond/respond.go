// Copyright (C) 2025 PeerFusion contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package respond

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/peerfusion/peerfusion/backend/apperrors"
)

type errorBody struct {
	Error string `json:"error"`
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes {"error": msg} with the status mapped from err. Internal
// causes are logged and never sent to the client.
func Error(w http.ResponseWriter, log *zap.SugaredLogger, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError && log != nil {
		log.Errorw("request failed", "error", err)
	}
	JSON(w, status, errorBody{Error: apperrors.PublicMessage(err)})
}

// Message writes {"error": msg} for errors raised outside the service layer.
func Message(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, errorBody{Error: msg})
}
