// Copyright (C) 2025 PeerFusion contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/peerfusion/peerfusion/backend/apperrors"
	"github.com/peerfusion/peerfusion/backend/middleware"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report json field names so messages match the request body.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON decodes and validates the request body into dst. Any failure
// becomes an InvalidArgument error; fallback, when set, replaces the
// validator's own message.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, fallback string) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.InvalidArg("invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		if fallback != "" {
			return apperrors.InvalidArg(fallback)
		}
		return apperrors.InvalidArg(validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return "invalid request body"
	}
	fe := ve[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// pathID parses a positive integer path variable.
func pathID(r *http.Request, name, invalidMsg string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.InvalidArg(invalidMsg)
	}
	return id, nil
}

func currentUser(r *http.Request) (int64, error) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		return 0, apperrors.Unauthorized("access token required")
	}
	return userID, nil
}
