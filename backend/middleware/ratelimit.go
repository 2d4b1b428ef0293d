// Copyright (C) 2025 PeerFusion contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package middleware

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/peerfusion/peerfusion/backend/respond"
)

type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimitByUser limits authenticated callers per user id. It must run
// after the auth middleware. Limiter errors let the request through.
func RateLimitByUser(limiter Limiter, log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := GetUserID(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			allowed, err := limiter.Allow(r.Context(), strconv.FormatInt(userID, 10))
			if err != nil {
				log.Warnw("rate limiter unavailable", "error", err, "user_id", userID)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				respond.Message(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
