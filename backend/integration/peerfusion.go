// Copyright (C) 2025 PeerFusion contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package integration

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/peerfusion/peerfusion/backend/handlers"
	"github.com/peerfusion/peerfusion/backend/metrics"
	"github.com/peerfusion/peerfusion/backend/middleware"
	"github.com/peerfusion/peerfusion/backend/respond"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Config holds everything the HTTP surface needs. Realtime, SendLimiter and
// Metrics are optional.
type Config struct {
	Messages       handlers.Messenger
	Accounts       handlers.Accounts
	Tokens         *middleware.TokenManager
	SendLimiter    middleware.Limiter
	Realtime       http.Handler
	HealthChecks   map[string]HealthCheck
	Metrics        *metrics.Metrics
	Log            *zap.SugaredLogger
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// NewHandler builds the full PeerFusion HTTP handler.
func NewHandler(cfg Config) http.Handler {
	router := mux.NewRouter()
	RegisterRoutes(router, cfg)
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respond.Message(w, http.StatusNotFound, "route not found")
	})

	// CORS wraps the router so preflight requests never need a matching route.
	return middleware.RequestID(middleware.CORS(cfg.AllowedOrigins)(router))
}

// RegisterRoutes adds the PeerFusion routes to an existing router.
func RegisterRoutes(router *mux.Router, cfg Config) {
	router.Use(middleware.Recover(cfg.Log), middleware.Logger(cfg.Log, cfg.Metrics))

	router.HandleFunc("/health", health(cfg.HealthChecks, cfg.Log)).Methods("GET")
	if cfg.Metrics != nil {
		router.Handle("/metrics", cfg.Metrics.Handler()).Methods("GET")
	}
	if cfg.Realtime != nil {
		router.Handle("/ws", cfg.Realtime).Methods("GET")
	}

	api := router.PathPrefix("/api").Subrouter()
	api.Use(middleware.Timeout(cfg.RequestTimeout))

	auth := middleware.NewAuthMiddleware(cfg.Tokens)
	protect := func(h http.HandlerFunc) http.Handler {
		return auth(h)
	}

	authHandler := handlers.NewAuthHandler(cfg.Accounts, cfg.Log)
	api.HandleFunc("/auth/register", authHandler.Register).Methods("POST")
	api.HandleFunc("/auth/login", authHandler.Login).Methods("POST")
	api.Handle("/auth/me", protect(authHandler.Me)).Methods("GET")

	userHandler := handlers.NewUserHandler(cfg.Accounts, cfg.Log)
	api.Handle("/users/profile", protect(userHandler.UpdateProfile)).Methods("PUT")
	api.Handle("/users/{id}", protect(userHandler.GetUser)).Methods("GET")

	messageHandler := handlers.NewMessageHandler(cfg.Messages, cfg.Log)
	var send http.Handler = http.HandlerFunc(messageHandler.SendMessage)
	if cfg.SendLimiter != nil {
		send = middleware.RateLimitByUser(cfg.SendLimiter, cfg.Log)(send)
	}
	api.Handle("/messages/conversations", protect(messageHandler.GetConversations)).Methods("GET")
	api.Handle("/messages/chat/{userId}", protect(messageHandler.GetChatHistory)).Methods("GET")
	api.Handle("/messages/send", auth(send)).Methods("POST")
	api.Handle("/messages/read/{senderId}", protect(messageHandler.MarkAsRead)).Methods("PUT")
	api.Handle("/messages/unread/count", protect(messageHandler.GetUnreadCount)).Methods("GET")
}

func health(checks map[string]HealthCheck, log *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		for name, check := range checks {
			if err := check(ctx); err != nil {
				log.Warnw("health check failed", "dependency", name, "error", err)
				http.Error(w, name+" unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("OK"))
	}
}
