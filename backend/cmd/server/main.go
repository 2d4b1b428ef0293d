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

package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/peerfusion/peerfusion/backend/accounts"
	"github.com/peerfusion/peerfusion/backend/config"
	"github.com/peerfusion/peerfusion/backend/events"
	"github.com/peerfusion/peerfusion/backend/integration"
	"github.com/peerfusion/peerfusion/backend/logging"
	"github.com/peerfusion/peerfusion/backend/messaging"
	"github.com/peerfusion/peerfusion/backend/metrics"
	"github.com/peerfusion/peerfusion/backend/middleware"
	"github.com/peerfusion/peerfusion/backend/realtime"
	"github.com/peerfusion/peerfusion/backend/storage/postgres"
	redisstore "github.com/peerfusion/peerfusion/backend/storage/redis"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// No logger yet.
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logging.New(cfg.App.Development())
	if err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatalw("server stopped", "error", err)
	}
}

func run(cfg *config.Config, log *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database connection
	db, err := postgres.Open(ctx, cfg.Database.URL, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		return err
	}
	store := postgres.NewStore(db)
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return err
	}

	// Redis connection
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return err
	}

	m := metrics.New()

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Kafka.Enabled() {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		log.Infow("publishing message events", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}
	defer publisher.Close()

	notifier := redisstore.NewNotifier(rdb, cfg.Realtime.PendingTTL, cfg.Realtime.PendingMax)
	hub := realtime.NewHub(notifier, cfg.Realtime.MessagesPerSecond, m, log)
	if err := hub.Start(ctx); err != nil {
		return err
	}
	defer hub.Close()

	tokens := middleware.NewTokenManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL)

	handler := integration.NewHandler(integration.Config{
		Messages:    messaging.NewService(store, hub, publisher, m, log),
		Accounts:    accounts.NewService(store, tokens, accounts.DefaultBcryptCost, log),
		Tokens:      tokens,
		SendLimiter: redisstore.NewRateLimiter(rdb, "send", cfg.RateLimit.SendPerMinute, time.Minute),
		Realtime:    realtime.NewHandler(hub, tokens, cfg.CORS.AllowedOrigins),
		HealthChecks: map[string]integration.HealthCheck{
			"database": store.Ping,
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
		Metrics:        m,
		Log:            log,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("server starting", "port", cfg.Server.Port, "env", cfg.App.Env)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
