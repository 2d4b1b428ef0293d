// Copyright (C) 2025 PeerFusion contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App       AppCfg       `mapstructure:"app"`
	Server    ServerCfg    `mapstructure:"server"`
	Database  DatabaseCfg  `mapstructure:"database"`
	Redis     RedisCfg     `mapstructure:"redis"`
	JWT       JWTCfg       `mapstructure:"jwt"`
	CORS      CORSCfg      `mapstructure:"cors"`
	RateLimit RateLimitCfg `mapstructure:"ratelimit"`
	Realtime  RealtimeCfg  `mapstructure:"realtime"`
	Kafka     KafkaCfg     `mapstructure:"kafka"`
}

type AppCfg struct {
	Env string `mapstructure:"env"`
}

func (a AppCfg) Development() bool {
	return a.Env == "development"
}

type ServerCfg struct {
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseCfg struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisCfg struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTCfg struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type CORSCfg struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitCfg struct {
	SendPerMinute int `mapstructure:"send_per_minute"`
}

type RealtimeCfg struct {
	MessagesPerSecond int           `mapstructure:"messages_per_second"`
	PendingTTL        time.Duration `mapstructure:"pending_ttl"`
	PendingMax        int64         `mapstructure:"pending_max"`
}

type KafkaCfg struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

func (k KafkaCfg) Enabled() bool {
	return len(k.Brokers) > 0
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "production")

	v.SetDefault("server.port", "5050")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.request_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.url", "postgres://localhost/peerfusion?sslmode=disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("jwt.issuer", "peerfusion")
	v.SetDefault("jwt.ttl", 7*24*time.Hour)

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("ratelimit.send_per_minute", 60)

	v.SetDefault("realtime.messages_per_second", 10)
	v.SetDefault("realtime.pending_ttl", 7*24*time.Hour)
	v.SetDefault("realtime.pending_max", 500)

	v.SetDefault("kafka.topic", "message.sent")
}

// Load reads configuration from an optional YAML file at path, the process
// environment and a .env file in the working directory, in increasing order of
// precedence for the environment. Nested keys map to env vars by replacing dots
// with underscores (server.port -> SERVER_PORT).
func Load(path string) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only consults keys viper already knows about.
	for key, env := range map[string]string{
		"database.url":   "DATABASE_URL",
		"redis.password": "REDIS_PASSWORD",
		"jwt.secret":     "JWT_SECRET",
		"kafka.brokers":  "KAFKA_BROKERS",
	} {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Env vars arrive as a single comma separated string.
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)
	cfg.CORS.AllowedOrigins = splitList(cfg.CORS.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required (JWT_SECRET)")
	}
	if c.Database.URL == "" {
		return errors.New("database.url is required (DATABASE_URL)")
	}
	if c.Server.RequestTimeout <= 0 || c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return errors.New("server timeouts must be positive")
	}
	if c.JWT.TTL <= 0 {
		return errors.New("jwt.ttl must be positive")
	}
	if c.Realtime.MessagesPerSecond <= 0 {
		return errors.New("realtime.messages_per_second must be positive")
	}
	return nil
}

func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
