// Copyright (C) 2025 PeerFusion contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Each session carries its own expiry as its score, so a session left behind
// by a crashed instance stops counting once its heartbeats stop, even while
// other sessions of the same user stay alive.

// AddSession marks one live session for the user.
func (n *Notifier) AddSession(ctx context.Context, userID int64, sessionID string) error {
	if err := n.touchSession(ctx, userID, sessionID); err != nil {
		return fmt.Errorf("failed to add session: %w", err)
	}
	return nil
}

// RefreshSession extends one session's presence after a heartbeat.
func (n *Notifier) RefreshSession(ctx context.Context, userID int64, sessionID string) error {
	if err := n.touchSession(ctx, userID, sessionID); err != nil {
		return fmt.Errorf("failed to refresh presence: %w", err)
	}
	return nil
}

func (n *Notifier) touchSession(ctx context.Context, userID int64, sessionID string) error {
	key := presenceKey(userID)
	now := n.now()

	pipe := n.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(now.UnixMilli(), 10))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.Add(PresenceTTL).UnixMilli()), Member: sessionID})
	pipe.Expire(ctx, key, PresenceTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (n *Notifier) RemoveSession(ctx context.Context, userID int64, sessionID string) error {
	if err := n.rdb.ZRem(ctx, presenceKey(userID), sessionID).Err(); err != nil {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}

// IsOnline reports whether the user has at least one unexpired session on any instance.
func (n *Notifier) IsOnline(ctx context.Context, userID int64) (bool, error) {
	from := "(" + strconv.FormatInt(n.now().UnixMilli(), 10)
	count, err := n.rdb.ZCount(ctx, presenceKey(userID), from, "+inf").Result()
	if err != nil {
		return false, fmt.Errorf("failed to read presence: %w", err)
	}
	return count > 0, nil
}
