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
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Presence keys outlive a missed heartbeat or two, then expire.
	PresenceTTL = 2 * time.Minute

	// Redis key prefixes
	notifyChannelPrefix = "msg:notify:"  // msg:notify:{userId} - pub/sub channel
	pendingPrefix       = "msg:pending:" // msg:pending:{userId} - list of undelivered payloads
	presencePrefix      = "presence:"    // presence:{userId} - zset of session ids scored by expiry
)

// Notifier routes real-time payloads to a user's live sessions on any server
// instance, queueing them while the user has no live session.
type Notifier struct {
	rdb        *redis.Client
	pendingTTL time.Duration
	pendingMax int64
	now        func() time.Time
}

func NewNotifier(rdb *redis.Client, pendingTTL time.Duration, pendingMax int64) *Notifier {
	return &Notifier{
		rdb:        rdb,
		pendingTTL: pendingTTL,
		pendingMax: pendingMax,
		now:        time.Now,
	}
}

func NotifyChannel(userID int64) string {
	return notifyChannelPrefix + strconv.FormatInt(userID, 10)
}

// UserIDFromChannel is the inverse of NotifyChannel.
func UserIDFromChannel(channel string) (int64, bool) {
	raw, ok := strings.CutPrefix(channel, notifyChannelPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func pendingKey(userID int64) string {
	return pendingPrefix + strconv.FormatInt(userID, 10)
}

func presenceKey(userID int64) string {
	return presencePrefix + strconv.FormatInt(userID, 10)
}

// queueIfOffline appends ARGV[2] to the pending list KEYS[2] unless the
// presence set KEYS[1] holds a session expiring after ARGV[1]. Checking and
// queueing in one step means a frame is either queued before the session
// appears, where the connect-time replay finds it, or published to it.
var queueIfOffline = redis.NewScript(`
if redis.call('ZCOUNT', KEYS[1], '(' .. ARGV[1], '+inf') > 0 then
	return 0
end
redis.call('RPUSH', KEYS[2], ARGV[2])
redis.call('LTRIM', KEYS[2], -tonumber(ARGV[3]), -1)
redis.call('PEXPIRE', KEYS[2], ARGV[4])
return 1
`)

// Deliver publishes payload to the user's sessions, or appends it to the
// pending queue when the user has none. queued reports which path was taken.
func (n *Notifier) Deliver(ctx context.Context, userID int64, payload []byte) (queued bool, err error) {
	res, err := queueIfOffline.Run(ctx, n.rdb,
		[]string{presenceKey(userID), pendingKey(userID)},
		n.now().UnixMilli(), payload, n.pendingMax, n.pendingTTL.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to queue notification: %w", err)
	}
	if res == 1 {
		return true, nil
	}
	return false, n.Publish(ctx, userID, payload)
}

// Publish sends payload to whoever is subscribed right now. Nothing is queued.
func (n *Notifier) Publish(ctx context.Context, userID int64, payload []byte) error {
	if err := n.rdb.Publish(ctx, NotifyChannel(userID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// PeekPending returns up to limit queued payloads for the user, oldest first,
// without removing them. AckPending removes them once they are delivered.
func (n *Notifier) PeekPending(ctx context.Context, userID int64, limit int64) ([][]byte, error) {
	raw, err := n.rdb.LRange(ctx, pendingKey(userID), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read pending notifications: %w", err)
	}

	payloads := make([][]byte, 0, len(raw))
	for _, item := range raw {
		payloads = append(payloads, []byte(item))
	}
	return payloads, nil
}

// AckPending drops the count oldest queued payloads.
func (n *Notifier) AckPending(ctx context.Context, userID int64, count int) error {
	if count <= 0 {
		return nil
	}
	if err := n.rdb.LTrim(ctx, pendingKey(userID), int64(count), -1).Err(); err != nil {
		return fmt.Errorf("failed to acknowledge pending notifications: %w", err)
	}
	return nil
}

// Subscribe listens on every user's channel. The caller filters by the users
// it holds sessions for and must Close the returned PubSub.
func (n *Notifier) Subscribe(ctx context.Context) *redis.PubSub {
	return n.rdb.PSubscribe(ctx, notifyChannelPrefix+"*")
}
