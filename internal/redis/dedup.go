package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/null-channel/twitch-alerts/internal/domain"
)

const (
	DefaultDedupTTL = 10 * time.Minute
	dedupKeyPrefix  = "eventsub:msg:"
)

// Deduplicator claims message ids with SET NX so redelivered notifications are dropped across
// restarts and replicas. Claims expire after the TTL.
type Deduplicator struct {
	rdb *goredis.Client
	ttl time.Duration
}

var _ domain.Deduplicator = (*Deduplicator)(nil)

func NewDeduplicator(rdb *goredis.Client, ttl time.Duration) *Deduplicator {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &Deduplicator{rdb: rdb, ttl: ttl}
}

func (d *Deduplicator) FirstSeen(ctx context.Context, messageID string) (bool, error) {
	if messageID == "" {
		return true, nil
	}
	claimed, err := d.rdb.SetNX(ctx, dedupKey(messageID), 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim message %s: %w", messageID, err)
	}
	return claimed, nil
}

func dedupKey(messageID string) string {
	return dedupKeyPrefix + messageID
}
