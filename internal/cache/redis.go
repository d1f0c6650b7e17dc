// Package cache keeps computed availability in Redis for the read endpoint.
// Entries are keyed by a per-item version number; writers bump the version
// instead of deleting keys, and stale versions expire through their TTL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"storage-booking-backend/internal/domain"

	"github.com/redis/go-redis/v9"
)

const (
	availabilityKeyPrefix = "availability:"
	versionKeyPrefix      = "availability-version:"
	defaultTTL            = 30 * time.Second
)

type AvailabilityCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

func NewAvailabilityCache(client *redis.Client, ttl time.Duration, log *slog.Logger) *AvailabilityCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &AvailabilityCache{client: client, ttl: ttl, log: log}
}

func (c *AvailabilityCache) Get(ctx context.Context, itemID string, start, end time.Time) (*domain.Availability, bool) {
	key, err := c.key(ctx, itemID, start, end)
	if err != nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("Availability cache read failed", "item_id", itemID, "error", err)
		}
		return nil, false
	}
	var a domain.Availability
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, false
	}
	return &a, true
}

func (c *AvailabilityCache) Set(ctx context.Context, a *domain.Availability, start, end time.Time) {
	key, err := c.key(ctx, a.ItemID, start, end)
	if err != nil {
		return
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.log.Warn("Availability cache write failed", "item_id", a.ItemID, "error", err)
	}
}

func (c *AvailabilityCache) Invalidate(ctx context.Context, itemIDs ...string) {
	if len(itemIDs) == 0 {
		return
	}
	pipe := c.client.Pipeline()
	for _, id := range itemIDs {
		pipe.Incr(ctx, versionKeyPrefix+id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn("Availability cache invalidation failed", "items", itemIDs, "error", err)
	}
}

func (c *AvailabilityCache) key(ctx context.Context, itemID string, start, end time.Time) (string, error) {
	version, err := c.client.Get(ctx, versionKeyPrefix+itemID).Result()
	if errors.Is(err, redis.Nil) {
		version = "0"
	} else if err != nil {
		c.log.Warn("Availability cache version read failed", "item_id", itemID, "error", err)
		return "", err
	}
	return availabilityKeyPrefix + itemID + ":" + version + ":" + domain.FormatDay(start) + ":" + domain.FormatDay(end), nil
}
