// Package cache keeps a short-lived Redis copy of event details for display.
//
// The copy is never consulted by registration: capacity decisions are always
// made against the locked database row. A nil *EventCache is valid and
// behaves as a cache that is always empty.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Shivanand-hulikatti/event-lifecycle/internal/model"
	"github.com/redis/go-redis/v9"
)

// EventCache stores events as JSON under event:<id>.
type EventCache struct {
	rdb *redis.Client
	ttl time.Duration
	log *slog.Logger
}

// NewEventCache constructs an EventCache.
func NewEventCache(rdb *redis.Client, ttl time.Duration, log *slog.Logger) *EventCache {
	return &EventCache{rdb: rdb, ttl: ttl, log: log}
}

func key(eventID string) string {
	return fmt.Sprintf("event:%s", eventID)
}

// Get returns the cached event, if any. Redis failures are logged and
// reported as a miss.
func (c *EventCache) Get(ctx context.Context, eventID string) (*model.Event, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, key(eventID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.WarnContext(ctx, "event cache get failed",
				slog.String("event_id", eventID),
				slog.String("error", err.Error()),
			)
		}
		return nil, false
	}

	var e model.Event
	if err := json.Unmarshal(raw, &e); err != nil {
		c.log.WarnContext(ctx, "event cache entry corrupt",
			slog.String("event_id", eventID),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	return &e, true
}

// Set stores e for the configured TTL.
func (c *EventCache) Set(ctx context.Context, e *model.Event) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key(e.ID), raw, c.ttl).Err(); err != nil {
		c.log.WarnContext(ctx, "event cache set failed",
			slog.String("event_id", e.ID),
			slog.String("error", err.Error()),
		)
	}
}

// Invalidate drops the cached copy of an event.
func (c *EventCache) Invalidate(ctx context.Context, eventID string) {
	if c == nil {
		return
	}
	if err := c.rdb.Del(ctx, key(eventID)).Err(); err != nil {
		c.log.WarnContext(ctx, "event cache invalidate failed",
			slog.String("event_id", eventID),
			slog.String("error", err.Error()),
		)
	}
}
