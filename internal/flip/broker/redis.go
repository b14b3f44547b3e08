package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"flipmarket/internal/flip/checkout"
)

// ChannelPrefix prefixes the per-item Redis Pub/Sub channel.
const ChannelPrefix = "flip_events:"

type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher fans commit events out over Redis Pub/Sub for live consumers.
type RedisPublisher struct {
	rdb redisPublisher
}

// NewRedisPublisher wraps a redis client.
func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

// Channel returns the Pub/Sub channel for an item.
func Channel(itemID string) string {
	return ChannelPrefix + itemID
}

// PublishCommit publishes the event on the item channel.
func (p *RedisPublisher) PublishCommit(ctx context.Context, ev checkout.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal commit: %w", err)
	}
	if err := p.rdb.Publish(ctx, Channel(ev.ItemID), payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}
