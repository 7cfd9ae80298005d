package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher publishes events on a Redis pub/sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher builds a publisher for channel.
func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

// Name implements Publisher.
func (p *RedisPublisher) Name() string {
	return "redis"
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, payload).Err()
}
