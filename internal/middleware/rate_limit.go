package middleware

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/kramik-ledger-api/internal/utils"
)

const rateLimitPrefix = "ratelimit:"

// RateLimit limits write traffic per wallet; anonymous callers are keyed by
// IP. With a Redis client the window is shared by every API node.
func RateLimit(identifier string, max int, window time.Duration, store *redis.Client) fiber.Handler {
	if max <= 0 {
		max = 10
	}
	if window <= 0 {
		window = time.Second
	}

	cfg := limiter.Config{
		Max:        max,
		Expiration: window,
		LimitReached: func(c *fiber.Ctx) error {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(window.Seconds())))
			return utils.SendError(c, fiber.StatusTooManyRequests, "rate limit exceeded")
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			key := WalletAddress(c)
			if key == "" {
				key = c.IP()
			}
			return identifier + ":" + key
		},
	}
	if store != nil {
		cfg.Storage = &redisStorage{client: store}
	}
	return limiter.New(cfg)
}

// redisStorage implements fiber.Storage on go-redis.
type redisStorage struct {
	client *redis.Client
}

func (s *redisStorage) Get(key string) ([]byte, error) {
	value, err := s.client.Get(context.Background(), rateLimitPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return value, err
}

func (s *redisStorage) Set(key string, value []byte, exp time.Duration) error {
	if key == "" || len(value) == 0 {
		return nil
	}
	return s.client.Set(context.Background(), rateLimitPrefix+key, value, exp).Err()
}

func (s *redisStorage) Delete(key string) error {
	return s.client.Del(context.Background(), rateLimitPrefix+key).Err()
}

func (s *redisStorage) Reset() error {
	ctx := context.Background()
	iter := s.client.Scan(ctx, 0, rateLimitPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Close is a no-op; the client is shared with the rest of the API.
func (s *redisStorage) Close() error {
	return nil
}
