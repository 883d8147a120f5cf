package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"quoteengine/internal/provider"
)

// Connect initializes a Redis client from URL or host:port input.
func Connect(_ context.Context, redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// Redis is a Store shared between engine instances.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "quoteengine:"
	}
	return &Redis{client: client, prefix: prefix}
}

func (s *Redis) Get(ctx context.Context, key string) ([]provider.Quote, bool, error) {
	raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var out []provider.Quote
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func (s *Redis) Set(ctx context.Context, key string, quotes []provider.Quote, ttl time.Duration) error {
	raw, err := json.Marshal(quotes)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+key, raw, ttl).Err()
}
