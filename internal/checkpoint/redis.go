package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps checkpoints under alignment:checkpoint:<gameID>.
type RedisStore struct {
	client *redis.Client
}

func OpenRedis(ctx context.Context, addr string) (*RedisStore, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisStore(client), nil
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(gameID string) string {
	return "alignment:checkpoint:" + gameID
}

func (s *RedisStore) Get(ctx context.Context, gameID string) (string, error) {
	id, err := s.client.Get(ctx, redisKey(gameID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load checkpoint: %w", err)
	}
	return id, nil
}

func (s *RedisStore) Set(ctx context.Context, gameID, eventID string) error {
	if err := validate(gameID); err != nil {
		return err
	}
	if err := s.client.Set(ctx, redisKey(gameID), eventID, 0).Err(); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error { return s.client.Close() }
