package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const sectionKeyPrefix = "snapshot:"

// RedisStore persists snapshot sections as blobs under prefixed keys.
type RedisStore struct {
	rdb *redis.Client
	ctx context.Context
}

func NewRedisStore(addr string) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx := context.Background()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisStore{rdb: rdb, ctx: ctx}, nil
}

func (s *RedisStore) Save(section string, data []byte) error {
	if err := s.rdb.Set(s.ctx, sectionKeyPrefix+section, data, 0).Err(); err != nil {
		return fmt.Errorf("save %s: %w", section, err)
	}
	return nil
}

func (s *RedisStore) Load(section string) ([]byte, error) {
	data, err := s.rdb.Get(s.ctx, sectionKeyPrefix+section).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", section, err)
	}
	return data, nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
