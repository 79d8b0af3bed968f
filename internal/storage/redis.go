package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBackend keeps every namespace in two Redis keys: a hash holding the
// records and a zero-score sorted set holding the record keys, which gives
// lexical ordering for List.
type RedisBackend struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisBackend wraps an existing client. All keys are prefixed with prefix.
func NewRedisBackend(rdb *redis.Client, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = "board"
	}
	return &RedisBackend{rdb: rdb, prefix: prefix}
}

func (b *RedisBackend) Namespace(name string) Store {
	base := fmt.Sprintf("%s:%s", b.prefix, name)
	return &redisStore{
		rdb:      b.rdb,
		dataKey:  base + ":data",
		indexKey: base + ":keys",
	}
}

func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

func (b *RedisBackend) Close() error {
	return b.rdb.Close()
}

type redisStore struct {
	rdb      *redis.Client
	dataKey  string
	indexKey string
}

func (s *redisStore) Put(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal record %q: %w", key, err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.dataKey, key, data)
		pipe.ZAdd(ctx, s.indexKey, redis.Z{Score: 0, Member: key})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write record %q to Redis: %w", key, err)
	}
	return nil
}

func (s *redisStore) Get(ctx context.Context, key string, dst any) (bool, error) {
	data, err := s.rdb.HGet(ctx, s.dataKey, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read record %q from Redis: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("failed to decode record %q: %w", key, err)
	}
	return true, nil
}

func (s *redisStore) Delete(ctx context.Context, key string) (bool, error) {
	var removed *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.HDel(ctx, s.dataKey, key)
		pipe.ZRem(ctx, s.indexKey, key)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete record %q from Redis: %w", key, err)
	}
	return removed.Val() > 0, nil
}

func (s *redisStore) List(ctx context.Context, opts ListOptions) ([]json.RawMessage, error) {
	rng := &redis.ZRangeBy{Min: "-", Max: "+"}
	if opts.Limit > 0 {
		rng.Count = int64(opts.Limit)
	}

	var keys []string
	var err error
	if opts.Reverse {
		keys, err = s.rdb.ZRevRangeByLex(ctx, s.indexKey, rng).Result()
	} else {
		keys, err = s.rdb.ZRangeByLex(ctx, s.indexKey, rng).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list keys from Redis: %w", err)
	}
	if len(keys) == 0 {
		return []json.RawMessage{}, nil
	}

	values, err := s.rdb.HMGet(ctx, s.dataKey, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read records from Redis: %w", err)
	}

	out := make([]json.RawMessage, 0, len(values))
	for _, v := range values {
		// A key can vanish between the two reads; skip it.
		str, ok := v.(string)
		if !ok {
			continue
		}
		out = append(out, json.RawMessage(str))
	}
	return out, nil
}
