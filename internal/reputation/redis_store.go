package reputation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/credichain/lending/internal/logger"
)

// RedisStore keeps the mapping as one JSON value under a single key.
type RedisStore struct {
	client redis.Cmdable
	key    string
}

func NewRedisStore(client redis.Cmdable, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) Load(ctx context.Context) (Records, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Records{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", s.key, err)
	}

	records := Records{}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.key, err)
	}
	// A JSON null decodes to a nil map.
	if records == nil {
		records = Records{}
	}
	return records, nil
}

func (s *RedisStore) Save(ctx context.Context, records Records) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	return nil
}

// RedisOptions selects the Redis instance backing a RedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// ConnectRedis opens a client and verifies it with PING.
func ConnectRedis(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	logger.CtxInfo(ctx, "connecting to redis",
		slog.String("addr", opts.Addr),
		slog.Int("db", opts.DB),
	)

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return client, nil
}
