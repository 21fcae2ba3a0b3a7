// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string // host:port
	Password string
	DB       int
}

// Redis keeps the ledger in a Redis set, shared by every bridge pointed at
// the same namespace.
type Redis struct {
	client *redis.Client
	key    string
}

// OpenRedis connects and pings the server.
func OpenRedis(ctx context.Context, cfg RedisConfig, namespace string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ledger: redis connection failed: %w", err)
	}
	return newRedis(client, namespace), nil
}

func newRedis(client *redis.Client, namespace string) *Redis {
	return &Redis{client: client, key: "nlbridge:ledger:" + namespace}
}

func (r *Redis) Has(ctx context.Context, ts string) (bool, error) {
	ok, err := r.client.SIsMember(ctx, r.key, ts).Result()
	if err != nil {
		return false, fmt.Errorf("ledger: redis sismember: %w", err)
	}
	return ok, nil
}

func (r *Redis) Add(ctx context.Context, ts string) error {
	if ts == "" {
		return ErrEmptyTimestamp
	}
	if err := r.client.SAdd(ctx, r.key, ts).Err(); err != nil {
		return fmt.Errorf("ledger: redis sadd: %w", err)
	}
	return nil
}

func (r *Redis) Len(ctx context.Context) (int, error) {
	n, err := r.client.SCard(ctx, r.key).Result()
	if err != nil {
		return 0, fmt.Errorf("ledger: redis scard: %w", err)
	}
	return int(n), nil
}

// Ping reports whether the server is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error { return r.client.Close() }
