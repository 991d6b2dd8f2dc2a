package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig enthält die Verbindungsdaten für Redis
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisKV implementiert KV mit Redis
type RedisKV struct {
	rdb *redis.Client
}

// NewRedisKV verbindet sich mit Redis und prüft die Verbindung
func NewRedisKV(cfg RedisConfig) (*RedisKV, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping fehlgeschlagen: %w", err)
	}
	return &RedisKV{rdb: rdb}, nil
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *RedisKV) Set(ctx context.Context, key, value string) error {
	return r.rdb.Set(ctx, key, value, 0).Err()
}

func (r *RedisKV) Close() error {
	return r.rdb.Close()
}
