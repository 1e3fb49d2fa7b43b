package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/loopline/realtime/internals/metrics"
)

// Redis implements Store on a shared Redis instance so every server process
// observes the same session state.
type Redis struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(addr, password string, db int, logger *zap.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	// Test connection
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	logger.Info("Redis connection established",
		zap.String("addr", addr),
		zap.Int("db", db),
	)

	return &Redis{client: client, logger: logger}, nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	defer r.observe(time.Now())

	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrKeyNotFound
		}
		r.fail("GET", key, err)
		return "", err
	}
	return val, nil
}

func (r *Redis) GetJSON(ctx context.Context, key string, out any) error {
	val, err := r.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(val), out)
}

func (r *Redis) SetEX(ctx context.Context, key, value string, ttl time.Duration) error {
	defer r.observe(time.Now())

	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.fail("SET", key, err)
		return err
	}
	return nil
}

func (r *Redis) SetJSONEX(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.SetEX(ctx, key, string(data), ttl)
}

func (r *Redis) Del(ctx context.Context, keys ...string) error {
	defer r.observe(time.Now())

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.fail("DEL", keys[0], err)
		return err
	}
	return nil
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	defer r.observe(time.Now())

	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		r.fail("EXISTS", key, err)
		return false, err
	}
	return n > 0, nil
}

// IncrEX increments and refreshes the TTL in one pipelined round trip.
func (r *Redis) IncrEX(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	defer r.observe(time.Now())

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		r.fail("INCR", key, err)
		return 0, err
	}
	return incr.Val(), nil
}

// Client exposes the underlying Redis client for pub/sub use.
func (r *Redis) Client() *redis.Client {
	return r.client
}

// Ping checks Redis connection health.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close cleans up the connection pool.
func (r *Redis) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", zap.Error(err))
		return err
	}
	return nil
}

func (r *Redis) observe(start time.Time) {
	metrics.StoreLatencyMs.Observe(float64(time.Since(start).Milliseconds()))
}

func (r *Redis) fail(op, key string, err error) {
	metrics.StoreErrorsTotal.Inc()
	r.logger.Error("Store operation failed",
		zap.String("op", op),
		zap.String("key", key),
		zap.Error(err),
	)
}
