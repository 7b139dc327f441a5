package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"sensorwatch/internal/config"
	"sensorwatch/internal/models"
)

const latestKeyPrefix = "sensor:last:"

// RedisStore caches the latest reading of every sensor as JSON under sensor:last:{sensor_id}.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to cfg.Addr and verifies the connection.
func NewRedisStore(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis not reachable at %s: %w", cfg.Addr, err)
	}
	return NewRedisStoreFromClient(client, cfg.TTL), nil
}

// NewRedisStoreFromClient wraps an existing client. A non-positive ttl keeps keys forever.
func NewRedisStoreFromClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func latestKey(sensorID string) string {
	return latestKeyPrefix + sensorID
}

// cachedReading keeps the owning sensor's primary key, which Reading leaves out of JSON.
type cachedReading struct {
	SensorPK int64 `json:"sensor_pk"`
	models.Reading
}

func (s *RedisStore) SetLatest(ctx context.Context, sensorID string, r *models.Reading) error {
	data, err := json.Marshal(cachedReading{SensorPK: r.SensorPK, Reading: *r})
	if err != nil {
		return fmt.Errorf("marshal reading: %w", err)
	}
	ttl := s.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, latestKey(sensorID), data, ttl).Err(); err != nil {
		return fmt.Errorf("cache latest reading for %s: %w", sensorID, err)
	}
	return nil
}

func (s *RedisStore) GetLatest(ctx context.Context, sensorID string) (*models.Reading, error) {
	data, err := s.client.Get(ctx, latestKey(sensorID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("read latest reading for %s: %w", sensorID, err)
	}

	var c cachedReading
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode cached reading for %s: %w", sensorID, err)
	}
	r := c.Reading
	r.SensorPK = c.SensorPK
	return &r, nil
}

func (s *RedisStore) DeleteLatest(ctx context.Context, sensorID string) error {
	if err := s.client.Del(ctx, latestKey(sensorID)).Err(); err != nil {
		return fmt.Errorf("delete latest reading for %s: %w", sensorID, err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
