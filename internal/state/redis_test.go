package state

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorwatch/internal/config"
	"sensorwatch/internal/models"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedisStoreFromClient(client, 24*time.Hour)
}

func TestRedisStore_SetGetLatest(t *testing.T) {
	mr, store := setupTestRedis(t)
	ctx := context.Background()

	ts := time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)
	in := &models.Reading{ID: 7, SensorPK: 1, Value: 31.5, Unit: "°C", Timestamp: ts, Quality: 98}
	require.NoError(t, store.SetLatest(ctx, "TEMP001", in))

	assert.True(t, mr.Exists("sensor:last:TEMP001"))
	assert.Equal(t, 24*time.Hour, mr.TTL("sensor:last:TEMP001"))

	out, err := store.GetLatest(ctx, "TEMP001")
	require.NoError(t, err)
	assert.Equal(t, int64(7), out.ID)
	assert.Equal(t, int64(1), out.SensorPK)
	assert.Equal(t, 31.5, out.Value)
	assert.Equal(t, "°C", out.Unit)
	assert.Equal(t, 98, out.Quality)
	assert.True(t, out.Timestamp.Equal(ts))
}

func TestRedisStore_Overwrite(t *testing.T) {
	_, store := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.SetLatest(ctx, "HUM001", &models.Reading{Value: 50}))
	require.NoError(t, store.SetLatest(ctx, "HUM001", &models.Reading{Value: 85}))

	out, err := store.GetLatest(ctx, "HUM001")
	require.NoError(t, err)
	assert.Equal(t, 85.0, out.Value)
}

func TestRedisStore_Miss(t *testing.T) {
	_, store := setupTestRedis(t)

	out, err := store.GetLatest(context.Background(), "NOPE")
	assert.Nil(t, out)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisStore_DeleteLatest(t *testing.T) {
	mr, store := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.SetLatest(ctx, "TEMP001", &models.Reading{SensorPK: 1, Value: 99}))
	require.NoError(t, store.DeleteLatest(ctx, "TEMP001"))
	assert.False(t, mr.Exists("sensor:last:TEMP001"))

	_, err := store.GetLatest(ctx, "TEMP001")
	assert.ErrorIs(t, err, ErrCacheMiss)

	// deleting again is not an error
	assert.NoError(t, store.DeleteLatest(ctx, "TEMP001"))
}

func TestRedisStore_Expiry(t *testing.T) {
	mr, store := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.SetLatest(ctx, "GAS001", &models.Reading{Value: 12}))
	mr.FastForward(25 * time.Hour)

	_, err := store.GetLatest(ctx, "GAS001")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisStore_CorruptValue(t *testing.T) {
	mr, store := setupTestRedis(t)
	require.NoError(t, mr.Set("sensor:last:TEMP001", "not json"))

	_, err := store.GetLatest(context.Background(), "TEMP001")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestRedisStore_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := NewRedisStore(ctx, config.RedisConfig{Addr: addr})
	assert.Error(t, err)
}

func TestNewRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := NewRedisStore(context.Background(), config.RedisConfig{Addr: mr.Addr(), TTL: time.Hour})
	require.NoError(t, err)
	defer store.Close()

	assert.NoError(t, store.Ping(context.Background()))
}

func TestNoopStore(t *testing.T) {
	store := NewNoopStore()
	ctx := context.Background()

	require.NoError(t, store.SetLatest(ctx, "TEMP001", &models.Reading{Value: 1}))
	_, err := store.GetLatest(ctx, "TEMP001")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.NoError(t, store.DeleteLatest(ctx, "TEMP001"))
	assert.NoError(t, store.Ping(ctx))
	assert.NoError(t, store.Close())
}
