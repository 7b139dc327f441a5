package seed

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorwatch/internal/models"
	"sensorwatch/internal/state"
	"sensorwatch/internal/storage"
)

func TestRun(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()

	sum, err := Run(ctx, store, state.NewNoopStore(), rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, Summary{Sensors: 5, Readings: 50, Alerts: 1}, sum)

	sensors, err := store.ListSensors(ctx)
	require.NoError(t, err)
	require.Len(t, sensors, len(Sensors))

	for _, s := range sensors {
		vr := ranges[s.Type]
		readings, err := store.RecentReadings(ctx, s.ID, time.Time{}, 0)
		require.NoError(t, err)
		require.Len(t, readings, ReadingsPerSensor, s.SensorID)
		for _, r := range readings {
			assert.GreaterOrEqual(t, r.Value, vr.min)
			assert.LessOrEqual(t, r.Value, vr.max)
			assert.Equal(t, vr.unit, r.Unit)
			assert.GreaterOrEqual(t, r.Quality, 90)
			assert.LessOrEqual(t, r.Quality, 100)
		}
	}

	alerts, err := store.ListAlerts(ctx, models.AlertStatusActive, 0)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "Line 1 temperature", alerts[0].SensorName)
	assert.Equal(t, models.AlertSeverityHigh, alerts[0].Severity)
	assert.Equal(t, 32.5, alerts[0].ActualValue)
	assert.Equal(t, 30.0, alerts[0].ThresholdValue)
}

func TestRun_DuplicateWithoutReset(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()

	_, err := Run(ctx, store, state.NewNoopStore(), rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	_, err = Run(ctx, store, state.NewNoopStore(), rand.New(rand.NewSource(1)))
	assert.Error(t, err)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()

	_, err := Run(ctx, store, state.NewNoopStore(), rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	n, err := Reset(ctx, store, state.NewNoopStore())
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	c, err := store.Counts(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, storage.Counts{}, c)

	_, err = Run(ctx, store, state.NewNoopStore(), rand.New(rand.NewSource(2)))
	assert.NoError(t, err)
}

func TestRun_CachesNewestReading(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	latest := state.NewRedisStoreFromClient(client, time.Hour)

	_, err := Run(ctx, store, latest, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	for _, tmpl := range Sensors {
		s, err := store.GetSensor(ctx, tmpl.SensorID)
		require.NoError(t, err)
		newest, err := store.LatestReading(ctx, s.ID)
		require.NoError(t, err)

		cached, err := latest.GetLatest(ctx, tmpl.SensorID)
		require.NoError(t, err, tmpl.SensorID)
		assert.Equal(t, newest.ID, cached.ID)
		assert.Equal(t, s.ID, cached.SensorPK)
	}

	_, err = Reset(ctx, store, latest)
	require.NoError(t, err)
	for _, tmpl := range Sensors {
		assert.False(t, mr.Exists("sensor:last:"+tmpl.SensorID))
	}
}
