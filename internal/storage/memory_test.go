package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorwatch/internal/config"
	"sensorwatch/internal/models"
)

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store { return NewMemory() })
}

func TestMemory_ConcurrentReadings(t *testing.T) {
	st := NewMemory()
	s := mustSensor(t, st, "TEMP001", models.SensorTypeTemperature, models.SensorStatusActive)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			r := &models.Reading{SensorPK: s.ID, Value: float64(v), Quality: 100}
			assert.NoError(t, st.CreateReading(context.Background(), r))
		}(i)
	}
	wg.Wait()

	c, err := st.Counts(context.Background(), time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(50), c.RecentReadings)
}

func TestMemory_RejectsOrphans(t *testing.T) {
	st := NewMemory()
	assert.Error(t, st.CreateReading(context.Background(), &models.Reading{SensorPK: 99, Value: 1}))
	assert.Error(t, st.CreateAlert(context.Background(), &models.Alert{SensorPK: 99}))
}

func TestOpen(t *testing.T) {
	st, err := Open(context.Background(), config.StorageConfig{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, st)
	require.NoError(t, st.Ping(context.Background()))

	_, err = Open(context.Background(), config.StorageConfig{Backend: "cassandra"})
	assert.Error(t, err)
}
