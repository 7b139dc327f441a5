package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorwatch/internal/models"
)

// runStoreSuite exercises the behaviour every backend must share.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("sensor lifecycle", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		s := mustSensor(t, st, "TEMP001", models.SensorTypeTemperature, models.SensorStatusActive)
		assert.NotZero(t, s.ID)

		got, err := st.GetSensor(ctx, "TEMP001")
		require.NoError(t, err)
		assert.Equal(t, s.ID, got.ID)
		assert.Equal(t, "TEMP001 sensor", got.Name)
		assert.Equal(t, models.SensorTypeTemperature, got.Type)

		_, err = st.GetSensor(ctx, "MISSING")
		assert.ErrorIs(t, err, ErrNotFound)

		dup := &models.Sensor{SensorID: "TEMP001", Name: "dup", Type: models.SensorTypeGas, Location: "x", Status: models.SensorStatusActive}
		assert.Error(t, st.CreateSensor(ctx, dup))
	})

	t.Run("list sensors newest first", func(t *testing.T) {
		st := newStore(t)
		mustSensor(t, st, "A", models.SensorTypeTemperature, models.SensorStatusActive)
		mustSensor(t, st, "B", models.SensorTypeHumidity, models.SensorStatusActive)

		sensors, err := st.ListSensors(context.Background())
		require.NoError(t, err)
		require.Len(t, sensors, 2)
		assert.Equal(t, "B", sensors[0].SensorID)
		assert.Equal(t, "A", sensors[1].SensorID)
	})

	t.Run("readings window and order", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		s := mustSensor(t, st, "TEMP001", models.SensorTypeTemperature, models.SensorStatusActive)

		now := time.Now().UTC().Truncate(time.Second)
		mustReading(t, st, s.ID, 10, now.Add(-48*time.Hour))
		mustReading(t, st, s.ID, 20, now.Add(-2*time.Hour))
		mustReading(t, st, s.ID, 30, now.Add(-1*time.Hour))

		recent, err := st.RecentReadings(ctx, s.ID, now.Add(-24*time.Hour), 100)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, 30.0, recent[0].Value)
		assert.Equal(t, 20.0, recent[1].Value)

		limited, err := st.RecentReadings(ctx, s.ID, now.Add(-72*time.Hour), 1)
		require.NoError(t, err)
		require.Len(t, limited, 1)
		assert.Equal(t, 30.0, limited[0].Value)

		latest, err := st.LatestReading(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, 30.0, latest.Value)
		assert.True(t, latest.Timestamp.Equal(now.Add(-time.Hour)))
	})

	t.Run("latest reading missing", func(t *testing.T) {
		st := newStore(t)
		s := mustSensor(t, st, "GAS001", models.SensorTypeGas, models.SensorStatusActive)

		_, err := st.LatestReading(context.Background(), s.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		readings, err := st.RecentReadings(context.Background(), s.ID, time.Now().Add(-time.Hour), 10)
		require.NoError(t, err)
		assert.NotNil(t, readings)
		assert.Empty(t, readings)
	})

	t.Run("alerts filtered by status", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		s := mustSensor(t, st, "TEMP001", models.SensorTypeTemperature, models.SensorStatusActive)

		older := &models.Alert{SensorPK: s.ID, Severity: models.AlertSeverityHigh, Title: "old", Message: "m",
			ThresholdValue: 30, ActualValue: 31, CreatedAt: time.Now().UTC().Add(-time.Minute)}
		require.NoError(t, st.CreateAlert(ctx, older))
		newer := &models.Alert{SensorPK: s.ID, Severity: models.AlertSeverityHigh, Title: "new", Message: "m",
			ThresholdValue: 30, ActualValue: 35}
		require.NoError(t, st.CreateAlert(ctx, newer))
		assert.Equal(t, models.AlertStatusActive, newer.Status)

		alerts, err := st.ListAlerts(ctx, models.AlertStatusActive, 50)
		require.NoError(t, err)
		require.Len(t, alerts, 2)
		assert.Equal(t, "new", alerts[0].Title)
		assert.Equal(t, "TEMP001 sensor", alerts[0].SensorName)

		one, err := st.ListAlerts(ctx, models.AlertStatusActive, 1)
		require.NoError(t, err)
		assert.Len(t, one, 1)

		resolved, err := st.ListAlerts(ctx, models.AlertStatusResolved, 50)
		require.NoError(t, err)
		assert.Empty(t, resolved)

		unknown, err := st.ListAlerts(ctx, models.AlertStatus("bogus"), 50)
		require.NoError(t, err)
		assert.Empty(t, unknown)
	})

	t.Run("delete cascades", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		s := mustSensor(t, st, "TEMP001", models.SensorTypeTemperature, models.SensorStatusActive)
		other := mustSensor(t, st, "TEMP002", models.SensorTypeTemperature, models.SensorStatusActive)
		mustReading(t, st, s.ID, 31, time.Now().UTC())
		mustReading(t, st, other.ID, 22, time.Now().UTC())
		require.NoError(t, st.CreateAlert(ctx, &models.Alert{SensorPK: s.ID, Severity: models.AlertSeverityHigh,
			Title: "t", Message: "m", ThresholdValue: 30, ActualValue: 31}))

		require.NoError(t, st.DeleteSensor(ctx, "TEMP001"))
		assert.ErrorIs(t, st.DeleteSensor(ctx, "TEMP001"), ErrNotFound)

		c, err := st.Counts(ctx, time.Now().Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, Counts{TotalSensors: 1, ActiveSensors: 1, RecentReadings: 1, ActiveAlerts: 0}, c)
	})

	t.Run("counts and type summaries", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		now := time.Now().UTC()

		t1 := mustSensor(t, st, "TEMP001", models.SensorTypeTemperature, models.SensorStatusActive)
		t2 := mustSensor(t, st, "TEMP002", models.SensorTypeTemperature, models.SensorStatusOffline)
		mustSensor(t, st, "GAS001", models.SensorTypeGas, models.SensorStatusActive)

		mustReading(t, st, t1.ID, 20, now.Add(-time.Hour))
		mustReading(t, st, t2.ID, 30, now.Add(-2*time.Hour))
		mustReading(t, st, t2.ID, 1000, now.Add(-30*time.Hour))
		require.NoError(t, st.CreateAlert(ctx, &models.Alert{SensorPK: t1.ID, Severity: models.AlertSeverityHigh,
			Title: "t", Message: "m", ThresholdValue: 30, ActualValue: 31}))

		since := now.Add(-24 * time.Hour)
		c, err := st.Counts(ctx, since)
		require.NoError(t, err)
		assert.Equal(t, Counts{TotalSensors: 3, ActiveSensors: 2, RecentReadings: 2, ActiveAlerts: 1}, c)

		summaries, err := st.TypeSummaries(ctx, since)
		require.NoError(t, err)
		byType := make(map[models.SensorType]TypeSummary)
		for _, s := range summaries {
			byType[s.Type] = s
		}
		require.Len(t, byType, 2)
		assert.Equal(t, int64(2), byType[models.SensorTypeTemperature].Sensors)
		assert.InDelta(t, 25.0, byType[models.SensorTypeTemperature].Average, 1e-9)
		assert.Equal(t, int64(1), byType[models.SensorTypeGas].Sensors)
		assert.Equal(t, 0.0, byType[models.SensorTypeGas].Average)
	})
}

func mustSensor(t *testing.T, st Store, code string, typ models.SensorType, status models.SensorStatus) *models.Sensor {
	t.Helper()
	s := &models.Sensor{
		SensorID: code,
		Name:     code + " sensor",
		Type:     typ,
		Location: "Hall A",
		Status:   status,
	}
	require.NoError(t, st.CreateSensor(context.Background(), s))
	// keep created_at strictly increasing so ordering is deterministic
	time.Sleep(2 * time.Millisecond)
	return s
}

func mustReading(t *testing.T, st Store, sensorPK int64, value float64, ts time.Time) *models.Reading {
	t.Helper()
	r := &models.Reading{SensorPK: sensorPK, Value: value, Unit: "u", Timestamp: ts, Quality: models.DefaultQuality}
	require.NoError(t, st.CreateReading(context.Background(), r))
	return r
}
