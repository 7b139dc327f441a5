package storage

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorwatch/internal/config"
	"sensorwatch/internal/logger"
	"sensorwatch/internal/models"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	st, err := NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, newTestSQLite)
}

func TestSQLite_ForeignKeysEnforced(t *testing.T) {
	st := newTestSQLite(t)
	err := st.CreateReading(context.Background(), &models.Reading{SensorPK: 99, Value: 1, Quality: 100})
	assert.Error(t, err)
}

func TestOpen_SQLite(t *testing.T) {
	st, err := Open(context.Background(), config.StorageConfig{Backend: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	defer st.Close()

	assert.IsType(t, &GormStore{}, st)
	assert.NoError(t, st.Ping(context.Background()))
}

func TestNewSQLite_LogsReady(t *testing.T) {
	var buf bytes.Buffer
	prev := logger.Logger
	logger.Logger = logger.New(&buf, "info")
	t.Cleanup(func() { logger.Logger = prev })

	newTestSQLite(t)

	out := buf.String()
	assert.Contains(t, out, `"component":"storage"`)
	assert.Contains(t, out, `"backend":"sqlite"`)
	assert.Contains(t, out, "database ready")
}
