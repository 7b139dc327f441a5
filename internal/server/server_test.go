package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorwatch/internal/config"
	"sensorwatch/internal/models"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.NodeID = "node-test"
	return cfg
}

func setupServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	s := New(cfg)
	require.NoError(t, s.setup(context.Background()))
	t.Cleanup(s.closeResources)
	return s
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServerRun(t *testing.T) {
	s := New(testConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	assert.NoError(t, s.Run(ctx))
}

func TestServerRun_InvalidStorage(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Backend = "cassandra"

	err := New(cfg).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open storage")
}

func TestResolveNodeID(t *testing.T) {
	assert.Equal(t, "edge-1", resolveNodeID("edge-1"))
	assert.NotEmpty(t, resolveNodeID(""))
}

func TestHealth(t *testing.T) {
	s := setupServer(t, testConfig())

	rec := get(t, s.router, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	_, err := time.Parse(time.RFC3339, body["timestamp"])
	assert.NoError(t, err)
}

func TestHealth_CacheDown(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Redis.Addr = mr.Addr()
	s := setupServer(t, cfg)

	require.Equal(t, http.StatusOK, get(t, s.router, "/health").Code)

	mr.Close()
	rec := get(t, s.router, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unhealthy")
}

func TestSetup_RedisUnreachable(t *testing.T) {
	cfg := testConfig()
	cfg.Redis.Addr = "127.0.0.1:1"

	err := New(cfg).setup(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")
}

func TestRoutes(t *testing.T) {
	s := setupServer(t, testConfig())

	tests := []struct {
		path string
		code int
	}{
		{"/", http.StatusOK},
		{"/api/sensors/", http.StatusOK},
		{"/api/alerts/", http.StatusOK},
		{"/api/statistics/", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/stats", http.StatusOK},
		{"/ws", http.StatusBadRequest},
		{"/api/sensors/NOPE/", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.code, get(t, s.router, tt.path).Code)
		})
	}
}

func TestWebSocketDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.WebSocket.Enabled = false
	s := setupServer(t, cfg)

	assert.Nil(t, s.hub)
	assert.Equal(t, http.StatusNotFound, get(t, s.router, "/ws").Code)
}

func TestIngestQueuesEvents(t *testing.T) {
	cfg := testConfig()
	cfg.Kafka.Brokers = []string{"127.0.0.1:9092"}
	cfg.Kafka.QueueSize = 8
	s := setupServer(t, cfg)

	require.NotNil(t, s.producer)
	require.NotNil(t, s.workerPool)
	require.NoError(t, s.service.RegisterSensor(context.Background(), &models.Sensor{
		SensorID: "TEMP001",
		Name:     "Server room",
		Type:     models.SensorTypeTemperature,
		Location: "R1",
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/data/receive/", strings.NewReader(`{"sensor_id":"TEMP001","value":31}`))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// one reading and one alert envelope; workers are not started
	require.Len(t, s.events, 2)
	first := <-s.events
	assert.Equal(t, models.EventReadingIngested, first.Kind)
	assert.Equal(t, "node-test", first.IngestNode)
	assert.Equal(t, models.EventAlertRaised, (<-s.events).Kind)

	var st runtimeStats
	require.NoError(t, json.Unmarshal(get(t, s.router, "/stats").Body.Bytes(), &st))
	assert.Equal(t, 8, st.Queue.Capacity)
	assert.Equal(t, "node-test", st.NodeID)
}
