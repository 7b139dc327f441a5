package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sensorwatch/internal/config"
	"sensorwatch/internal/models"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// Counts holds the headline numbers for statistics and the dashboard.
type Counts struct {
	TotalSensors   int64
	ActiveSensors  int64
	RecentReadings int64 // readings with timestamp >= since
	ActiveAlerts   int64
}

// TypeSummary aggregates one sensor type that has at least one sensor.
type TypeSummary struct {
	Type    models.SensorType
	Sensors int64
	Average float64 // mean of readings since the cutoff, 0 when there are none
}

// Store is the repository every backend implements.
type Store interface {
	CreateSensor(ctx context.Context, s *models.Sensor) error
	GetSensor(ctx context.Context, sensorID string) (*models.Sensor, error)
	ListSensors(ctx context.Context) ([]models.Sensor, error)
	// DeleteSensor removes the sensor together with its readings and alerts.
	DeleteSensor(ctx context.Context, sensorID string) error

	CreateReading(ctx context.Context, r *models.Reading) error
	// RecentReadings returns up to limit readings of one sensor at or after since, newest first.
	RecentReadings(ctx context.Context, sensorPK int64, since time.Time, limit int) ([]models.Reading, error)
	LatestReading(ctx context.Context, sensorPK int64) (*models.Reading, error)

	CreateAlert(ctx context.Context, a *models.Alert) error
	// ListAlerts returns up to limit alerts in status, newest first, with SensorName filled.
	ListAlerts(ctx context.Context, status models.AlertStatus, limit int) ([]models.Alert, error)

	Counts(ctx context.Context, since time.Time) (Counts, error)
	TypeSummaries(ctx context.Context, since time.Time) ([]TypeSummary, error)

	Ping(ctx context.Context) error
	Close() error
}

// Open returns the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "memory", "":
		return NewMemory(), nil
	case "postgres":
		return NewPostgres(ctx, cfg)
	case "sqlite":
		return NewSQLite(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
