package state

import (
	"context"
	"errors"

	"sensorwatch/internal/models"
)

// ErrCacheMiss is returned when no latest reading is cached for a sensor.
var ErrCacheMiss = errors.New("latest reading not cached")

// LatestStore keeps the most recent reading per sensor for the dashboard hot path.
type LatestStore interface {
	SetLatest(ctx context.Context, sensorID string, r *models.Reading) error
	GetLatest(ctx context.Context, sensorID string) (*models.Reading, error)
	// DeleteLatest forgets the cached reading; deleting a missing key is not an error.
	DeleteLatest(ctx context.Context, sensorID string) error
	Ping(ctx context.Context) error
	Close() error
}

type noopStore struct{}

// NewNoopStore returns a LatestStore that caches nothing; every read is a miss.
func NewNoopStore() LatestStore { return noopStore{} }

func (noopStore) SetLatest(ctx context.Context, sensorID string, r *models.Reading) error {
	return nil
}

func (noopStore) GetLatest(ctx context.Context, sensorID string) (*models.Reading, error) {
	return nil, ErrCacheMiss
}

func (noopStore) DeleteLatest(ctx context.Context, sensorID string) error {
	return nil
}

func (noopStore) Ping(ctx context.Context) error { return nil }
func (noopStore) Close() error                   { return nil }
