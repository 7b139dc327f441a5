package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"sensorwatch/internal/models"
)

// Memory is a mutex-guarded in-process Store for development and tests.
type Memory struct {
	mu       sync.RWMutex
	sensors  map[int64]*models.Sensor
	byCode   map[string]int64
	readings []models.Reading
	alerts   []models.Alert
	nextID   struct{ sensor, reading, alert int64 }
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sensors: make(map[int64]*models.Sensor),
		byCode:  make(map[string]int64),
	}
}

func (m *Memory) CreateSensor(ctx context.Context, s *models.Sensor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byCode[s.SensorID]; exists {
		return fmt.Errorf("sensor %s already exists", s.SensorID)
	}

	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = s.CreatedAt
	}

	m.nextID.sensor++
	s.ID = m.nextID.sensor
	stored := *s
	m.sensors[s.ID] = &stored
	m.byCode[s.SensorID] = s.ID
	return nil
}

func (m *Memory) GetSensor(ctx context.Context, sensorID string) (*models.Sensor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byCode[sensorID]
	if !ok {
		return nil, ErrNotFound
	}
	s := *m.sensors[id]
	return &s, nil
}

func (m *Memory) ListSensors(ctx context.Context) ([]models.Sensor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Sensor, 0, len(m.sensors))
	for _, s := range m.sensors {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *Memory) DeleteSensor(ctx context.Context, sensorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byCode[sensorID]
	if !ok {
		return ErrNotFound
	}
	delete(m.byCode, sensorID)
	delete(m.sensors, id)

	// emulate ON DELETE CASCADE
	readings := m.readings[:0]
	for _, r := range m.readings {
		if r.SensorPK != id {
			readings = append(readings, r)
		}
	}
	m.readings = readings

	alerts := m.alerts[:0]
	for _, a := range m.alerts {
		if a.SensorPK != id {
			alerts = append(alerts, a)
		}
	}
	m.alerts = alerts
	return nil
}

func (m *Memory) CreateReading(ctx context.Context, r *models.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sensors[r.SensorPK]; !ok {
		return fmt.Errorf("reading references unknown sensor %d", r.SensorPK)
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}

	m.nextID.reading++
	r.ID = m.nextID.reading
	m.readings = append(m.readings, *r)
	return nil
}

// sortedReadings returns a copy of the matching readings, newest first.
func (m *Memory) sortedReadings(match func(models.Reading) bool) []models.Reading {
	out := make([]models.Reading, 0)
	for _, r := range m.readings {
		if match(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (m *Memory) RecentReadings(ctx context.Context, sensorPK int64, since time.Time, limit int) ([]models.Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := m.sortedReadings(func(r models.Reading) bool {
		return r.SensorPK == sensorPK && !r.Timestamp.Before(since)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) LatestReading(ctx context.Context, sensorPK int64) (*models.Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := m.sortedReadings(func(r models.Reading) bool { return r.SensorPK == sensorPK })
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return &out[0], nil
}

func (m *Memory) CreateAlert(ctx context.Context, a *models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sensors[a.SensorPK]; !ok {
		return fmt.Errorf("alert references unknown sensor %d", a.SensorPK)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.Status == "" {
		a.Status = models.AlertStatusActive
	}

	m.nextID.alert++
	a.ID = m.nextID.alert
	m.alerts = append(m.alerts, *a)
	return nil
}

func (m *Memory) ListAlerts(ctx context.Context, status models.AlertStatus, limit int) ([]models.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Alert, 0)
	for _, a := range m.alerts {
		if a.Status != status {
			continue
		}
		a.SensorName = m.sensors[a.SensorPK].Name
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Counts(ctx context.Context, since time.Time) (Counts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c := Counts{TotalSensors: int64(len(m.sensors))}
	for _, s := range m.sensors {
		if s.Status == models.SensorStatusActive {
			c.ActiveSensors++
		}
	}
	for _, r := range m.readings {
		if !r.Timestamp.Before(since) {
			c.RecentReadings++
		}
	}
	for _, a := range m.alerts {
		if a.Status == models.AlertStatusActive {
			c.ActiveAlerts++
		}
	}
	return c, nil
}

func (m *Memory) TypeSummaries(ctx context.Context, since time.Time) ([]TypeSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type acc struct {
		sensors int64
		sum     float64
		n       int64
	}
	byType := make(map[models.SensorType]*acc)
	for _, s := range m.sensors {
		a, ok := byType[s.Type]
		if !ok {
			a = &acc{}
			byType[s.Type] = a
		}
		a.sensors++
	}
	for _, r := range m.readings {
		if r.Timestamp.Before(since) {
			continue
		}
		a := byType[m.sensors[r.SensorPK].Type]
		a.sum += r.Value
		a.n++
	}

	out := make([]TypeSummary, 0, len(byType))
	for t, a := range byType {
		ts := TypeSummary{Type: t, Sensors: a.sensors}
		if a.n > 0 {
			ts.Average = a.sum / float64(a.n)
		}
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
func (m *Memory) Close() error                   { return nil }
