package monitoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"sensorwatch/internal/alerts"
	"sensorwatch/internal/logger"
	"sensorwatch/internal/metrics"
	"sensorwatch/internal/models"
	"sensorwatch/internal/state"
	"sensorwatch/internal/storage"
)

const (
	// RecentWindow bounds detail readings and the statistics data point count.
	RecentWindow = 24 * time.Hour

	DetailReadingsLimit = 100
	AlertListLimit      = 50
	DashboardAlertLimit = 10
)

// ErrSensorNotFound is returned when a sensor_id does not match any registered sensor.
var ErrSensorNotFound = errors.New("sensor not found")

// Broadcaster pushes envelopes to live subscribers. Broadcast must not block.
type Broadcaster interface {
	Broadcast(env *models.Envelope)
}

// Config wires a Service. Only Store is required.
type Config struct {
	Store  storage.Store
	Latest state.LatestStore
	Rules  *alerts.Engine

	// Events receives envelopes for the outbound stream; nil disables it
	Events      chan<- *models.Envelope
	Broadcaster Broadcaster

	NodeID string
	Now    func() time.Time
}

// Service implements ingest and the read-side queries over a Store.
type Service struct {
	store       storage.Store
	latest      state.LatestStore
	rules       *alerts.Engine
	events      chan<- *models.Envelope
	broadcaster Broadcaster
	nodeID      string
	now         func() time.Time
	log         zerolog.Logger
}

// New creates a Service, filling unset optional dependencies with no-ops.
func New(cfg Config) *Service {
	s := &Service{
		store:       cfg.Store,
		latest:      cfg.Latest,
		rules:       cfg.Rules,
		events:      cfg.Events,
		broadcaster: cfg.Broadcaster,
		nodeID:      cfg.NodeID,
		now:         cfg.Now,
		log:         logger.WithComponent("monitoring"),
	}
	if s.latest == nil {
		s.latest = state.NewNoopStore()
	}
	if s.rules == nil {
		s.rules = alerts.NewEngine()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// IngestResult is what a successful ingest stored.
type IngestResult struct {
	Sensor  *models.Sensor
	Reading *models.Reading
	Alert   *models.Alert // nil when no rule fired
}

// Ingest stores one reading, applies the threshold rules and fans the result out.
// No reading is written when the sensor lookup or value parsing fails.
func (s *Service) Ingest(ctx context.Context, in models.ReadingInput) (*IngestResult, error) {
	if in.SensorID == "" {
		return nil, models.ErrMissingSensorID
	}

	sensor, err := s.store.GetSensor(ctx, in.SensorID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSensorNotFound, in.SensorID)
	}
	if err != nil {
		return nil, err
	}

	value, err := models.ParseValue(in.Value)
	if err != nil {
		return nil, err
	}

	reading := &models.Reading{
		SensorPK:  sensor.ID,
		Value:     value,
		Unit:      in.Unit,
		Timestamp: s.now().UTC(),
		Quality:   in.QualityOrDefault(),
		Remarks:   in.Remarks,
	}
	if err := s.store.CreateReading(ctx, reading); err != nil {
		return nil, err
	}

	result := &IngestResult{Sensor: sensor, Reading: reading}

	if alert := s.rules.Evaluate(sensor, value); alert != nil {
		alert.CreatedAt = s.now().UTC()
		if err := s.store.CreateAlert(ctx, alert); err != nil {
			return nil, err
		}
		metrics.AlertsRaisedTotal.WithLabelValues(string(sensor.Type), string(alert.Severity)).Inc()
		s.log.Warn().
			Str("sensor_id", sensor.SensorID).
			Str("severity", string(alert.Severity)).
			Float64("value", value).
			Float64("threshold", alert.ThresholdValue).
			Msg("alert raised")
		result.Alert = alert
	}

	s.fanOut(ctx, result)
	return result, nil
}

// fanOut is best effort: nothing here can fail an ingest.
func (s *Service) fanOut(ctx context.Context, res *IngestResult) {
	if err := s.latest.SetLatest(ctx, res.Sensor.SensorID, res.Reading); err != nil {
		metrics.LatestCacheErrors.Inc()
		s.log.Error().Err(err).Str("sensor_id", res.Sensor.SensorID).Msg("failed to cache latest reading")
	}

	s.publish(models.NewReadingEnvelope(res.Sensor, res.Reading, s.nodeID))
	if res.Alert != nil {
		s.publish(models.NewAlertEnvelope(res.Sensor, res.Alert, s.nodeID))
	}
}

func (s *Service) publish(env *models.Envelope) {
	if s.broadcaster != nil {
		s.broadcaster.Broadcast(env)
	}
	if s.events == nil {
		return
	}

	select {
	case s.events <- env:
		metrics.EventQueueSize.Set(float64(len(s.events)))
	default:
		metrics.EventsDroppedTotal.WithLabelValues(string(env.Kind)).Inc()
		s.log.Warn().Str("kind", string(env.Kind)).Str("sensor_id", env.SensorID).Msg("event queue full, dropping envelope")
	}
}

// RegisterSensor normalizes and validates s before storing it.
func (s *Service) RegisterSensor(ctx context.Context, sensor *models.Sensor) error {
	sensor.Normalize()
	if err := sensor.Validate(); err != nil {
		return err
	}
	return s.store.CreateSensor(ctx, sensor)
}

// RemoveSensor deletes a sensor with its readings and alerts.
func (s *Service) RemoveSensor(ctx context.Context, sensorID string) error {
	err := s.store.DeleteSensor(ctx, sensorID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrSensorNotFound, sensorID)
	}
	if err != nil {
		return err
	}

	if err := s.latest.DeleteLatest(ctx, sensorID); err != nil {
		metrics.LatestCacheErrors.Inc()
		s.log.Error().Err(err).Str("sensor_id", sensorID).Msg("failed to drop cached latest reading")
	}
	return nil
}

// ListSensors returns every sensor, newest first.
func (s *Service) ListSensors(ctx context.Context) ([]models.Sensor, error) {
	return s.store.ListSensors(ctx)
}

// SensorDetail is one sensor plus its readings of the trailing window.
type SensorDetail struct {
	Sensor   *models.Sensor
	Readings []models.Reading
}

// SensorDetail returns ErrSensorNotFound for unknown ids.
func (s *Service) SensorDetail(ctx context.Context, sensorID string) (*SensorDetail, error) {
	sensor, err := s.store.GetSensor(ctx, sensorID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSensorNotFound, sensorID)
	}
	if err != nil {
		return nil, err
	}

	readings, err := s.store.RecentReadings(ctx, sensor.ID, s.now().Add(-RecentWindow), DetailReadingsLimit)
	if err != nil {
		return nil, err
	}
	return &SensorDetail{Sensor: sensor, Readings: readings}, nil
}

// ListAlerts returns up to AlertListLimit alerts in status, newest first.
// An empty status means active.
func (s *Service) ListAlerts(ctx context.Context, status models.AlertStatus) ([]models.Alert, error) {
	if status == "" {
		status = models.AlertStatusActive
	}
	return s.store.ListAlerts(ctx, status, AlertListLimit)
}

// TypeStat summarises one sensor type.
type TypeStat struct {
	Type     models.SensorType `json:"type"`
	Name     string            `json:"name"`
	Count    int64             `json:"count"`
	AvgValue float64           `json:"avg_value"`
}

// Statistics is the payload of the statistics endpoint.
type Statistics struct {
	TotalSensors    int64      `json:"total_sensors"`
	ActiveSensors   int64      `json:"active_sensors"`
	TotalDataPoints int64      `json:"total_data_points"`
	ActiveAlerts    int64      `json:"active_alerts"`
	SensorTypes     []TypeStat `json:"sensor_types"`
}

// Statistics aggregates counts and per-type averages over the trailing window.
func (s *Service) Statistics(ctx context.Context) (*Statistics, error) {
	since := s.now().Add(-RecentWindow)

	counts, err := s.store.Counts(ctx, since)
	if err != nil {
		return nil, err
	}
	summaries, err := s.store.TypeSummaries(ctx, since)
	if err != nil {
		return nil, err
	}

	byType := make(map[models.SensorType]storage.TypeSummary, len(summaries))
	for _, ts := range summaries {
		byType[ts.Type] = ts
	}

	stats := &Statistics{
		TotalSensors:    counts.TotalSensors,
		ActiveSensors:   counts.ActiveSensors,
		TotalDataPoints: counts.RecentReadings,
		ActiveAlerts:    counts.ActiveAlerts,
		SensorTypes:     make([]TypeStat, 0, len(summaries)),
	}
	for _, t := range models.SensorTypes {
		ts, ok := byType[t]
		if !ok || ts.Sensors == 0 {
			continue
		}
		stats.SensorTypes = append(stats.SensorTypes, TypeStat{
			Type:     t,
			Name:     t.DisplayName(),
			Count:    ts.Sensors,
			AvgValue: round2(ts.Average),
		})
	}
	return stats, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// SensorRow is a dashboard table row.
type SensorRow struct {
	Sensor models.Sensor
	Latest *models.Reading // nil when the sensor never reported
}

// TypeCount is the number of sensors of one type, zero included.
type TypeCount struct {
	Type  models.SensorType
	Name  string
	Count int64
}

// Dashboard is everything the dashboard page renders.
type Dashboard struct {
	Sensors       []SensorRow
	RecentAlerts  []models.Alert
	TotalSensors  int64
	ActiveSensors int64
	DataPoints    int64
	ActiveAlerts  int64
	TypeCounts    []TypeCount
}

// Dashboard collects the page data. Latest readings come from the cache when
// it has them and from the store otherwise.
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	sensors, err := s.store.ListSensors(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := s.store.ListAlerts(ctx, models.AlertStatusActive, DashboardAlertLimit)
	if err != nil {
		return nil, err
	}
	counts, err := s.store.Counts(ctx, s.now().Add(-RecentWindow))
	if err != nil {
		return nil, err
	}

	d := &Dashboard{
		Sensors:       make([]SensorRow, 0, len(sensors)),
		RecentAlerts:  recent,
		TotalSensors:  counts.TotalSensors,
		ActiveSensors: counts.ActiveSensors,
		DataPoints:    counts.RecentReadings,
		ActiveAlerts:  counts.ActiveAlerts,
	}

	perType := make(map[models.SensorType]int64)
	for _, sensor := range sensors {
		perType[sensor.Type]++

		latest, err := s.latestReading(ctx, &sensor)
		if err != nil {
			return nil, err
		}
		d.Sensors = append(d.Sensors, SensorRow{Sensor: sensor, Latest: latest})
	}

	for _, t := range models.SensorTypes {
		d.TypeCounts = append(d.TypeCounts, TypeCount{Type: t, Name: t.DisplayName(), Count: perType[t]})
	}
	return d, nil
}

func (s *Service) latestReading(ctx context.Context, sensor *models.Sensor) (*models.Reading, error) {
	cached, err := s.latest.GetLatest(ctx, sensor.SensorID)
	switch {
	case err == nil && cached.SensorPK == sensor.ID:
		return cached, nil
	case err == nil:
		// left over from a deleted sensor that had the same sensor_id
		s.log.Debug().
			Str("sensor_id", sensor.SensorID).
			Int64("cached_sensor_pk", cached.SensorPK).
			Int64("sensor_pk", sensor.ID).
			Msg("stale cached reading, falling back to store")
	case !errors.Is(err, state.ErrCacheMiss):
		metrics.LatestCacheErrors.Inc()
		s.log.Debug().Err(err).Str("sensor_id", sensor.SensorID).Msg("latest cache read failed, falling back to store")
	}

	r, err := s.store.LatestReading(ctx, sensor.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return r, err
}

// Ping checks the store and the latest-reading cache.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := s.latest.Ping(ctx); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	return nil
}
