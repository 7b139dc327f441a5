package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"sensorwatch/internal/logger"
	"sensorwatch/internal/models"
)

// GormStore is a Store backed by gorm over SQLite.
type GormStore struct {
	db *gorm.DB
}

// NewSQLite opens the database file at dsn and migrates the schema.
func NewSQLite(dsn string) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormlogger.Discard,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sqlite handle: %w", err)
	}
	// sqlite serialises writers; a single connection also keeps :memory: databases alive
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := db.AutoMigrate(&models.Sensor{}, &models.Reading{}, &models.Alert{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log := logger.WithComponent("storage")
	log.Info().Str("backend", "sqlite").Str("dsn", dsn).Msg("database ready")
	return &GormStore{db: db}, nil
}

func (g *GormStore) CreateSensor(ctx context.Context, s *models.Sensor) error {
	if err := g.db.WithContext(ctx).Create(s).Error; err != nil {
		return fmt.Errorf("insert sensor %s: %w", s.SensorID, err)
	}
	return nil
}

func (g *GormStore) GetSensor(ctx context.Context, sensorID string) (*models.Sensor, error) {
	var s models.Sensor
	err := g.db.WithContext(ctx).Where("sensor_id = ?", sensorID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sensor %s: %w", sensorID, err)
	}
	return &s, nil
}

func (g *GormStore) ListSensors(ctx context.Context) ([]models.Sensor, error) {
	sensors := make([]models.Sensor, 0)
	if err := g.db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&sensors).Error; err != nil {
		return nil, fmt.Errorf("list sensors: %w", err)
	}
	return sensors, nil
}

func (g *GormStore) DeleteSensor(ctx context.Context, sensorID string) error {
	res := g.db.WithContext(ctx).Where("sensor_id = ?", sensorID).Delete(&models.Sensor{})
	if res.Error != nil {
		return fmt.Errorf("delete sensor %s: %w", sensorID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *GormStore) CreateReading(ctx context.Context, r *models.Reading) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	r.Timestamp = r.Timestamp.UTC()

	if err := g.db.WithContext(ctx).Omit("Sensor").Create(r).Error; err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

func (g *GormStore) RecentReadings(ctx context.Context, sensorPK int64, since time.Time, limit int) ([]models.Reading, error) {
	readings := make([]models.Reading, 0)
	q := g.db.WithContext(ctx).
		Where("sensor_id = ? AND timestamp >= ?", sensorPK, since.UTC()).
		Order("timestamp DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&readings).Error; err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	return readings, nil
}

func (g *GormStore) LatestReading(ctx context.Context, sensorPK int64) (*models.Reading, error) {
	var r models.Reading
	err := g.db.WithContext(ctx).
		Where("sensor_id = ?", sensorPK).
		Order("timestamp DESC, id DESC").
		Take(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest reading: %w", err)
	}
	return &r, nil
}

func (g *GormStore) CreateAlert(ctx context.Context, a *models.Alert) error {
	if a.Status == "" {
		a.Status = models.AlertStatusActive
	}
	if err := g.db.WithContext(ctx).Omit("Sensor").Create(a).Error; err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (g *GormStore) ListAlerts(ctx context.Context, status models.AlertStatus, limit int) ([]models.Alert, error) {
	alerts := make([]models.Alert, 0)
	q := g.db.WithContext(ctx).
		Model(&models.Alert{}).
		Select("alerts.*, sensors.name AS sensor_name").
		Joins("JOIN sensors ON sensors.id = alerts.sensor_id").
		Where("alerts.status = ?", status).
		Order("alerts.created_at DESC, alerts.id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return alerts, nil
}

func (g *GormStore) Counts(ctx context.Context, since time.Time) (Counts, error) {
	var c Counts
	db := g.db.WithContext(ctx)

	if err := db.Model(&models.Sensor{}).Count(&c.TotalSensors).Error; err != nil {
		return Counts{}, fmt.Errorf("count sensors: %w", err)
	}
	if err := db.Model(&models.Sensor{}).Where("status = ?", models.SensorStatusActive).Count(&c.ActiveSensors).Error; err != nil {
		return Counts{}, fmt.Errorf("count active sensors: %w", err)
	}
	if err := db.Model(&models.Reading{}).Where("timestamp >= ?", since.UTC()).Count(&c.RecentReadings).Error; err != nil {
		return Counts{}, fmt.Errorf("count readings: %w", err)
	}
	if err := db.Model(&models.Alert{}).Where("status = ?", models.AlertStatusActive).Count(&c.ActiveAlerts).Error; err != nil {
		return Counts{}, fmt.Errorf("count alerts: %w", err)
	}
	return c, nil
}

type typeSummaryRow struct {
	SensorType string
	Sensors    int64
	Average    *float64
}

func (g *GormStore) TypeSummaries(ctx context.Context, since time.Time) ([]TypeSummary, error) {
	var rows []typeSummaryRow
	err := g.db.WithContext(ctx).Raw(`
		SELECT s.sensor_type AS sensor_type, COUNT(DISTINCT s.id) AS sensors, AVG(d.value) AS average
		FROM sensors s
		LEFT JOIN sensor_data d ON d.sensor_id = s.id AND d.timestamp >= ?
		GROUP BY s.sensor_type`, since.UTC()).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("summarize sensor types: %w", err)
	}

	summaries := make([]TypeSummary, 0, len(rows))
	for _, row := range rows {
		ts := TypeSummary{Type: models.SensorType(row.SensorType), Sensors: row.Sensors}
		if row.Average != nil {
			ts.Average = *row.Average
		}
		summaries = append(summaries, ts)
	}
	return summaries, nil
}

func (g *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (g *GormStore) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
