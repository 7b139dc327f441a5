package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"sensorwatch/internal/config"
	"sensorwatch/internal/logger"
	"sensorwatch/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// Postgres is a Store over database/sql with the lib/pq driver.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens the pool, verifies connectivity and applies the schema.
func NewPostgres(ctx context.Context, cfg config.StorageConfig) (*Postgres, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	p := NewPostgresFromDB(db)
	if err := p.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	log := logger.WithComponent("storage")
	log.Info().Str("backend", "postgres").Msg("database ready")
	return p, nil
}

// NewPostgresFromDB wraps an existing handle without touching the schema.
func NewPostgresFromDB(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates tables and indexes that do not exist yet.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

const sensorColumns = `id, sensor_id, name, sensor_type, location, status, description, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSensor(row rowScanner) (*models.Sensor, error) {
	var s models.Sensor
	err := row.Scan(&s.ID, &s.SensorID, &s.Name, &s.Type, &s.Location, &s.Status,
		&s.Description, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (p *Postgres) CreateSensor(ctx context.Context, s *models.Sensor) error {
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = s.CreatedAt
	}

	query := `
		INSERT INTO sensors (sensor_id, name, sensor_type, location, status, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	err := p.db.QueryRowContext(ctx, query,
		s.SensorID, s.Name, s.Type, s.Location, s.Status, s.Description, s.CreatedAt, s.UpdatedAt,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("insert sensor %s: %w", s.SensorID, err)
	}
	return nil
}

func (p *Postgres) GetSensor(ctx context.Context, sensorID string) (*models.Sensor, error) {
	query := `SELECT ` + sensorColumns + ` FROM sensors WHERE sensor_id = $1`

	s, err := scanSensor(p.db.QueryRowContext(ctx, query, sensorID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sensor %s: %w", sensorID, err)
	}
	return s, nil
}

func (p *Postgres) ListSensors(ctx context.Context) ([]models.Sensor, error) {
	query := `SELECT ` + sensorColumns + ` FROM sensors ORDER BY created_at DESC, id DESC`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sensors: %w", err)
	}
	defer rows.Close()

	sensors := make([]models.Sensor, 0)
	for rows.Next() {
		s, err := scanSensor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sensor: %w", err)
		}
		sensors = append(sensors, *s)
	}
	return sensors, rows.Err()
}

func (p *Postgres) DeleteSensor(ctx context.Context, sensorID string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM sensors WHERE sensor_id = $1`, sensorID)
	if err != nil {
		return fmt.Errorf("delete sensor %s: %w", sensorID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete sensor %s: %w", sensorID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) CreateReading(ctx context.Context, r *models.Reading) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO sensor_data (sensor_id, value, unit, "timestamp", quality, remarks)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	err := p.db.QueryRowContext(ctx, query,
		r.SensorPK, r.Value, r.Unit, r.Timestamp, r.Quality, r.Remarks,
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

const readingColumns = `id, sensor_id, value, unit, "timestamp", quality, remarks`

func (p *Postgres) queryReadings(ctx context.Context, query string, args ...any) ([]models.Reading, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	readings := make([]models.Reading, 0)
	for rows.Next() {
		var r models.Reading
		if err := rows.Scan(&r.ID, &r.SensorPK, &r.Value, &r.Unit, &r.Timestamp, &r.Quality, &r.Remarks); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

func (p *Postgres) RecentReadings(ctx context.Context, sensorPK int64, since time.Time, limit int) ([]models.Reading, error) {
	query := `
		SELECT ` + readingColumns + `
		FROM sensor_data
		WHERE sensor_id = $1 AND "timestamp" >= $2
		ORDER BY "timestamp" DESC, id DESC
		LIMIT $3`
	return p.queryReadings(ctx, query, sensorPK, since, limit)
}

func (p *Postgres) LatestReading(ctx context.Context, sensorPK int64) (*models.Reading, error) {
	query := `
		SELECT ` + readingColumns + `
		FROM sensor_data
		WHERE sensor_id = $1
		ORDER BY "timestamp" DESC, id DESC
		LIMIT 1`

	readings, err := p.queryReadings(ctx, query, sensorPK)
	if err != nil {
		return nil, err
	}
	if len(readings) == 0 {
		return nil, ErrNotFound
	}
	return &readings[0], nil
}

func (p *Postgres) CreateAlert(ctx context.Context, a *models.Alert) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.Status == "" {
		a.Status = models.AlertStatusActive
	}

	query := `
		INSERT INTO alerts (sensor_id, severity, status, title, message, threshold_value, actual_value, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	err := p.db.QueryRowContext(ctx, query,
		a.SensorPK, a.Severity, a.Status, a.Title, a.Message, a.ThresholdValue, a.ActualValue, a.CreatedAt,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (p *Postgres) ListAlerts(ctx context.Context, status models.AlertStatus, limit int) ([]models.Alert, error) {
	query := `
		SELECT a.id, a.sensor_id, s.name, a.severity, a.status, a.title, a.message,
		       a.threshold_value, a.actual_value, a.created_at, a.acknowledged_at, a.resolved_at
		FROM alerts a
		JOIN sensors s ON s.id = a.sensor_id
		WHERE a.status = $1
		ORDER BY a.created_at DESC, a.id DESC
		LIMIT $2`

	rows, err := p.db.QueryContext(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]models.Alert, 0)
	for rows.Next() {
		var (
			a              models.Alert
			acknowledgedAt sql.NullTime
			resolvedAt     sql.NullTime
		)
		err := rows.Scan(&a.ID, &a.SensorPK, &a.SensorName, &a.Severity, &a.Status, &a.Title, &a.Message,
			&a.ThresholdValue, &a.ActualValue, &a.CreatedAt, &acknowledgedAt, &resolvedAt)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		if acknowledgedAt.Valid {
			a.AcknowledgedAt = &acknowledgedAt.Time
		}
		if resolvedAt.Valid {
			a.ResolvedAt = &resolvedAt.Time
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (p *Postgres) Counts(ctx context.Context, since time.Time) (Counts, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM sensors),
			(SELECT COUNT(*) FROM sensors WHERE status = $1),
			(SELECT COUNT(*) FROM sensor_data WHERE "timestamp" >= $2),
			(SELECT COUNT(*) FROM alerts WHERE status = $3)`

	var c Counts
	err := p.db.QueryRowContext(ctx, query, models.SensorStatusActive, since, models.AlertStatusActive).
		Scan(&c.TotalSensors, &c.ActiveSensors, &c.RecentReadings, &c.ActiveAlerts)
	if err != nil {
		return Counts{}, fmt.Errorf("count rows: %w", err)
	}
	return c, nil
}

func (p *Postgres) TypeSummaries(ctx context.Context, since time.Time) ([]TypeSummary, error) {
	query := `
		SELECT s.sensor_type, COUNT(DISTINCT s.id), AVG(d.value)
		FROM sensors s
		LEFT JOIN sensor_data d ON d.sensor_id = s.id AND d."timestamp" >= $1
		GROUP BY s.sensor_type`

	rows, err := p.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("summarize sensor types: %w", err)
	}
	defer rows.Close()

	summaries := make([]TypeSummary, 0, len(models.SensorTypes))
	for rows.Next() {
		var (
			ts  TypeSummary
			avg sql.NullFloat64
		)
		if err := rows.Scan(&ts.Type, &ts.Sensors, &avg); err != nil {
			return nil, fmt.Errorf("scan type summary: %w", err)
		}
		ts.Average = avg.Float64
		summaries = append(summaries, ts)
	}
	return summaries, rows.Err()
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
