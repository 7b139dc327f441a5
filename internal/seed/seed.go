// Package seed fills a store with demo sensors, readings and one alert.
package seed

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"sensorwatch/internal/logger"
	"sensorwatch/internal/models"
	"sensorwatch/internal/state"
	"sensorwatch/internal/storage"
)

// ReadingsPerSensor is how many readings each demo sensor gets.
const ReadingsPerSensor = 10

// Sensors are the demo sensors, in creation order.
var Sensors = []models.Sensor{
	{SensorID: "TEMP001", Name: "Line 1 temperature", Type: models.SensorTypeTemperature, Location: "Building A, floor 1"},
	{SensorID: "TEMP002", Name: "Line 2 temperature", Type: models.SensorTypeTemperature, Location: "Building A, floor 2"},
	{SensorID: "HUM001", Name: "Line 1 humidity", Type: models.SensorTypeHumidity, Location: "Building B, floor 1"},
	{SensorID: "PRES001", Name: "Pressure", Type: models.SensorTypePressure, Location: "Building C"},
	{SensorID: "GAS001", Name: "Gas", Type: models.SensorTypeGas, Location: "Building D"},
}

type valueRange struct {
	min, max float64
	unit     string
}

var ranges = map[models.SensorType]valueRange{
	models.SensorTypeTemperature: {20, 35, "°C"},
	models.SensorTypeHumidity:    {40, 85, "%"},
	models.SensorTypePressure:    {950, 1050, "hPa"},
	models.SensorTypeGas:         {0, 100, "ppm"},
}

// Summary reports what Run created.
type Summary struct {
	Sensors  int
	Readings int
	Alerts   int
}

// Reset deletes every sensor with its cached latest reading; readings and alerts go with them.
func Reset(ctx context.Context, store storage.Store, latest state.LatestStore) (int, error) {
	sensors, err := store.ListSensors(ctx)
	if err != nil {
		return 0, fmt.Errorf("list sensors: %w", err)
	}
	for _, s := range sensors {
		if err := store.DeleteSensor(ctx, s.SensorID); err != nil {
			return 0, fmt.Errorf("delete sensor %s: %w", s.SensorID, err)
		}
		if err := latest.DeleteLatest(ctx, s.SensorID); err != nil {
			return 0, fmt.Errorf("drop cached reading of %s: %w", s.SensorID, err)
		}
	}
	return len(sensors), nil
}

// Run creates the demo sensors with random readings and one temperature alert
// on the first sensor. Readings are stored directly and do not raise alerts;
// each sensor's last one is written to latest.
func Run(ctx context.Context, store storage.Store, latest state.LatestStore, rng *rand.Rand) (Summary, error) {
	log := logger.WithComponent("seed")
	var sum Summary

	created := make([]*models.Sensor, 0, len(Sensors))
	for _, tmpl := range Sensors {
		s := tmpl
		s.Normalize()
		if err := s.Validate(); err != nil {
			return sum, err
		}
		if err := store.CreateSensor(ctx, &s); err != nil {
			return sum, err
		}
		created = append(created, &s)
		sum.Sensors++
		log.Info().Str("sensor_id", s.SensorID).Str("name", s.Name).Msg("sensor created")
	}

	for _, s := range created {
		vr := ranges[s.Type]
		var last *models.Reading
		for i := 0; i < ReadingsPerSensor; i++ {
			r := &models.Reading{
				SensorPK:  s.ID,
				Value:     vr.min + rng.Float64()*(vr.max-vr.min),
				Unit:      vr.unit,
				Timestamp: time.Now().UTC(),
				Quality:   90 + rng.Intn(11),
			}
			if err := store.CreateReading(ctx, r); err != nil {
				return sum, err
			}
			sum.Readings++
			last = r
		}
		if err := latest.SetLatest(ctx, s.SensorID, last); err != nil {
			return sum, fmt.Errorf("cache latest reading of %s: %w", s.SensorID, err)
		}
		log.Info().Str("sensor_id", s.SensorID).Int("readings", ReadingsPerSensor).Msg("readings created")
	}

	first := created[0]
	alert := &models.Alert{
		SensorPK:       first.ID,
		Severity:       models.AlertSeverityHigh,
		Status:         models.AlertStatusActive,
		Title:          first.Name + " temperature too high",
		Message:        "Current temperature: 32.5°C (threshold: 30°C)",
		ThresholdValue: 30,
		ActualValue:    32.5,
		CreatedAt:      time.Now().UTC(),
	}
	if err := store.CreateAlert(ctx, alert); err != nil {
		return sum, err
	}
	sum.Alerts++

	return sum, nil
}
