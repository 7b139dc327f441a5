package models

import (
	"errors"
	"strings"
	"time"
)

// SensorType is the kind of quantity a sensor measures.
type SensorType string

const (
	SensorTypeTemperature SensorType = "temperature"
	SensorTypeHumidity    SensorType = "humidity"
	SensorTypePressure    SensorType = "pressure"
	SensorTypeGas         SensorType = "gas"
)

// SensorTypes lists every sensor type in display order.
var SensorTypes = []SensorType{
	SensorTypeTemperature,
	SensorTypeHumidity,
	SensorTypePressure,
	SensorTypeGas,
}

// IsValid checks if the sensor type is one of the known types
func (t SensorType) IsValid() bool {
	switch t {
	case SensorTypeTemperature, SensorTypeHumidity, SensorTypePressure, SensorTypeGas:
		return true
	default:
		return false
	}
}

// DisplayName returns the human readable name of the type.
func (t SensorType) DisplayName() string {
	switch t {
	case SensorTypeTemperature:
		return "Temperature"
	case SensorTypeHumidity:
		return "Humidity"
	case SensorTypePressure:
		return "Pressure"
	case SensorTypeGas:
		return "Gas"
	default:
		return string(t)
	}
}

// SensorStatus is the operational state of a sensor.
type SensorStatus string

const (
	SensorStatusActive  SensorStatus = "active"
	SensorStatusWarning SensorStatus = "warning"
	SensorStatusError   SensorStatus = "error"
	SensorStatusOffline SensorStatus = "offline"
)

// IsValid checks if the status is one of the known statuses
func (s SensorStatus) IsValid() bool {
	switch s {
	case SensorStatusActive, SensorStatusWarning, SensorStatusError, SensorStatusOffline:
		return true
	default:
		return false
	}
}

// Sensor is a registered telemetry source.
type Sensor struct {
	// Surrogate primary key
	ID int64 `json:"id" gorm:"primaryKey"`

	// External identifier devices report with, e.g. TEMP001
	SensorID string `json:"sensor_id" gorm:"column:sensor_id;size:50;uniqueIndex;not null"`

	Name        string       `json:"name" gorm:"size:100;not null"`
	Type        SensorType   `json:"type" gorm:"column:sensor_type;size:20;not null"`
	Location    string       `json:"location" gorm:"size:200;not null"`
	Status      SensorStatus `json:"status" gorm:"size:20;not null;default:active"`
	Description string       `json:"description" gorm:"type:text;not null;default:''"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName pins the gorm table name.
func (Sensor) TableName() string { return "sensors" }

// Validation errors
var (
	ErrEmptySensorID       = errors.New("sensor_id cannot be empty")
	ErrSensorIDTooLong     = errors.New("sensor_id exceeds maximum length")
	ErrEmptySensorName     = errors.New("sensor name cannot be empty")
	ErrEmptyLocation       = errors.New("location cannot be empty")
	ErrInvalidSensorType   = errors.New("invalid sensor type")
	ErrInvalidSensorStatus = errors.New("invalid sensor status")
)

const (
	MaxSensorIDLength = 50
	MaxNameLength     = 100
	MaxLocationLength = 200
)

// Normalize trims text fields and lower-cases the enumerations.
// An empty status becomes active.
func (s *Sensor) Normalize() {
	s.SensorID = strings.TrimSpace(s.SensorID)
	s.Name = strings.TrimSpace(s.Name)
	s.Location = strings.TrimSpace(s.Location)
	s.Description = strings.TrimSpace(s.Description)
	s.Type = SensorType(strings.ToLower(strings.TrimSpace(string(s.Type))))
	s.Status = SensorStatus(strings.ToLower(strings.TrimSpace(string(s.Status))))
	if s.Status == "" {
		s.Status = SensorStatusActive
	}
}

// Validate checks if the Sensor has all required fields and valid values
func (s *Sensor) Validate() error {
	if s.SensorID == "" {
		return ErrEmptySensorID
	}

	if len(s.SensorID) > MaxSensorIDLength {
		return ErrSensorIDTooLong
	}

	if s.Name == "" {
		return ErrEmptySensorName
	}

	if s.Location == "" {
		return ErrEmptyLocation
	}

	if !s.Type.IsValid() {
		return ErrInvalidSensorType
	}

	if !s.Status.IsValid() {
		return ErrInvalidSensorStatus
	}

	return nil
}
