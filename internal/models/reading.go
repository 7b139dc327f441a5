package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// DefaultQuality is the quality percentage assumed when a device sends none.
const DefaultQuality = 100

// Reading is one immutable timestamped value reported by a sensor.
type Reading struct {
	ID int64 `json:"id" gorm:"primaryKey"`

	// Primary key of the owning sensor
	SensorPK int64   `json:"-" gorm:"column:sensor_id;not null;index:idx_sensor_data_sensor_ts,priority:1"`
	Sensor   *Sensor `json:"-" gorm:"foreignKey:SensorPK;constraint:OnDelete:CASCADE"`

	Value     float64   `json:"value" gorm:"not null"`
	Unit      string    `json:"unit" gorm:"size:20;not null;default:''"`
	Timestamp time.Time `json:"timestamp" gorm:"not null;index:idx_sensor_data_sensor_ts,priority:2,sort:desc;index:idx_sensor_data_ts,sort:desc"`
	Quality   int       `json:"quality" gorm:"not null"`
	Remarks   string    `json:"remarks" gorm:"type:text;not null;default:''"`
}

// TableName pins the gorm table name.
func (Reading) TableName() string { return "sensor_data" }

// ReadingInput is the payload a device submits for one reading.
// Value is left undecoded so numbers and numeric strings are both accepted.
type ReadingInput struct {
	SensorID string `json:"sensor_id"`
	Value    any    `json:"value"`
	Unit     string `json:"unit,omitempty"`
	Quality  *int   `json:"quality,omitempty"`
	Remarks  string `json:"remarks,omitempty"`
}

// Input errors
var (
	ErrMissingSensorID = errors.New("sensor_id is required")
	ErrMissingValue    = errors.New("value is required")
	ErrInvalidValue    = errors.New("value must be a finite number")
)

// DecodeReadingInput parses a JSON reading payload. The body must hold exactly one value.
func DecodeReadingInput(body []byte) (ReadingInput, error) {
	var in ReadingInput
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&in); err != nil {
		return ReadingInput{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return ReadingInput{}, errors.New("invalid JSON: unexpected data after object")
	}
	return in, nil
}

// QualityOrDefault returns the submitted quality or DefaultQuality.
func (in ReadingInput) QualityOrDefault() int {
	if in.Quality == nil {
		return DefaultQuality
	}
	return *in.Quality
}

// ParseValue converts a decoded JSON value into a float64.
func ParseValue(v any) (float64, error) {
	var f float64
	switch val := v.(type) {
	case nil:
		return 0, ErrMissingValue
	case float64:
		f = val
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return 0, fmt.Errorf("could not convert %q to float: %w", val.String(), err)
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, fmt.Errorf("could not convert string to float: %q", val)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("%w: got %T", ErrInvalidValue, v)
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, ErrInvalidValue
	}
	return f, nil
}
