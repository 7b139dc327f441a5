package alerts

import (
	"fmt"
	"strconv"
	"strings"

	"sensorwatch/internal/models"
)

// Rule raises an alert when a sensor of Type reports a value above Threshold.
type Rule struct {
	Type      models.SensorType
	Threshold float64
	Severity  models.AlertSeverity

	// Quantity and Unit are used to template the alert text
	Quantity string
	Unit     string
}

// DefaultRules is the fixed rule table applied after every ingest.
var DefaultRules = []Rule{
	{
		Type:      models.SensorTypeTemperature,
		Threshold: 30.0,
		Severity:  models.AlertSeverityHigh,
		Quantity:  "temperature",
		Unit:      "°C",
	},
	{
		Type:      models.SensorTypeHumidity,
		Threshold: 80.0,
		Severity:  models.AlertSeverityMedium,
		Quantity:  "humidity",
		Unit:      "%",
	},
}

// Engine evaluates readings against a rule table. It holds no state between calls.
type Engine struct {
	rules []Rule
}

// NewEngine returns an engine over rules, or DefaultRules when none are given.
func NewEngine(rules ...Rule) *Engine {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Engine{rules: rules}
}

// Evaluate returns the alert the first matching rule raises for value, or nil.
// The returned alert is not persisted and has no CreatedAt.
func (e *Engine) Evaluate(sensor *models.Sensor, value float64) *models.Alert {
	for _, rule := range e.rules {
		if rule.Type != sensor.Type {
			continue
		}
		if value <= rule.Threshold {
			continue
		}
		return rule.alertFor(sensor, value)
	}
	return nil
}

func (r Rule) alertFor(sensor *models.Sensor, value float64) *models.Alert {
	return &models.Alert{
		SensorPK:   sensor.ID,
		SensorName: sensor.Name,
		Severity:   r.Severity,
		Status:     models.AlertStatusActive,
		Title:      fmt.Sprintf("%s %s too high", sensor.Name, r.Quantity),
		Message: fmt.Sprintf("Current %s: %s%s (threshold: %s%s)",
			r.Quantity, formatValue(value), r.Unit, strconv.FormatFloat(r.Threshold, 'f', -1, 64), r.Unit),
		ThresholdValue: r.Threshold,
		ActualValue:    value,
	}
}

// formatValue renders a reading with at least one decimal place, so 32 reads "32.0".
func formatValue(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
