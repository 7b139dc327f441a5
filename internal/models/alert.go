package models

import "time"

// AlertSeverity ranks how urgent an alert is.
type AlertSeverity string

const (
	AlertSeverityLow      AlertSeverity = "low"
	AlertSeverityMedium   AlertSeverity = "medium"
	AlertSeverityHigh     AlertSeverity = "high"
	AlertSeverityCritical AlertSeverity = "critical"
)

// IsValid checks if the severity level is valid
func (s AlertSeverity) IsValid() bool {
	switch s {
	case AlertSeverityLow, AlertSeverityMedium, AlertSeverityHigh, AlertSeverityCritical:
		return true
	default:
		return false
	}
}

// AlertStatus tracks an alert through acknowledgement.
// Nothing in this service moves an alert out of active.
type AlertStatus string

const (
	AlertStatusActive       AlertStatus = "active"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
)

// IsValid checks if the alert status is valid
func (s AlertStatus) IsValid() bool {
	switch s {
	case AlertStatusActive, AlertStatusAcknowledged, AlertStatusResolved:
		return true
	default:
		return false
	}
}

// Alert is raised when a reading breaches a threshold.
type Alert struct {
	ID int64 `json:"id" gorm:"primaryKey"`

	SensorPK int64   `json:"-" gorm:"column:sensor_id;not null;index"`
	Sensor   *Sensor `json:"-" gorm:"foreignKey:SensorPK;constraint:OnDelete:CASCADE"`

	// Filled by queries that join sensors
	SensorName string `json:"sensor_name,omitempty" gorm:"->;-:migration"`

	Severity       AlertSeverity `json:"severity" gorm:"size:20;not null"`
	Status         AlertStatus   `json:"status" gorm:"size:20;not null;default:active;index"`
	Title          string        `json:"title" gorm:"size:200;not null"`
	Message        string        `json:"message" gorm:"type:text;not null"`
	ThresholdValue float64       `json:"threshold_value" gorm:"not null"`
	ActualValue    float64       `json:"actual_value" gorm:"not null"`

	CreatedAt      time.Time  `json:"created_at" gorm:"index"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

// TableName pins the gorm table name.
func (Alert) TableName() string { return "alerts" }
