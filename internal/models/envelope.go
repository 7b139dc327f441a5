package models

import (
	"time"
)

// EventKind names what happened inside an Envelope.
type EventKind string

const (
	EventReadingIngested EventKind = "reading.ingested"
	EventAlertRaised     EventKind = "alert.raised"
)

// Envelope wraps a reading or alert with ingest metadata for fan-out
type Envelope struct {
	Kind     EventKind `json:"kind"`
	SensorID string    `json:"sensor_id"`

	// Exactly one of Reading or Alert is set, matching Kind
	Reading *Reading `json:"reading,omitempty"`
	Alert   *Alert   `json:"alert,omitempty"`

	ReceivedAt   time.Time `json:"received_at"`
	IngestNode   string    `json:"ingest_node"`
	PartitionKey string    `json:"partition_key"`
}

// NewReadingEnvelope creates an envelope announcing a stored reading
func NewReadingEnvelope(sensor *Sensor, reading *Reading, ingestNode string) *Envelope {
	e := newEnvelope(EventReadingIngested, sensor, ingestNode)
	e.Reading = reading
	return e
}

// NewAlertEnvelope creates an envelope announcing a raised alert
func NewAlertEnvelope(sensor *Sensor, alert *Alert, ingestNode string) *Envelope {
	e := newEnvelope(EventAlertRaised, sensor, ingestNode)
	e.Alert = alert
	return e
}

func newEnvelope(kind EventKind, sensor *Sensor, ingestNode string) *Envelope {
	return &Envelope{
		Kind:         kind,
		SensorID:     sensor.SensorID,
		ReceivedAt:   time.Now().UTC(),
		IngestNode:   ingestNode,
		PartitionKey: sensor.SensorID, // per-sensor ordering
	}
}
