package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorwatch_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sensorwatch_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sensorwatch_http_request_size_bytes",
			Help:    "HTTP request size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 6),
		},
		[]string{"method", "route"},
	)

	HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sensorwatch_http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 6),
		},
		[]string{"method", "route"},
	)

	// Ingest metrics
	ReadingsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorwatch_readings_ingested_total",
			Help: "Total number of readings received",
		},
		[]string{"transport", "status"}, // status: accepted, rejected
	)

	AlertsRaisedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorwatch_alerts_raised_total",
			Help: "Total number of alerts raised by threshold rules",
		},
		[]string{"sensor_type", "severity"},
	)

	LatestCacheErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sensorwatch_latest_cache_errors_total",
			Help: "Total number of failed latest-reading cache operations",
		},
	)

	// Event queue metrics
	EventQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sensorwatch_event_queue_size",
			Help: "Current size of the outbound event queue",
		},
	)

	EventQueueCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sensorwatch_event_queue_capacity",
			Help: "Capacity of the outbound event queue",
		},
	)

	EventsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorwatch_events_dropped_total",
			Help: "Total number of events dropped because the queue was full",
		},
		[]string{"kind"},
	)

	// Worker metrics
	WorkerProcessedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sensorwatch_worker_processed_total",
			Help: "Total number of events published by workers",
		},
	)

	WorkerFailedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sensorwatch_worker_failed_total",
			Help: "Total number of events workers failed to publish",
		},
	)

	WorkerBatchPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sensorwatch_worker_batch_publish_duration_seconds",
			Help:    "Time taken to publish a batch of events",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// Kafka producer metrics
	KafkaPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorwatch_kafka_publish_total",
			Help: "Total number of messages published to Kafka",
		},
		[]string{"status"}, // status: success, failed
	)

	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sensorwatch_kafka_publish_duration_seconds",
			Help:    "Time taken to publish to Kafka",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	KafkaPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sensorwatch_kafka_publish_retries_total",
			Help: "Total number of Kafka publish retries",
		},
	)

	KafkaBytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sensorwatch_kafka_bytes_written_total",
			Help: "Total bytes written to Kafka",
		},
	)

	// MQTT ingest
	MQTTMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorwatch_mqtt_messages_total",
			Help: "Total number of MQTT reading messages handled",
		},
		[]string{"status"},
	)

	// WebSocket push
	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sensorwatch_websocket_clients",
			Help: "Number of connected dashboard WebSocket clients",
		},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorwatch_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
