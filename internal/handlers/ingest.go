package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"sensorwatch/internal/metrics"
	"sensorwatch/internal/middleware"
	"sensorwatch/internal/models"
	"sensorwatch/internal/monitoring"
)

// Ingester stores one reading and runs the threshold rules.
type Ingester interface {
	Ingest(ctx context.Context, in models.ReadingInput) (*monitoring.IngestResult, error)
}

// IngestHandler handles sensor readings posted over HTTP
type IngestHandler struct {
	ingester Ingester

	// Max body size (default 1MB)
	maxBodySize int64
}

// IngestConfig holds configuration for the ingest handler
type IngestConfig struct {
	Ingester    Ingester
	MaxBodySize int64
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(cfg IngestConfig) *IngestHandler {
	maxBodySize := cfg.MaxBodySize
	if maxBodySize <= 0 {
		maxBodySize = 1 << 20
	}

	return &IngestHandler{
		ingester:    cfg.Ingester,
		maxBodySize: maxBodySize,
	}
}

// IngestResponse acknowledges a stored reading
type IngestResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	DataID  int64  `json:"data_id"`
}

// ServeHTTP handles the ingest HTTP request
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Only POST method allowed")
		return
	}

	log := middleware.Logger(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.reject(w, "request body too large")
		return
	}

	in, err := models.DecodeReadingInput(body)
	if err != nil {
		h.reject(w, err.Error())
		return
	}

	res, err := h.ingester.Ingest(r.Context(), in)
	if err != nil {
		log.Info().Err(err).Str("sensor_id", in.SensorID).Msg("reading rejected")
		h.reject(w, err.Error())
		return
	}

	metrics.ReadingsIngestedTotal.WithLabelValues("http", "accepted").Inc()
	writeJSON(w, http.StatusOK, IngestResponse{
		Status:  "success",
		Message: "Data received successfully",
		DataID:  res.Reading.ID,
	})
}

func (h *IngestHandler) reject(w http.ResponseWriter, message string) {
	metrics.ReadingsIngestedTotal.WithLabelValues("http", "rejected").Inc()
	writeError(w, http.StatusBadRequest, message)
}

// errorResponse is the body of every JSON error
type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Status: "error", Message: message})
}
