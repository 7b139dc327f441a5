package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"sensorwatch/internal/middleware"
	"sensorwatch/internal/models"
	"sensorwatch/internal/monitoring"
)

// Querier is the read side of the monitoring service.
type Querier interface {
	ListSensors(ctx context.Context) ([]models.Sensor, error)
	SensorDetail(ctx context.Context, sensorID string) (*monitoring.SensorDetail, error)
	ListAlerts(ctx context.Context, status models.AlertStatus) ([]models.Alert, error)
	Statistics(ctx context.Context) (*monitoring.Statistics, error)
	Dashboard(ctx context.Context) (*monitoring.Dashboard, error)
}

// QueryHandler serves the read-only JSON API.
type QueryHandler struct {
	svc Querier
}

func NewQueryHandler(svc Querier) *QueryHandler {
	return &QueryHandler{svc: svc}
}

type sensorView struct {
	ID       int64               `json:"id"`
	SensorID string              `json:"sensor_id"`
	Name     string              `json:"name"`
	Type     models.SensorType   `json:"type"`
	Location string              `json:"location"`
	Status   models.SensorStatus `json:"status"`
}

func newSensorView(s *models.Sensor) sensorView {
	return sensorView{
		ID:       s.ID,
		SensorID: s.SensorID,
		Name:     s.Name,
		Type:     s.Type,
		Location: s.Location,
		Status:   s.Status,
	}
}

type readingView struct {
	Timestamp string  `json:"timestamp"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit"`
}

type alertView struct {
	ID         int64                `json:"id"`
	SensorName string               `json:"sensor_name"`
	Severity   models.AlertSeverity `json:"severity"`
	Status     models.AlertStatus   `json:"status"`
	Title      string               `json:"title"`
	Message    string               `json:"message"`
	CreatedAt  string               `json:"created_at"`
}

// Sensors handles GET /api/sensors/
func (h *QueryHandler) Sensors(w http.ResponseWriter, r *http.Request) {
	sensors, err := h.svc.ListSensors(r.Context())
	if err != nil {
		internalError(w, r, err, "failed to list sensors")
		return
	}

	views := make([]sensorView, 0, len(sensors))
	for i := range sensors {
		views = append(views, newSensorView(&sensors[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sensors": views})
}

// SensorDetail handles GET /api/sensors/{sensor_id}/
func (h *QueryHandler) SensorDetail(w http.ResponseWriter, r *http.Request) {
	sensorID := chi.URLParam(r, "sensor_id")

	detail, err := h.svc.SensorDetail(r.Context(), sensorID)
	if errors.Is(err, monitoring.ErrSensorNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		internalError(w, r, err, "failed to load sensor")
		return
	}

	readings := make([]readingView, 0, len(detail.Readings))
	for _, d := range detail.Readings {
		readings = append(readings, readingView{
			Timestamp: d.Timestamp.Format(time.RFC3339Nano),
			Value:     d.Value,
			Unit:      d.Unit,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sensor":      newSensorView(detail.Sensor),
		"recent_data": readings,
	})
}

// Alerts handles GET /api/alerts/?status=
func (h *QueryHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	status := models.AlertStatus(r.URL.Query().Get("status"))

	alerts, err := h.svc.ListAlerts(r.Context(), status)
	if err != nil {
		internalError(w, r, err, "failed to list alerts")
		return
	}

	views := make([]alertView, 0, len(alerts))
	for _, a := range alerts {
		views = append(views, alertView{
			ID:         a.ID,
			SensorName: a.SensorName,
			Severity:   a.Severity,
			Status:     a.Status,
			Title:      a.Title,
			Message:    a.Message,
			CreatedAt:  a.CreatedAt.Format(time.RFC3339Nano),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": views})
}

// Statistics handles GET /api/statistics/
func (h *QueryHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Statistics(r.Context())
	if err != nil {
		internalError(w, r, err, "failed to compute statistics")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func internalError(w http.ResponseWriter, r *http.Request, err error, message string) {
	log := middleware.Logger(r.Context())
	log.Error().Err(err).Msg(message)
	writeError(w, http.StatusInternalServerError, message)
}
