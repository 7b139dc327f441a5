package handlers

import (
	"github.com/go-chi/chi/v5"
)

// Service is everything the HTTP surface needs from the monitoring service.
type Service interface {
	Ingester
	Querier
}

// Register mounts the dashboard and the JSON API on r. Paths are registered
// without a trailing slash; the router strips it before matching.
func Register(r chi.Router, svc Service, maxBodySize int64) error {
	dashboard, err := NewDashboardHandler(svc)
	if err != nil {
		return err
	}
	query := NewQueryHandler(svc)
	ingest := NewIngestHandler(IngestConfig{Ingester: svc, MaxBodySize: maxBodySize})

	r.Get("/", dashboard.ServeHTTP)
	r.Route("/api", func(r chi.Router) {
		r.Get("/sensors", query.Sensors)
		r.Get("/sensors/{sensor_id}", query.SensorDetail)
		r.Get("/alerts", query.Alerts)
		r.Get("/statistics", query.Statistics)
		// any method; non-POST gets the JSON 405
		r.Handle("/data/receive", ingest)
	})
	return nil
}
