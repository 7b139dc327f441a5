package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sensorwatch/internal/config"
	"sensorwatch/internal/handlers"
	"sensorwatch/internal/kafka"
	"sensorwatch/internal/logger"
	"sensorwatch/internal/metrics"
	"sensorwatch/internal/middleware"
	"sensorwatch/internal/models"
	"sensorwatch/internal/monitoring"
	"sensorwatch/internal/mqtt"
	"sensorwatch/internal/state"
	"sensorwatch/internal/storage"
	"sensorwatch/internal/websocket"
	"sensorwatch/internal/worker"
)

const (
	shutdownTimeout       = 10 * time.Second
	workerShutdownTimeout = 15 * time.Second
	healthTimeout         = 2 * time.Second
	statsInterval         = 30 * time.Second
)

// Server wires storage, the monitoring service and every ingest and
// delivery surface, and owns their lifecycle.
type Server struct {
	cfg    *config.Config
	nodeID string

	store      storage.Store
	latest     state.LatestStore
	service    *monitoring.Service
	events     chan *models.Envelope
	producer   *kafka.Producer
	workerPool *worker.Pool
	hub        *websocket.Hub
	subscriber *mqtt.Subscriber
	router     chi.Router
	httpServer *http.Server

	wg sync.WaitGroup
}

// New constructs a Server with the given config.
func New(cfg *config.Config) *Server {
	return &Server{
		cfg:    cfg,
		nodeID: resolveNodeID(cfg.NodeID),
	}
}

func resolveNodeID(configured string) string {
	if configured != "" {
		return configured
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return uuid.NewString()
}

// Run starts every component and blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	log := logger.WithComponent("server")
	log.Info().Str("node_id", s.nodeID).Msg("server starting")

	if err := s.setup(ctx); err != nil {
		log.Error().Err(err).Msg("failed to initialize server")
		s.closeResources()
		return err
	}

	ln, err := net.Listen("tcp", s.cfg.HTTP.Addr)
	if err != nil {
		s.closeResources()
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.HTTP.Addr, err)
	}

	if s.workerPool != nil {
		s.workerPool.Start()
	}

	if s.hub != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.hub.Run(ctx)
		}()
	}

	if s.subscriber != nil {
		if err := s.subscriber.Start(); err != nil {
			log.Error().Err(err).Msg("mqtt ingest unavailable")
			s.subscriber = nil
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Info().Str("addr", ln.Addr().String()).Msg("starting HTTP server")
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.reportStats(ctx)
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	return s.shutdown()
}

// setup builds every component without starting any goroutine.
func (s *Server) setup(ctx context.Context) error {
	if err := s.initStorage(ctx); err != nil {
		return err
	}
	if err := s.initLatest(ctx); err != nil {
		return err
	}
	if err := s.initEvents(); err != nil {
		return err
	}
	if s.cfg.WebSocket.Enabled {
		s.hub = websocket.NewHub()
	}

	mcfg := monitoring.Config{
		Store:  s.store,
		Latest: s.latest,
		NodeID: s.nodeID,
	}
	if s.events != nil {
		mcfg.Events = s.events
	}
	if s.hub != nil {
		mcfg.Broadcaster = s.hub
	}
	s.service = monitoring.New(mcfg)

	if s.cfg.MQTT.Broker != "" {
		s.subscriber = mqtt.NewSubscriber(s.cfg.MQTT, s.service)
	}

	return s.initHTTPServer()
}

func (s *Server) initStorage(ctx context.Context) error {
	store, err := storage.Open(ctx, s.cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	s.store = store
	return nil
}

// initLatest connects the Redis cache, or installs a no-op one when no address is configured.
func (s *Server) initLatest(ctx context.Context) error {
	log := logger.WithComponent("server")
	if s.cfg.Redis.Addr == "" {
		s.latest = state.NewNoopStore()
		log.Info().Msg("latest-reading cache disabled")
		return nil
	}

	latest, err := state.NewRedisStore(ctx, s.cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	s.latest = latest
	log.Info().Str("addr", s.cfg.Redis.Addr).Dur("ttl", s.cfg.Redis.TTL).Msg("latest-reading cache connected")
	return nil
}

// initEvents creates the event queue, the Kafka producer and the worker pool draining it.
func (s *Server) initEvents() error {
	log := logger.WithComponent("server")
	if !s.cfg.EventsEnabled() {
		log.Info().Msg("event stream disabled")
		return nil
	}

	producer, err := kafka.NewProducer(s.cfg.Kafka.Brokers, s.cfg.Kafka.Topic, s.cfg.Kafka.Producer)
	if err != nil {
		return fmt.Errorf("failed to initialize producer: %w", err)
	}
	s.producer = producer

	queueSize := s.cfg.Kafka.QueueSize
	if queueSize <= 0 {
		queueSize = 1000
	}
	s.events = make(chan *models.Envelope, queueSize)
	metrics.EventQueueCapacity.Set(float64(cap(s.events)))

	s.workerPool = worker.NewPool(worker.Config{
		Publisher:      s.producer,
		Queue:          s.events,
		Workers:        s.cfg.Kafka.Producer.PoolSize,
		BatchSize:      s.cfg.Kafka.Producer.BatchSize,
		BatchTimeout:   s.cfg.Kafka.Producer.BatchTimeout,
		PublishTimeout: s.cfg.Kafka.Producer.WriteTimeout,
	})

	log.Info().
		Strs("brokers", s.cfg.Kafka.Brokers).
		Str("topic", s.cfg.Kafka.Topic).
		Int("queue_size", queueSize).
		Int("workers", s.cfg.Kafka.Producer.PoolSize).
		Msg("event stream initialized")
	return nil
}

func (s *Server) initHTTPServer() error {
	r := chi.NewRouter()
	r.Use(middleware.Recovery, middleware.Logging, chimw.StripSlashes)

	if err := handlers.Register(r, s.service, s.cfg.HTTP.MaxBodySize); err != nil {
		return fmt.Errorf("failed to register handlers: %w", err)
	}

	r.Get("/health", s.healthHandler)
	r.Get("/stats", s.statsHandler)
	r.Handle("/metrics", promhttp.Handler())
	if s.hub != nil {
		r.Get("/ws", s.hub.ServeWS)
	}

	s.router = r
	s.httpServer = &http.Server{
		Addr:         s.cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  s.cfg.HTTP.ReadTimeout,
		WriteTimeout: s.cfg.HTTP.WriteTimeout,
		IdleTimeout:  s.cfg.HTTP.IdleTimeout,
	}
	return nil
}

// shutdown stops ingest first so every accepted reading reaches the event stream.
func (s *Server) shutdown() error {
	log := logger.WithComponent("server")
	log.Info().Msg("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info().Msg("stopping HTTP server")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	if s.subscriber != nil {
		log.Info().Msg("stopping mqtt subscriber")
		s.subscriber.Stop()
	}

	// The queue stays open: a late MQTT callback may still publish into it.
	if s.workerPool != nil {
		done := make(chan struct{})
		go func() {
			s.workerPool.Stop()
			close(done)
		}()

		select {
		case <-done:
			log.Info().Msg("workers stopped gracefully")
		case <-time.After(workerShutdownTimeout):
			log.Warn().Msg("worker shutdown timeout - forcing exit")
		}
	}

	s.wg.Wait()
	s.closeResources()

	log.Info().Msg("server stopped gracefully")
	return nil
}

func (s *Server) closeResources() {
	log := logger.WithComponent("server")

	if s.producer != nil {
		log.Info().Msg("closing kafka producer")
		if err := s.producer.Close(); err != nil {
			log.Error().Err(err).Msg("producer close error")
		}
	}
	if s.latest != nil {
		if err := s.latest.Close(); err != nil {
			log.Error().Err(err).Msg("cache close error")
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Error().Err(err).Msg("storage close error")
		}
	}
}

// reportStats periodically logs statistics
func (s *Server) reportStats(ctx context.Context) {
	log := logger.WithComponent("server")
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := s.stats()
			if s.events != nil {
				metrics.EventQueueSize.Set(float64(len(s.events)))
			}

			log.Info().
				Uint64("worker_processed", st.Worker.Processed).
				Uint64("worker_failed", st.Worker.Failed).
				Uint64("producer_sent", st.Producer.MessagesSent).
				Uint64("producer_failed", st.Producer.MessagesFailed).
				Uint64("producer_bytes", st.Producer.BytesWritten).
				Int("queue_size", st.Queue.Buffered).
				Int("websocket_clients", st.WebSocketClients).
				Msg("stats")
		}
	}
}

type workerStats struct {
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
}

type producerStats struct {
	MessagesSent   uint64 `json:"messages_sent"`
	MessagesFailed uint64 `json:"messages_failed"`
	BytesWritten   uint64 `json:"bytes_written"`
}

type queueStats struct {
	Buffered int `json:"buffered"`
	Capacity int `json:"capacity"`
}

type runtimeStats struct {
	NodeID           string        `json:"node_id"`
	Worker           workerStats   `json:"worker"`
	Producer         producerStats `json:"producer"`
	Queue            queueStats    `json:"queue"`
	WebSocketClients int           `json:"websocket_clients"`
}

func (s *Server) stats() runtimeStats {
	st := runtimeStats{NodeID: s.nodeID}
	if s.workerPool != nil {
		ws := s.workerPool.Stats()
		st.Worker = workerStats{Processed: ws.Processed, Failed: ws.Failed}
	}
	if s.producer != nil {
		ps := s.producer.Stats()
		st.Producer = producerStats{
			MessagesSent:   ps.MessagesSent,
			MessagesFailed: ps.MessagesFailed,
			BytesWritten:   ps.BytesWritten,
		}
	}
	if s.events != nil {
		st.Queue = queueStats{Buffered: len(s.events), Capacity: cap(s.events)}
	}
	if s.hub != nil {
		st.WebSocketClients = s.hub.ClientCount()
	}
	return st
}

// healthHandler reports 503 when storage, the cache or the event stream is unreachable.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	err := s.service.Ping(ctx)
	if err == nil && s.producer != nil {
		if perr := s.producer.HealthCheck(ctx); perr != nil {
			err = fmt.Errorf("kafka: %w", perr)
		}
	}

	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stats())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
