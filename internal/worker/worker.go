package worker

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"sensorwatch/internal/logger"
	"sensorwatch/internal/metrics"
	"sensorwatch/internal/models"
)

// Publisher delivers envelopes to the outbound event stream
type Publisher interface {
	Publish(ctx context.Context, env *models.Envelope) error
	PublishBatch(ctx context.Context, envs []*models.Envelope) error
}

// Pool drains the event queue in batches and hands them to a Publisher
type Pool struct {
	publisher      Publisher
	queue          <-chan *models.Envelope
	workers        int
	batchSize      int
	batchTimeout   time.Duration
	publishTimeout time.Duration

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	processed atomic.Uint64
	failed    atomic.Uint64
}

// Config holds worker pool configuration
type Config struct {
	Publisher Publisher
	Queue     <-chan *models.Envelope
	Workers   int
	BatchSize int

	// BatchTimeout flushes a partial batch; PublishTimeout bounds one publish call
	BatchTimeout   time.Duration
	PublishTimeout time.Duration
}

// NewPool creates a new worker pool
func NewPool(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 100 * time.Millisecond
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		publisher:      cfg.Publisher,
		queue:          cfg.Queue,
		workers:        cfg.Workers,
		batchSize:      cfg.BatchSize,
		batchTimeout:   cfg.BatchTimeout,
		publishTimeout: cfg.PublishTimeout,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Start launches the workers
func (p *Pool) Start() {
	log := logger.WithComponent("worker_pool")
	log.Info().
		Int("workers", p.workers).
		Int("batch_size", p.batchSize).
		Dur("batch_timeout", p.batchTimeout).
		Msg("starting worker pool")

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop cancels the workers and waits for them to flush what they hold
func (p *Pool) Stop() {
	log := logger.WithComponent("worker_pool")
	log.Info().Msg("stopping worker pool")
	p.cancel()
	p.wg.Wait()
	log.Info().Msg("worker pool stopped")
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	log := logger.WithComponent("worker").With().Int("worker_id", id).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("worker panic recovered")
			metrics.PanicsRecovered.WithLabelValues("worker").Inc()
		}
	}()

	log.Debug().Msg("worker started")
	defer log.Debug().Msg("worker stopped")

	batch := make([]*models.Envelope, 0, p.batchSize)
	timer := time.NewTimer(p.batchTimeout)
	defer timer.Stop()

	flush := func() {
		if len(batch) > 0 {
			p.publishBatch(batch)
			batch = batch[:0]
		}
	}

	for {
		select {
		case <-p.ctx.Done():
			p.drain(&batch)
			flush()
			return

		case env, ok := <-p.queue:
			if !ok {
				flush()
				return
			}
			metrics.EventQueueSize.Set(float64(len(p.queue)))

			batch = append(batch, env)
			if len(batch) >= p.batchSize {
				flush()
				timer.Reset(p.batchTimeout)
			}

		case <-timer.C:
			flush()
			timer.Reset(p.batchTimeout)
		}
	}
}

// drain moves whatever is already queued into batch without blocking,
// so envelopes accepted before shutdown are still published.
func (p *Pool) drain(batch *[]*models.Envelope) {
	for {
		select {
		case env, ok := <-p.queue:
			if !ok {
				return
			}
			*batch = append(*batch, env)
			if len(*batch) >= p.batchSize {
				p.publishBatch(*batch)
				*batch = (*batch)[:0]
			}
		default:
			return
		}
	}
}

// publishContext is detached from the pool context so a shutdown flush can still complete.
func (p *Pool) publishContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), p.publishTimeout)
}

func (p *Pool) publishBatch(batch []*models.Envelope) {
	log := logger.WithComponent("worker")
	start := time.Now()

	ctx, cancel := p.publishContext()
	defer cancel()

	err := p.publisher.PublishBatch(ctx, batch)
	duration := time.Since(start)
	metrics.WorkerBatchPublishDuration.Observe(duration.Seconds())

	if err == nil {
		log.Debug().
			Int("batch_size", len(batch)).
			Dur("duration", duration).
			Msg("batch published")
		p.processed.Add(uint64(len(batch)))
		metrics.WorkerProcessedTotal.Add(float64(len(batch)))
		return
	}

	log.Error().
		Err(err).
		Int("batch_size", len(batch)).
		Dur("duration", duration).
		Msg("failed to publish batch, falling back to individual publish")
	p.publishIndividually(batch)
}

func (p *Pool) publishIndividually(batch []*models.Envelope) {
	log := logger.WithComponent("worker")

	for _, env := range batch {
		ctx, cancel := p.publishContext()
		err := p.publisher.Publish(ctx, env)
		cancel()

		if err != nil {
			log.Error().
				Err(err).
				Str("kind", string(env.Kind)).
				Str("sensor_id", env.SensorID).
				Msg("failed to publish envelope")
			p.failed.Add(1)
			metrics.WorkerFailedTotal.Inc()
			continue
		}
		p.processed.Add(1)
		metrics.WorkerProcessedTotal.Inc()
	}
}

// Stats holds worker pool counters
type Stats struct {
	Processed uint64
	Failed    uint64
}

// Stats returns worker pool statistics
func (p *Pool) Stats() Stats {
	return Stats{
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
	}
}
