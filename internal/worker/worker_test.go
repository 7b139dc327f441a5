package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"sensorwatch/internal/models"
)

// mockPublisher records what it is asked to publish
type mockPublisher struct {
	mu         sync.Mutex
	published  atomic.Uint64
	batches    []int
	failBatch  bool
	failSingle bool
}

func (m *mockPublisher) Publish(ctx context.Context, env *models.Envelope) error {
	if m.failSingle {
		return context.DeadlineExceeded
	}
	m.published.Add(1)
	return nil
}

func (m *mockPublisher) PublishBatch(ctx context.Context, envs []*models.Envelope) error {
	if m.failBatch {
		return context.DeadlineExceeded
	}
	m.mu.Lock()
	m.batches = append(m.batches, len(envs))
	m.mu.Unlock()
	m.published.Add(uint64(len(envs)))
	return nil
}

func envelope(i int) *models.Envelope {
	sensor := &models.Sensor{ID: int64(i), SensorID: "TEMP001"}
	return models.NewReadingEnvelope(sensor, &models.Reading{Value: float64(i)}, "test-node")
}

func TestWorkerPool_ProcessEnvelopes(t *testing.T) {
	ch := make(chan *models.Envelope, 100)
	mock := &mockPublisher{}

	pool := NewPool(Config{
		Publisher:    mock,
		Queue:        ch,
		Workers:      2,
		BatchSize:    10,
		BatchTimeout: 50 * time.Millisecond,
	})
	pool.Start()
	defer pool.Stop()

	for i := 0; i < 25; i++ {
		ch <- envelope(i)
	}

	assert.Eventually(t, func() bool { return mock.published.Load() == 25 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(25), pool.Stats().Processed)
}

func TestWorkerPool_Batching(t *testing.T) {
	ch := make(chan *models.Envelope, 100)
	mock := &mockPublisher{}

	pool := NewPool(Config{
		Publisher:    mock,
		Queue:        ch,
		Workers:      1,
		BatchSize:    5,
		BatchTimeout: time.Second,
	})
	pool.Start()
	defer pool.Stop()

	for i := 0; i < 5; i++ {
		ch <- envelope(i)
	}

	assert.Eventually(t, func() bool { return mock.published.Load() == 5 }, 500*time.Millisecond, 10*time.Millisecond)
	mock.mu.Lock()
	assert.Equal(t, []int{5}, mock.batches)
	mock.mu.Unlock()
}

func TestWorkerPool_TimeoutBatch(t *testing.T) {
	ch := make(chan *models.Envelope, 100)
	mock := &mockPublisher{}

	pool := NewPool(Config{
		Publisher:    mock,
		Queue:        ch,
		Workers:      1,
		BatchSize:    100,
		BatchTimeout: 50 * time.Millisecond,
	})
	pool.Start()
	defer pool.Stop()

	for i := 0; i < 3; i++ {
		ch <- envelope(i)
	}

	assert.Eventually(t, func() bool { return mock.published.Load() == 3 }, time.Second, 10*time.Millisecond)
}

func TestWorkerPool_GracefulShutdown(t *testing.T) {
	ch := make(chan *models.Envelope, 100)
	mock := &mockPublisher{}

	pool := NewPool(Config{
		Publisher:    mock,
		Queue:        ch,
		Workers:      2,
		BatchSize:    10,
		BatchTimeout: time.Hour,
	})

	for i := 0; i < 7; i++ {
		ch <- envelope(i)
	}
	pool.Start()
	pool.Stop()

	assert.Equal(t, uint64(7), mock.published.Load())
}

func TestWorkerPool_FallbackToIndividual(t *testing.T) {
	ch := make(chan *models.Envelope, 100)
	mock := &mockPublisher{failBatch: true}

	pool := NewPool(Config{
		Publisher:    mock,
		Queue:        ch,
		Workers:      1,
		BatchSize:    5,
		BatchTimeout: 50 * time.Millisecond,
	})
	pool.Start()
	defer pool.Stop()

	for i := 0; i < 5; i++ {
		ch <- envelope(i)
	}

	assert.Eventually(t, func() bool { return pool.Stats().Processed == 5 }, time.Second, 10*time.Millisecond)
	assert.Zero(t, pool.Stats().Failed)
}

func TestWorkerPool_ErrorHandling(t *testing.T) {
	ch := make(chan *models.Envelope, 100)
	mock := &mockPublisher{failBatch: true, failSingle: true}

	pool := NewPool(Config{
		Publisher:      mock,
		Queue:          ch,
		Workers:        1,
		BatchSize:      5,
		BatchTimeout:   50 * time.Millisecond,
		PublishTimeout: 100 * time.Millisecond,
	})
	pool.Start()
	defer pool.Stop()

	for i := 0; i < 5; i++ {
		ch <- envelope(i)
	}

	assert.Eventually(t, func() bool { return pool.Stats().Failed == 5 }, time.Second, 10*time.Millisecond)
	assert.Zero(t, pool.Stats().Processed)
}

func TestWorkerPool_ClosedQueue(t *testing.T) {
	ch := make(chan *models.Envelope, 10)
	mock := &mockPublisher{}

	pool := NewPool(Config{Publisher: mock, Queue: ch, Workers: 1, BatchTimeout: time.Hour})
	pool.Start()

	ch <- envelope(1)
	close(ch)

	assert.Eventually(t, func() bool { return mock.published.Load() == 1 }, time.Second, 10*time.Millisecond)
	pool.Stop()
}
