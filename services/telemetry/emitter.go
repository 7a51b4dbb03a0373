package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arnobt78/multimodel-chat/internal/observability"
	"github.com/arnobt78/multimodel-chat/models"
)

var (
	// ErrNotStarted is returned when emitting before Start or after Stop
	ErrNotStarted = errors.New("telemetry emitter not started")

	// ErrBufferFull is returned when an event was dropped
	ErrBufferFull = errors.New("telemetry event buffer full")
)

// Sink receives usage events
type Sink interface {
	// Name identifies the sink in logs
	Name() string

	// Record delivers one event
	Record(ctx context.Context, event *models.Event) error
}

// Config holds configuration for the Emitter
type Config struct {
	BufferSize  int           // Size of the event buffer channel
	WorkerCount int           // Number of concurrent workers
	SinkTimeout time.Duration // Deadline for a single sink delivery
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  1000,
		WorkerCount: 2,
		SinkTimeout: 5 * time.Second,
	}
}

// Emitter delivers events to its sinks in the background
type Emitter struct {
	sinks       []Sink
	logger      *zap.Logger
	metrics     *observability.Metrics
	eventChan   chan *models.Event
	workerCount int
	bufferSize  int
	sinkTimeout time.Duration
	wg          sync.WaitGroup
	started     bool
	stopped     bool
	mu          sync.RWMutex
}

// NewEmitter creates a new Emitter. metrics may be nil.
func NewEmitter(config Config, logger *zap.Logger, metrics *observability.Metrics, sinks ...Sink) *Emitter {
	def := DefaultConfig()
	if config.BufferSize <= 0 {
		config.BufferSize = def.BufferSize
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = def.WorkerCount
	}
	if config.SinkTimeout <= 0 {
		config.SinkTimeout = def.SinkTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Emitter{
		sinks:       sinks,
		logger:      logger,
		metrics:     metrics,
		eventChan:   make(chan *models.Event, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
		sinkTimeout: config.SinkTimeout,
	}
}

// Start starts the background workers
func (e *Emitter) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return fmt.Errorf("telemetry emitter already started")
	}

	for i := 0; i < e.workerCount; i++ {
		e.wg.Add(1)
		go e.worker(i)
	}

	e.started = true
	e.logger.Info("started telemetry emitter",
		zap.Int("worker_count", e.workerCount),
		zap.Int("buffer_size", e.bufferSize),
		zap.Int("sinks", len(e.sinks)))

	return nil
}

// Stop closes the buffer and waits for pending events to be delivered
func (e *Emitter) Stop(timeout time.Duration) error {
	e.mu.Lock()
	if !e.started || e.stopped {
		e.mu.Unlock()
		return ErrNotStarted
	}
	e.stopped = true
	close(e.eventChan)
	e.mu.Unlock()

	e.logger.Info("stopping telemetry emitter", zap.Int("pending_events", len(e.eventChan)))

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("telemetry emitter stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("telemetry emitter stop timeout after %v", timeout)
	}
}

// Emit queues an event without blocking. A full buffer drops the event.
func (e *Emitter) Emit(ctx context.Context, event *models.Event) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.started || e.stopped {
		return ErrNotStarted
	}

	select {
	case e.eventChan <- event:
		return nil
	default:
		e.logger.Warn("telemetry event channel full, dropping event",
			zap.String("event_type", string(event.EventType)),
			zap.String("provider", event.Provider))
		e.metrics.RecordDropped(ctx)
		return ErrBufferFull
	}
}

func (e *Emitter) worker(id int) {
	defer e.wg.Done()

	e.logger.Debug("telemetry worker started", zap.Int("worker_id", id))

	for event := range e.eventChan {
		e.deliver(event)
	}

	e.logger.Debug("telemetry worker stopped", zap.Int("worker_id", id))
}

// deliver fans one event out to every sink
func (e *Emitter) deliver(event *models.Event) {
	for _, sink := range e.sinks {
		if err := e.record(sink, event); err != nil {
			e.logger.Error("failed to deliver telemetry event",
				zap.String("sink", sink.Name()),
				zap.String("event_id", event.ID.String()),
				zap.Error(err))
		}
	}
}

// record calls one sink under its timeout. A panicking sink is turned into
// an error so the worker keeps running.
func (e *Emitter) record(sink Sink, event *models.Event) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), e.sinkTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()
	return sink.Record(ctx, event)
}

// Stats returns statistics about the emitter
func (e *Emitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return Stats{
		BufferSize:    e.bufferSize,
		PendingEvents: len(e.eventChan),
		WorkerCount:   e.workerCount,
		Sinks:         len(e.sinks),
		Started:       e.started && !e.stopped,
	}
}

// Stats represents emitter statistics
type Stats struct {
	BufferSize    int
	PendingEvents int
	WorkerCount   int
	Sinks         int
	Started       bool
}
