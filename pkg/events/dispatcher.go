package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-progress-api/pkg/middleware/requestid"
)

// ErrDispatcherFull is returned when the buffer cannot take another event.
var ErrDispatcherFull = errors.New("event dispatcher buffer full")

// Sink delivers one event synchronously.
type Sink interface {
	Publish(ctx context.Context, eventType string, payload interface{}) error
}

// DispatcherConfig configures the delivery worker pool.
type DispatcherConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

type delivery struct {
	eventType string
	payload   interface{}
	requestID string
	attempt   int
}

// Dispatcher moves event delivery off the request path. Publish never blocks:
// events are buffered and handed to the sink by a small worker pool, failed
// deliveries are retried after a delay and dropped once retries run out.
type Dispatcher struct {
	sink       Sink
	workers    int
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger

	mu      sync.RWMutex
	queue   chan delivery
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	closed  bool
}

// NewDispatcher builds a dispatcher delivering to sink.
func NewDispatcher(sink Sink, cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 64
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Dispatcher{
		sink:       sink,
		workers:    cfg.Workers,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     cfg.Logger,
		queue:      make(chan delivery, cfg.BufferSize),
	}
}

// Start launches the workers. Calling it twice is a no-op.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.ctx, d.cancel = context.WithCancel(context.WithoutCancel(ctx))
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	d.started = true
	d.logger.Info("event dispatcher started", zap.Int("workers", d.workers))
}

// Publish buffers the event for delivery. The request id of ctx travels
// with it.
func (d *Dispatcher) Publish(ctx context.Context, eventType string, payload interface{}) error {
	return d.enqueue(delivery{eventType: eventType, payload: payload, requestID: requestid.FromContext(ctx)})
}

func (d *Dispatcher) enqueue(item delivery) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return errors.New("event dispatcher stopped")
	}
	select {
	case d.queue <- item:
		return nil
	default:
		d.logger.Warn("event dropped", zap.String("type", item.eventType), zap.Error(ErrDispatcherFull))
		return ErrDispatcherFull
	}
}

// Stop refuses new events and waits for buffered ones to be delivered until
// ctx expires, at which point in-flight retries are abandoned.
func (d *Dispatcher) Stop(ctx context.Context) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()
	if !started {
		return
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		d.logger.Warn("event dispatcher stopped before draining", zap.Error(ctx.Err()))
	}
	d.cancel()
	d.logger.Info("event dispatcher stopped")
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for item := range d.queue {
		ctx := requestid.WithContext(d.ctx, item.requestID)
		if err := d.sink.Publish(ctx, item.eventType, item.payload); err != nil {
			d.retry(item, err)
		}
	}
}

func (d *Dispatcher) retry(item delivery, err error) {
	item.attempt++
	if item.attempt > d.maxRetries {
		d.logger.Error("event delivery failed", zap.String("type", item.eventType), zap.Int("attempts", item.attempt), zap.Error(err))
		return
	}
	d.logger.Warn("event delivery failed, retrying", zap.String("type", item.eventType), zap.Int("attempt", item.attempt), zap.Error(err))

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		timer := time.NewTimer(d.retryDelay)
		defer timer.Stop()
		select {
		case <-d.ctx.Done():
		case <-timer.C:
			if err := d.enqueue(item); err != nil {
				d.logger.Warn("event requeue failed", zap.String("type", item.eventType), zap.Error(err))
			}
		}
	}()
}
