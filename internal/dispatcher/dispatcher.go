package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrUnknownMethod is returned when no handler is registered for a method.
var ErrUnknownMethod = errors.New("unknown method")

// ErrQueueFull is returned when a buffered handler drops an event.
var ErrQueueFull = errors.New("queue full")

// Event is a named call with its raw JSON arguments.
type Event struct {
	Method    string
	Args      json.RawMessage
	Timestamp time.Time
}

// CallerError is implemented by errors caused by a bad request rather than
// a failing handler. Logged handlers report those at debug level.
type CallerError interface {
	error
	CallerFault() bool
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(ctx context.Context, e Event) (any, error)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered makes the handler async with a queue of the given size.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Blocking makes a buffered handler block when the queue is full instead of dropping.
func Blocking() Option {
	return func(c *config) {
		c.blocking = true
	}
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

type queued struct {
	ctx context.Context
	e   Event
}

// Dispatcher routes events to registered handlers.
type Dispatcher struct {
	hmu      sync.RWMutex
	handlers map[string]HandlerFunc
	logger   Logger

	// OTEL metrics
	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter

	// Track buffers for gauge callback
	mu      sync.RWMutex
	buffers map[string]chan queued
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = nopLogger{}
	}
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		buffers:  make(map[string]chan queued),
		logger:   logger,
	}

	// Get meter from global OTel provider (returns no-op if not configured)
	m := meter()

	var err error

	d.queueSize, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Current number of events in queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			d.mu.RLock()
			defer d.mu.RUnlock()
			for method, buf := range d.buffers {
				o.ObserveInt64(d.queueSize, int64(len(buf)),
					metric.WithAttributes(attribute.String("method", method)))
			}
			return nil
		},
		d.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	d.processed, err = m.Int64Counter(
		"dispatcher.events.processed",
		metric.WithDescription("Total events processed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.dropped, err = m.Int64Counter(
		"dispatcher.events.dropped",
		metric.WithDescription("Total events dropped due to full queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	return d, nil
}

// Register adds a handler for the given method with optional configuration.
// Registering a method twice replaces the earlier handler.
func (d *Dispatcher) Register(method string, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := h

	if cfg.bufferSize > 0 {
		handler = d.withBuffer(method, cfg.bufferSize, cfg.blocking, handler)
	}

	if cfg.logged {
		handler = d.withLogging(method, handler)
	}

	d.hmu.Lock()
	d.handlers[method] = handler
	d.hmu.Unlock()
}

// Dispatch routes an event to its registered handler.
func (d *Dispatcher) Dispatch(ctx context.Context, e Event) (any, error) {
	d.hmu.RLock()
	h, ok := d.handlers[e.Method]
	d.hmu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, e.Method)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return h(ctx, e)
}

// HasHandler returns true if a handler is registered for the method.
func (d *Dispatcher) HasHandler(method string) bool {
	d.hmu.RLock()
	defer d.hmu.RUnlock()
	_, ok := d.handlers[method]
	return ok
}

// Methods returns the registered method names.
func (d *Dispatcher) Methods() []string {
	d.hmu.RLock()
	defer d.hmu.RUnlock()
	out := make([]string, 0, len(d.handlers))
	for m := range d.handlers {
		out = append(out, m)
	}
	return out
}

// withBuffer queues events for a single worker goroutine. The worker runs
// detached from the caller's cancellation.
func (d *Dispatcher) withBuffer(method string, size int, blocking bool, h HandlerFunc) HandlerFunc {
	buffer := make(chan queued, size)

	d.mu.Lock()
	d.buffers[method] = buffer
	d.mu.Unlock()

	methodAttr := attribute.String("method", method)

	go func() {
		for q := range buffer {
			if _, err := h(q.ctx, q.e); err != nil {
				d.logger.Error("buffered event failed", "method", method, "error", err)
			}
			d.processed.Add(context.Background(), 1, metric.WithAttributes(methodAttr))
		}
	}()

	if blocking {
		return func(ctx context.Context, e Event) (any, error) {
			select {
			case buffer <- queued{context.WithoutCancel(ctx), e}:
				return "queued", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return func(ctx context.Context, e Event) (any, error) {
		select {
		case buffer <- queued{context.WithoutCancel(ctx), e}:
			return "queued", nil
		default:
			d.dropped.Add(context.Background(), 1, metric.WithAttributes(methodAttr))
			return nil, fmt.Errorf("%w: %s", ErrQueueFull, method)
		}
	}
}

func (d *Dispatcher) withLogging(method string, h HandlerFunc) HandlerFunc {
	return func(ctx context.Context, e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling event", "method", method, "args", len(e.Args))

		result, err := h(ctx, e)

		var ce CallerError
		switch {
		case err != nil && errors.As(err, &ce) && ce.CallerFault():
			d.logger.Debug("event rejected", "method", method, "duration", time.Since(start), "error", err)
		case err != nil:
			d.logger.Error("event failed", "method", method, "duration", time.Since(start), "error", err)
		default:
			d.logger.Debug("event complete", "method", method, "duration", time.Since(start))
		}

		return result, err
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
