package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/navbridge/extension/internal/events"

// DefaultBuffer is the subscriber buffer used when none is given.
const DefaultBuffer = 64

// Stream delivers events of one category to its subscribers. Publishing
// with nobody subscribed is a no-op.
type Stream struct {
	category Category
	log      *slog.Logger
	dropped  metric.Int64Counter
	attr     attribute.KeyValue

	mu   sync.RWMutex
	subs map[uuid.UUID]*Subscription
}

// Subscription is one attached listener.
type Subscription struct {
	ID uuid.UUID
	C  <-chan Event

	ch     chan Event
	stream *Stream
	once   sync.Once
}

// NewStream creates a stream for a category.
func NewStream(c Category, logger *slog.Logger) *Stream {
	if logger == nil {
		logger = slog.Default()
	}
	dropped, err := otel.Meter(instrumentationName).Int64Counter(
		"events.dropped",
		metric.WithDescription("Events dropped due to a full subscriber buffer"),
	)
	if err != nil {
		logger.Error("Failed to create dropped counter", "error", err)
	}
	return &Stream{
		category: c,
		log:      logger.With("stream", string(c)),
		dropped:  dropped,
		attr:     attribute.String("category", string(c)),
		subs:     make(map[uuid.UUID]*Subscription),
	}
}

// Category returns the category the stream carries.
func (s *Stream) Category() Category {
	return s.category
}

// Subscribe attaches a listener with the given buffer size.
func (s *Stream) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan Event, buffer)
	sub := &Subscription{ID: uuid.New(), C: ch, ch: ch, stream: s}

	s.mu.Lock()
	s.subs[sub.ID] = sub
	s.mu.Unlock()

	s.log.Debug("Subscriber attached", "subscriber", sub.ID)
	return sub
}

// Close detaches the listener and closes its channel.
func (sub *Subscription) Close() {
	sub.stream.detach(sub)
}

func (s *Stream) detach(sub *Subscription) {
	sub.once.Do(func() {
		s.mu.Lock()
		delete(s.subs, sub.ID)
		close(sub.ch)
		s.mu.Unlock()
		s.log.Debug("Subscriber detached", "subscriber", sub.ID)
	})
}

// Subscribers returns the number of attached listeners.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Publish encodes data and delivers it to every subscriber without
// blocking. A subscriber whose buffer is full misses the event.
func (s *Stream) Publish(eventType string, data any) error {
	return s.PublishSession("", eventType, data)
}

// PublishSession is Publish for an event raised by a navigation session.
func (s *Stream) PublishSession(session, eventType string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", eventType, err)
	}
	s.Send(Event{Category: s.category, Type: eventType, Data: raw, Time: time.Now(), Session: session})
	return nil
}

// Send delivers an already encoded event.
func (s *Stream) Send(e Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, sub := range s.subs {
		select {
		case sub.ch <- e:
		default:
			if s.dropped != nil {
				s.dropped.Add(context.Background(), 1, metric.WithAttributes(s.attr))
			}
			s.log.Error("Subscriber buffer full, dropping event", "subscriber", id, "type", e.Type)
		}
	}
}

// Close detaches every subscriber.
func (s *Stream) Close() {
	s.mu.RLock()
	subs := make([]*Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.RUnlock()

	for _, sub := range subs {
		sub.Close()
	}
}
