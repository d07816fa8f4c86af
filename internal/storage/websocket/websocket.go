// Package websocket forwards the journal to a remote collector over a
// WebSocket connection.
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/navbridge/extension/pkg/core"
	"github.com/navbridge/extension/pkg/streaming"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL      string
	Secret   string
	Service  string
	Instance string
	// AckTimeout bounds the wait for the collector's hello ack.
	AckTimeout time.Duration
}

// Backend streams journal records to a collector. It implements
// storage.Backend but not storage.Queryable.
type Backend struct {
	conn *connection
	cfg  Config
}

// New creates a new WebSocket storage backend.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = ackTimeout
	}
	return &Backend{
		conn: newConnection(logger.With("component", "websocket_journal")),
		cfg:  cfg,
	}
}

// Init connects to the collector, introduces the bridge and waits for the
// ack.
func (b *Backend) Init() error {
	if err := b.conn.dial(b.cfg.URL, b.cfg.Secret); err != nil {
		return err
	}

	data, err := marshalEnvelope(streaming.TypeHello, streaming.HelloPayload{
		Service:  b.cfg.Service,
		Instance: b.cfg.Instance,
	})
	if err != nil {
		return err
	}

	// Cache for reconnect replay.
	b.conn.mu.Lock()
	b.conn.cachedHello = data
	b.conn.mu.Unlock()

	return b.conn.sendAndWait(data, streaming.TypeHello, b.cfg.AckTimeout)
}

// Close disconnects from the collector.
func (b *Backend) Close() error {
	return b.conn.close()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope marshals the payload into an Envelope and pushes it
// to the write loop (fire-and-forget).
func (b *Backend) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

func (b *Backend) RecordMarkerTap(t *core.MarkerTap) error {
	return b.sendEnvelope(streaming.TypeMarkerTap, streaming.FromMarkerTap(t))
}

func (b *Backend) RecordNavigationEvent(e *core.NavigationEvent) error {
	return b.sendEnvelope(streaming.TypeNavigationEvent, streaming.FromNavigationEvent(e))
}

func (b *Backend) RecordSceneSnapshot(s *core.SceneSnapshot) error {
	return b.sendEnvelope(streaming.TypeSceneSnapshot, streaming.FromSceneSnapshot(s))
}
