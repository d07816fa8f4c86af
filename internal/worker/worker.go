// Package worker records the event streams into the journal backend.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/navbridge/extension/internal/dispatcher"
	"github.com/navbridge/extension/internal/events"
	"github.com/navbridge/extension/internal/navigation"
	"github.com/navbridge/extension/internal/storage"
	"github.com/navbridge/extension/pkg/core"
)

// Methods the journal handlers are registered under.
const (
	MethodMarker     = "journal:marker"
	MethodNavigation = "journal:navigation"
	MethodOverlay    = "journal:overlay"
)

// DefaultBuffer is the queue size of each journal handler.
const DefaultBuffer = 1000

// MetricsWriter receives time series samples next to the journal.
type MetricsWriter interface {
	RecordProgress(ctx context.Context, sessionID string, at time.Time, p navigation.Progress) error
	RecordMarkerTap(ctx context.Context, tap *core.MarkerTap) error
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Hub     *events.Hub
	Backend storage.Backend
	Metrics MetricsWriter // optional
	Logger  *slog.Logger
	Buffer  int
}

// Manager pumps stream events through the dispatcher into the backend.
type Manager struct {
	deps Dependencies
	log  *slog.Logger

	mu   sync.Mutex
	subs []*events.Subscription
	wg   sync.WaitGroup
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Buffer <= 0 {
		deps.Buffer = DefaultBuffer
	}
	return &Manager{
		deps: deps,
		log:  deps.Logger.With("component", "journal_worker"),
	}
}

// journalArgs is the dispatcher argument of every journal method.
type journalArgs struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
	Session string          `json:"session,omitempty"`
}

// RegisterHandlers registers the journal handlers with the dispatcher.
// Every handler is buffered so a slow backend never stalls a stream.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register(MethodMarker, m.handleMarker, dispatcher.Buffered(m.deps.Buffer), dispatcher.Logged())
	d.Register(MethodNavigation, m.handleNavigation, dispatcher.Buffered(m.deps.Buffer), dispatcher.Logged())
	d.Register(MethodOverlay, m.handleOverlay, dispatcher.Buffered(m.deps.Buffer), dispatcher.Logged())
}

// Start subscribes to every stream of the hub and forwards each event to
// the journal method of its category.
func (m *Manager) Start(ctx context.Context, d *dispatcher.Dispatcher) {
	m.mu.Lock()
	defer m.mu.Unlock()

	routes := map[*events.Stream]string{
		m.deps.Hub.Marker:     MethodMarker,
		m.deps.Hub.Navigation: MethodNavigation,
		m.deps.Hub.Overlay:    MethodOverlay,
	}
	for stream, method := range routes {
		sub := stream.Subscribe(m.deps.Buffer)
		m.subs = append(m.subs, sub)
		m.wg.Add(1)
		go m.pump(ctx, d, sub, method)
	}
	m.log.Info("Journal worker started", "streams", len(routes))
}

// Stop detaches from the streams and waits for the pumps to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	subs := m.subs
	m.subs = nil
	m.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	m.wg.Wait()
}

func (m *Manager) pump(ctx context.Context, d *dispatcher.Dispatcher, sub *events.Subscription, method string) {
	defer m.wg.Done()
	for e := range sub.C {
		args, err := json.Marshal(journalArgs{Type: e.Type, Data: e.Data, Session: e.Session})
		if err != nil {
			m.log.Error("Failed to encode journal event", "method", method, "error", err)
			continue
		}
		_, err = d.Dispatch(ctx, dispatcher.Event{Method: method, Args: args, Timestamp: e.Time})
		if errors.Is(err, dispatcher.ErrQueueFull) {
			m.log.Warn("Journal queue full, event not recorded", "method", method, "type", e.Type)
		} else if err != nil {
			m.log.Error("Failed to dispatch journal event", "method", method, "error", err)
		}
	}
}

func decodeArgs(e dispatcher.Event) (journalArgs, error) {
	var args journalArgs
	if err := json.Unmarshal(e.Args, &args); err != nil {
		return args, err
	}
	return args, nil
}
