// Package monitor samples the bridge status periodically.
package monitor

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/navbridge/extension/internal/events"
	"github.com/navbridge/extension/internal/marker"
)

// DefaultInterval is the sampling period when none is configured.
const DefaultInterval = 10 * time.Second

// Status is one sample of the bridge state.
type Status struct {
	Time           time.Time      `json:"time"`
	Connections    int            `json:"connections"`
	Markers        int            `json:"markers"`
	VisibleMarkers int            `json:"visibleMarkers"`
	Session        string         `json:"session,omitempty"`
	JournalPending int            `json:"journalPending"`
	JournalDropped int            `json:"journalDropped"`
	Subscribers    map[string]int `json:"subscribers"`
}

// ConnectionCounter reports open client connections.
type ConnectionCounter interface {
	Connections() int
}

// MarkerCounter exposes the marker store snapshots.
type MarkerCounter interface {
	Markers() []marker.Marker
	Visible() []marker.Marker
}

// PendingCounter reports journal records not yet written.
type PendingCounter interface {
	Pending() int
}

// DroppedCounter reports journal records discarded by full queues.
type DroppedCounter interface {
	Dropped() int
}

// StatusWriter receives every sample.
type StatusWriter interface {
	RecordStatus(ctx context.Context, s Status) error
}

// Dependencies holds all dependencies for the monitor service. Every
// collaborator is optional.
type Dependencies struct {
	Server  ConnectionCounter
	Markers MarkerCounter
	Journal PendingCounter
	Hub     *events.Hub
	Session func() string
	Metrics StatusWriter
	// StatusFile is rewritten with the latest sample as JSON.
	StatusFile string
	Interval   time.Duration
	Logger     *slog.Logger
}

// Service manages status monitoring
type Service struct {
	deps Dependencies
	log  *slog.Logger

	mu        sync.RWMutex
	isRunning bool
	last      Status
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	return &Service{
		deps: deps,
		log:  deps.Logger.With("component", "monitor"),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// SetServer sets the connection counter of a server created after the
// monitor.
func (s *Service) SetServer(server ConnectionCounter) {
	s.mu.Lock()
	s.deps.Server = server
	s.mu.Unlock()
}

// Sample reads the current status from the collaborators.
func (s *Service) Sample() Status {
	st := Status{Time: time.Now().UTC(), Subscribers: map[string]int{}}
	s.mu.RLock()
	server := s.deps.Server
	s.mu.RUnlock()
	if server != nil {
		st.Connections = server.Connections()
	}
	if s.deps.Markers != nil {
		st.Markers = len(s.deps.Markers.Markers())
		st.VisibleMarkers = len(s.deps.Markers.Visible())
	}
	if s.deps.Journal != nil {
		st.JournalPending = s.deps.Journal.Pending()
		if d, ok := s.deps.Journal.(DroppedCounter); ok {
			st.JournalDropped = d.Dropped()
		}
	}
	if s.deps.Hub != nil {
		for _, stream := range s.deps.Hub.Streams() {
			st.Subscribers[string(stream.Category())] = stream.Subscribers()
		}
	}
	if s.deps.Session != nil {
		st.Session = s.deps.Session()
	}
	return st
}

// Last returns the most recent sample taken by the monitor loop, or a fresh
// one when the loop has not sampled yet.
func (s *Service) Last() Status {
	s.mu.RLock()
	last := s.last
	s.mu.RUnlock()
	if last.Time.IsZero() {
		return s.Sample()
	}
	return last
}

// Start starts the status monitor goroutine
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			if s.done == done {
				s.isRunning = false
			}
			s.mu.Unlock()
			close(done)
		}()

		s.log.Debug("Starting status monitor", "interval", s.deps.Interval)
		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.record(ctx, s.Sample())
			}
		}
	}()
}

func (s *Service) record(ctx context.Context, st Status) {
	s.mu.Lock()
	s.last = st
	s.mu.Unlock()

	if s.deps.StatusFile != "" {
		if err := writeStatusFile(s.deps.StatusFile, st); err != nil {
			s.log.Error("Error writing status file", "path", s.deps.StatusFile, "error", err)
		}
	}
	if s.deps.Metrics != nil {
		if err := s.deps.Metrics.RecordStatus(ctx, st); err != nil {
			s.log.Warn("Error writing status sample", "error", err)
		}
	}
}

func writeStatusFile(path string, st Status) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// Stop stops the status monitor and waits for the loop to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if s.stopChan == nil {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	s.stopChan = nil
	done := s.done
	s.mu.Unlock()
	<-done
}
