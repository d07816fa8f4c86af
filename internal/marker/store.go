package marker

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// TapRadius is the per-axis coordinate delta, in degrees, within which a map
// tap resolves to a rendered marker.
const TapRadius = 0.001

// EventTypeMarkerTap names marker tap events on the marker stream.
const EventTypeMarkerTap = "MARKER_TAP"

// Renderer draws the filtered marker set on the map surface.
type Renderer interface {
	Render(visible []Marker, cfg Configuration) error
}

// EventPublisher delivers an event to the embedding application.
type EventPublisher interface {
	Publish(eventType string, data any) error
}

// Dependencies holds the collaborators of a Store.
type Dependencies struct {
	Renderer   Renderer
	Taps       EventPublisher
	Logger     *slog.Logger
	Clustering ClusterStrategy
}

// Store holds the current markers and configuration and reapplies the
// display filter after every mutation.
type Store struct {
	deps Dependencies
	log  *slog.Logger

	mu      sync.Mutex
	order   []string
	markers map[string]Marker
	cfg     Configuration
	mode    Mode
	route   RouteGeometry
	visible []Marker
}

// NewStore creates an empty store using the default configuration.
func NewStore(deps Dependencies) *Store {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	if deps.Clustering == "" {
		deps.Clustering = ClusterByIdentity
	}
	return &Store{
		deps:    deps,
		log:     log.With("component", "marker_store"),
		markers: make(map[string]Marker),
		cfg:     DefaultConfiguration(),
		visible: []Marker{},
	}
}

// AddMarkers replaces the whole marker set. The configuration is replaced
// too when cfg is non-nil.
func (s *Store) AddMarkers(markers []Marker, cfg *Configuration) bool {
	return s.mutate("add", func() {
		if cfg != nil {
			s.cfg = *cfg
		}
		s.order = s.order[:0]
		s.markers = make(map[string]Marker, len(markers))
		s.upsert(markers)
	})
}

// UpdateMarkers inserts or replaces markers by id, keeping the others.
func (s *Store) UpdateMarkers(markers []Marker) bool {
	return s.mutate("update", func() {
		s.upsert(markers)
	})
}

// RemoveMarkers deletes markers by id. Unknown ids are ignored.
func (s *Store) RemoveMarkers(ids []string) bool {
	return s.mutate("remove", func() {
		drop := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			if _, ok := s.markers[id]; ok {
				drop[id] = struct{}{}
				delete(s.markers, id)
			}
		}
		if len(drop) == 0 {
			return
		}
		order := s.order[:0]
		for _, id := range s.order {
			if _, gone := drop[id]; !gone {
				order = append(order, id)
			}
		}
		s.order = order
	})
}

// ClearAll empties the store.
func (s *Store) ClearAll() bool {
	return s.mutate("clear", func() {
		s.order = s.order[:0]
		s.markers = make(map[string]Marker)
	})
}

// UpdateConfiguration replaces the configuration wholesale.
func (s *Store) UpdateConfiguration(cfg Configuration) bool {
	return s.mutate("configure", func() {
		s.cfg = cfg
	})
}

// SetMode switches the display context and reapplies the filter.
func (s *Store) SetMode(mode Mode) bool {
	return s.mutate("mode", func() {
		s.mode = mode
	})
}

// SetRoute threads the active route geometry into the route distance check.
// A nil route disables the check.
func (s *Store) SetRoute(route RouteGeometry) bool {
	return s.mutate("route", func() {
		s.route = route
	})
}

// Markers returns a snapshot of every stored marker in insertion order.
func (s *Store) Markers() []Marker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Visible returns the markers of the last filter pass.
func (s *Store) Visible() []Marker {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Marker, len(s.visible))
	for i, m := range s.visible {
		out[i] = m.Clone()
	}
	return out
}

// Configuration returns the current configuration.
func (s *Store) Configuration() Configuration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Mode returns the current display context.
func (s *Store) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// OnMarkerTap sends the marker's JSON form on the tap stream.
func (s *Store) OnMarkerTap(m Marker) {
	if s.deps.Taps == nil {
		return
	}
	if err := s.deps.Taps.Publish(EventTypeMarkerTap, m); err != nil {
		s.log.Error("Failed to send marker tap", "marker", m.ID, "error", err)
	}
}

// MarkerNear returns the first rendered marker closer than TapRadius to the
// point on both axes.
func (s *Store) MarkerNear(lat, lng float64) (Marker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.visible {
		if math.Abs(m.Latitude-lat) < TapRadius && math.Abs(m.Longitude-lng) < TapRadius {
			return m.Clone(), true
		}
	}
	return Marker{}, false
}

// WithinDistance returns the stored markers within maxKm kilometers of the
// point, by great-circle distance.
func (s *Store) WithinDistance(lat, lng, maxKm float64) []Marker {
	s.mu.Lock()
	defer s.mu.Unlock()
	origin := orb.Point{lng, lat}
	out := []Marker{}
	for _, id := range s.order {
		m := s.markers[id]
		d := orbgeo.DistanceHaversine(origin, orb.Point{m.Longitude, m.Latitude})
		if d/1000 <= maxKm {
			out = append(out, m.Clone())
		}
	}
	return out
}

// ShouldShowInMode reports whether markers are shown for the given flags.
// Navigation takes precedence over free drive, which takes precedence over
// the embedded map.
func (s *Store) ShouldShowInMode(navigating, freeDrive, embedded bool) bool {
	cfg := s.Configuration()
	switch {
	case navigating:
		return cfg.ShowDuringNavigation
	case freeDrive:
		return cfg.ShowInFreeDrive
	case embedded:
		return cfg.ShowOnEmbeddedMap
	default:
		return true
	}
}

func (s *Store) upsert(markers []Marker) {
	for _, m := range markers {
		if _, exists := s.markers[m.ID]; !exists {
			s.order = append(s.order, m.ID)
		}
		s.markers[m.ID] = m.Clone()
	}
}

func (s *Store) snapshot() []Marker {
	out := make([]Marker, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.markers[id].Clone())
	}
	return out
}

// mutate runs fn and reapplies the filter. A fault in either step is
// reported as false; the mutation is not rolled back.
func (s *Store) mutate(op string, fn func()) (ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Marker operation failed", "op", op, "panic", fmt.Sprint(r))
			ok = false
		}
	}()

	fn()
	return s.apply(op)
}

func (s *Store) apply(op string) bool {
	s.visible = Filter(s.snapshot(), s.cfg, FilterOptions{
		Mode:       s.mode,
		Route:      s.route,
		Clustering: s.deps.Clustering,
	})

	if s.deps.Renderer == nil {
		return true
	}
	if err := s.deps.Renderer.Render(s.visible, s.cfg); err != nil {
		s.log.Error("Failed to render markers", "op", op, "error", err)
		return false
	}
	s.log.Debug("Markers applied", "op", op, "stored", len(s.order), "rendered", len(s.visible))
	return true
}
