// Package navigation runs turn-by-turn sessions: route building over a
// routing provider, optional simulated progress, and waypoint rerouting.
package navigation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/navbridge/extension/internal/events"
	"github.com/navbridge/extension/internal/geo"
	"github.com/navbridge/extension/internal/marker"
	"github.com/navbridge/extension/internal/routing"
	"github.com/navbridge/extension/pkg/polyline"
)

var (
	ErrTooFewWayPoints = errors.New("at least two waypoints are required")
	ErrNoSession       = errors.New("no active navigation session")
)

const (
	DefaultTickInterval  = time.Second
	DefaultBuildTimeout  = 30 * time.Second
	maxAlternativeRoutes = 2
)

// MarkerView is the part of the marker store a session drives.
type MarkerView interface {
	SetMode(mode marker.Mode) bool
	SetRoute(route marker.RouteGeometry) bool
}

// EventPublisher delivers navigation events tagged with their session id.
type EventPublisher interface {
	PublishSession(session, eventType string, data any) error
}

// Dependencies holds the collaborators of a Service.
type Dependencies struct {
	Provider routing.Provider
	Events   EventPublisher
	Markers  MarkerView
	Logger   *slog.Logger

	// TickInterval is the period of simulated progress updates.
	TickInterval    time.Duration
	// SimulationSpeed in meters per second. Zero uses the route's average speed.
	SimulationSpeed float64
	BuildTimeout    time.Duration
	// IdleMode is the marker mode restored when a session ends.
	IdleMode        marker.Mode
}

// Service owns at most one navigation session at a time.
type Service struct {
	deps Dependencies
	log  *slog.Logger

	mu       sync.Mutex
	session  *session
	progress *Progress

	// markerMu orders changes to the marker context. owner is the session
	// whose route and mode were applied last; a session only resets the
	// context it still owns.
	markerMu sync.Mutex
	owner    *session
}

type session struct {
	id        uuid.UUID
	opts      Options
	waypoints []WayPoint
	freeDrive bool

	// guarded by Service.mu
	built    bool
	route    routing.Route
	geometry *geo.Route
	arrived  bool

	cancel context.CancelFunc
	done   chan struct{}
}

// SessionInfo describes the current session.
type SessionInfo struct {
	ID         uuid.UUID  `json:"id"`
	FreeDrive  bool       `json:"freeDrive"`
	RouteBuilt bool       `json:"routeBuilt"`
	Arrived    bool       `json:"arrived"`
	Mode       string     `json:"mode"`
	WayPoints  []WayPoint `json:"wayPoints"`
}

// NewService creates an idle service.
func NewService(deps Dependencies) *Service {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	if deps.Provider == nil {
		deps.Provider = routing.DirectProvider{}
	}
	if deps.TickInterval <= 0 {
		deps.TickInterval = DefaultTickInterval
	}
	if deps.BuildTimeout <= 0 {
		deps.BuildTimeout = DefaultBuildTimeout
	}
	return &Service{deps: deps, log: log.With("component", "navigation")}
}

// StartNavigation ends any current session and builds a route through the
// waypoints in the background. ROUTE_BUILDING is published before it returns.
func (s *Service) StartNavigation(ctx context.Context, opts Options, waypoints []WayPoint) error {
	if len(waypoints) < 2 {
		return ErrTooFewWayPoints
	}
	profile, err := routing.ProfileForMode(opts.Mode)
	if err != nil {
		return err
	}
	for i, wp := range waypoints {
		if err := routing.ValidateCoordinate(routing.Coordinate{Lat: wp.Latitude, Lon: wp.Longitude}); err != nil {
			return fmt.Errorf("wayPoints[%d]: %w", i, err)
		}
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sess := s.begin(ctx, opts, waypoints, false, cancel)
	s.publish(sess, events.RouteBuilding, nil)
	go s.run(runCtx, sess, profile)
	return nil
}

// StartFreeDrive ends any current session and shows the map without a route.
func (s *Service) StartFreeDrive(ctx context.Context, opts Options) error {
	sess := s.begin(ctx, opts, nil, true, func() {})
	close(sess.done)
	s.claim(sess, func() {
		s.markers(func(m MarkerView) {
			m.SetRoute(nil)
			m.SetMode(marker.ModeFreeDrive)
		})
	})
	return nil
}

// Finish cancels the current session. It reports whether one existed.
func (s *Service) Finish() bool {
	s.mu.Lock()
	sess := s.session
	s.session = nil
	s.progress = nil
	s.mu.Unlock()

	if sess == nil {
		return false
	}
	s.stop(sess)
	s.publish(sess, events.NavigationCancelled, nil)
	return true
}

// AddWayPoints appends waypoints to the active route and rebuilds it.
func (s *Service) AddWayPoints(ctx context.Context, waypoints []WayPoint) WayPointsResult {
	s.mu.Lock()
	sess := s.session
	if sess == nil || sess.freeDrive || !sess.built {
		s.mu.Unlock()
		return WayPointsResult{ErrorMessage: ErrNoSession.Error()}
	}
	all := append(append([]WayPoint{}, sess.waypoints...), waypoints...)
	opts := sess.opts
	s.mu.Unlock()

	if len(waypoints) == 0 {
		return WayPointsResult{Success: true}
	}

	profile, err := routing.ProfileForMode(opts.Mode)
	if err != nil {
		return WayPointsResult{ErrorMessage: err.Error()}
	}
	routes, err := s.build(ctx, opts, profile, all)
	if err != nil {
		s.log.Warn("Reroute failed", "session", sess.id, "error", err)
		return WayPointsResult{ErrorMessage: err.Error()}
	}
	geometry, err := geo.NewRoute(routes[0].Path)
	if err != nil {
		return WayPointsResult{ErrorMessage: err.Error()}
	}

	applied := s.claim(sess, func() {
		s.mu.Lock()
		sess.waypoints = all
		sess.route = routes[0]
		sess.geometry = geometry
		sess.arrived = false
		s.mu.Unlock()

		s.markers(func(m MarkerView) { m.SetRoute(geometry) })
		s.publish(sess, events.RerouteAlong, routePayload(routes[0]))
	})
	if !applied {
		return WayPointsResult{ErrorMessage: ErrNoSession.Error()}
	}
	s.log.Info("Waypoints added", "session", sess.id, "added", len(waypoints))
	return WayPointsResult{Success: true, WaypointsAdded: len(waypoints)}
}

// DistanceRemaining returns the meters left on the route, nil before any
// progress was reported.
func (s *Service) DistanceRemaining() *float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.progress == nil {
		return nil
	}
	v := s.progress.Distance
	return &v
}

// DurationRemaining returns the seconds left on the route, nil before any
// progress was reported.
func (s *Service) DurationRemaining() *float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.progress == nil {
		return nil
	}
	v := s.progress.Duration
	return &v
}

// Session returns the current session, if any.
func (s *Service) Session() (SessionInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.session
	if sess == nil {
		return SessionInfo{}, false
	}
	return SessionInfo{
		ID:         sess.id,
		FreeDrive:  sess.freeDrive,
		RouteBuilt: sess.built,
		Arrived:    sess.arrived,
		Mode:       sess.opts.Mode,
		WayPoints:  append([]WayPoint{}, sess.waypoints...),
	}, true
}

// PlatformVersion identifies the host platform.
func PlatformVersion() string {
	return runtime.GOOS + " " + runtime.Version()
}

// begin installs a new session, stopping the previous one without a
// cancellation event.
func (s *Service) begin(ctx context.Context, opts Options, waypoints []WayPoint, freeDrive bool, cancel context.CancelFunc) *session {
	sess := &session{
		id:        uuid.New(),
		opts:      opts,
		waypoints: append([]WayPoint{}, waypoints...),
		freeDrive: freeDrive,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	s.mu.Lock()
	prev := s.session
	s.session = sess
	s.progress = nil
	s.mu.Unlock()

	if prev != nil {
		s.stop(prev)
	}
	s.log.InfoContext(ctx, "Session started", "session", sess.id, "freeDrive", freeDrive, "waypoints", len(waypoints))
	return sess
}

// stop cancels the session's worker and resets the marker context unless a
// newer session already owns it.
func (s *Service) stop(sess *session) {
	sess.cancel()
	<-sess.done

	s.markerMu.Lock()
	if s.owner == nil || s.owner == sess {
		s.owner = nil
		s.markers(func(m MarkerView) {
			m.SetRoute(nil)
			m.SetMode(s.deps.IdleMode)
		})
	}
	s.markerMu.Unlock()
	s.log.Info("Session stopped", "session", sess.id)
}

// claim runs apply while holding the marker context, if sess is still the
// current session and its context is not being torn down. It reports
// whether apply ran.
func (s *Service) claim(sess *session, apply func()) bool {
	s.markerMu.Lock()
	defer s.markerMu.Unlock()

	s.mu.Lock()
	current := s.session == sess
	s.mu.Unlock()
	if !current {
		return false
	}
	s.owner = sess
	apply()
	return true
}

func (s *Service) run(ctx context.Context, sess *session, profile routing.RouteProfile) {
	defer close(sess.done)

	routes, err := s.build(ctx, sess.opts, profile, sess.waypoints)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		s.publish(sess, events.RouteBuildCancelled, nil)
		return
	case errors.Is(err, routing.ErrNoRouteFound):
		s.publish(sess, events.RouteBuildNoRoutesFound, nil)
		return
	default:
		s.log.Error("Route build failed", "session", sess.id, "error", err)
		s.publish(sess, events.RouteBuildFailed, map[string]string{"message": err.Error()})
		return
	}

	geometry, err := geo.NewRoute(routes[0].Path)
	if err != nil {
		s.publish(sess, events.RouteBuildFailed, map[string]string{"message": err.Error()})
		return
	}

	payload := make([]routeJSON, 0, len(routes))
	for _, r := range routes {
		payload = append(payload, routePayload(r))
	}
	built := ctx.Err() == nil && s.claim(sess, func() {
		s.mu.Lock()
		sess.built = true
		sess.route = routes[0]
		sess.geometry = geometry
		s.mu.Unlock()

		s.markers(func(m MarkerView) {
			m.SetRoute(geometry)
			m.SetMode(marker.ModeNavigation)
		})
		s.publish(sess, events.RouteBuilt, payload)
	})
	if !built {
		s.publish(sess, events.RouteBuildCancelled, nil)
		return
	}
	s.log.Info("Route built", "session", sess.id, "distance", routes[0].DistanceMeters, "alternatives", len(routes)-1)

	if sess.opts.SimulateRoute {
		s.simulate(ctx, sess)
	}
}

func (s *Service) build(ctx context.Context, opts Options, profile routing.RouteProfile, waypoints []WayPoint) ([]routing.Route, error) {
	ctx, cancel := context.WithTimeout(ctx, s.deps.BuildTimeout)
	defer cancel()

	req := routing.DirectionsRequest{
		Waypoints: make([]routing.Coordinate, 0, len(waypoints)),
		Profile:   profile,
		Language:  opts.Language,
		Units:     opts.Units,
	}
	if opts.Alternatives {
		req.MaxAlternatives = maxAlternativeRoutes
	}
	for _, wp := range waypoints {
		req.Waypoints = append(req.Waypoints, routing.Coordinate{Lat: wp.Latitude, Lon: wp.Longitude})
	}

	resp, err := s.deps.Provider.GetDirections(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Routes) == 0 {
		return nil, routing.ErrNoRouteFound
	}
	return resp.Routes, nil
}

func (s *Service) publish(sess *session, eventType string, data any) {
	if s.deps.Events == nil {
		return
	}
	if err := s.deps.Events.PublishSession(sess.id.String(), eventType, data); err != nil {
		s.log.Error("Failed to publish navigation event", "type", eventType, "error", err)
	}
}

func (s *Service) markers(fn func(MarkerView)) {
	if s.deps.Markers != nil {
		fn(s.deps.Markers)
	}
}

type routeJSON struct {
	Distance     float64 `json:"distance"`
	Duration     float64 `json:"duration"`
	Summary      string  `json:"summary,omitempty"`
	Geometry     string  `json:"geometry"`
	Instructions int     `json:"instructions"`
}

func routePayload(r routing.Route) routeJSON {
	return routeJSON{
		Distance:     r.DistanceMeters,
		Duration:     r.DurationSeconds,
		Summary:      r.Summary,
		Geometry:     polyline.Encode(r.Path),
		Instructions: len(r.Instructions),
	}
}
