// Package bridge exposes the marker store, the map adapter and the navigation
// service as named methods with typed requests and a fixed error taxonomy.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/navbridge/extension/internal/dispatcher"
	"github.com/navbridge/extension/internal/mapview"
	"github.com/navbridge/extension/internal/marker"
	"github.com/navbridge/extension/internal/navigation"
)

// MarkerStore is the marker store as the bridge uses it.
type MarkerStore interface {
	AddMarkers(markers []marker.Marker, cfg *marker.Configuration) bool
	UpdateMarkers(markers []marker.Marker) bool
	RemoveMarkers(ids []string) bool
	ClearAll() bool
	UpdateConfiguration(cfg marker.Configuration) bool
	Markers() []marker.Marker
	WithinDistance(lat, lng, maxKm float64) []marker.Marker
}

// MapView receives taps from the map surface.
type MapView interface {
	HandleMapTap(lat, lng float64) bool
	HandleAnnotationTap(annotationID string) error
	EnableMapTapCallback(enabled bool)
}

// Navigator runs navigation sessions.
type Navigator interface {
	StartNavigation(ctx context.Context, opts navigation.Options, waypoints []navigation.WayPoint) error
	StartFreeDrive(ctx context.Context, opts navigation.Options) error
	AddWayPoints(ctx context.Context, waypoints []navigation.WayPoint) navigation.WayPointsResult
	Finish() bool
	DistanceRemaining() *float64
	DurationRemaining() *float64
}

// Dependencies holds the collaborators of a Service. Methods of a missing
// collaborator are not registered and answer not implemented.
type Dependencies struct {
	Markers    MarkerStore
	Map        MapView
	Navigation Navigator
	Dispatcher *dispatcher.Dispatcher
	Logger     *slog.Logger
}

type handler func(ctx context.Context, a args) (any, *Error)

type method struct {
	name  string
	code  string
	fault string
	fn    handler
}

// Service answers method calls.
type Service struct {
	deps Dependencies
	log  *slog.Logger
}

// NewService creates the service and registers its methods on the dispatcher.
func NewService(deps Dependencies) (*Service, error) {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	if deps.Dispatcher == nil {
		d, err := dispatcher.New(nil)
		if err != nil {
			return nil, fmt.Errorf("create dispatcher: %w", err)
		}
		deps.Dispatcher = d
	}

	s := &Service{deps: deps, log: log.With("component", "bridge")}
	for _, m := range s.methods() {
		deps.Dispatcher.Register(m.name, s.wrap(m), dispatcher.Logged())
	}
	return s, nil
}

// Call runs one method. An unregistered method yields a not implemented
// outcome rather than an error.
func (s *Service) Call(ctx context.Context, name string, arguments json.RawMessage) Outcome {
	result, err := s.deps.Dispatcher.Dispatch(ctx, dispatcher.Event{Method: name, Args: arguments})
	if err == nil {
		return success(result)
	}
	if errors.Is(err, dispatcher.ErrUnknownMethod) {
		return Outcome{NotImplemented: true}
	}
	var be *Error
	if errors.As(err, &be) {
		return failure(be)
	}
	return failure(newError(CodeInternal, err.Error()))
}

// Methods lists the registered method names.
func (s *Service) Methods() []string {
	return s.deps.Dispatcher.Methods()
}

func (s *Service) methods() []method {
	var ms []method
	if s.deps.Markers != nil {
		ms = append(ms,
			method{"addStaticMarkers", CodeAddMarkers, "Failed to add static markers", s.addStaticMarkers},
			method{"updateStaticMarkers", CodeUpdateMarkers, "Failed to update static markers", s.updateStaticMarkers},
			method{"removeStaticMarkers", CodeRemoveMarkers, "Failed to remove static markers", s.removeStaticMarkers},
			method{"clearAllStaticMarkers", CodeClearMarkers, "Failed to clear static markers", s.clearAllStaticMarkers},
			method{"updateMarkerConfiguration", CodeUpdateConfig, "Failed to update marker configuration", s.updateMarkerConfiguration},
			method{"getStaticMarkers", CodeGetMarkers, "Failed to get static markers", s.getStaticMarkers},
			method{"getMarkersWithinDistance", CodeGetMarkers, "Failed to get static markers", s.getMarkersWithinDistance},
		)
	}
	if s.deps.Map != nil {
		ms = append(ms,
			method{"onMapTap", CodeMapTap, "Failed to handle map tap", s.onMapTap},
			method{"onAnnotationTap", CodeMapTap, "Failed to handle annotation tap", s.onAnnotationTap},
		)
	}
	if s.deps.Navigation != nil {
		ms = append(ms,
			method{"startNavigation", CodeNavigation, "Failed to start navigation", s.startNavigation},
			method{"startFreeDrive", CodeNavigation, "Failed to start free drive", s.startFreeDrive},
			method{"addWayPoints", CodeNavigation, "Failed to add waypoints", s.addWayPoints},
			method{"finishNavigation", CodeNavigation, "Failed to finish navigation", s.finishNavigation},
			method{"getDistanceRemaining", CodeNavigation, "Failed to get distance remaining", s.getDistanceRemaining},
			method{"getDurationRemaining", CodeNavigation, "Failed to get duration remaining", s.getDurationRemaining},
		)
	}
	return append(ms,
		method{"getPlatformVersion", CodeInternal, "Failed to get platform version", s.getPlatformVersion},
		method{"enableOfflineRouting", CodeNotImplemented, "Offline routing is not supported", s.enableOfflineRouting},
	)
}

// wrap adapts a typed handler to the dispatcher and turns a panic into the
// method's error code.
func (s *Service) wrap(m method) dispatcher.HandlerFunc {
	return func(ctx context.Context, e dispatcher.Event) (result any, err error) {
		defer func() {
			if r := recover(); r != nil {
				s.log.ErrorContext(ctx, "Method panicked", "method", m.name, "panic", fmt.Sprint(r))
				result, err = nil, newError(m.code, fmt.Sprintf("%s: %v", m.fault, r))
			}
		}()

		a, perr := parseArgs(e.Args)
		if perr != nil {
			return nil, perr
		}
		res, herr := m.fn(ctx, a)
		if herr != nil {
			return nil, herr
		}
		return res, nil
	}
}

func (s *Service) addStaticMarkers(_ context.Context, a args) (any, *Error) {
	req, err := decodeAddMarkers(a)
	if err != nil {
		return nil, err
	}
	return s.deps.Markers.AddMarkers(req.Markers, req.Configuration), nil
}

func (s *Service) updateStaticMarkers(_ context.Context, a args) (any, *Error) {
	markers, err := decodeMarkers(a)
	if err != nil {
		return nil, err
	}
	return s.deps.Markers.UpdateMarkers(markers), nil
}

func (s *Service) removeStaticMarkers(_ context.Context, a args) (any, *Error) {
	ids, err := decodeMarkerIDs(a)
	if err != nil {
		return nil, err
	}
	return s.deps.Markers.RemoveMarkers(ids), nil
}

func (s *Service) clearAllStaticMarkers(context.Context, args) (any, *Error) {
	return s.deps.Markers.ClearAll(), nil
}

func (s *Service) updateMarkerConfiguration(_ context.Context, a args) (any, *Error) {
	cfg, err := decodeUpdateConfiguration(a)
	if err != nil {
		return nil, err
	}
	return s.deps.Markers.UpdateConfiguration(cfg), nil
}

func (s *Service) getStaticMarkers(context.Context, args) (any, *Error) {
	return s.deps.Markers.Markers(), nil
}

func (s *Service) getMarkersWithinDistance(_ context.Context, a args) (any, *Error) {
	req, err := decodeDistance(a)
	if err != nil {
		return nil, err
	}
	return s.deps.Markers.WithinDistance(req.Latitude, req.Longitude, req.MaxDistanceKm), nil
}

func (s *Service) onMapTap(_ context.Context, a args) (any, *Error) {
	p, err := decodePoint(a)
	if err != nil {
		return nil, err
	}
	return s.deps.Map.HandleMapTap(p.Latitude, p.Longitude), nil
}

func (s *Service) onAnnotationTap(_ context.Context, a args) (any, *Error) {
	id, err := decodeAnnotationID(a)
	if err != nil {
		return nil, err
	}
	if tapErr := s.deps.Map.HandleAnnotationTap(id); tapErr != nil {
		if errors.Is(tapErr, mapview.ErrUnknownAnnotation) {
			return nil, invalid("Unknown annotation").withDetails(id)
		}
		return nil, newError(CodeMapTap, tapErr.Error())
	}
	return true, nil
}

func (s *Service) startNavigation(ctx context.Context, a args) (any, *Error) {
	opts, err := decodeOptions(a)
	if err != nil {
		return nil, err
	}
	waypoints, err := decodeWayPoints(a, 2)
	if err != nil {
		return nil, err
	}
	if s.deps.Map != nil {
		s.deps.Map.EnableMapTapCallback(opts.EnableOnMapTapCallback)
	}
	if navErr := s.deps.Navigation.StartNavigation(ctx, opts, waypoints); navErr != nil {
		return nil, invalid(invalidArgs).withDetails(navErr.Error())
	}
	return true, nil
}

func (s *Service) startFreeDrive(ctx context.Context, a args) (any, *Error) {
	opts, err := decodeOptions(a)
	if err != nil {
		return nil, err
	}
	if s.deps.Map != nil {
		s.deps.Map.EnableMapTapCallback(opts.EnableOnMapTapCallback)
	}
	if navErr := s.deps.Navigation.StartFreeDrive(ctx, opts); navErr != nil {
		return nil, newError(CodeNavigation, navErr.Error())
	}
	return true, nil
}

func (s *Service) addWayPoints(ctx context.Context, a args) (any, *Error) {
	waypoints, err := decodeWayPoints(a, 1)
	if err != nil {
		return nil, err
	}
	return s.deps.Navigation.AddWayPoints(ctx, waypoints), nil
}

func (s *Service) finishNavigation(context.Context, args) (any, *Error) {
	if s.deps.Map != nil {
		s.deps.Map.EnableMapTapCallback(false)
	}
	return s.deps.Navigation.Finish(), nil
}

func (s *Service) getDistanceRemaining(context.Context, args) (any, *Error) {
	return s.deps.Navigation.DistanceRemaining(), nil
}

func (s *Service) getDurationRemaining(context.Context, args) (any, *Error) {
	return s.deps.Navigation.DurationRemaining(), nil
}

func (s *Service) getPlatformVersion(context.Context, args) (any, *Error) {
	return navigation.PlatformVersion(), nil
}

func (s *Service) enableOfflineRouting(context.Context, args) (any, *Error) {
	return nil, newError(CodeNotImplemented, "Offline routing is not supported").
		withDetails("This feature will be implemented in a future version")
}
