// Package routing computes routes between waypoints through a directions
// provider.
package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb"
)

// Sentinel errors for routing operations.
var (
	// ErrProviderUnavailable indicates the provider is down or the circuit breaker is open.
	ErrProviderUnavailable = errors.New("routing provider unavailable")
	// ErrNoRouteFound indicates no valid route exists between the given points.
	ErrNoRouteFound = errors.New("no route found between the given points")
	// ErrRateLimitExceeded indicates the API quota has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrInvalidCoordinates indicates the provided coordinates are invalid or out of range.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	// ErrUnsupportedMode indicates a navigation mode with no routing profile.
	ErrUnsupportedMode = errors.New("unsupported navigation mode")
)

// Provider computes directions.
type Provider interface {
	// GetDirections returns the main route first, followed by alternatives.
	GetDirections(ctx context.Context, req DirectionsRequest) (*DirectionsResponse, error)
	// Name returns the provider identifier for logging.
	Name() string
	// SupportedProfiles returns the profiles this provider can route.
	SupportedProfiles() []RouteProfile
}

// RouteProfile is the provider-side mode of transport.
type RouteProfile string

const (
	ProfileWalk  RouteProfile = "foot-walking"
	ProfileBike  RouteProfile = "cycling-regular"
	ProfileDrive RouteProfile = "driving-car"
)

// ProfileForMode maps a navigation mode to a routing profile. Traffic-aware
// driving uses the plain driving profile.
func ProfileForMode(mode string) (RouteProfile, error) {
	switch mode {
	case "walking":
		return ProfileWalk, nil
	case "cycling":
		return ProfileBike, nil
	case "driving", "drivingWithTraffic", "":
		return ProfileDrive, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMode, mode)
	}
}

// Coordinate represents a geographic point.
type Coordinate struct {
	Lat float64
	Lon float64
}

// Point returns the coordinate as an orb point.
func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

// DirectionsRequest is the request for computing routes.
type DirectionsRequest struct {
	// Waypoints in travel order, at least two.
	Waypoints       []Coordinate
	Profile         RouteProfile
	MaxAlternatives int
	// Language of the instructions, e.g. "en".
	Language string
	// Units is "metric" or "imperial".
	Units string
}

// DirectionsResponse is the response containing route alternatives.
type DirectionsResponse struct {
	Routes    []Route
	Provider  string
	FetchedAt time.Time
}

// Route represents a single route option.
type Route struct {
	Path            orb.LineString
	DistanceMeters  float64
	DurationSeconds float64
	Summary         string
	BoundingBox     *orb.Bound
	Instructions    []Instruction
}

// Instruction represents a turn-by-turn step.
type Instruction struct {
	Text           string
	DistanceMeters float64
	DurationSecs   float64
	Type           int
	// Leg is the index of the waypoint leg the step belongs to.
	Leg int
}

// Error provides detailed error information from the routing provider.
type Error struct {
	Provider string
	Code     string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is transient.
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrProviderUnavailable) || errors.Is(e.Err, ErrRateLimitExceeded)
}

// ValidateCoordinate checks that a coordinate is within WGS84 ranges.
func ValidateCoordinate(c Coordinate) error {
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("latitude %f out of range [-90, 90]", c.Lat)
	}
	if c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("longitude %f out of range [-180, 180]", c.Lon)
	}
	return nil
}
