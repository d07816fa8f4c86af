package routing

import (
	"context"
	"fmt"
	"time"

	orbgeo "github.com/paulmach/orb/geo"
)

// DirectProviderName identifies the straight-line provider.
const DirectProviderName = "direct"

var profileSpeeds = map[RouteProfile]float64{
	ProfileWalk:  1.4,
	ProfileBike:  4.2,
	ProfileDrive: 13.9,
}

// DirectProvider joins the waypoints with straight segments. It serves
// setups without a directions API key and simulated sessions.
type DirectProvider struct{}

var _ Provider = DirectProvider{}

func (DirectProvider) Name() string { return DirectProviderName }

func (DirectProvider) SupportedProfiles() []RouteProfile {
	return []RouteProfile{ProfileWalk, ProfileBike, ProfileDrive}
}

func (DirectProvider) GetDirections(ctx context.Context, req DirectionsRequest) (*DirectionsResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(req.Waypoints) < 2 {
		return nil, &Error{Provider: DirectProviderName, Code: "TOO_FEW_WAYPOINTS", Message: "at least two waypoints are required", Err: ErrInvalidCoordinates}
	}
	for i, wp := range req.Waypoints {
		if err := ValidateCoordinate(wp); err != nil {
			return nil, &Error{Provider: DirectProviderName, Code: "INVALID_WAYPOINT", Message: fmt.Sprintf("waypoint %d: %v", i, err), Err: ErrInvalidCoordinates}
		}
	}

	speed, ok := profileSpeeds[req.Profile]
	if !ok {
		speed = profileSpeeds[ProfileDrive]
	}

	route := Route{Summary: "Direct route"}
	for i, wp := range req.Waypoints {
		route.Path = append(route.Path, wp.Point())
		if i == 0 {
			continue
		}
		d := orbgeo.DistanceHaversine(req.Waypoints[i-1].Point(), wp.Point())
		route.DistanceMeters += d
		route.DurationSeconds += d / speed
		route.Instructions = append(route.Instructions, Instruction{
			Text:           fmt.Sprintf("Head to waypoint %d", i),
			DistanceMeters: d,
			DurationSecs:   d / speed,
			Leg:            i - 1,
		})
	}
	route.Instructions = append(route.Instructions, Instruction{Text: "Arrive at destination", Type: 10, Leg: len(req.Waypoints) - 2})
	bound := route.Path.Bound()
	route.BoundingBox = &bound

	return &DirectionsResponse{Routes: []Route{route}, Provider: DirectProviderName, FetchedAt: time.Now()}, nil
}
