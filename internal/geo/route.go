package geo

import (
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	geom "github.com/peterstace/simplefeatures/geom"
)

// Route is an immutable route line.
type Route struct {
	coords     orb.LineString
	projected  geom.LineString
	cumulative []float64
}

// NewRoute builds a route from WGS84 points in travel order.
func NewRoute(points orb.LineString) (*Route, error) {
	projected, err := LineStringFromPoints(points)
	if err != nil {
		return nil, err
	}

	coords := make(orb.LineString, len(points))
	copy(coords, points)

	cumulative := make([]float64, len(coords))
	for i := 1; i < len(coords); i++ {
		cumulative[i] = cumulative[i-1] + orbgeo.DistanceHaversine(coords[i-1], coords[i])
	}

	return &Route{coords: coords, projected: projected, cumulative: cumulative}, nil
}

// DistanceMeters returns the ground distance from the point to the route line.
func (r *Route) DistanceMeters(lat, lng float64) float64 {
	pt, err := Coords3857From4326(lng, lat)
	if err != nil {
		return math.Inf(1)
	}
	d, ok := geom.Distance(pt.AsGeometry(), r.projected.AsGeometry())
	if !ok {
		return math.Inf(1)
	}
	// Web Mercator stretches lengths by 1/cos(lat).
	return d * math.Cos(lat*math.Pi/180)
}

// LengthMeters is the great-circle length of the route.
func (r *Route) LengthMeters() float64 {
	return r.cumulative[len(r.cumulative)-1]
}

// Coordinates returns a copy of the route points.
func (r *Route) Coordinates() orb.LineString {
	out := make(orb.LineString, len(r.coords))
	copy(out, r.coords)
	return out
}

// PointAt returns the point reached after traveling the given distance along
// the route. Distances past either end clamp to that end.
func (r *Route) PointAt(meters float64) orb.Point {
	if meters <= 0 {
		return r.coords[0]
	}
	last := len(r.coords) - 1
	if meters >= r.cumulative[last] {
		return r.coords[last]
	}

	i := 1
	for r.cumulative[i] < meters {
		i++
	}
	segment := r.cumulative[i] - r.cumulative[i-1]
	if segment == 0 {
		return r.coords[i]
	}
	f := (meters - r.cumulative[i-1]) / segment
	a, b := r.coords[i-1], r.coords[i]
	return orb.Point{a.Lon() + (b.Lon()-a.Lon())*f, a.Lat() + (b.Lat()-a.Lat())*f}
}
