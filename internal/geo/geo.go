// Package geo holds the route geometry used to measure marker distance from
// the active route.
//
// Route lines are kept in EPSG:3857 so distances come out in projected meters,
// and corrected back to ground meters by the latitude of the measured point.
package geo

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// ErrTooFewPoints is returned when a route has fewer than two points.
var ErrTooFewPoints = errors.New("route must have at least 2 points")

var to3857 = wgs84.EPSG().Transform(4326, 3857)

// Coords3857From4326 projects a longitude and latitude to Web Mercator.
func Coords3857From4326(longitude, latitude float64) (geom.Point, error) {
	if !Valid(latitude, longitude) {
		return geom.NewEmptyPoint(geom.DimXY), ErrInvalidCoordinates
	}
	x, y, _ := to3857(longitude, latitude, 0)
	return geom.NewPoint(geom.Coordinates{XY: geom.XY{X: x, Y: y}}), nil
}

// Valid reports whether lat and lng are WGS84 degrees in range.
func Valid(latitude, longitude float64) bool {
	return !math.IsNaN(latitude) && !math.IsNaN(longitude) &&
		latitude >= -90 && latitude <= 90 && longitude >= -180 && longitude <= 180
}

// LineStringFromPoints projects an orb line to a simplefeatures line in 3857.
func LineStringFromPoints(points orb.LineString) (geom.LineString, error) {
	if len(points) < 2 {
		return geom.LineString{}, ErrTooFewPoints
	}
	flat := make([]float64, 0, len(points)*2)
	for _, p := range points {
		if !Valid(p.Lat(), p.Lon()) {
			return geom.LineString{}, ErrInvalidCoordinates
		}
		x, y, _ := to3857(p.Lon(), p.Lat(), 0)
		flat = append(flat, x, y)
	}
	return geom.NewLineString(geom.NewSequence(flat, geom.DimXY)), nil
}
