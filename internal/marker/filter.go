package marker

import (
	"math"
	"sort"
)

// ClusterRadius is the per-axis coordinate delta, in degrees, under which two
// markers are considered the same point.
const ClusterRadius = 0.01

// ClusterStrategy selects how near-duplicate markers are dropped.
type ClusterStrategy string

const (
	// ClusterByIdentity decides survivors by scanning in ascending id order,
	// so the result does not depend on insertion order.
	ClusterByIdentity ClusterStrategy = "deterministic"
	// ClusterGreedy scans in insertion order and keeps the first marker of
	// every neighbourhood.
	ClusterGreedy ClusterStrategy = "greedy"
)

// RouteGeometry measures how far a point lies from the active route.
type RouteGeometry interface {
	DistanceMeters(lat, lng float64) float64
}

// FilterOptions carries the display context the filter runs in.
type FilterOptions struct {
	Mode       Mode
	Route      RouteGeometry
	Clustering ClusterStrategy
}

// Filter derives the markers to render from the full set. The input order
// is the insertion order and is preserved in the output.
func Filter(markers []Marker, cfg Configuration, opts FilterOptions) []Marker {
	if !cfg.ShowsIn(opts.Mode) {
		return []Marker{}
	}

	visible := make([]Marker, 0, len(markers))
	for _, m := range markers {
		if m.IsVisible && withinRoute(m, cfg, opts.Route) {
			visible = append(visible, m)
		}
	}

	if cfg.EnableClustering {
		visible = cluster(visible, opts.Clustering)
	}

	if cfg.MaxMarkersToShow != nil && len(visible) > *cfg.MaxMarkersToShow {
		visible = visible[:*cfg.MaxMarkersToShow]
	}

	return visible
}

func withinRoute(m Marker, cfg Configuration, route RouteGeometry) bool {
	if cfg.MaxDistanceFromRoute == nil || route == nil {
		return true
	}
	return route.DistanceMeters(m.Latitude, m.Longitude) <= *cfg.MaxDistanceFromRoute
}

func near(a, b Marker) bool {
	return math.Abs(a.Latitude-b.Latitude) < ClusterRadius &&
		math.Abs(a.Longitude-b.Longitude) < ClusterRadius
}

func cluster(markers []Marker, strategy ClusterStrategy) []Marker {
	order := make([]int, len(markers))
	for i := range order {
		order[i] = i
	}
	if strategy != ClusterGreedy {
		sort.SliceStable(order, func(a, b int) bool {
			return markers[order[a]].ID < markers[order[b]].ID
		})
	}

	keep := make([]bool, len(markers))
	kept := make([]int, 0, len(markers))
	for _, i := range order {
		duplicate := false
		for _, k := range kept {
			if near(markers[k], markers[i]) {
				duplicate = true
				break
			}
		}
		if !duplicate {
			keep[i] = true
			kept = append(kept, i)
		}
	}

	out := make([]Marker, 0, len(kept))
	for i, m := range markers {
		if keep[i] {
			out = append(out, m)
		}
	}
	return out
}
