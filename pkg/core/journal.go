// Package core holds the journal records shared by the storage backends and
// the journal worker. Records carry no storage details.
package core

import (
	"encoding/json"
	"time"
)

// Journal categories.
const (
	CategoryMarkerTap  = "marker_tap"
	CategoryNavigation = "navigation"
	CategoryScene      = "scene"
)

// MarkerTap is a tap on a rendered marker.
type MarkerTap struct {
	ID        uint
	Time      time.Time
	MarkerID  string
	Title     string
	Category  string
	Latitude  float64
	Longitude float64
	Payload   json.RawMessage // marker JSON as sent to the client
}

// NavigationEvent is one event of the navigation stream.
type NavigationEvent struct {
	ID        uint
	Time      time.Time
	SessionID string
	Type      string
	Data      json.RawMessage
}

// SceneSnapshot is one rendered marker scene.
type SceneSnapshot struct {
	ID          uint
	Time        time.Time
	Annotations int
	MinZoom     float64
	MaxZoom     float64
	Overlay     json.RawMessage // GeoJSON overlay of the scene
}
