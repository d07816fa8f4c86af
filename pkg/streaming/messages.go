// Package streaming defines the envelopes sent to a remote journal collector.
package streaming

import (
	"encoding/json"

	"github.com/navbridge/extension/pkg/core"
)

// Message type constants of the collector protocol.
const (
	TypeHello           = "hello"
	TypeMarkerTap       = "marker_tap"
	TypeNavigationEvent = "navigation_event"
	TypeSceneSnapshot   = "scene_snapshot"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// HelloPayload identifies the bridge to the collector. It is replayed after
// every reconnect.
type HelloPayload struct {
	Service  string `json:"service"`
	Instance string `json:"instance"`
}

// MarkerTapPayload is the wire form of a core.MarkerTap.
type MarkerTapPayload struct {
	Time      int64           `json:"time"` // unix millis
	MarkerID  string          `json:"markerId"`
	Title     string          `json:"title"`
	Category  string          `json:"category"`
	Latitude  float64         `json:"latitude"`
	Longitude float64         `json:"longitude"`
	Marker    json.RawMessage `json:"marker,omitempty"`
}

// NavigationEventPayload is the wire form of a core.NavigationEvent.
type NavigationEventPayload struct {
	Time      int64           `json:"time"`
	SessionID string          `json:"sessionId,omitempty"`
	EventType string          `json:"eventType"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// SceneSnapshotPayload is the wire form of a core.SceneSnapshot.
type SceneSnapshotPayload struct {
	Time        int64           `json:"time"`
	Annotations int             `json:"annotations"`
	MinZoom     float64         `json:"minZoom"`
	MaxZoom     float64         `json:"maxZoom"`
	Overlay     json.RawMessage `json:"overlay,omitempty"`
}

// FromMarkerTap converts a tap record.
func FromMarkerTap(t *core.MarkerTap) MarkerTapPayload {
	return MarkerTapPayload{
		Time:      t.Time.UnixMilli(),
		MarkerID:  t.MarkerID,
		Title:     t.Title,
		Category:  t.Category,
		Latitude:  t.Latitude,
		Longitude: t.Longitude,
		Marker:    t.Payload,
	}
}

// FromNavigationEvent converts a navigation record.
func FromNavigationEvent(e *core.NavigationEvent) NavigationEventPayload {
	return NavigationEventPayload{
		Time:      e.Time.UnixMilli(),
		SessionID: e.SessionID,
		EventType: e.Type,
		Data:      e.Data,
	}
}

// FromSceneSnapshot converts a scene record.
func FromSceneSnapshot(s *core.SceneSnapshot) SceneSnapshotPayload {
	return SceneSnapshotPayload{
		Time:        s.Time.UnixMilli(),
		Annotations: s.Annotations,
		MinZoom:     s.MinZoom,
		MaxZoom:     s.MaxZoom,
		Overlay:     s.Overlay,
	}
}
