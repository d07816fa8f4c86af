// Package events fans bridge events out to the embedding application, one
// stream per category.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Category names an event stream.
type Category string

const (
	CategoryMarker     Category = "marker"
	CategoryNavigation Category = "navigation"
	CategoryOverlay    Category = "overlay"
)

// Navigation event types.
const (
	RouteBuilding           = "ROUTE_BUILDING"
	RouteBuilt              = "ROUTE_BUILT"
	RouteBuildFailed        = "ROUTE_BUILD_FAILED"
	RouteBuildCancelled     = "ROUTE_BUILD_CANCELLED"
	RouteBuildNoRoutesFound = "ROUTE_BUILD_NO_ROUTES_FOUND"
	ProgressChange          = "PROGRESS_CHANGE"
	OnArrival               = "ON_ARRIVAL"
	NavigationCancelled     = "NAVIGATION_CANCELLED"
	BannerInstruction       = "BANNER_INSTRUCTION"
	SpeechAnnouncement      = "SPEECH_ANNOUNCEMENT"
	UserOffRoute            = "USER_OFF_ROUTE"
	RerouteAlong            = "REROUTE_ALONG"
	OnMapTap                = "ON_MAP_TAP"
)

// SceneRendered is the overlay event type for a rendered marker scene.
const SceneRendered = "SCENE_RENDERED"

// Event is one published event.
type Event struct {
	Category Category
	Type     string
	Data     json.RawMessage
	Time     time.Time
	Session  string // navigation session the event belongs to, if any
}

// Payload returns the bytes delivered to clients. Navigation events are
// wrapped as {"eventType", "data"}; other categories carry the data as is.
func (e Event) Payload() ([]byte, error) {
	if e.Category != CategoryNavigation {
		return e.Data, nil
	}
	data := e.Data
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	return json.Marshal(struct {
		EventType string          `json:"eventType"`
		Data      json.RawMessage `json:"data"`
	}{e.Type, data})
}

// Hub owns the streams.
type Hub struct {
	Marker     *Stream
	Navigation *Stream
	Overlay    *Stream
}

// NewHub creates the marker, navigation and overlay streams.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		Marker:     NewStream(CategoryMarker, logger),
		Navigation: NewStream(CategoryNavigation, logger),
		Overlay:    NewStream(CategoryOverlay, logger),
	}
}

// Streams returns every stream of the hub.
func (h *Hub) Streams() []*Stream {
	return []*Stream{h.Marker, h.Navigation, h.Overlay}
}

// Stream returns the stream for a category.
func (h *Hub) Stream(c Category) (*Stream, error) {
	for _, s := range h.Streams() {
		if s.Category() == c {
			return s, nil
		}
	}
	return nil, fmt.Errorf("unknown event category: %q", c)
}

// Close detaches every subscriber of every stream.
func (h *Hub) Close() {
	for _, s := range h.Streams() {
		s.Close()
	}
}
