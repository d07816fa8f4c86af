// Package mapview turns the filtered marker set into a scene and hands it to
// the map surfaces. It also routes taps on the map back to the marker store.
package mapview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/navbridge/extension/internal/events"
	"github.com/navbridge/extension/internal/marker"
)

// ErrUnknownAnnotation is returned when a tapped annotation was not rendered
// by the last pass.
var ErrUnknownAnnotation = errors.New("unknown annotation")

// Annotation is one drawn marker.
type Annotation struct {
	ID        string  `json:"id"`
	MarkerID  string  `json:"markerId"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Title     string  `json:"title"`
	Subtitle  string  `json:"subtitle,omitempty"`
	Icon      string  `json:"icon"`
	Color     string  `json:"color"`
}

// Scene is the complete surface content of one render pass.
type Scene struct {
	Annotations []Annotation `json:"annotations"`
	MinZoom     float64      `json:"minZoom"`
	MaxZoom     float64      `json:"maxZoom"`
	RenderedAt  time.Time    `json:"renderedAt"`
}

// Surface draws a scene. Every call replaces what the previous call drew.
type Surface interface {
	Render(ctx context.Context, scene Scene) error
}

// TapTarget is the marker side of tap handling.
type TapTarget interface {
	MarkerNear(lat, lng float64) (marker.Marker, bool)
	OnMarkerTap(m marker.Marker)
}

// Dependencies holds the collaborators of an Adapter.
type Dependencies struct {
	Surfaces []Surface
	Icons    *IconMapper
	// MapTaps receives ON_MAP_TAP for taps that hit no marker.
	MapTaps       marker.EventPublisher
	Logger        *slog.Logger
	RenderTimeout time.Duration
}

// Adapter implements marker.Renderer over one or more surfaces.
type Adapter struct {
	deps Dependencies
	log  *slog.Logger

	mu          sync.RWMutex
	target      TapTarget
	annotations map[string]marker.Marker
	scene       Scene
	mapTaps     bool
}

var _ marker.Renderer = (*Adapter)(nil)

// NewAdapter creates an adapter. Bind must be called before taps are handled.
func NewAdapter(deps Dependencies) *Adapter {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	if deps.Icons == nil {
		deps.Icons = NewIconMapper(nil)
	}
	if deps.RenderTimeout <= 0 {
		deps.RenderTimeout = 5 * time.Second
	}
	return &Adapter{
		deps:        deps,
		log:         log.With("component", "map_adapter"),
		annotations: make(map[string]marker.Marker),
	}
}

// Bind sets the tap target, normally the marker store.
func (a *Adapter) Bind(target TapTarget) {
	a.mu.Lock()
	a.target = target
	a.mu.Unlock()
}

// EnableMapTapCallback turns ON_MAP_TAP events on or off.
func (a *Adapter) EnableMapTapCallback(enabled bool) {
	a.mu.Lock()
	a.mapTaps = enabled
	a.mu.Unlock()
}

// Render rebuilds the scene from the visible markers and draws it on every
// surface.
func (a *Adapter) Render(visible []marker.Marker, cfg marker.Configuration) error {
	minZoom, maxZoom := cfg.ZoomRange()
	scene := Scene{
		Annotations: make([]Annotation, 0, len(visible)),
		MinZoom:     minZoom,
		MaxZoom:     maxZoom,
		RenderedAt:  time.Now().UTC(),
	}
	index := make(map[string]marker.Marker, len(visible))

	for _, m := range visible {
		ann := Annotation{
			ID:        uuid.NewString(),
			MarkerID:  m.ID,
			Latitude:  m.Latitude,
			Longitude: m.Longitude,
			Title:     m.Title,
			Icon:      a.deps.Icons.Resolve(m.DisplayIcon(cfg)),
			Color:     m.DisplayColor(cfg).Hex(),
		}
		if m.Description != nil {
			ann.Subtitle = *m.Description
		}
		scene.Annotations = append(scene.Annotations, ann)
		index[ann.ID] = m
	}

	a.mu.Lock()
	a.annotations = index
	a.scene = scene
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), a.deps.RenderTimeout)
	defer cancel()

	var errs []error
	for _, s := range a.deps.Surfaces {
		if err := s.Render(ctx, scene); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("rendering %d annotations: %w", len(scene.Annotations), err)
	}
	a.log.Debug("Scene rendered", "annotations", len(scene.Annotations))
	return nil
}

// Scene returns the last rendered scene.
func (a *Adapter) Scene() Scene {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := a.scene
	out.Annotations = append([]Annotation(nil), a.scene.Annotations...)
	return out
}

// HandleAnnotationTap forwards a tap on a drawn annotation to its marker.
func (a *Adapter) HandleAnnotationTap(annotationID string) error {
	a.mu.RLock()
	m, ok := a.annotations[annotationID]
	target := a.target
	a.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAnnotation, annotationID)
	}
	if target != nil {
		target.OnMarkerTap(m)
	}
	return nil
}

// HandleMapTap resolves a tap at a coordinate. A tap near a rendered marker
// is consumed as a marker tap and reported true. Otherwise ON_MAP_TAP is
// emitted when enabled.
func (a *Adapter) HandleMapTap(lat, lng float64) bool {
	a.mu.RLock()
	target := a.target
	mapTaps := a.mapTaps
	a.mu.RUnlock()

	if target != nil {
		if m, ok := target.MarkerNear(lat, lng); ok {
			target.OnMarkerTap(m)
			return true
		}
	}

	if mapTaps && a.deps.MapTaps != nil {
		payload := map[string]float64{"latitude": lat, "longitude": lng}
		if err := a.deps.MapTaps.Publish(events.OnMapTap, payload); err != nil {
			a.log.Error("Failed to send map tap", "error", err)
		}
	}
	return false
}
