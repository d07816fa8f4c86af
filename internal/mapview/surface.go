package mapview

import (
	"context"
	"fmt"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/navbridge/extension/internal/events"
	"github.com/navbridge/extension/internal/marker"
)

// AnnotationLayer retains the annotations of the last pass in memory.
type AnnotationLayer struct {
	mu      sync.RWMutex
	order   []Annotation
	byID    map[string]Annotation
	renders int
}

var _ Surface = (*AnnotationLayer)(nil)

func NewAnnotationLayer() *AnnotationLayer {
	return &AnnotationLayer{byID: make(map[string]Annotation)}
}

func (l *AnnotationLayer) Render(_ context.Context, scene Scene) error {
	byID := make(map[string]Annotation, len(scene.Annotations))
	for _, a := range scene.Annotations {
		byID[a.ID] = a
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.order = append([]Annotation(nil), scene.Annotations...)
	l.byID = byID
	l.renders++
	return nil
}

// Annotations returns the drawn annotations in scene order.
func (l *AnnotationLayer) Annotations() []Annotation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Annotation(nil), l.order...)
}

// Find looks up a drawn annotation.
func (l *AnnotationLayer) Find(id string) (Annotation, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.byID[id]
	return a, ok
}

// Renders counts the passes drawn so far.
func (l *AnnotationLayer) Renders() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.renders
}

// OverlaySurface publishes each scene as GeoJSON for client-side drawing.
type OverlaySurface struct {
	pub marker.EventPublisher
}

var _ Surface = (*OverlaySurface)(nil)

func NewOverlaySurface(pub marker.EventPublisher) *OverlaySurface {
	return &OverlaySurface{pub: pub}
}

// Overlay is the payload of a SCENE_RENDERED event.
type Overlay struct {
	MinZoom    float64                    `json:"minZoom"`
	MaxZoom    float64                    `json:"maxZoom"`
	Collection *geojson.FeatureCollection `json:"collection"`
}

func (o *OverlaySurface) Render(_ context.Context, scene Scene) error {
	if err := o.pub.Publish(events.SceneRendered, SceneOverlay(scene)); err != nil {
		return fmt.Errorf("publishing overlay: %w", err)
	}
	return nil
}

// SceneOverlay converts a scene to its GeoJSON overlay.
func SceneOverlay(scene Scene) Overlay {
	fc := geojson.NewFeatureCollection()
	for _, a := range scene.Annotations {
		f := geojson.NewFeature(orb.Point{a.Longitude, a.Latitude})
		f.ID = a.ID
		f.Properties["markerId"] = a.MarkerID
		f.Properties["title"] = a.Title
		f.Properties["icon"] = a.Icon
		f.Properties["color"] = a.Color
		if a.Subtitle != "" {
			f.Properties["subtitle"] = a.Subtitle
		}
		fc.Append(f)
	}
	return Overlay{MinZoom: scene.MinZoom, MaxZoom: scene.MaxZoom, Collection: fc}
}
