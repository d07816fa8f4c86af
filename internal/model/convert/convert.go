// Package convert maps journal records between core and GORM models.
package convert

import (
	"encoding/json"

	"github.com/navbridge/extension/internal/model"
	"github.com/navbridge/extension/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

// lngLat builds a WGS84 point.
func lngLat(lat, lng float64) geom.Point {
	return geom.NewPoint(geom.Coordinates{XY: geom.XY{X: lng, Y: lat}})
}

// latLng reads a WGS84 point back. An empty point yields zeros.
func latLng(p geom.Point) (lat, lng float64) {
	c, ok := p.Coordinates()
	if !ok {
		return 0, 0
	}
	return c.Y, c.X
}

func toJSON(raw json.RawMessage) datatypes.JSON {
	if len(raw) == 0 {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(raw)
}

func fromJSON(j datatypes.JSON) json.RawMessage {
	if len(j) == 0 {
		return nil
	}
	return json.RawMessage(j)
}

// CoreToMarkerTap converts a tap record to its GORM row. Times are stored
// in UTC.
func CoreToMarkerTap(t core.MarkerTap) model.MarkerTap {
	return model.MarkerTap{
		ID:       t.ID,
		Time:     t.Time.UTC(),
		MarkerID: t.MarkerID,
		Title:    t.Title,
		Category: t.Category,
		Position: lngLat(t.Latitude, t.Longitude),
		Marker:   toJSON(t.Payload),
	}
}

// MarkerTapToCore converts a GORM row to a tap record.
func MarkerTapToCore(m model.MarkerTap) core.MarkerTap {
	lat, lng := latLng(m.Position)
	return core.MarkerTap{
		ID:        m.ID,
		Time:      m.Time,
		MarkerID:  m.MarkerID,
		Title:     m.Title,
		Category:  m.Category,
		Latitude:  lat,
		Longitude: lng,
		Payload:   fromJSON(m.Marker),
	}
}

// CoreToNavigationEvent converts a navigation record to its GORM row.
func CoreToNavigationEvent(e core.NavigationEvent) model.NavigationEvent {
	return model.NavigationEvent{
		ID:        e.ID,
		Time:      e.Time.UTC(),
		SessionID: e.SessionID,
		EventType: e.Type,
		Data:      toJSON(e.Data),
	}
}

// NavigationEventToCore converts a GORM row to a navigation record.
func NavigationEventToCore(m model.NavigationEvent) core.NavigationEvent {
	return core.NavigationEvent{
		ID:        m.ID,
		Time:      m.Time,
		SessionID: m.SessionID,
		Type:      m.EventType,
		Data:      fromJSON(m.Data),
	}
}

// CoreToSceneSnapshot converts a scene record to its GORM row.
func CoreToSceneSnapshot(s core.SceneSnapshot) model.SceneSnapshot {
	return model.SceneSnapshot{
		ID:          s.ID,
		Time:        s.Time.UTC(),
		Annotations: s.Annotations,
		MinZoom:     s.MinZoom,
		MaxZoom:     s.MaxZoom,
		Overlay:     toJSON(s.Overlay),
	}
}

// SceneSnapshotToCore converts a GORM row to a scene record.
func SceneSnapshotToCore(m model.SceneSnapshot) core.SceneSnapshot {
	return core.SceneSnapshot{
		ID:          m.ID,
		Time:        m.Time,
		Annotations: m.Annotations,
		MinZoom:     m.MinZoom,
		MaxZoom:     m.MaxZoom,
		Overlay:     fromJSON(m.Overlay),
	}
}
