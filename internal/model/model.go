// Package model holds the GORM tables of the event journal.
package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&JournalInfo{},
	&MarkerTap{},
	&NavigationEvent{},
	&SceneSnapshot{},
}

// JournalInfo records the bridge instance that owns the journal.
type JournalInfo struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"createdAt"`
	Service   string    `json:"service" gorm:"size:127"`
	Instance  string    `json:"instance" gorm:"size:64;uniqueIndex"`
}

func (*JournalInfo) TableName() string {
	return "journal_infos"
}

// MarkerTap is a tap on a rendered marker. Position is WGS84 longitude and
// latitude.
type MarkerTap struct {
	ID       uint           `json:"id" gorm:"primarykey;autoIncrement"`
	Time     time.Time      `json:"time" gorm:"index:idx_marker_tap_time"`
	MarkerID string         `json:"markerId" gorm:"size:255;index:idx_marker_tap_marker_id"`
	Title    string         `json:"title" gorm:"size:255"`
	Category string         `json:"category" gorm:"size:64"`
	Position geom.Point     `json:"position" gorm:"type:GEOMETRY"`
	Marker   datatypes.JSON `json:"marker"`
}

func (*MarkerTap) TableName() string {
	return "marker_taps"
}

// NavigationEvent is one event of the navigation stream.
type NavigationEvent struct {
	ID        uint           `json:"id" gorm:"primarykey;autoIncrement"`
	Time      time.Time      `json:"time" gorm:"index:idx_navigation_event_time"`
	SessionID string         `json:"sessionId" gorm:"size:36;index:idx_navigation_event_session_id"`
	EventType string         `json:"eventType" gorm:"size:64"`
	Data      datatypes.JSON `json:"data"`
}

func (*NavigationEvent) TableName() string {
	return "navigation_events"
}

// SceneSnapshot is one rendered marker scene.
type SceneSnapshot struct {
	ID          uint           `json:"id" gorm:"primarykey;autoIncrement"`
	Time        time.Time      `json:"time" gorm:"index:idx_scene_snapshot_time"`
	Annotations int            `json:"annotations"`
	MinZoom     float64        `json:"minZoom"`
	MaxZoom     float64        `json:"maxZoom"`
	Overlay     datatypes.JSON `json:"overlay"`
}

func (*SceneSnapshot) TableName() string {
	return "scene_snapshots"
}
