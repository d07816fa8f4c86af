// Package marker holds the static marker records, their display
// configuration, the display filter and the marker store.
package marker

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidCoordinates is returned when a latitude or longitude is out of range.
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// ErrInvalidColor is returned when a color is neither an ARGB integer nor a hex string.
var ErrInvalidColor = errors.New("invalid color")

// Marker is a point of interest shown on the map independently of route data.
type Marker struct {
	ID          string
	Latitude    float64
	Longitude   float64
	Title       string
	Category    string
	Description *string
	IconID      *string
	CustomColor *Color
	// Priority is carried for callers but never used for selection.
	Priority  *int
	IsVisible bool
	Metadata  map[string]any
}

// Clone returns a copy of m that shares no pointers or metadata with it.
func (m Marker) Clone() Marker {
	m.Description = clonePtr(m.Description)
	m.IconID = clonePtr(m.IconID)
	m.CustomColor = clonePtr(m.CustomColor)
	m.Priority = clonePtr(m.Priority)
	if m.Metadata != nil {
		m.Metadata = cloneValue(m.Metadata).(map[string]any)
	}
	return m
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// cloneValue copies the maps and slices of a decoded JSON value.
func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Color keeps a display color in the form it was supplied.
// Integers are ARGB values, strings are #RRGGBB or #AARRGGBB.
type Color struct {
	argb int64
	text string
}

// ColorFromInt builds a color from an ARGB integer.
func ColorFromInt(argb int64) Color {
	return Color{argb: argb}
}

// ParseColor parses a #RRGGBB or #AARRGGBB string.
func ParseColor(s string) (Color, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 && len(hex) != 8 {
		return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	if len(hex) == 6 {
		v |= 0xFF000000
	}
	return Color{argb: int64(int32(uint32(v))), text: s}, nil
}

// mustColor is used for the built-in palette only.
func mustColor(s string) Color {
	c, err := ParseColor(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Hex returns the color as #RRGGBB, dropping alpha.
func (c Color) Hex() string {
	return fmt.Sprintf("#%06X", uint32(c.argb)&0xFFFFFF)
}

// ARGB returns the color as a signed 32-bit ARGB value.
func (c Color) ARGB() int64 {
	return int64(int32(uint32(c.argb)))
}

// IsText reports whether the color was supplied as a string.
func (c Color) IsText() bool {
	return c.text != ""
}

func (c Color) String() string {
	if c.text != "" {
		return c.text
	}
	return strconv.FormatInt(c.argb, 10)
}

// Mode is the display context the map is currently in.
type Mode int

const (
	ModeIdle Mode = iota
	ModeNavigation
	ModeFreeDrive
	ModeEmbedded
)

func (m Mode) String() string {
	switch m {
	case ModeNavigation:
		return "navigation"
	case ModeFreeDrive:
		return "freeDrive"
	case ModeEmbedded:
		return "embedded"
	default:
		return "idle"
	}
}

const (
	DefaultMinZoomLevel = 10.0
	DefaultMaxZoomLevel = 20.0
)

// Configuration governs which markers are displayed. It is a value object:
// updates replace it wholesale.
type Configuration struct {
	ShowDuringNavigation bool
	ShowInFreeDrive      bool
	ShowOnEmbeddedMap    bool
	// MaxDistanceFromRoute is in meters.
	MaxDistanceFromRoute *float64
	MinZoomLevel         float64
	MaxZoomLevel         *float64
	EnableClustering     bool
	MaxMarkersToShow     *int
	DefaultIconID        *string
	DefaultColor         *Color
}

// DefaultConfiguration returns the configuration used before any update.
func DefaultConfiguration() Configuration {
	return Configuration{
		ShowDuringNavigation: true,
		ShowInFreeDrive:      true,
		ShowOnEmbeddedMap:    true,
		MinZoomLevel:         DefaultMinZoomLevel,
		EnableClustering:     true,
	}
}

// ShowsIn reports whether markers are shown in the given mode.
func (c Configuration) ShowsIn(mode Mode) bool {
	switch mode {
	case ModeNavigation:
		return c.ShowDuringNavigation
	case ModeFreeDrive:
		return c.ShowInFreeDrive
	case ModeEmbedded:
		return c.ShowOnEmbeddedMap
	default:
		return true
	}
}

// ZoomRange returns the zoom levels markers are drawn between.
func (c Configuration) ZoomRange() (minZoom, maxZoom float64) {
	maxZoom = DefaultMaxZoomLevel
	if c.MaxZoomLevel != nil {
		maxZoom = *c.MaxZoomLevel
	}
	return c.MinZoomLevel, maxZoom
}

func validCoordinates(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
