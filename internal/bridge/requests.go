package bridge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/navbridge/extension/internal/geo"
	"github.com/navbridge/extension/internal/marker"
	"github.com/navbridge/extension/internal/navigation"
)

const invalidArgs = "Invalid arguments"

// args is the top-level argument object of a call. Unknown keys are ignored.
type args map[string]json.RawMessage

func parseArgs(raw json.RawMessage) (args, *Error) {
	a := args{}
	if isNull(raw) {
		return a, nil
	}
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, invalid("Arguments must be an object").withDetails(err.Error())
	}
	return a, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// get returns the value of a present, non-null key.
func (a args) get(key string) (json.RawMessage, bool) {
	v, ok := a[key]
	if !ok || isNull(v) {
		return nil, false
	}
	return v, true
}

// optional decodes key into dst when present, leaving dst untouched otherwise.
func optional[T any](a args, key string, dst *T) *Error {
	raw, ok := a.get(key)
	if !ok {
		return nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return invalid(invalidArgs).withDetails(fmt.Sprintf("%s must be a %s", key, typeName(v)))
	}
	*dst = v
	return nil
}

func required[T any](a args, key string, dst *T) *Error {
	if _, ok := a.get(key); !ok {
		return invalid(invalidArgs).withDetails(key + " is required")
	}
	return optional(a, key, dst)
}

func typeName(v any) string {
	switch v.(type) {
	case float64:
		return "number"
	case bool:
		return "boolean"
	case string:
		return "string"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// fieldDetails renders a decode failure with the path of the offending field.
func fieldDetails(prefix string, err error) string {
	var fe *marker.FieldError
	if errors.As(err, &fe) {
		return fe.WithPrefix(prefix).Error()
	}
	return prefix + ": " + err.Error()
}

type addMarkersRequest struct {
	Markers       []marker.Marker
	Configuration *marker.Configuration
}

func decodeAddMarkers(a args) (addMarkersRequest, *Error) {
	var req addMarkersRequest
	markers, err := decodeMarkers(a)
	if err != nil {
		return req, err
	}
	req.Markers = markers

	if raw, ok := a.get("configuration"); ok {
		cfg, err := decodeConfiguration(raw)
		if err != nil {
			return req, err
		}
		req.Configuration = &cfg
	}
	return req, nil
}

func decodeMarkers(a args) ([]marker.Marker, *Error) {
	raw, ok := a.get("markers")
	if !ok {
		return nil, invalid("Markers list is required")
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, invalid("Markers list is required").withDetails("markers must be an array")
	}

	markers := make([]marker.Marker, 0, len(items))
	for i, item := range items {
		var m marker.Marker
		if err := json.Unmarshal(item, &m); err != nil {
			return nil, invalid("Invalid marker").withDetails(fieldDetails(fmt.Sprintf("markers[%d]", i), err))
		}
		markers = append(markers, m)
	}
	return markers, nil
}

func decodeConfiguration(raw json.RawMessage) (marker.Configuration, *Error) {
	var cfg marker.Configuration
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, invalid("Invalid configuration").withDetails(fieldDetails("configuration", err))
	}
	return cfg, nil
}

func decodeMarkerIDs(a args) ([]string, *Error) {
	raw, ok := a.get("markerIds")
	if !ok {
		return nil, invalid("Marker IDs list is required")
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, invalid("Marker IDs list is required").withDetails("markerIds must be an array of strings")
	}
	return ids, nil
}

func decodeUpdateConfiguration(a args) (marker.Configuration, *Error) {
	raw, ok := a.get("configuration")
	if !ok {
		return marker.Configuration{}, invalid("Configuration is required")
	}
	return decodeConfiguration(raw)
}

type point struct {
	Latitude  float64
	Longitude float64
}

func decodePoint(a args) (point, *Error) {
	var p point
	if err := required(a, "latitude", &p.Latitude); err != nil {
		return p, err
	}
	if err := required(a, "longitude", &p.Longitude); err != nil {
		return p, err
	}
	if !geo.Valid(p.Latitude, p.Longitude) {
		return p, invalid(invalidArgs).withDetails("latitude or longitude out of range")
	}
	return p, nil
}

type distanceRequest struct {
	point
	MaxDistanceKm float64
}

func decodeDistance(a args) (distanceRequest, *Error) {
	p, err := decodePoint(a)
	if err != nil {
		return distanceRequest{}, err
	}
	req := distanceRequest{point: p}
	if err := required(a, "maxDistanceKm", &req.MaxDistanceKm); err != nil {
		return req, err
	}
	if req.MaxDistanceKm < 0 {
		return req, invalid(invalidArgs).withDetails("maxDistanceKm must not be negative")
	}
	return req, nil
}

func decodeAnnotationID(a args) (string, *Error) {
	var id string
	if err := required(a, "annotationId", &id); err != nil {
		return "", err
	}
	return id, nil
}

// decodeOptions overlays the given keys on the default navigation options.
func decodeOptions(a args) (navigation.Options, *Error) {
	opts := navigation.DefaultOptions()
	fields := []struct {
		key string
		dst any
	}{
		{"mode", &opts.Mode},
		{"alternatives", &opts.Alternatives},
		{"simulateRoute", &opts.SimulateRoute},
		{"allowsUTurnsAtWayPoints", &opts.AllowsUTurnsAtWayPoints},
		{"enableOnMapTapCallback", &opts.EnableOnMapTapCallback},
		{"language", &opts.Language},
		{"voiceInstructionsEnabled", &opts.VoiceInstructionsEnabled},
		{"bannerInstructionsEnabled", &opts.BannerInstructionsEnabled},
		{"units", &opts.Units},
		{"mapStyleUrlDay", &opts.MapStyleURLDay},
		{"mapStyleUrlNight", &opts.MapStyleURLNight},
		{"longPressDestinationEnabled", &opts.LongPressDestinationEnabled},
	}
	for _, f := range fields {
		var err *Error
		switch dst := f.dst.(type) {
		case *string:
			err = optional(a, f.key, dst)
		case *bool:
			err = optional(a, f.key, dst)
		}
		if err != nil {
			return opts, err
		}
	}
	if opts.Units != "imperial" {
		opts.Units = "metric"
	}
	return opts, nil
}

type wayPointJSON struct {
	Name      *string  `json:"Name"`
	Latitude  *float64 `json:"Latitude"`
	Longitude *float64 `json:"Longitude"`
	IsSilent  *bool    `json:"IsSilent"`
}

// decodeWayPoints accepts an array or an object keyed by index, ordered by
// the numeric value of the key.
func decodeWayPoints(a args, atLeast int) ([]navigation.WayPoint, *Error) {
	raw, ok := a.get("wayPoints")
	if !ok {
		return nil, invalid("Waypoints are required")
	}

	var items []wayPointJSON
	switch bytes.TrimSpace(raw)[0] {
	case '[':
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, invalid("Invalid waypoints").withDetails(err.Error())
		}
	case '{':
		var keyed map[string]wayPointJSON
		if err := json.Unmarshal(raw, &keyed); err != nil {
			return nil, invalid("Invalid waypoints").withDetails(err.Error())
		}
		keys := make([]int, 0, len(keyed))
		for k := range keyed {
			i, err := strconv.Atoi(k)
			if err != nil {
				return nil, invalid("Invalid waypoints").withDetails(fmt.Sprintf("wayPoints key %q is not an index", k))
			}
			keys = append(keys, i)
		}
		sort.Ints(keys)
		for _, k := range keys {
			items = append(items, keyed[strconv.Itoa(k)])
		}
	default:
		return nil, invalid("Invalid waypoints").withDetails("wayPoints must be an array or an object")
	}

	switch {
	case len(items) == 0:
		return nil, invalid("Waypoints are required")
	case len(items) < atLeast:
		return nil, invalid(fmt.Sprintf("At least %d waypoints are required", atLeast))
	}

	out := make([]navigation.WayPoint, 0, len(items))
	for i, item := range items {
		prefix := fmt.Sprintf("wayPoints[%d]", i)
		if item.Latitude == nil {
			return nil, invalid("Invalid waypoints").withDetails(prefix + ".Latitude is required")
		}
		if item.Longitude == nil {
			return nil, invalid("Invalid waypoints").withDetails(prefix + ".Longitude is required")
		}
		if !geo.Valid(*item.Latitude, *item.Longitude) {
			return nil, invalid("Invalid waypoints").withDetails(prefix + " is out of range")
		}
		wp := navigation.WayPoint{Latitude: *item.Latitude, Longitude: *item.Longitude}
		if item.Name != nil {
			wp.Name = *item.Name
		}
		if item.IsSilent != nil {
			wp.IsSilent = *item.IsSilent
		}
		out = append(out, wp)
	}
	return out, nil
}
