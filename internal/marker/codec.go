package marker

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// FieldError reports a required field that is missing or a field whose
// value has the wrong shape.
type FieldError struct {
	Field  string
	Reason string
	Err    error
}

func (e *FieldError) Error() string {
	return e.Field + " " + e.Reason
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// WithPrefix returns a copy of the error with the field path prefixed,
// e.g. "markers[2]" + "latitude".
func (e *FieldError) WithPrefix(prefix string) *FieldError {
	field := e.Field
	switch {
	case prefix == "":
	case field == "":
		field = prefix
	default:
		field = prefix + "." + field
	}
	return &FieldError{Field: field, Reason: e.Reason, Err: e.Err}
}

func missing(field string) *FieldError {
	return &FieldError{Field: field, Reason: "is required"}
}

type markerJSON struct {
	ID          *string         `json:"id"`
	Latitude    *float64        `json:"latitude"`
	Longitude   *float64        `json:"longitude"`
	Title       *string         `json:"title"`
	Category    *string         `json:"category"`
	Description *string         `json:"description,omitempty"`
	IconID      *string         `json:"iconId,omitempty"`
	CustomColor *Color          `json:"customColor,omitempty"`
	Priority    *int            `json:"priority,omitempty"`
	IsVisible   *bool           `json:"isVisible"`
	Metadata    *map[string]any `json:"metadata,omitempty"`
}

// MarshalJSON writes the always-present fields and only the optional
// fields that were set.
func (m Marker) MarshalJSON() ([]byte, error) {
	visible := m.IsVisible
	out := markerJSON{
		ID:          &m.ID,
		Latitude:    &m.Latitude,
		Longitude:   &m.Longitude,
		Title:       &m.Title,
		Category:    &m.Category,
		Description: m.Description,
		IconID:      m.IconID,
		CustomColor: m.CustomColor,
		Priority:    m.Priority,
		IsVisible:   &visible,
	}
	if m.Metadata != nil {
		out.Metadata = &m.Metadata
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a marker, rejecting missing required fields and
// fields of the wrong type. Unknown keys are ignored.
func (m *Marker) UnmarshalJSON(data []byte) error {
	var in markerJSON
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&in); err != nil {
		return decodeError(err, "customColor")
	}

	switch {
	case in.ID == nil:
		return missing("id")
	case in.Latitude == nil:
		return missing("latitude")
	case in.Longitude == nil:
		return missing("longitude")
	case in.Title == nil:
		return missing("title")
	case in.Category == nil:
		return missing("category")
	}
	if *in.ID == "" {
		return &FieldError{Field: "id", Reason: "must not be empty"}
	}
	if !validCoordinates(*in.Latitude, *in.Longitude) {
		return &FieldError{Field: "latitude", Reason: "is out of range", Err: ErrInvalidCoordinates}
	}

	out := Marker{
		ID:          *in.ID,
		Latitude:    *in.Latitude,
		Longitude:   *in.Longitude,
		Title:       *in.Title,
		Category:    *in.Category,
		Description: in.Description,
		IconID:      in.IconID,
		CustomColor: in.CustomColor,
		Priority:    in.Priority,
		IsVisible:   true,
	}
	if in.IsVisible != nil {
		out.IsVisible = *in.IsVisible
	}
	if in.Metadata != nil && *in.Metadata != nil {
		for k, v := range *in.Metadata {
			switch v.(type) {
			case map[string]any, []any:
				return &FieldError{Field: "metadata." + k, Reason: "must be a scalar"}
			}
		}
		out.Metadata = *in.Metadata
	}

	*m = out
	return nil
}

type configurationJSON struct {
	ShowDuringNavigation *bool    `json:"showDuringNavigation"`
	ShowInFreeDrive      *bool    `json:"showInFreeDrive"`
	ShowOnEmbeddedMap    *bool    `json:"showOnEmbeddedMap"`
	MaxDistanceFromRoute *float64 `json:"maxDistanceFromRoute,omitempty"`
	MinZoomLevel         *float64 `json:"minZoomLevel"`
	MaxZoomLevel         *float64 `json:"maxZoomLevel,omitempty"`
	EnableClustering     *bool    `json:"enableClustering"`
	MaxMarkersToShow     *int     `json:"maxMarkersToShow,omitempty"`
	DefaultIconID        *string  `json:"defaultIconId,omitempty"`
	DefaultColor         *Color   `json:"defaultColor,omitempty"`
}

func (c Configuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(configurationJSON{
		ShowDuringNavigation: &c.ShowDuringNavigation,
		ShowInFreeDrive:      &c.ShowInFreeDrive,
		ShowOnEmbeddedMap:    &c.ShowOnEmbeddedMap,
		MaxDistanceFromRoute: c.MaxDistanceFromRoute,
		MinZoomLevel:         &c.MinZoomLevel,
		MaxZoomLevel:         c.MaxZoomLevel,
		EnableClustering:     &c.EnableClustering,
		MaxMarkersToShow:     c.MaxMarkersToShow,
		DefaultIconID:        c.DefaultIconID,
		DefaultColor:         c.DefaultColor,
	})
}

// UnmarshalJSON decodes a configuration; absent keys take their defaults.
func (c *Configuration) UnmarshalJSON(data []byte) error {
	var in configurationJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return decodeError(err, "defaultColor")
	}

	out := DefaultConfiguration()
	if in.ShowDuringNavigation != nil {
		out.ShowDuringNavigation = *in.ShowDuringNavigation
	}
	if in.ShowInFreeDrive != nil {
		out.ShowInFreeDrive = *in.ShowInFreeDrive
	}
	if in.ShowOnEmbeddedMap != nil {
		out.ShowOnEmbeddedMap = *in.ShowOnEmbeddedMap
	}
	if in.MinZoomLevel != nil {
		out.MinZoomLevel = *in.MinZoomLevel
	}
	if in.EnableClustering != nil {
		out.EnableClustering = *in.EnableClustering
	}
	out.MaxDistanceFromRoute = in.MaxDistanceFromRoute
	out.MaxZoomLevel = in.MaxZoomLevel
	out.MaxMarkersToShow = in.MaxMarkersToShow
	out.DefaultIconID = in.DefaultIconID
	out.DefaultColor = in.DefaultColor

	if out.MaxDistanceFromRoute != nil && *out.MaxDistanceFromRoute < 0 {
		return &FieldError{Field: "maxDistanceFromRoute", Reason: "must not be negative"}
	}
	if out.MaxMarkersToShow != nil && *out.MaxMarkersToShow < 0 {
		return &FieldError{Field: "maxMarkersToShow", Reason: "must not be negative"}
	}
	if minZoom, maxZoom := out.ZoomRange(); minZoom > maxZoom {
		return &FieldError{Field: "minZoomLevel", Reason: "must not exceed maxZoomLevel"}
	}

	*c = out
	return nil
}

func (c Color) MarshalJSON() ([]byte, error) {
	if c.text != "" {
		return json.Marshal(c.text)
	}
	return []byte(strconv.FormatInt(c.argb, 10)), nil
}

func (c *Color) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidColor, err)
		}
		parsed, err := ParseColor(s)
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidColor, data)
	}
	*c = ColorFromInt(v)
	return nil
}

// decodeError turns encoding/json failures into field errors.
func decodeError(err error, colorField string) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return &FieldError{Field: typeErr.Field, Reason: "must be of type " + typeErr.Type.String(), Err: err}
	}
	if errors.Is(err, ErrInvalidColor) {
		return &FieldError{Field: colorField, Reason: "must be an ARGB integer or a hex string", Err: err}
	}
	var fieldErr *FieldError
	if errors.As(err, &fieldErr) {
		return fieldErr
	}
	return &FieldError{Reason: "must be a JSON object", Err: err}
}
