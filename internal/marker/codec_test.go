package marker

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarker_RoundTripPreservesPresentFields(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "required only",
			input: `{"id":"a","latitude":36.1,"longitude":-115.1,"title":"T","category":"scenic","isVisible":true}`,
		},
		{
			name: "all optional fields",
			input: `{"id":"b","latitude":1.5,"longitude":2.5,"title":"Cafe","category":"cafe","description":"espresso",` +
				`"iconId":"cafe","customColor":-16776961,"priority":3,"isVisible":false,"metadata":{"rating":4.5,"open":true,"tag":"x"}}`,
		},
		{
			name:  "string color",
			input: `{"id":"c","latitude":0,"longitude":0,"title":"P","category":"park","customColor":"#FF9800","isVisible":true}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Marker
			require.NoError(t, json.Unmarshal([]byte(tt.input), &m))

			out, err := json.Marshal(m)
			require.NoError(t, err)
			assert.JSONEq(t, tt.input, string(out))
		})
	}
}

func TestMarker_OmitsUnsetOptionalFields(t *testing.T) {
	var m Marker
	require.NoError(t, json.Unmarshal([]byte(`{"id":"a","latitude":36.1,"longitude":-115.1,"title":"T","category":"scenic"}`), &m))

	assert.True(t, m.IsVisible)
	assert.Nil(t, m.Priority)

	out, err := json.Marshal(m)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(out, &fields))
	assert.Equal(t, true, fields["isVisible"])
	for _, key := range []string{"description", "iconId", "customColor", "priority", "metadata"} {
		assert.NotContains(t, fields, key)
	}
}

func TestMarker_DecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		field string
	}{
		{"missing id", `{"latitude":1,"longitude":1,"title":"T","category":"c"}`, "id"},
		{"missing title", `{"id":"a","latitude":1,"longitude":1,"category":"c"}`, "title"},
		{"latitude as string", `{"id":"a","latitude":"1","longitude":1,"title":"T","category":"c"}`, "latitude"},
		{"priority as float", `{"id":"a","latitude":1,"longitude":1,"title":"T","category":"c","priority":1.5}`, "priority"},
		{"bad color", `{"id":"a","latitude":1,"longitude":1,"title":"T","category":"c","customColor":"red"}`, "customColor"},
		{"nested metadata", `{"id":"a","latitude":1,"longitude":1,"title":"T","category":"c","metadata":{"x":{"y":1}}}`, "metadata.x"},
		{"latitude out of range", `{"id":"a","latitude":91,"longitude":1,"title":"T","category":"c"}`, "latitude"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Marker
			err := json.Unmarshal([]byte(tt.input), &m)
			require.Error(t, err)

			var fieldErr *FieldError
			require.True(t, errors.As(err, &fieldErr), "expected FieldError, got %T", err)
			assert.Equal(t, tt.field, fieldErr.Field)
		})
	}
}

func TestMarker_UnknownKeysIgnored(t *testing.T) {
	var m Marker
	err := json.Unmarshal([]byte(`{"id":"a","latitude":1,"longitude":2,"title":"T","category":"c","zIndex":9}`), &m)
	require.NoError(t, err)
	assert.Equal(t, "a", m.ID)
}

func TestFieldError_WithPrefix(t *testing.T) {
	err := missing("latitude").WithPrefix("markers[2]")
	assert.Equal(t, "markers[2].latitude is required", err.Error())

	root := (&FieldError{Reason: "must be a JSON object"}).WithPrefix("markers[0]")
	assert.Equal(t, "markers[0]", root.Field)
}

func TestConfiguration_Defaults(t *testing.T) {
	var cfg Configuration
	require.NoError(t, json.Unmarshal([]byte(`{}`), &cfg))

	assert.Equal(t, DefaultConfiguration(), cfg)
	assert.True(t, cfg.ShowDuringNavigation)
	assert.True(t, cfg.ShowInFreeDrive)
	assert.True(t, cfg.ShowOnEmbeddedMap)
	assert.True(t, cfg.EnableClustering)
	assert.Equal(t, 10.0, cfg.MinZoomLevel)

	minZoom, maxZoom := cfg.ZoomRange()
	assert.Equal(t, 10.0, minZoom)
	assert.Equal(t, 20.0, maxZoom)
}

func TestConfiguration_RoundTrip(t *testing.T) {
	input := `{"showDuringNavigation":false,"showInFreeDrive":true,"showOnEmbeddedMap":true,"minZoomLevel":12,` +
		`"enableClustering":false,"maxDistanceFromRoute":500,"maxMarkersToShow":5,"defaultIconId":"star","defaultColor":"#2196F3"}`

	var cfg Configuration
	require.NoError(t, json.Unmarshal([]byte(input), &cfg))

	out, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.JSONEq(t, input, string(out))
}

func TestConfiguration_DecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		field string
	}{
		{"negative cap", `{"maxMarkersToShow":-1}`, "maxMarkersToShow"},
		{"wrong type", `{"enableClustering":"yes"}`, "enableClustering"},
		{"inverted zoom", `{"minZoomLevel":15,"maxZoomLevel":5}`, "minZoomLevel"},
		{"bad default color", `{"defaultColor":true}`, "defaultColor"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Configuration
			err := json.Unmarshal([]byte(tt.input), &cfg)

			var fieldErr *FieldError
			require.True(t, errors.As(err, &fieldErr), "expected FieldError, got %v", err)
			assert.Equal(t, tt.field, fieldErr.Field)
		})
	}
}

func TestColor(t *testing.T) {
	c, err := ParseColor("#FF9800")
	require.NoError(t, err)
	assert.Equal(t, "#FF9800", c.Hex())
	assert.True(t, c.IsText())

	argb, err := ParseColor("#80FF0000")
	require.NoError(t, err)
	assert.Equal(t, "#FF0000", argb.Hex())

	blue := ColorFromInt(-16776961) // 0xFF0000FF
	assert.Equal(t, "#0000FF", blue.Hex())
	assert.False(t, blue.IsText())

	_, err = ParseColor("FF98")
	assert.ErrorIs(t, err, ErrInvalidColor)
}

func TestCategoryDefaults(t *testing.T) {
	tests := []struct {
		category string
		color    string
		icon     string
	}{
		{"scenic", "#FF9800", "scenic"},
		{"Waterfall", "#FF9800", "scenic"},
		{"petrol_station", "#4CAF50", "petrol_station"},
		{"restaurant", "#F44336", "restaurant"},
		{"speed_camera", "#FF5722", "speed_camera"},
		{"hospital", "#2196F3", "hospital"},
		{"unknown", "#9C27B0", "pin"},
	}

	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			assert.Equal(t, tt.color, DefaultColor(tt.category).Hex())
			assert.Equal(t, tt.icon, DefaultIcon(tt.category))
		})
	}
}

func TestMarker_DisplayFallbacks(t *testing.T) {
	icon := "star"
	color := mustColor("#000000")
	m := Marker{ID: "a", Category: "cafe"}

	cfg := DefaultConfiguration()
	assert.Equal(t, "cafe", m.DisplayIcon(cfg))
	assert.Equal(t, "#F44336", m.DisplayColor(cfg).Hex())

	cfg.DefaultIconID = &icon
	cfg.DefaultColor = &color
	assert.Equal(t, "star", m.DisplayIcon(cfg))
	assert.Equal(t, "#000000", m.DisplayColor(cfg).Hex())

	own := "flag"
	m.IconID = &own
	assert.Equal(t, "flag", m.DisplayIcon(cfg))
}
