package bridge

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navbridge/extension/internal/dispatcher"
	"github.com/navbridge/extension/internal/mapview"
	"github.com/navbridge/extension/internal/marker"
	"github.com/navbridge/extension/internal/navigation"
	"github.com/navbridge/extension/internal/routing"
)

type nopPublisher struct{}

func (nopPublisher) Publish(string, any) error { return nil }

func (nopPublisher) PublishSession(string, string, any) error { return nil }

type panickingStore struct{ MarkerStore }

func (panickingStore) AddMarkers([]marker.Marker, *marker.Configuration) bool {
	panic("store corrupted")
}

func newTestService(t *testing.T) (*Service, *marker.Store) {
	t.Helper()
	adapter := mapview.NewAdapter(mapview.Dependencies{
		Surfaces: []mapview.Surface{mapview.NewAnnotationLayer()},
		MapTaps:  nopPublisher{},
	})
	store := marker.NewStore(marker.Dependencies{Renderer: adapter, Taps: nopPublisher{}})
	adapter.Bind(store)
	nav := navigation.NewService(navigation.Dependencies{
		Provider: routing.DirectProvider{},
		Events:   nopPublisher{},
		Markers:  store,
	})
	t.Cleanup(func() { nav.Finish() })

	svc, err := NewService(Dependencies{Markers: store, Map: adapter, Navigation: nav})
	require.NoError(t, err)
	return svc, store
}

func call(t *testing.T, svc *Service, method, arguments string) Outcome {
	t.Helper()
	var raw json.RawMessage
	if arguments != "" {
		raw = json.RawMessage(arguments)
	}
	return svc.Call(context.Background(), method, raw)
}

func encode(t *testing.T, o Outcome) string {
	t.Helper()
	b, err := json.Marshal(o)
	require.NoError(t, err)
	return string(b)
}

const twoMarkers = `{"markers":[
	{"id":"a","latitude":36.1,"longitude":-115.1,"title":"A","category":"scenic"},
	{"id":"b","latitude":37.1,"longitude":-116.1,"title":"B","category":"cafe","priority":2}
]}`

func TestCall_AddAndGetMarkers(t *testing.T) {
	svc, store := newTestService(t)

	out := call(t, svc, "addStaticMarkers", twoMarkers)
	assert.JSONEq(t, `{"result":true}`, encode(t, out))
	assert.Len(t, store.Markers(), 2)

	out = call(t, svc, "getStaticMarkers", "")
	require.True(t, out.OK())
	markers := out.Result.([]marker.Marker)
	require.Len(t, markers, 2)
	assert.Equal(t, "a", markers[0].ID)
}

func TestCall_AddWithConfiguration(t *testing.T) {
	svc, store := newTestService(t)

	out := call(t, svc, "addStaticMarkers", `{"markers":[],"configuration":{"enableClustering":false,"maxMarkersToShow":3}}`)
	require.True(t, out.OK())
	assert.False(t, store.Configuration().EnableClustering)
	assert.Equal(t, 3, *store.Configuration().MaxMarkersToShow)
}

func TestCall_InvalidArguments(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		args    string
		message string
		details string
	}{
		{"markers missing", "addStaticMarkers", `{}`, "Markers list is required", ""},
		{"markers null", "addStaticMarkers", `{"markers":null}`, "Markers list is required", ""},
		{"markers not a list", "addStaticMarkers", `{"markers":{"id":"a"}}`, "Markers list is required", "markers must be an array"},
		{"marker field missing", "addStaticMarkers", `{"markers":[{"id":"a","latitude":1,"longitude":1,"title":"T","category":"c"},{"id":"b","longitude":1,"title":"T","category":"c"}]}`, "Invalid marker", "markers[1].latitude is required"},
		{"bad configuration", "addStaticMarkers", `{"markers":[],"configuration":{"maxMarkersToShow":-1}}`, "Invalid configuration", "configuration.maxMarkersToShow"},
		{"update markers missing", "updateStaticMarkers", `{}`, "Markers list is required", ""},
		{"ids missing", "removeStaticMarkers", `{}`, "Marker IDs list is required", ""},
		{"ids wrong type", "removeStaticMarkers", `{"markerIds":[1,2]}`, "Marker IDs list is required", "markerIds must be an array of strings"},
		{"configuration missing", "updateMarkerConfiguration", `{}`, "Configuration is required", ""},
		{"distance missing", "getMarkersWithinDistance", `{"latitude":1,"longitude":1}`, invalidArgs, "maxDistanceKm is required"},
		{"distance wrong type", "getMarkersWithinDistance", `{"latitude":"1","longitude":1,"maxDistanceKm":1}`, invalidArgs, "latitude must be a number"},
		{"arguments not an object", "getStaticMarkers", `[1]`, "Arguments must be an object", ""},
		{"too few waypoints", "startNavigation", `{"wayPoints":{"0":{"Latitude":1,"Longitude":1}}}`, "At least 2 waypoints are required", ""},
		{"waypoints missing", "addWayPoints", `{}`, "Waypoints are required", ""},
		{"bad option", "startNavigation", `{"simulateRoute":"yes"}`, invalidArgs, "simulateRoute must be a boolean"},
		{"unsupported mode", "startNavigation", `{"mode":"sailing","wayPoints":[{"Latitude":0,"Longitude":0},{"Latitude":0,"Longitude":1}]}`, invalidArgs, "unsupported navigation mode"},
		{"unknown annotation", "onAnnotationTap", `{"annotationId":"nope"}`, "Unknown annotation", "nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t)
			out := call(t, svc, tt.method, tt.args)

			require.NotNil(t, out.Err)
			assert.Equal(t, CodeInvalidArguments, out.Err.Code)
			assert.Equal(t, tt.message, out.Err.Message)
			if tt.details != "" {
				require.NotNil(t, out.Err.Details)
				assert.Contains(t, *out.Err.Details, tt.details)
			}
		})
	}
}

func TestCall_UnknownMethodIsNotImplemented(t *testing.T) {
	svc, _ := newTestService(t)

	out := call(t, svc, "doesNotExist", `{}`)
	assert.True(t, out.NotImplemented)
	assert.False(t, out.OK())
	assert.JSONEq(t, `{"notImplemented":true}`, encode(t, out))
}

func TestCall_OfflineRouting(t *testing.T) {
	svc, _ := newTestService(t)

	out := call(t, svc, "enableOfflineRouting", `{"region":"x"}`)
	assert.JSONEq(t, `{"error":{"code":"NOT_IMPLEMENTED","message":"Offline routing is not supported","details":"This feature will be implemented in a future version"}}`, encode(t, out))
}

func TestCall_PanicBecomesOperationError(t *testing.T) {
	svc, err := NewService(Dependencies{Markers: panickingStore{}})
	require.NoError(t, err)

	out := svc.Call(context.Background(), "addStaticMarkers", json.RawMessage(`{"markers":[]}`))
	require.NotNil(t, out.Err)
	assert.Equal(t, CodeAddMarkers, out.Err.Code)
	assert.True(t, strings.HasPrefix(out.Err.Message, "Failed to add static markers"))
	assert.Nil(t, out.Err.Details)
}

func TestCall_RemoveClearAndDistance(t *testing.T) {
	svc, store := newTestService(t)
	require.True(t, call(t, svc, "addStaticMarkers", twoMarkers).OK())

	out := call(t, svc, "getMarkersWithinDistance", `{"latitude":36.1,"longitude":-115.1,"maxDistanceKm":10}`)
	require.True(t, out.OK())
	assert.Len(t, out.Result.([]marker.Marker), 1)

	assert.JSONEq(t, `{"result":true}`, encode(t, call(t, svc, "removeStaticMarkers", `{"markerIds":["a","zzz"]}`)))
	assert.Len(t, store.Markers(), 1)

	assert.JSONEq(t, `{"result":true}`, encode(t, call(t, svc, "clearAllStaticMarkers", "")))
	assert.Empty(t, store.Markers())
	assert.JSONEq(t, `{"result":[]}`, encode(t, call(t, svc, "getStaticMarkers", `{}`)))
}

func TestCall_UpdateConfiguration(t *testing.T) {
	svc, store := newTestService(t)

	out := call(t, svc, "updateMarkerConfiguration", `{"configuration":{"showDuringNavigation":false,"extra":1}}`)
	require.True(t, out.OK())
	assert.False(t, store.Configuration().ShowDuringNavigation)
}

func TestCall_MapTap(t *testing.T) {
	svc, _ := newTestService(t)
	require.True(t, call(t, svc, "addStaticMarkers", twoMarkers).OK())

	assert.JSONEq(t, `{"result":true}`, encode(t, call(t, svc, "onMapTap", `{"latitude":36.1,"longitude":-115.1}`)))
	assert.JSONEq(t, `{"result":false}`, encode(t, call(t, svc, "onMapTap", `{"latitude":0,"longitude":0}`)))
}

func TestCall_Navigation(t *testing.T) {
	svc, store := newTestService(t)

	assert.JSONEq(t, `{"result":null}`, encode(t, call(t, svc, "getDistanceRemaining", "")))

	out := call(t, svc, "startNavigation", `{"mode":"walking","wayPoints":{"1":{"Name":"B","Latitude":0,"Longitude":0.01},"0":{"Name":"A","Latitude":0,"Longitude":0}}}`)
	require.True(t, out.OK(), "%+v", out.Err)

	assert.Eventually(t, func() bool { return store.Mode() == marker.ModeNavigation }, time.Second, 5*time.Millisecond)

	out = call(t, svc, "addWayPoints", `{"wayPoints":[{"Latitude":0.01,"Longitude":0.01}]}`)
	require.True(t, out.OK())
	assert.Equal(t, navigation.WayPointsResult{Success: true, WaypointsAdded: 1}, out.Result)

	assert.JSONEq(t, `{"result":true}`, encode(t, call(t, svc, "finishNavigation", "")))
	assert.Equal(t, marker.ModeIdle, store.Mode())
	assert.JSONEq(t, `{"result":false}`, encode(t, call(t, svc, "finishNavigation", "")))
}

func TestCall_PlatformVersion(t *testing.T) {
	svc, _ := newTestService(t)
	out := call(t, svc, "getPlatformVersion", "")
	assert.Equal(t, navigation.PlatformVersion(), out.Result)
}

func TestCall_MissingCollaboratorsNotImplemented(t *testing.T) {
	svc, err := NewService(Dependencies{})
	require.NoError(t, err)

	for _, m := range []string{"addStaticMarkers", "startNavigation", "onMapTap"} {
		assert.True(t, svc.Call(context.Background(), m, nil).NotImplemented, m)
	}
	assert.ElementsMatch(t, []string{"getPlatformVersion", "enableOfflineRouting"}, svc.Methods())
}

func TestDecodeWayPoints_KeyedObjectOrder(t *testing.T) {
	a, perr := parseArgs(json.RawMessage(`{"wayPoints":{
		"10":{"Name":"k","Latitude":10,"Longitude":0},
		"2":{"Name":"c","Latitude":2,"Longitude":0},
		"0":{"Name":"a","Latitude":0,"Longitude":0,"IsSilent":true},
		"1":{"Name":"b","Latitude":1,"Longitude":0}
	}}`))
	require.Nil(t, perr)

	wps, err := decodeWayPoints(a, 2)
	require.Nil(t, err)

	names := make([]string, 0, len(wps))
	for _, wp := range wps {
		names = append(names, wp.Name)
	}
	assert.Equal(t, []string{"a", "b", "c", "k"}, names)
	assert.True(t, wps[0].IsSilent)

	a, _ = parseArgs(json.RawMessage(`{"wayPoints":{"x":{"Latitude":0,"Longitude":0}}}`))
	_, err = decodeWayPoints(a, 1)
	require.NotNil(t, err)
	assert.Contains(t, *err.Details, `"x" is not an index`)

	a, _ = parseArgs(json.RawMessage(`{"wayPoints":[{"Latitude":0}]}`))
	_, err = decodeWayPoints(a, 1)
	require.NotNil(t, err)
	assert.Equal(t, "wayPoints[0].Longitude is required", *err.Details)
}

func TestDecodeOptions(t *testing.T) {
	a, _ := parseArgs(nil)
	opts, err := decodeOptions(a)
	require.Nil(t, err)
	assert.Equal(t, navigation.DefaultOptions(), opts)

	a, _ = parseArgs(json.RawMessage(`{"mode":"cycling","simulateRoute":true,"units":"imperial","language":"fr","mapStyleUrlDay":"mapbox://day"}`))
	opts, err = decodeOptions(a)
	require.Nil(t, err)
	assert.Equal(t, "cycling", opts.Mode)
	assert.True(t, opts.SimulateRoute)
	assert.Equal(t, "imperial", opts.Units)
	assert.Equal(t, "fr", opts.Language)
	assert.Equal(t, "mapbox://day", opts.MapStyleURLDay)
	assert.True(t, opts.VoiceInstructionsEnabled)

	a, _ = parseArgs(json.RawMessage(`{"units":"furlongs"}`))
	opts, _ = decodeOptions(a)
	assert.Equal(t, "metric", opts.Units)
}

func TestOutcome_MarshalJSON(t *testing.T) {
	assert.JSONEq(t, `{"result":[1,2]}`, encode(t, success([]int{1, 2})))
	assert.JSONEq(t, `{"error":{"code":"GET_MARKERS_ERROR","message":"boom","details":null}}`, encode(t, failure(newError(CodeGetMarkers, "boom"))))
}

func TestError_CallerFault(t *testing.T) {
	var ce dispatcher.CallerError = invalid("markers must be an array")
	assert.True(t, ce.CallerFault())
	assert.False(t, newError(CodeAddMarkers, "store failed").CallerFault())
	assert.False(t, newError(CodeInternal, "panic").CallerFault())
}
