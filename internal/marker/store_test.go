package marker

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRenderer struct {
	mu     sync.Mutex
	passes [][]Marker
	err    error
	panics bool
}

func (r *recordingRenderer) Render(visible []Marker, _ Configuration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.panics {
		panic("surface gone")
	}
	r.passes = append(r.passes, visible)
	return r.err
}

func (r *recordingRenderer) last() []Marker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.passes) == 0 {
		return nil
	}
	return r.passes[len(r.passes)-1]
}

type published struct {
	eventType string
	data      any
}

type recordingPublisher struct {
	events []published
}

func (p *recordingPublisher) Publish(eventType string, data any) error {
	p.events = append(p.events, published{eventType, data})
	return nil
}

var _ Renderer = (*recordingRenderer)(nil)
var _ EventPublisher = (*recordingPublisher)(nil)

func newTestStore() (*Store, *recordingRenderer, *recordingPublisher) {
	r := &recordingRenderer{}
	p := &recordingPublisher{}
	return NewStore(Dependencies{Renderer: r, Taps: p}), r, p
}

func TestStore_DuplicateLastWriteWins(t *testing.T) {
	s, _, _ := newTestStore()

	first := mk("a", 0, 0)
	second := mk("a", 5, 5)
	second.Title = "second"

	require.True(t, s.AddMarkers([]Marker{first, mk("b", 1, 1), second}, nil))

	got := s.Markers()
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "second", got[0].Title)
	assert.Equal(t, "b", got[1].ID)
}

func TestStore_AddReplacesPriorSet(t *testing.T) {
	s, _, _ := newTestStore()
	require.True(t, s.AddMarkers([]Marker{mk("a", 0, 0)}, nil))
	require.True(t, s.AddMarkers([]Marker{mk("b", 1, 1)}, nil))

	assert.Equal(t, []string{"b"}, ids(s.Markers()))
}

func TestStore_AddKeepsConfigurationWhenAbsent(t *testing.T) {
	s, _, _ := newTestStore()
	cfg := DefaultConfiguration()
	cfg.EnableClustering = false

	require.True(t, s.AddMarkers(nil, &cfg))
	require.True(t, s.AddMarkers([]Marker{mk("a", 0, 0)}, nil))

	assert.False(t, s.Configuration().EnableClustering)
}

func TestStore_UpdateUpserts(t *testing.T) {
	s, r, _ := newTestStore()
	require.True(t, s.AddMarkers([]Marker{mk("a", 0, 0), mk("b", 1, 1)}, nil))

	moved := mk("a", 3, 3)
	require.True(t, s.UpdateMarkers([]Marker{moved, mk("c", 2, 2)}))

	assert.Equal(t, []string{"a", "b", "c"}, ids(s.Markers()))
	assert.Equal(t, 3.0, s.Markers()[0].Latitude)
	assert.Len(t, r.last(), 3)
}

func TestStore_RemoveUnknownSucceeds(t *testing.T) {
	s, _, _ := newTestStore()
	require.True(t, s.AddMarkers([]Marker{mk("a", 0, 0)}, nil))

	assert.True(t, s.RemoveMarkers([]string{"nope"}))
	assert.Len(t, s.Markers(), 1)
}

func TestStore_ClearThenGetIsEmpty(t *testing.T) {
	s, r, _ := newTestStore()
	require.True(t, s.AddMarkers([]Marker{mk("a", 0, 0), mk("b", 1, 1)}, nil))

	require.True(t, s.ClearAll())
	assert.Empty(t, s.Markers())
	assert.Empty(t, r.last())
	assert.NotNil(t, r.last())
}

func TestStore_HiddenMarkersNeverRendered(t *testing.T) {
	s, r, _ := newTestStore()
	hidden := mk("h", 1, 1)
	hidden.IsVisible = false

	require.True(t, s.AddMarkers([]Marker{mk("a", 0, 0), hidden}, nil))
	assert.Equal(t, []string{"a"}, ids(r.last()))
	assert.Len(t, s.Markers(), 2)
}

func TestStore_ScenicScenario(t *testing.T) {
	s, _, _ := newTestStore()

	var a Marker
	require.NoError(t, json.Unmarshal([]byte(`{"id":"a","latitude":36.1,"longitude":-115.1,"title":"T","category":"scenic"}`), &a))
	require.True(t, s.AddMarkers([]Marker{a}, nil))

	got := s.Markers()
	require.Len(t, got, 1)
	assert.True(t, got[0].IsVisible)
	assert.Nil(t, got[0].Priority)

	require.True(t, s.RemoveMarkers([]string{"a"}))
	assert.Empty(t, s.Markers())
}

func TestStore_RenderFailureReportsFalse(t *testing.T) {
	s, r, _ := newTestStore()
	r.err = errors.New("surface detached")

	assert.False(t, s.AddMarkers([]Marker{mk("a", 0, 0)}, nil))
	// The mutation is kept.
	assert.Len(t, s.Markers(), 1)
}

func TestStore_RenderPanicRecovered(t *testing.T) {
	s, r, _ := newTestStore()
	r.panics = true

	assert.False(t, s.ClearAll())

	r.panics = false
	assert.True(t, s.AddMarkers([]Marker{mk("a", 0, 0)}, nil))
}

func TestStore_ModeAndRoute(t *testing.T) {
	s, r, _ := newTestStore()
	cfg := DefaultConfiguration()
	cfg.ShowDuringNavigation = false
	cfg.MaxDistanceFromRoute = floatPtr(100)
	require.True(t, s.AddMarkers([]Marker{mk("a", 1, 0), mk("b", 2, 0)}, &cfg))

	require.True(t, s.SetMode(ModeNavigation))
	assert.Equal(t, ModeNavigation, s.Mode())
	assert.Empty(t, r.last())

	require.True(t, s.SetMode(ModeFreeDrive))
	require.True(t, s.SetRoute(fixedDistance{1: 50, 2: 500}))
	assert.Equal(t, []string{"a"}, ids(s.Visible()))

	require.True(t, s.SetRoute(nil))
	assert.Len(t, s.Visible(), 2)
}

func TestStore_MarkerNear(t *testing.T) {
	s, _, _ := newTestStore()
	hidden := mk("h", 10, 10)
	hidden.IsVisible = false
	require.True(t, s.AddMarkers([]Marker{mk("a", 36.1, -115.1), hidden}, nil))

	m, ok := s.MarkerNear(36.1005, -115.1005)
	require.True(t, ok)
	assert.Equal(t, "a", m.ID)

	_, ok = s.MarkerNear(36.102, -115.1)
	assert.False(t, ok)

	_, ok = s.MarkerNear(10, 10)
	assert.False(t, ok, "hidden markers are not tappable")
}

func TestStore_MarkerNearExcludesRadiusEdge(t *testing.T) {
	s, _, _ := newTestStore()
	require.True(t, s.AddMarkers([]Marker{mk("origin", 0, 0)}, nil))

	_, ok := s.MarkerNear(TapRadius, 0)
	assert.False(t, ok)
	_, ok = s.MarkerNear(0, TapRadius)
	assert.False(t, ok)

	m, ok := s.MarkerNear(TapRadius/2, -TapRadius/2)
	require.True(t, ok)
	assert.Equal(t, "origin", m.ID)
}

func TestStore_SnapshotsDoNotShareState(t *testing.T) {
	s, _, _ := newTestStore()
	in := mk("a", 36.1, -115.1)
	desc := "desc"
	in.Description = &desc
	in.Metadata = map[string]any{"tags": []any{"fuel"}, "hours": map[string]any{"open": "06:00"}}
	require.True(t, s.AddMarkers([]Marker{in}, nil))

	// The caller's input is not retained.
	in.Metadata["tags"].([]any)[0] = "changed"
	desc = "changed"

	got := s.Markers()[0]
	assert.Equal(t, "fuel", got.Metadata["tags"].([]any)[0])
	assert.Equal(t, "desc", *got.Description)

	got.Metadata["hours"].(map[string]any)["open"] = "never"
	got.Metadata["extra"] = true
	*got.Description = "mutated"

	again := s.Markers()[0]
	assert.Equal(t, "06:00", again.Metadata["hours"].(map[string]any)["open"])
	assert.NotContains(t, again.Metadata, "extra")
	assert.Equal(t, "desc", *again.Description)

	visible := s.Visible()[0]
	visible.Metadata["extra"] = true
	assert.NotContains(t, s.Visible()[0].Metadata, "extra")
}

func TestMarker_CloneKeepsNilMetadata(t *testing.T) {
	assert.Nil(t, mk("a", 1, 2).Clone().Metadata)
	assert.Equal(t, map[string]any{}, Marker{Metadata: map[string]any{}}.Clone().Metadata)
}

func TestStore_WithinDistance(t *testing.T) {
	s, _, _ := newTestStore()
	// 0.01 degrees of latitude is about 1.11 km.
	require.True(t, s.AddMarkers([]Marker{mk("a", 0, 0), mk("b", 0.01, 0), mk("c", 1, 0)}, nil))

	assert.Equal(t, []string{"a"}, ids(s.WithinDistance(0, 0, 1)))
	assert.Equal(t, []string{"a", "b"}, ids(s.WithinDistance(0, 0, 2)))
	assert.Len(t, s.WithinDistance(0, 0, 200), 3)
}

func TestStore_ShouldShowInMode(t *testing.T) {
	s, _, _ := newTestStore()
	cfg := DefaultConfiguration()
	cfg.ShowDuringNavigation = false
	cfg.ShowOnEmbeddedMap = false
	require.True(t, s.UpdateConfiguration(cfg))

	assert.False(t, s.ShouldShowInMode(true, true, false))
	assert.True(t, s.ShouldShowInMode(false, true, true))
	assert.False(t, s.ShouldShowInMode(false, false, true))
	assert.True(t, s.ShouldShowInMode(false, false, false))
}

func TestStore_OnMarkerTapPublishes(t *testing.T) {
	s, _, p := newTestStore()
	a := mk("a", 0, 0)

	s.OnMarkerTap(a)
	require.Len(t, p.events, 1)
	assert.Equal(t, EventTypeMarkerTap, p.events[0].eventType)
	assert.Equal(t, a, p.events[0].data)

	// No sink is a no-op.
	NewStore(Dependencies{}).OnMarkerTap(a)
}

func TestStore_ConcurrentMutations(t *testing.T) {
	s, _, _ := newTestStore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.UpdateMarkers([]Marker{mk(string(rune('a'+i)), float64(i), float64(i))})
		}(i)
	}
	wg.Wait()

	assert.Len(t, s.Markers(), 20)
}
