package sqlitestorage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/navbridge/extension/internal/database"
	"github.com/navbridge/extension/internal/model"
	gormstorage "github.com/navbridge/extension/internal/storage/gorm"
	"github.com/navbridge/extension/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackend_DumpOnClose(t *testing.T) {
	dir := t.TempDir()
	dump := filepath.Join(dir, "journal_dump.db")

	b, err := New(Config{
		Path:     filepath.Join(dir, "journal.db"),
		DumpPath: dump,
		Journal:  gormstorage.Dependencies{FlushInterval: time.Hour},
	}, nil, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, b.Init())

	require.NoError(t, b.RecordNavigationEvent(&core.NavigationEvent{Type: "ROUTE_BUILT", Time: time.Now()}))
	require.NoError(t, b.Close())

	_, err = os.Stat(dump)
	require.NoError(t, err)

	dumped, err := database.OpenSqlite(dump)
	require.NoError(t, err)
	var count int64
	require.NoError(t, dumped.Table("navigation_events").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestBackend_DumpLoop(t *testing.T) {
	dir := t.TempDir()
	dump := filepath.Join(dir, "periodic.db")

	b, err := New(Config{
		Path:         filepath.Join(dir, "journal.db"),
		DumpInterval: 20 * time.Millisecond,
		DumpPath:     dump,
	}, nil, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, b.Init())
	t.Cleanup(func() { b.Close() })

	assert.Eventually(t, func() bool {
		_, err := os.Stat(dump)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBackend_QueryThroughEmbeddedBackend(t *testing.T) {
	b, err := New(Config{Path: filepath.Join(t.TempDir(), "journal.db")}, nil, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, b.Init())
	defer b.Close()

	b.RecordMarkerTap(&core.MarkerTap{MarkerID: "a", Time: time.Now()})
	entries, err := b.Query(core.JournalQuery{Category: core.CategoryMarkerTap})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestBackend_QueryReadsBackFileJournal(t *testing.T) {
	b, err := New(Config{
		Path:    filepath.Join(t.TempDir(), "journal.db"),
		Journal: gormstorage.Dependencies{FlushInterval: time.Hour},
	}, nil, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, b.Init())
	t.Cleanup(func() { b.Close() })

	base := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	require.NoError(t, b.RecordMarkerTap(&core.MarkerTap{
		Time:      base,
		MarkerID:  "fuel-1",
		Title:     "Fuel",
		Category:  "petrol_station",
		Latitude:  36.1,
		Longitude: -115.1,
		Payload:   json.RawMessage(`{"id":"fuel-1"}`),
	}))
	require.NoError(t, b.RecordNavigationEvent(&core.NavigationEvent{
		Time:      base.Add(time.Second),
		SessionID: "s-1",
		Type:      "PROGRESS_CHANGE",
		Data:      json.RawMessage(`{"distance":1200}`),
	}))
	require.NoError(t, b.RecordSceneSnapshot(&core.SceneSnapshot{
		Time:        base.Add(2 * time.Second),
		Annotations: 3,
		MinZoom:     10,
		MaxZoom:     20,
		Overlay:     json.RawMessage(`{"type":"FeatureCollection","features":[]}`),
	}))
	b.Flush()
	assert.Zero(t, b.Pending())

	entries, err := b.Query(core.JournalQuery{})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, core.CategoryScene, entries[0].Category)
	assert.Equal(t, "SCENE_RENDERED", entries[0].Type)
	assert.True(t, entries[0].Time.Equal(base.Add(2*time.Second)), "got %v", entries[0].Time)
	assert.JSONEq(t, `{"type":"FeatureCollection","features":[]}`, string(entries[0].Data))

	assert.Equal(t, core.CategoryNavigation, entries[1].Category)
	assert.Equal(t, "PROGRESS_CHANGE", entries[1].Type)
	assert.True(t, entries[1].Time.Equal(base.Add(time.Second)), "got %v", entries[1].Time)
	assert.JSONEq(t, `{"distance":1200}`, string(entries[1].Data))

	assert.Equal(t, core.CategoryMarkerTap, entries[2].Category)
	assert.Equal(t, "MARKER_TAP", entries[2].Type)
	assert.True(t, entries[2].Time.Equal(base), "got %v", entries[2].Time)
	assert.JSONEq(t, `{"id":"fuel-1"}`, string(entries[2].Data))

	var row model.MarkerTap
	require.NoError(t, b.DB().First(&row).Error)
	assert.Equal(t, "petrol_station", row.Category)
	assert.True(t, row.Time.Equal(base))
}

func TestBackend_TimeColumnsUseDialectType(t *testing.T) {
	b, err := New(Config{Path: filepath.Join(t.TempDir(), "journal.db")}, nil, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, b.Init())
	t.Cleanup(func() { b.Close() })

	for _, table := range []any{&model.MarkerTap{}, &model.NavigationEvent{}, &model.SceneSnapshot{}} {
		columns, err := b.DB().Migrator().ColumnTypes(table)
		require.NoError(t, err)
		found := false
		for _, c := range columns {
			if c.Name() == "time" {
				found = true
				assert.Equal(t, "datetime", strings.ToLower(c.DatabaseTypeName()))
			}
		}
		assert.True(t, found, "%T has no time column", table)
	}
}
