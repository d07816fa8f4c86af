package memory

import (
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/navbridge/extension/internal/config"
	"github.com/navbridge/extension/pkg/core"
)

func TestRing(t *testing.T) {
	r := newRing[int](3)
	for i := 1; i <= 2; i++ {
		r.push(i)
	}
	if got := r.all(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("unexpected items before wrap: %v", got)
	}

	for i := 3; i <= 5; i++ {
		r.push(i)
	}
	got := r.all()
	want := []int{3, 4, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if r.len() != 3 {
		t.Errorf("expected len 3, got %d", r.len())
	}
}

func TestRecordAssignsIDs(t *testing.T) {
	b := New(config.MemoryConfig{Capacity: 10})
	if err := b.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	tap := &core.MarkerTap{MarkerID: "a", Time: time.Now()}
	ev := &core.NavigationEvent{Type: "ROUTE_BUILDING", Time: time.Now()}
	scene := &core.SceneSnapshot{Annotations: 2, Time: time.Now()}

	if err := b.RecordMarkerTap(tap); err != nil {
		t.Fatal(err)
	}
	if err := b.RecordNavigationEvent(ev); err != nil {
		t.Fatal(err)
	}
	if err := b.RecordSceneSnapshot(scene); err != nil {
		t.Fatal(err)
	}

	if tap.ID != 1 || ev.ID != 2 || scene.ID != 3 {
		t.Errorf("expected sequential IDs, got %d %d %d", tap.ID, ev.ID, scene.ID)
	}
}

func TestCapacityBoundsEachCategory(t *testing.T) {
	b := New(config.MemoryConfig{Capacity: 2})
	for i := 0; i < 5; i++ {
		b.RecordNavigationEvent(&core.NavigationEvent{Type: "PROGRESS_CHANGE"})
	}
	b.RecordMarkerTap(&core.MarkerTap{MarkerID: "a"})

	counts := b.Counts()
	if counts[core.CategoryNavigation] != 2 {
		t.Errorf("expected 2 navigation events, got %d", counts[core.CategoryNavigation])
	}
	if counts[core.CategoryMarkerTap] != 1 {
		t.Errorf("expected 1 tap, got %d", counts[core.CategoryMarkerTap])
	}
}

func TestQuery(t *testing.T) {
	b := New(config.MemoryConfig{Capacity: 10})
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	b.RecordNavigationEvent(&core.NavigationEvent{Type: "ROUTE_BUILDING", Time: base})
	b.RecordNavigationEvent(&core.NavigationEvent{Type: "ROUTE_BUILT", Time: base.Add(time.Second)})
	b.RecordMarkerTap(&core.MarkerTap{MarkerID: "a", Time: base.Add(2 * time.Second), Payload: json.RawMessage(`{"id":"a"}`)})

	all, err := b.Query(core.JournalQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
	if all[0].Category != core.CategoryMarkerTap {
		t.Errorf("expected newest entry first, got %s", all[0].Category)
	}

	nav, _ := b.Query(core.JournalQuery{Category: core.CategoryNavigation, Limit: 1})
	if len(nav) != 1 || nav[0].Type != "ROUTE_BUILT" {
		t.Errorf("expected latest navigation event, got %+v", nav)
	}

	none, _ := b.Query(core.JournalQuery{Category: core.CategoryScene})
	if none == nil || len(none) != 0 {
		t.Errorf("expected empty non-nil result, got %v", none)
	}
}

func TestCloseExportsJournal(t *testing.T) {
	tests := []struct {
		name     string
		compress bool
		suffix   string
	}{
		{"plain", false, ".json"},
		{"gzip", true, ".json.gz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			b := New(config.MemoryConfig{Capacity: 10, OutputDir: dir, CompressOutput: tt.compress})
			b.Init()
			b.RecordMarkerTap(&core.MarkerTap{MarkerID: "a", Title: "Falls"})

			if err := b.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}

			files, _ := filepath.Glob(filepath.Join(dir, "navbridge_journal_*"))
			if len(files) != 1 {
				t.Fatalf("expected one export file, got %v", files)
			}
			if !strings.HasSuffix(files[0], tt.suffix) {
				t.Errorf("expected suffix %s, got %s", tt.suffix, files[0])
			}

			f, err := os.Open(files[0])
			if err != nil {
				t.Fatal(err)
			}
			defer f.Close()

			var export JournalExport
			if tt.compress {
				gz, err := gzip.NewReader(f)
				if err != nil {
					t.Fatal(err)
				}
				err = json.NewDecoder(gz).Decode(&export)
				if err != nil {
					t.Fatal(err)
				}
			} else if err := json.NewDecoder(f).Decode(&export); err != nil {
				t.Fatal(err)
			}

			if len(export.MarkerTaps) != 1 || export.MarkerTaps[0].Title != "Falls" {
				t.Errorf("unexpected export: %+v", export.MarkerTaps)
			}
		})
	}
}

func TestCloseWithoutOutputDir(t *testing.T) {
	b := New(config.MemoryConfig{})
	if err := b.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestConcurrentRecording(t *testing.T) {
	b := New(config.MemoryConfig{Capacity: 1000})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.RecordSceneSnapshot(&core.SceneSnapshot{})
		}()
	}
	wg.Wait()

	if got := b.Counts()[core.CategoryScene]; got != 50 {
		t.Errorf("expected 50 scenes, got %d", got)
	}
}
