// Package memory keeps the event journal in bounded in-process rings and can
// export it as JSON when closed.
package memory

import (
	"sync"
	"time"

	"github.com/navbridge/extension/internal/config"
	"github.com/navbridge/extension/pkg/core"
)

// ring is a fixed-capacity buffer that overwrites its oldest item.
type ring[T any] struct {
	items []T
	next  int
	full  bool
}

func newRing[T any](capacity int) *ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &ring[T]{items: make([]T, capacity)}
}

func (r *ring[T]) push(v T) {
	r.items[r.next] = v
	r.next = (r.next + 1) % len(r.items)
	if r.next == 0 {
		r.full = true
	}
}

// all returns the items oldest first.
func (r *ring[T]) all() []T {
	if !r.full {
		return append([]T(nil), r.items[:r.next]...)
	}
	out := make([]T, 0, len(r.items))
	out = append(out, r.items[r.next:]...)
	return append(out, r.items[:r.next]...)
}

func (r *ring[T]) len() int {
	if r.full {
		return len(r.items)
	}
	return r.next
}

// Backend stores the journal in memory
type Backend struct {
	cfg     config.MemoryConfig
	started time.Time

	taps       *ring[core.MarkerTap]
	navigation *ring[core.NavigationEvent]
	scenes     *ring[core.SceneSnapshot]

	idCounter uint
	mu        sync.RWMutex
}

// New creates a new memory backend. Each category keeps at most
// cfg.Capacity records.
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:        cfg,
		taps:       newRing[core.MarkerTap](cfg.Capacity),
		navigation: newRing[core.NavigationEvent](cfg.Capacity),
		scenes:     newRing[core.SceneSnapshot](cfg.Capacity),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	b.mu.Lock()
	b.started = time.Now()
	b.mu.Unlock()
	return nil
}

// Close exports the journal when an output directory is configured.
func (b *Backend) Close() error {
	if b.cfg.OutputDir == "" {
		return nil
	}
	_, err := b.exportJSON()
	return err
}

func (b *Backend) nextID() uint {
	b.idCounter++
	return b.idCounter
}

// RecordMarkerTap stores a tap and assigns its ID.
func (b *Backend) RecordMarkerTap(t *core.MarkerTap) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	t.ID = b.nextID()
	b.taps.push(*t)
	return nil
}

// RecordNavigationEvent stores a navigation event and assigns its ID.
func (b *Backend) RecordNavigationEvent(e *core.NavigationEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e.ID = b.nextID()
	b.navigation.push(*e)
	return nil
}

// RecordSceneSnapshot stores a scene and assigns its ID.
func (b *Backend) RecordSceneSnapshot(s *core.SceneSnapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	s.ID = b.nextID()
	b.scenes.push(*s)
	return nil
}

// Query returns the newest matching entries.
func (b *Backend) Query(q core.JournalQuery) ([]core.JournalEntry, error) {
	q = q.Normalized()

	b.mu.RLock()
	defer b.mu.RUnlock()

	var entries []core.JournalEntry
	if q.Matches(core.CategoryMarkerTap) {
		for _, t := range b.taps.all() {
			entries = append(entries, t.Entry())
		}
	}
	if q.Matches(core.CategoryNavigation) {
		for _, e := range b.navigation.all() {
			entries = append(entries, e.Entry())
		}
	}
	if q.Matches(core.CategoryScene) {
		for _, s := range b.scenes.all() {
			entries = append(entries, s.Entry())
		}
	}
	if entries == nil {
		return []core.JournalEntry{}, nil
	}
	return core.Latest(entries, q.Limit), nil
}

// Counts returns the number of retained records per category.
func (b *Backend) Counts() map[string]int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return map[string]int{
		core.CategoryMarkerTap:  b.taps.len(),
		core.CategoryNavigation: b.navigation.len(),
		core.CategoryScene:      b.scenes.len(),
	}
}
