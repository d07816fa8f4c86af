// Package storage defines the event journal backends.
package storage

import "github.com/navbridge/extension/pkg/core"

// Backend is the interface all journal implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Recording
	RecordMarkerTap(t *core.MarkerTap) error
	RecordNavigationEvent(e *core.NavigationEvent) error
	RecordSceneSnapshot(s *core.SceneSnapshot) error
}

// Queryable is an optional interface for backends that can read the journal
// back.
type Queryable interface {
	Query(q core.JournalQuery) ([]core.JournalEntry, error)
}
