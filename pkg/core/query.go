package core

import (
	"encoding/json"
	"sort"
	"time"
)

// DefaultQueryLimit caps a journal query without an explicit limit.
const DefaultQueryLimit = 100

// JournalQuery selects journal entries. An empty Category matches all.
type JournalQuery struct {
	Category string
	Limit    int
}

// Normalized returns q with the default limit applied.
func (q JournalQuery) Normalized() JournalQuery {
	if q.Limit <= 0 {
		q.Limit = DefaultQueryLimit
	}
	return q
}

// Matches reports whether an entry of category c is selected.
func (q JournalQuery) Matches(c string) bool {
	return q.Category == "" || q.Category == c
}

// JournalEntry is the category-independent view of a record.
type JournalEntry struct {
	Category string          `json:"category"`
	Type     string          `json:"type"`
	Time     time.Time       `json:"time"`
	Data     json.RawMessage `json:"data"`
}

// Entry returns the journal view of the tap.
func (t MarkerTap) Entry() JournalEntry {
	return JournalEntry{Category: CategoryMarkerTap, Type: "MARKER_TAP", Time: t.Time, Data: t.Payload}
}

// Entry returns the journal view of the navigation event.
func (e NavigationEvent) Entry() JournalEntry {
	return JournalEntry{Category: CategoryNavigation, Type: e.Type, Time: e.Time, Data: e.Data}
}

// Entry returns the journal view of the scene.
func (s SceneSnapshot) Entry() JournalEntry {
	return JournalEntry{Category: CategoryScene, Type: "SCENE_RENDERED", Time: s.Time, Data: s.Overlay}
}

// Latest orders entries newest first and keeps at most limit.
func Latest(entries []JournalEntry, limit int) []JournalEntry {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Time.After(entries[j].Time)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}
