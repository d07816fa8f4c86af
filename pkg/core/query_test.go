package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJournalQuery(t *testing.T) {
	q := JournalQuery{}.Normalized()
	assert.Equal(t, DefaultQueryLimit, q.Limit)
	assert.True(t, q.Matches(CategoryScene))

	q = JournalQuery{Category: CategoryNavigation, Limit: 5}.Normalized()
	assert.Equal(t, 5, q.Limit)
	assert.True(t, q.Matches(CategoryNavigation))
	assert.False(t, q.Matches(CategoryMarkerTap))
}

func TestLatest(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := []JournalEntry{
		NavigationEvent{Type: "A", Time: base}.Entry(),
		MarkerTap{Time: base.Add(2 * time.Second), Payload: json.RawMessage(`{}`)}.Entry(),
		SceneSnapshot{Time: base.Add(time.Second)}.Entry(),
	}

	got := Latest(entries, 2)
	assert.Len(t, got, 2)
	assert.Equal(t, CategoryMarkerTap, got[0].Category)
	assert.Equal(t, "MARKER_TAP", got[0].Type)
	assert.Equal(t, CategoryScene, got[1].Category)
}
