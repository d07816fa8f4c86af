package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/navbridge/extension/internal/dispatcher"
	"github.com/navbridge/extension/internal/events"
	"github.com/navbridge/extension/internal/marker"
	"github.com/navbridge/extension/internal/navigation"
	"github.com/navbridge/extension/pkg/core"
)

// tappedMarker is the part of a tapped marker the journal keeps. The full
// JSON is stored alongside.
type tappedMarker struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Category  string  `json:"category"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type renderedOverlay struct {
	MinZoom    float64 `json:"minZoom"`
	MaxZoom    float64 `json:"maxZoom"`
	Collection *struct {
		Features []json.RawMessage `json:"features"`
	} `json:"collection"`
}

func (m *Manager) handleMarker(ctx context.Context, e dispatcher.Event) (any, error) {
	args, err := decodeArgs(e)
	if err != nil {
		return nil, fmt.Errorf("failed to decode marker event: %w", err)
	}
	if args.Type != marker.EventTypeMarkerTap {
		return nil, nil
	}

	var tapped tappedMarker
	if err := json.Unmarshal(args.Data, &tapped); err != nil {
		return nil, fmt.Errorf("failed to decode tapped marker: %w", err)
	}

	tap := &core.MarkerTap{
		Time:      e.Timestamp,
		MarkerID:  tapped.ID,
		Title:     tapped.Title,
		Category:  tapped.Category,
		Latitude:  tapped.Latitude,
		Longitude: tapped.Longitude,
		Payload:   args.Data,
	}
	if err := m.deps.Backend.RecordMarkerTap(tap); err != nil {
		return nil, fmt.Errorf("failed to record marker tap: %w", err)
	}

	if m.deps.Metrics != nil {
		if err := m.deps.Metrics.RecordMarkerTap(ctx, tap); err != nil {
			m.log.Warn("Failed to write marker tap metric", "marker", tap.MarkerID, "error", err)
		}
	}
	return nil, nil
}

func (m *Manager) handleNavigation(ctx context.Context, e dispatcher.Event) (any, error) {
	args, err := decodeArgs(e)
	if err != nil {
		return nil, fmt.Errorf("failed to decode navigation event: %w", err)
	}

	// The session is the one tagged at publish time. The handler may run
	// after the session that raised the event has ended.
	sessionID := args.Session
	rec := &core.NavigationEvent{
		Time:      e.Timestamp,
		SessionID: sessionID,
		Type:      args.Type,
		Data:      args.Data,
	}
	if err := m.deps.Backend.RecordNavigationEvent(rec); err != nil {
		return nil, fmt.Errorf("failed to record navigation event: %w", err)
	}

	if args.Type == events.ProgressChange && m.deps.Metrics != nil {
		var p navigation.Progress
		if err := json.Unmarshal(args.Data, &p); err != nil {
			return nil, fmt.Errorf("failed to decode progress: %w", err)
		}
		if err := m.deps.Metrics.RecordProgress(ctx, sessionID, e.Timestamp, p); err != nil {
			m.log.Warn("Failed to write progress metric", "session", sessionID, "error", err)
		}
	}
	return nil, nil
}

func (m *Manager) handleOverlay(_ context.Context, e dispatcher.Event) (any, error) {
	args, err := decodeArgs(e)
	if err != nil {
		return nil, fmt.Errorf("failed to decode overlay event: %w", err)
	}
	if args.Type != events.SceneRendered {
		return nil, nil
	}

	var overlay renderedOverlay
	if err := json.Unmarshal(args.Data, &overlay); err != nil {
		return nil, fmt.Errorf("failed to decode overlay: %w", err)
	}

	snap := &core.SceneSnapshot{
		Time:    e.Timestamp,
		MinZoom: overlay.MinZoom,
		MaxZoom: overlay.MaxZoom,
		Overlay: args.Data,
	}
	if overlay.Collection != nil {
		snap.Annotations = len(overlay.Collection.Features)
	}
	if err := m.deps.Backend.RecordSceneSnapshot(snap); err != nil {
		return nil, fmt.Errorf("failed to record scene snapshot: %w", err)
	}
	return nil, nil
}
