package navigation

import (
	"context"
	"math"
	"time"

	"github.com/paulmach/orb"

	"github.com/navbridge/extension/internal/events"
	"github.com/navbridge/extension/internal/routing"
)

// fallbackSpeed is used when a route reports no duration, in meters per second.
const fallbackSpeed = 13.9

// Progress is the payload of PROGRESS_CHANGE.
type Progress struct {
	Arrived                bool    `json:"arrived"`
	Distance               float64 `json:"distance"`
	Duration               float64 `json:"duration"`
	DistanceTraveled       float64 `json:"distanceTraveled"`
	CurrentLegIndex        int     `json:"currentLegIndex"`
	CurrentStepIndex       int     `json:"currentStepIndex"`
	CurrentStepInstruction string  `json:"currentStepInstruction,omitempty"`
	Latitude               float64 `json:"latitude"`
	Longitude              float64 `json:"longitude"`
}

type instructionJSON struct {
	Text     string  `json:"text"`
	Distance float64 `json:"distance"`
	Type     int     `json:"type"`
	Leg      int     `json:"leg"`
}

// simulate advances along the route every tick until arrival or cancellation.
func (s *Service) simulate(ctx context.Context, sess *session) {
	ticker := time.NewTicker(s.deps.TickInterval)
	defer ticker.Stop()

	traveled := 0.0
	step := -1

	for {
		s.mu.Lock()
		route := sess.route
		geometry := sess.geometry
		length := geometry.LengthMeters()
		s.mu.Unlock()

		p, idx := progressAt(route, geometry.PointAt(traveled), traveled, length)

		if idx != step && idx < len(route.Instructions) {
			step = idx
			s.announce(sess, route.Instructions[idx])
		}

		s.mu.Lock()
		if s.session != sess {
			s.mu.Unlock()
			return
		}
		s.progress = &p
		sess.arrived = p.Arrived
		s.mu.Unlock()

		s.publish(sess, events.ProgressChange, p)
		if p.Arrived {
			s.publish(sess, events.OnArrival, map[string]any{"latitude": p.Latitude, "longitude": p.Longitude})
			s.log.Info("Arrived", "session", sess.id)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		traveled = math.Min(traveled+s.speed(route)*s.deps.TickInterval.Seconds(), length)
	}
}

func (s *Service) speed(route routing.Route) float64 {
	if s.deps.SimulationSpeed > 0 {
		return s.deps.SimulationSpeed
	}
	if route.DurationSeconds > 0 {
		return route.DistanceMeters / route.DurationSeconds
	}
	return fallbackSpeed
}

func (s *Service) announce(sess *session, in routing.Instruction) {
	if sess.opts.BannerInstructionsEnabled {
		s.publish(sess, events.BannerInstruction, instructionJSON{
			Text:     in.Text,
			Distance: in.DistanceMeters,
			Type:     in.Type,
			Leg:      in.Leg,
		})
	}
	if sess.opts.VoiceInstructionsEnabled {
		s.publish(sess, events.SpeechAnnouncement, map[string]string{"text": in.Text})
	}
}

// progressAt maps the traveled share of the geometry onto the route's
// reported distance and duration.
func progressAt(route routing.Route, pos orb.Point, traveled, length float64) (Progress, int) {
	fraction := 1.0
	if length > 0 {
		fraction = math.Min(traveled/length, 1)
	}
	covered := route.DistanceMeters * fraction

	p := Progress{
		Arrived:          fraction >= 1,
		Distance:         route.DistanceMeters - covered,
		Duration:         route.DurationSeconds * (1 - fraction),
		DistanceTraveled: covered,
		Longitude:        pos[0],
		Latitude:         pos[1],
	}

	idx, sum := 0, 0.0
	for i, in := range route.Instructions {
		idx = i
		sum += in.DistanceMeters
		if sum > covered {
			break
		}
	}
	if len(route.Instructions) > 0 {
		in := route.Instructions[idx]
		p.CurrentStepIndex = idx
		p.CurrentLegIndex = in.Leg
		p.CurrentStepInstruction = in.Text
	}
	return p, idx
}
