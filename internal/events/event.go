package events

import (
	"time"

	"github.com/google/uuid"
)

// Event is the envelope that flows through the event bus.
// Every domain event (surface ready, surface failed, playback status) is wrapped in one.
type Event struct {
	ID        string
	Type      EventType
	FrameID   int64
	Timestamp time.Time
	Payload   any
}

type EventType string

const (
	// Evaluator output
	EventSurfaceReady  EventType = "surface_ready"
	EventSurfaceFailed EventType = "surface_failed"
	// Playback lifecycle
	EventPlaybackStatus EventType = "playback_status"
)

// New stamps a payload with a fresh id and the current time.
func New(t EventType, frameID int64, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		FrameID:   frameID,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}
