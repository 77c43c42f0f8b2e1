package fanout

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/opunsoars/pitchly/internal/events"
)

// Envelope is the wire format for events sent over the fanout WebSocket
// and returned by the surface HTTP API.
type Envelope struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	FrameID   int64           `json:"frame_id"`
	Timestamp time.Time       `json:"ts"`
	Payload   json.RawMessage `json:"payload"`
}

// MarshalEvent serializes an Event into a JSON-encoded Envelope.
func MarshalEvent(evt events.Event) ([]byte, error) {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	env := Envelope{
		Type:      string(evt.Type),
		ID:        evt.ID,
		FrameID:   evt.FrameID,
		Timestamp: evt.Timestamp,
		Payload:   payload,
	}
	return json.Marshal(env)
}

// UnmarshalEvent deserializes a JSON Envelope back into a typed Event.
func UnmarshalEvent(data []byte) (events.Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return events.Event{}, fmt.Errorf("unmarshal envelope: %w", err)
	}

	evt := events.Event{
		ID:        env.ID,
		Type:      events.EventType(env.Type),
		FrameID:   env.FrameID,
		Timestamp: env.Timestamp,
	}

	switch evt.Type {
	case events.EventSurfaceReady:
		var se events.SurfaceEvent
		if err := json.Unmarshal(env.Payload, &se); err != nil {
			return evt, fmt.Errorf("unmarshal surface_ready: %w", err)
		}
		evt.Payload = se
	case events.EventSurfaceFailed:
		var sf events.SurfaceFailedEvent
		if err := json.Unmarshal(env.Payload, &sf); err != nil {
			return evt, fmt.Errorf("unmarshal surface_failed: %w", err)
		}
		evt.Payload = sf
	case events.EventPlaybackStatus:
		var ps events.PlaybackStatusEvent
		if err := json.Unmarshal(env.Payload, &ps); err != nil {
			return evt, fmt.Errorf("unmarshal playback_status: %w", err)
		}
		evt.Payload = ps
	default:
		return evt, fmt.Errorf("unknown event type: %s", env.Type)
	}

	return evt, nil
}
