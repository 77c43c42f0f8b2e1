package events

import "github.com/opunsoars/pitchly/internal/core/pitchcontrol"

// SurfaceEvent is published whenever a frame or event surface has been evaluated.
type SurfaceEvent struct {
	Surface *pitchcontrol.Surface `json:"surface"`
	// Source says what triggered the evaluation: "request" or "playback".
	Source string `json:"source"`
}

// SurfaceFailedEvent is published when a frame is rejected. No surface
// accompanies it.
type SurfaceFailedEvent struct {
	FrameID int64  `json:"frame_id"`
	EventID int64  `json:"event_id,omitempty"`
	Reason  string `json:"reason"`
	Fatal   bool   `json:"fatal"`
}

// PlaybackStatusEvent signals playback progress to fanout clients.
type PlaybackStatusEvent struct {
	State   string `json:"state"` // "started", "finished", "cancelled"
	From    int64  `json:"from"`
	To      int64  `json:"to"`
	Current int64  `json:"current"`
	Failed  int    `json:"failed"`
}

const (
	PlaybackStarted   = "started"
	PlaybackFinished  = "finished"
	PlaybackCancelled = "cancelled"
)
