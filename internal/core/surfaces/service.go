package surfaces

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/opunsoars/pitchly/internal/core/pitchcontrol"
	"github.com/opunsoars/pitchly/internal/core/tracking"
	"github.com/opunsoars/pitchly/internal/events"
	"github.com/opunsoars/pitchly/internal/telemetry"
)

// FrameSource provides the kinematic snapshots and match events the
// evaluator works on.
type FrameSource interface {
	LoadFrame(ctx context.Context, id int64) (tracking.Frame, error)
	LoadEvent(ctx context.Context, id int64) (tracking.Event, error)
	FrameIDs(ctx context.Context, from, to int64) ([]int64, error)
}

const (
	SourceRequest  = "request"
	SourcePlayback = "playback"
)

// Service evaluates surfaces on demand and publishes them on the bus.
// Concurrent requests for the same frame share one evaluation; the shared
// *Surface must be treated as read-only.
type Service struct {
	source  FrameSource
	eval    *pitchcontrol.Evaluator
	bus     *events.Bus
	sfGroup singleflight.Group
}

func NewService(source FrameSource, eval *pitchcontrol.Evaluator, bus *events.Bus) *Service {
	return &Service{source: source, eval: eval, bus: bus}
}

func (s *Service) Evaluator() *pitchcontrol.Evaluator { return s.eval }

// ForFrame returns the surface of frame id.
func (s *Service) ForFrame(ctx context.Context, id int64, individual bool) (*pitchcontrol.Surface, error) {
	key := fmt.Sprintf("frame:%d:%t", id, individual)
	return s.do(key, func() (*pitchcontrol.Surface, error) {
		frame, err := s.source.LoadFrame(ctx, id)
		if err != nil {
			return nil, err
		}
		surf, err := s.eval.Evaluate(ctx, frame, individual)
		if err != nil {
			s.publishFailed(id, 0, err)
			return nil, err
		}
		s.publishReady(surf, SourceRequest)
		return surf, nil
	})
}

// ForEvent returns the surface at the start frame of event id, with the
// event's team attacking and the ball at the event location.
func (s *Service) ForEvent(ctx context.Context, id int64, individual bool) (*pitchcontrol.Surface, error) {
	key := fmt.Sprintf("event:%d:%t", id, individual)
	return s.do(key, func() (*pitchcontrol.Surface, error) {
		ev, err := s.source.LoadEvent(ctx, id)
		if err != nil {
			return nil, err
		}
		frame, err := s.source.LoadFrame(ctx, ev.StartFrame)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", id, err)
		}
		surf, err := s.eval.EvaluateEvent(ctx, ev, frame, individual)
		if err != nil {
			s.publishFailed(frame.ID, ev.ID, err)
			return nil, err
		}
		s.publishReady(surf, SourceRequest)
		return surf, nil
	})
}

func (s *Service) do(key string, fn func() (*pitchcontrol.Surface, error)) (*pitchcontrol.Surface, error) {
	telemetry.Metrics.SurfaceRequests.Inc()
	v, err, shared := s.sfGroup.Do(key, func() (any, error) {
		return fn()
	})
	if shared {
		telemetry.Metrics.SurfaceRequestsShared.Inc()
	}
	if err != nil {
		return nil, err
	}
	return v.(*pitchcontrol.Surface), nil
}

// Playback evaluates every stored frame in [from, to] at no more than fps
// frames per second and publishes each surface. Rejected frames publish
// surface_failed and playback moves on. It returns when the range is done
// or ctx is cancelled.
func (s *Service) Playback(ctx context.Context, from, to int64, fps float64, individual bool) error {
	if !(fps > 0) {
		return fmt.Errorf("playback: fps must be positive, got %v", fps)
	}
	ids, err := s.source.FrameIDs(ctx, from, to)
	if err != nil {
		return fmt.Errorf("playback: %w", err)
	}

	status := events.PlaybackStatusEvent{State: events.PlaybackStarted, From: from, To: to}
	s.bus.Publish(events.New(events.EventPlaybackStatus, from, status))
	telemetry.Infof("playback: %d frames in %d..%d at %.1f fps", len(ids), from, to, fps)

	limiter := rate.NewLimiter(rate.Limit(fps), 1)
	for _, id := range ids {
		waitStart := time.Now()
		if err := limiter.Wait(ctx); err != nil {
			return s.playbackCancelled(ctx, status)
		}
		telemetry.Metrics.PlaybackWait.Record(time.Since(waitStart))

		status.Current = id
		frame, err := s.source.LoadFrame(ctx, id)
		if err == nil {
			var surf *pitchcontrol.Surface
			surf, err = s.eval.Evaluate(ctx, frame, individual)
			if err == nil {
				s.publishReady(surf, SourcePlayback)
				continue
			}
		}
		if ctx.Err() != nil {
			return s.playbackCancelled(ctx, status)
		}
		status.Failed++
		s.publishFailed(id, 0, err)
	}

	status.State = events.PlaybackFinished
	s.bus.Publish(events.New(events.EventPlaybackStatus, status.Current, status))
	telemetry.Infof("playback: finished %d..%d (%d failed)", from, to, status.Failed)
	return nil
}

func (s *Service) playbackCancelled(ctx context.Context, status events.PlaybackStatusEvent) error {
	status.State = events.PlaybackCancelled
	s.bus.Publish(events.New(events.EventPlaybackStatus, status.Current, status))
	telemetry.Infof("playback: cancelled at frame %d", status.Current)
	return ctx.Err()
}

func (s *Service) publishReady(surf *pitchcontrol.Surface, source string) {
	telemetry.Metrics.SurfacesPublished.Inc()
	s.bus.Publish(events.New(events.EventSurfaceReady, surf.FrameID, events.SurfaceEvent{Surface: surf, Source: source}))
}

func (s *Service) publishFailed(frameID, eventID int64, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	s.bus.Publish(events.New(events.EventSurfaceFailed, frameID, events.SurfaceFailedEvent{
		FrameID: frameID,
		EventID: eventID,
		Reason:  err.Error(),
		Fatal:   pitchcontrol.IsFatal(err),
	}))
}
