package fanout

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opunsoars/pitchly/internal/core/pitchcontrol"
	"github.com/opunsoars/pitchly/internal/core/tracking"
	"github.com/opunsoars/pitchly/internal/events"
)

func sampleSurface() *pitchcontrol.Surface {
	return &pitchcontrol.Surface{
		FrameID:   31,
		Attacking: tracking.Home,
		Ball:      &tracking.Vec{X: 1.5, Y: -2},
		XGrid:     []float64{-53, 0, 53},
		YGrid:     []float64{-34, 34},
		Attack:    [][]float64{{1, 0.5, 0}, {1, 0.4, 0}},
		Defense:   [][]float64{{0, 0.5, 1}, {0, 0.6, 1}},
		AttackPlayers: map[string][][]float64{
			"home7": {{1, 0.5, 0}, {1, 0.4, 0}},
		},
		Stats: pitchcontrol.Stats{Cells: 6, Contested: 2, DominantAttack: 2, DominantDefense: 2, Checksum: 1},
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	surf := sampleSurface()
	in := events.New(events.EventSurfaceReady, surf.FrameID, events.SurfaceEvent{Surface: surf, Source: "playback"})

	data, err := MarshalEvent(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"surface_ready"`)
	assert.Contains(t, string(data), `"frame_id":31`)

	out, err := UnmarshalEvent(data)
	require.NoError(t, err)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.Type, out.Type)
	assert.True(t, in.Timestamp.Equal(out.Timestamp))

	se, ok := out.Payload.(events.SurfaceEvent)
	require.True(t, ok)
	assert.Equal(t, "playback", se.Source)
	assert.Equal(t, *surf, *se.Surface)
}

func TestEnvelopeOtherTypes(t *testing.T) {
	failed := events.New(events.EventSurfaceFailed, 9, events.SurfaceFailedEvent{FrameID: 9, Reason: "checksum failed", Fatal: true})
	data, err := MarshalEvent(failed)
	require.NoError(t, err)
	out, err := UnmarshalEvent(data)
	require.NoError(t, err)
	assert.Equal(t, failed.Payload, out.Payload)

	status := events.New(events.EventPlaybackStatus, 5, events.PlaybackStatusEvent{State: events.PlaybackFinished, From: 1, To: 5, Current: 5})
	data, err = MarshalEvent(status)
	require.NoError(t, err)
	out, err = UnmarshalEvent(data)
	require.NoError(t, err)
	assert.Equal(t, status.Payload, out.Payload)
}

func TestUnmarshalRejectsUnknown(t *testing.T) {
	_, err := UnmarshalEvent([]byte(`{"type":"score_change","payload":{}}`))
	assert.Error(t, err)

	_, err = UnmarshalEvent([]byte(`not json`))
	assert.Error(t, err)
}

func startServer(t *testing.T) (*events.Bus, *Server, string) {
	t.Helper()
	bus := events.NewBus()
	srv := NewServer(bus)
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return bus, srv, strings.TrimPrefix(ts.URL, "http://")
}

func receive(bus *events.Bus, types ...events.EventType) <-chan events.Event {
	ch := make(chan events.Event, 16)
	for _, et := range types {
		bus.Subscribe(et, func(e events.Event) error {
			ch <- e
			return nil
		})
	}
	return ch
}

func TestServerToClient(t *testing.T) {
	serverBus, srv, addr := startServer(t)

	clientBus := events.NewBus()
	got := receive(clientBus, events.EventSurfaceReady, events.EventSurfaceFailed, events.EventPlaybackStatus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewClient(addr, clientBus).ConnectWithRetry(ctx)

	require.Eventually(t, func() bool { return srv.ClientCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	surf := sampleSurface()
	sent := events.New(events.EventSurfaceReady, surf.FrameID, events.SurfaceEvent{Surface: surf, Source: "request"})
	serverBus.Publish(sent)

	select {
	case e := <-got:
		assert.Equal(t, sent.ID, e.ID)
		assert.Equal(t, int64(31), e.FrameID)
		assert.Equal(t, surf.Attack, e.Payload.(events.SurfaceEvent).Surface.Attack)
	case <-time.After(5 * time.Second):
		t.Fatal("surface never reached the client")
	}

	cancel()
	require.Eventually(t, func() bool { return srv.ClientCount() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestServerTypeFilter(t *testing.T) {
	serverBus, srv, addr := startServer(t)

	clientBus := events.NewBus()
	got := receive(clientBus, events.EventSurfaceFailed, events.EventPlaybackStatus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := NewClient(addr, clientBus, events.EventPlaybackStatus)
	assert.Contains(t, c.URL(), "types=playback_status")
	go c.ConnectWithRetry(ctx)

	require.Eventually(t, func() bool { return srv.ClientCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	serverBus.Publish(events.New(events.EventSurfaceFailed, 2, events.SurfaceFailedEvent{FrameID: 2, Reason: "x"}))
	serverBus.Publish(events.New(events.EventPlaybackStatus, 2, events.PlaybackStatusEvent{State: events.PlaybackStarted}))

	select {
	case e := <-got:
		assert.Equal(t, events.EventPlaybackStatus, e.Type, "surface_failed is filtered out")
	case <-time.After(5 * time.Second):
		t.Fatal("status never reached the client")
	}
}

func TestHandleWSRejectsUnknownType(t *testing.T) {
	_, _, addr := startServer(t)

	resp, err := http.Get("http://" + addr + "/ws?types=surface_ready,bogus")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
