package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/opunsoars/pitchly/internal/events"
	"github.com/opunsoars/pitchly/internal/fanout"
	"github.com/opunsoars/pitchly/internal/telemetry"
)

func main() {
	addr := flag.String("addr", "localhost:8780", "fanout host:port")
	types := flag.String("types", "", "comma separated event types (default: all)")
	n := flag.Int("n", 0, "exit after n messages (0 = run until interrupted)")
	flag.Parse()

	telemetry.Init(slog.LevelInfo)

	var filter []events.EventType
	for _, t := range strings.Split(*types, ",") {
		if t = strings.TrimSpace(t); t != "" {
			filter = append(filter, events.EventType(t))
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bus := events.NewBus()
	count := 0
	show := func(e events.Event) error {
		count++
		fmt.Println(summarize(e))
		if *n > 0 && count >= *n {
			cancel()
		}
		return nil
	}
	for _, t := range []events.EventType{events.EventSurfaceReady, events.EventSurfaceFailed, events.EventPlaybackStatus} {
		bus.Subscribe(t, show)
	}

	client := fanout.NewClient(*addr, bus, filter...)
	fmt.Fprintf(os.Stderr, "listening on %s\n", client.URL())
	client.ConnectWithRetry(ctx)
	fmt.Fprintf(os.Stderr, "(%d messages)\n", count)
}

func summarize(e events.Event) string {
	ts := e.Timestamp.Format("15:04:05.000")
	switch p := e.Payload.(type) {
	case events.SurfaceEvent:
		s := p.Surface
		if s == nil {
			return fmt.Sprintf("%s  surface_ready   frame=%d  (empty)", ts, e.FrameID)
		}
		var att float64
		for _, row := range s.Attack {
			for _, v := range row {
				att += v
			}
		}
		share := 100 * att / float64(max(s.Stats.Cells, 1))
		return fmt.Sprintf("%s  surface_ready   frame=%d event=%d  %s attacking  share=%.1f%%  grid=%dx%d  contested=%d  non_converged=%d  checksum=%.4f  src=%s",
			ts, s.FrameID, s.EventID, s.Attacking, share, len(s.XGrid), len(s.YGrid),
			s.Stats.Contested, s.Stats.NonConverged, s.Stats.Checksum, p.Source)
	case events.SurfaceFailedEvent:
		return fmt.Sprintf("%s  surface_failed  frame=%d  fatal=%t  %s", ts, p.FrameID, p.Fatal, p.Reason)
	case events.PlaybackStatusEvent:
		return fmt.Sprintf("%s  playback        %s  %d..%d  at=%d  failed=%d", ts, p.State, p.From, p.To, p.Current, p.Failed)
	}
	return fmt.Sprintf("%s  %s  frame=%d", ts, e.Type, e.FrameID)
}
