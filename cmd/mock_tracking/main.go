// mock_tracking writes a scripted, synthetic passage of play into the frames
// database so the server, playback and inspect tools can be exercised
// end-to-end without a real tracking feed.
//
// Both teams hold a 4-4-2 shape that slides with the ball. The ball follows
// the scripted waypoints below; possession flips at the turnover. One match
// event is stored at every waypoint that names one.
//
// Usage:
//
//	go run ./cmd/mock_tracking                       # FRAMES_DB_PATH, 5 Hz from frame 1
//	go run ./cmd/mock_tracking -db /tmp/f.db -hz 25
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/opunsoars/pitchly/internal/adapters/inbound/tracking_sqlite"
	"github.com/opunsoars/pitchly/internal/config"
	"github.com/opunsoars/pitchly/internal/core/tracking"
	"github.com/opunsoars/pitchly/internal/telemetry"
)

type waypoint struct {
	t         float64
	ball      tracking.Vec
	attacking tracking.Side
	event     string
	label     string
}

var script = []waypoint{
	{t: 0, ball: tracking.Vec{X: 0, Y: 0}, attacking: tracking.Home, event: "PASS", label: "Kick-off"},
	{t: 4, ball: tracking.Vec{X: -20, Y: 10}, attacking: tracking.Home, event: "PASS", label: "Home recycle into own half"},
	{t: 9, ball: tracking.Vec{X: 5, Y: -25}, attacking: tracking.Home, event: "PASS", label: "Switch to the left flank"},
	{t: 13, ball: tracking.Vec{X: 30, Y: -20}, attacking: tracking.Home, event: "PASS", label: "Through ball behind the full back"},
	{t: 15, ball: tracking.Vec{X: 38, Y: -5}, attacking: tracking.Home, event: "SHOT", label: "Shot from the edge of the box"},
	{t: 16, ball: tracking.Vec{X: 48, Y: 0}, attacking: tracking.Away, event: "RECOVERY", label: "Keeper claims, Away in possession"},
	{t: 21, ball: tracking.Vec{X: 10, Y: 20}, attacking: tracking.Away, event: "PASS", label: "Counter down the right"},
	{t: 25, ball: tracking.Vec{X: -35, Y: 8}, attacking: tracking.Away, event: "SHOT", label: "Counter shot"},
	{t: 27, ball: tracking.Vec{X: -50, Y: 2}, attacking: tracking.Away, label: "Ball out for a goal kick"},
}

// shape is a 4-4-2 for the side defending the negative-x goal.
var shape = []tracking.Vec{
	{X: -50, Y: 0},
	{X: -35, Y: -20}, {X: -37, Y: -7}, {X: -37, Y: 7}, {X: -35, Y: 20},
	{X: -15, Y: -22}, {X: -17, Y: -7}, {X: -17, Y: 7}, {X: -15, Y: 22},
	{X: 3, Y: -8}, {X: 3, Y: 8},
}

func main() {
	cfg := config.Load()
	dbPath := flag.String("db", cfg.FramesDBPath, "frames database to write")
	hz := flag.Float64("hz", 5, "frames per second of match time")
	start := flag.Int64("start", 1, "ID of the first frame")
	flag.Parse()

	telemetry.Init(slog.LevelInfo)

	if *hz <= 0 {
		fmt.Fprintln(os.Stderr, "-hz must be positive")
		os.Exit(2)
	}

	store, err := tracking_sqlite.OpenStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	fmt.Printf("=== Mock Tracking -> %s ===\n\n", *dbPath)

	dt := 1 / *hz
	end := script[len(script)-1].t
	n := int(math.Floor(end / dt))
	next := 0
	var eventID int64 = 1

	for i := 0; i <= n; i++ {
		t := float64(i) * dt
		id := *start + int64(i)
		f := frameAt(id, t, dt, i == 0)
		if err := store.InsertFrame(ctx, f); err != nil {
			fmt.Fprintf(os.Stderr, "frame %d: %v\n", id, err)
			os.Exit(1)
		}

		for next < len(script) && script[next].t <= t+dt/2 {
			wp := script[next]
			fmt.Printf("── %6.1fs  frame %-6d %-5s  %s\n", t, id, wp.attacking, wp.label)
			if wp.event != "" {
				ball := wp.ball
				err := store.InsertEvent(ctx, tracking.Event{
					ID:         eventID,
					Type:       wp.event,
					Team:       wp.attacking,
					StartFrame: id,
					Start:      &ball,
				})
				if err != nil {
					fmt.Fprintf(os.Stderr, "event %d: %v\n", eventID, err)
					os.Exit(1)
				}
				eventID++
			}
			next++
		}
	}

	fmt.Printf("\nDone! frames %d..%d, %d events\n", *start, *start+int64(n), eventID-1)
}

// frameAt builds the frame at match time t. Velocities are backward
// differences over dt; the first frame has none, as with a real feed.
func frameAt(id int64, t, dt float64, first bool) tracking.Frame {
	wp := segment(t)
	ball := ballAt(t)
	f := tracking.Frame{
		ID:        id,
		Period:    1,
		Time:      t,
		Attacking: wp.attacking,
		Ball:      &ball,
	}
	for _, side := range []tracking.Side{tracking.Home, tracking.Away} {
		players := make([]tracking.Kinematics, len(shape))
		for j := range shape {
			p := position(side, j, t)
			k := tracking.Kinematics{
				PlayerID: fmt.Sprintf("%s_%d", side, j+1),
				X:        p.X,
				Y:        p.Y,
				VX:       math.NaN(),
				VY:       math.NaN(),
			}
			if !first {
				v := p.Sub(position(side, j, t-dt)).Scale(1 / dt)
				k.VX, k.VY = v.X, v.Y
			}
			players[j] = k
		}
		if side == tracking.Home {
			f.Home = players
		} else {
			f.Away = players
		}
	}
	return f
}

func position(side tracking.Side, j int, t float64) tracking.Vec {
	ball := ballAt(t)
	base := shape[j]
	if side == tracking.Away {
		base = tracking.Vec{X: -base.X, Y: base.Y}
	}
	if j == 0 {
		y := math.Max(-3, math.Min(3, 0.1*ball.Y))
		return tracking.Vec{X: base.X, Y: y}
	}

	shift := tracking.Vec{X: 0.35 * ball.X, Y: 0.25 * ball.Y}
	phase := t*0.7 + float64(j)
	wobble := tracking.Vec{X: 1.5 * math.Sin(phase), Y: 1.5 * math.Cos(1.3*phase)}
	return base.Add(shift).Add(wobble)
}

// segment returns the waypoint whose leg contains t.
func segment(t float64) waypoint {
	wp := script[0]
	for _, w := range script {
		if w.t > t {
			break
		}
		wp = w
	}
	return wp
}

func ballAt(t float64) tracking.Vec {
	if t <= script[0].t {
		return script[0].ball
	}
	for i := 1; i < len(script); i++ {
		a, b := script[i-1], script[i]
		if t <= b.t {
			u := (t - a.t) / (b.t - a.t)
			return a.ball.Add(b.ball.Sub(a.ball).Scale(u))
		}
	}
	return script[len(script)-1].ball
}
