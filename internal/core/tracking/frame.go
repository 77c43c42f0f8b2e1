package tracking

import (
	"errors"
	"fmt"
	"math"
)

// Vec is a position or velocity on the pitch in metres (or m/s), origin at
// the centre spot.
type Vec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (v Vec) Add(o Vec) Vec       { return Vec{v.X + o.X, v.Y + o.Y} }
func (v Vec) Sub(o Vec) Vec       { return Vec{v.X - o.X, v.Y - o.Y} }
func (v Vec) Scale(k float64) Vec { return Vec{v.X * k, v.Y * k} }
func (v Vec) Norm() float64       { return math.Hypot(v.X, v.Y) }
func (v Vec) Dist(o Vec) float64  { return v.Sub(o).Norm() }
func (v Vec) String() string      { return fmt.Sprintf("(%.2f, %.2f)", v.X, v.Y) }

// Finite reports whether both components are usable numbers.
func (v Vec) Finite() bool { return finite(v.X) && finite(v.Y) }

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

// Kinematics is one player's recorded state at one instant. Missing values
// are NaN, which is how the tracking collaborator marks players off the
// pitch or gaps in the velocity series.
type Kinematics struct {
	PlayerID string  `json:"player_id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	VX       float64 `json:"vx"`
	VY       float64 `json:"vy"`
}

func (k Kinematics) Position() Vec { return Vec{k.X, k.Y} }
func (k Kinematics) Velocity() Vec { return Vec{k.VX, k.VY} }

// Frame is the kinematic snapshot of both teams at one tracking frame.
// Ball is nil when the ball location was not recorded.
type Frame struct {
	ID        int64        `json:"id"`
	Period    int          `json:"period"`
	Time      float64      `json:"time"`
	Attacking Side         `json:"attacking"`
	Ball      *Vec         `json:"ball,omitempty"`
	Home      []Kinematics `json:"home"`
	Away      []Kinematics `json:"away"`
}

var (
	ErrNoAttackingSide = errors.New("team in possession must be either home or away")
	ErrFrameNotFound   = errors.New("frame not found")
	ErrEventNotFound   = errors.New("event not found")
)

// Sides returns the attacking and defending kinematics for the frame.
func (f Frame) Sides() (attacking, defending []Kinematics, err error) {
	switch f.Attacking {
	case Home:
		return f.Home, f.Away, nil
	case Away:
		return f.Away, f.Home, nil
	default:
		return nil, nil, fmt.Errorf("frame %d: %w", f.ID, ErrNoAttackingSide)
	}
}

// Event is a match event (pass, shot, ...) that anchors a pitch control
// evaluation: the event team attacks and the ball starts at Start.
type Event struct {
	ID         int64  `json:"id"`
	Type       string `json:"type"`
	Team       Side   `json:"team"`
	StartFrame int64  `json:"start_frame"`
	Start      *Vec   `json:"start,omitempty"`
}

// Apply returns a copy of f with the event's team in possession and the
// ball at the event's start location.
func (e Event) Apply(f Frame) Frame {
	out := f
	out.Attacking = e.Team
	out.Ball = e.Start
	return out
}
