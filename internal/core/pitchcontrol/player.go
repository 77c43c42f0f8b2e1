package pitchcontrol

import (
	"fmt"
	"math"

	"github.com/opunsoars/pitchly/internal/core/tracking"
)

// Player holds the position and velocity of one player at one frame.
// It is read-only for the duration of a grid evaluation; anything that
// depends on the target position lives in the Solver's scratch space.
type Player struct {
	ID       string
	Position tracking.Vec
	Velocity tracking.Vec
}

// TimeToIntercept assumes the player keeps moving at the current velocity
// for the reaction time, then runs straight to target at max speed.
func (pl Player) TimeToIntercept(target tracking.Vec, p Params) float64 {
	reaction := pl.Position.Add(pl.Velocity.Scale(p.reactionTime))
	return p.reactionTime + target.Dist(reaction)/p.maxPlayerSpeed
}

// ProbabilityInterceptBall is the probability that a player with expected
// arrival time tti has reached the target by time T (Spearman 2018, eq. 4).
func ProbabilityInterceptBall(T, tti float64, p Params) float64 {
	return 1 / (1 + math.Exp(-math.Pi/math.Sqrt(3)/p.ttiSigma*(T-tti)))
}

// Roster is the ordered set of eligible players of one side at one frame.
type Roster struct {
	Side    tracking.Side
	Players []Player
}

func (r Roster) Len() int { return len(r.Players) }

// IDs returns the player ids in roster order.
func (r Roster) IDs() []string {
	ids := make([]string, len(r.Players))
	for i, pl := range r.Players {
		ids[i] = pl.ID
	}
	return ids
}

// NewRoster builds the roster for side. Players missing either position
// component are left out; a missing velocity is treated as standing still.
// Duplicate ids keep the first occurrence; players without an id are
// keyed by side and input index.
func NewRoster(side tracking.Side, kin []tracking.Kinematics) (Roster, error) {
	r := Roster{Side: side, Players: make([]Player, 0, len(kin))}
	seen := make(map[string]struct{}, len(kin))
	for i, k := range kin {
		pos := k.Position()
		if !pos.Finite() {
			continue
		}
		id := tracking.NormalizeID(k.PlayerID)
		if id == "" {
			id = tracking.NormalizeID(fmt.Sprintf("%s_%d", side, i))
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		vel := k.Velocity()
		if !vel.Finite() {
			vel = tracking.Vec{}
		}
		r.Players = append(r.Players, Player{ID: id, Position: pos, Velocity: vel})
	}
	if len(r.Players) == 0 {
		return Roster{}, fmt.Errorf("%w: no eligible %s players", ErrInvalidRoster, side)
	}
	return r, nil
}
