package pitchcontrol

import (
	"fmt"
	"math"

	"github.com/opunsoars/pitchly/internal/core/tracking"
)

// Regime says how a target's control was decided.
type Regime int

const (
	// Contested targets need the full integration.
	Contested Regime = iota
	// DominantAttack: the attacking side arrives first by more than the
	// attacking time-to-control threshold.
	DominantAttack
	// DominantDefense: the defending side arrives first by more than the
	// defending time-to-control threshold.
	DominantDefense
)

func (r Regime) String() string {
	switch r {
	case DominantAttack:
		return "dominant_attack"
	case DominantDefense:
		return "dominant_defense"
	default:
		return "contested"
	}
}

// Control is the outcome at one target position.
type Control struct {
	Attack    float64
	Defense   float64
	Regime    Regime
	Converged bool
	Steps     int // integration steps taken, 0 for shortcuts
}

// sideScratch is the per-target working state of one roster.
type sideScratch struct {
	side    tracking.Side
	players []Player
	lambda  float64
	ttc     float64
	tti     []float64
	ppcf    []float64
	active  []int
	fastest int
}

func newSideScratch(r Roster, lambda, ttc float64) sideScratch {
	n := len(r.Players)
	return sideScratch{
		side:    r.Side,
		players: r.Players,
		lambda:  lambda,
		ttc:     ttc,
		tti:     make([]float64, n),
		ppcf:    make([]float64, n),
		active:  make([]int, 0, n),
	}
}

// prepare resets the running totals and returns the earliest arrival time.
func (s *sideScratch) prepare(target tracking.Vec, p Params) float64 {
	tau := math.Inf(1)
	s.fastest = -1
	for i, pl := range s.players {
		s.ppcf[i] = 0
		t := pl.TimeToIntercept(target, p)
		s.tti[i] = t
		if t < tau {
			tau = t
			s.fastest = i
		}
	}
	return tau
}

// prune keeps the players that can still matter at this target.
func (s *sideScratch) prune(tau float64) {
	s.active = s.active[:0]
	for i, t := range s.tti {
		if t-tau < s.ttc {
			s.active = append(s.active, i)
		}
	}
}

// credit attributes the whole control probability to the fastest player.
func (s *sideScratch) credit() {
	if s.fastest >= 0 {
		s.ppcf[s.fastest] = 1
	}
}

// step advances every active player by one time step and returns the
// side total after the step.
func (s *sideScratch) step(T, remaining float64, p Params) (float64, error) {
	var total float64
	for _, i := range s.active {
		d := remaining * ProbabilityInterceptBall(T, s.tti[i], p) * s.lambda
		if !(d >= 0) {
			return 0, fmt.Errorf("%w: %s player %s at T=%.3f (dPPCF/dT=%v)",
				ErrNegativeIncrement, s.side, s.players[i].ID, T, d)
		}
		s.ppcf[i] += d * p.intDT
		total += s.ppcf[i]
	}
	return total, nil
}

// Solver evaluates control at target positions for one pair of rosters.
// Its scratch buffers are sized once, so a Solver must not be shared
// between goroutines; give each worker its own.
type Solver struct {
	params Params
	att    sideScratch
	def    sideScratch
}

func NewSolver(p Params, attacking, defending Roster) *Solver {
	return &Solver{
		params: p,
		att:    newSideScratch(attacking, p.lambdaAtt, p.timeToControlAtt),
		def:    newSideScratch(defending, p.lambdaDef, p.timeToControlDef),
	}
}

// BallTravelTime is the time for the ball to reach target at the average
// ball speed. A nil ball, or one with any non-finite coordinate, is taken
// to be at the target already.
func BallTravelTime(target tracking.Vec, ball *tracking.Vec, p Params) float64 {
	if ball == nil || !ball.Finite() {
		return 0
	}
	return target.Dist(*ball) / p.averageBallSpeed
}

// Solve computes the attacking and defending control probabilities at
// target. Per-player totals are available from AttackContributions and
// DefenseContributions until the next call.
func (s *Solver) Solve(target tracking.Vec, ball *tracking.Vec) (Control, error) {
	p := s.params
	btt := BallTravelTime(target, ball, p)

	tauAtt := s.att.prepare(target, p)
	tauDef := s.def.prepare(target, p)

	if tauAtt-math.Max(btt, tauDef) >= p.timeToControlDef {
		s.def.credit()
		return Control{Attack: 0, Defense: 1, Regime: DominantDefense, Converged: true}, nil
	}
	if tauDef-math.Max(btt, tauAtt) >= p.timeToControlAtt {
		s.att.credit()
		return Control{Attack: 1, Defense: 0, Regime: DominantAttack, Converged: true}, nil
	}

	s.att.prune(tauAtt)
	s.def.prune(tauDef)

	n := p.MaxIntegrationSteps()
	var pAtt, pDef, ptot float64
	i := 1
	for 1-ptot > p.convergeTol && i < n {
		T := btt - p.intDT + float64(i)*p.intDT
		remaining := 1 - pAtt - pDef

		a, err := s.att.step(T, remaining, p)
		if err != nil {
			return Control{}, err
		}
		d, err := s.def.step(T, remaining, p)
		if err != nil {
			return Control{}, err
		}

		pAtt, pDef = a, d
		ptot = pAtt + pDef
		i++
	}

	return Control{
		Attack:    pAtt,
		Defense:   pDef,
		Regime:    Contested,
		Converged: 1-ptot <= p.convergeTol,
		Steps:     i - 1,
	}, nil
}

// AttackContributions returns per-player control totals in roster order.
// The slice is owned by the Solver.
func (s *Solver) AttackContributions() []float64 { return s.att.ppcf }

// DefenseContributions returns per-player control totals in roster order.
// The slice is owned by the Solver.
func (s *Solver) DefenseContributions() []float64 { return s.def.ppcf }

// TimesToIntercept returns the arrival times computed for the last target,
// attacking then defending, in roster order.
func (s *Solver) TimesToIntercept() (attacking, defending []float64) {
	return s.att.tti, s.def.tti
}

// TargetEvaluation is the result of evaluating a single target position.
type TargetEvaluation struct {
	Target         tracking.Vec       `json:"target"`
	Ball           *tracking.Vec      `json:"ball,omitempty"`
	Attack         float64            `json:"attack"`
	Defense        float64            `json:"defense"`
	Regime         string             `json:"regime"`
	Converged      bool               `json:"converged"`
	AttackPlayers  map[string]float64 `json:"attack_players,omitempty"`
	DefensePlayers map[string]float64 `json:"defense_players,omitempty"`
}

// ControlAtTarget evaluates one target from scratch. The per-player maps
// are only filled when individual is set, and are fresh on every call.
func ControlAtTarget(target tracking.Vec, ball *tracking.Vec, attacking, defending Roster, p Params, individual bool) (TargetEvaluation, error) {
	s := NewSolver(p, attacking, defending)
	c, err := s.Solve(target, ball)
	if err != nil {
		return TargetEvaluation{}, err
	}

	ev := TargetEvaluation{
		Target:    target,
		Ball:      ball,
		Attack:    c.Attack,
		Defense:   c.Defense,
		Regime:    c.Regime.String(),
		Converged: c.Converged,
	}
	if individual {
		ev.AttackPlayers = contributionMap(attacking, s.AttackContributions())
		ev.DefensePlayers = contributionMap(defending, s.DefenseContributions())
	}
	return ev, nil
}

func contributionMap(r Roster, ppcf []float64) map[string]float64 {
	m := make(map[string]float64, len(r.Players))
	for i, pl := range r.Players {
		m[pl.ID] = ppcf[i]
	}
	return m
}
