package pitchcontrol

import (
	"fmt"
	"math"
)

// Params is the immutable parameter bundle of the pitch control model
// (Spearman 2018). Construct it with DefaultParams or NewParams; the
// time-to-control thresholds are always derived from sigma and the lambdas.
type Params struct {
	maxPlayerSpeed    float64 // m/s
	reactionTime      float64 // s
	ttiSigma          float64 // s, arrival time uncertainty
	lambdaAtt         float64 // 1/s
	kappaDef          float64
	lambdaDef         float64 // lambdaAtt * kappaDef
	averageBallSpeed  float64 // m/s
	intDT             float64 // s
	maxIntTime        float64 // s
	convergeTol       float64
	timeToControlVeto float64 // orders of magnitude, see deriveThresholds

	timeToControlAtt float64
	timeToControlDef float64
}

// Option adjusts one tunable of a Params bundle.
type Option func(*Params)

func WithMaxPlayerSpeed(v float64) Option   { return func(p *Params) { p.maxPlayerSpeed = v } }
func WithReactionTime(v float64) Option     { return func(p *Params) { p.reactionTime = v } }
func WithSigma(v float64) Option            { return func(p *Params) { p.ttiSigma = v } }
func WithLambdaAtt(v float64) Option        { return func(p *Params) { p.lambdaAtt = v } }
func WithKappaDef(v float64) Option         { return func(p *Params) { p.kappaDef = v } }
func WithAverageBallSpeed(v float64) Option { return func(p *Params) { p.averageBallSpeed = v } }
func WithTimeToControlVeto(v float64) Option {
	return func(p *Params) { p.timeToControlVeto = v }
}

// WithIntegration sets the integration step, horizon and convergence tolerance.
func WithIntegration(dt, maxTime, tol float64) Option {
	return func(p *Params) {
		p.intDT = dt
		p.maxIntTime = maxTime
		p.convergeTol = tol
	}
}

func defaults() Params {
	return Params{
		maxPlayerSpeed:    5.0,
		reactionTime:      0.7,
		ttiSigma:          0.45,
		lambdaAtt:         4.3,
		kappaDef:          1.0,
		averageBallSpeed:  15.0,
		intDT:             0.04,
		maxIntTime:        10,
		convergeTol:       0.01,
		timeToControlVeto: 3,
	}
}

// DefaultParams returns the reference parameter set.
func DefaultParams() Params {
	p := defaults()
	p.derive()
	return p
}

// NewParams applies opts on top of the defaults.
func NewParams(opts ...Option) (Params, error) {
	return defaults().With(opts...)
}

// With returns a copy of p with opts applied and thresholds re-derived.
func (p Params) With(opts ...Option) (Params, error) {
	out := p
	for _, opt := range opts {
		opt(&out)
	}
	if err := out.validate(); err != nil {
		return Params{}, err
	}
	out.derive()
	return out, nil
}

func (p *Params) validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"max_player_speed", p.maxPlayerSpeed},
		{"reaction_time", p.reactionTime},
		{"tti_sigma", p.ttiSigma},
		{"lambda_att", p.lambdaAtt},
		{"kappa_def", p.kappaDef},
		{"average_ball_speed", p.averageBallSpeed},
		{"int_dt", p.intDT},
		{"max_int_time", p.maxIntTime},
		{"model_converge_tol", p.convergeTol},
		{"time_to_control_veto", p.timeToControlVeto},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) || f.v <= 0 {
			return fmt.Errorf("%w: %s must be positive and finite, got %v", ErrInvalidParams, f.name, f.v)
		}
	}
	if p.convergeTol >= 1 {
		return fmt.Errorf("%w: model_converge_tol must be below 1, got %v", ErrInvalidParams, p.convergeTol)
	}
	if p.intDT >= p.maxIntTime {
		return fmt.Errorf("%w: int_dt %v must be smaller than max_int_time %v", ErrInvalidParams, p.intDT, p.maxIntTime)
	}
	return nil
}

// derive computes lambda_def and the shortcut thresholds. A player whose
// probability of controlling the ball first is below 10^-veto is ignored.
func (p *Params) derive() {
	p.lambdaDef = p.lambdaAtt * p.kappaDef
	spread := math.Sqrt(3) * p.ttiSigma / math.Pi
	p.timeToControlAtt = p.timeToControlVeto * math.Ln10 * (spread + 1/p.lambdaAtt)
	p.timeToControlDef = p.timeToControlVeto * math.Ln10 * (spread + 1/p.lambdaDef)
}

func (p Params) MaxPlayerSpeed() float64    { return p.maxPlayerSpeed }
func (p Params) ReactionTime() float64      { return p.reactionTime }
func (p Params) Sigma() float64             { return p.ttiSigma }
func (p Params) LambdaAtt() float64         { return p.lambdaAtt }
func (p Params) LambdaDef() float64         { return p.lambdaDef }
func (p Params) KappaDef() float64          { return p.kappaDef }
func (p Params) AverageBallSpeed() float64  { return p.averageBallSpeed }
func (p Params) IntDT() float64             { return p.intDT }
func (p Params) MaxIntTime() float64        { return p.maxIntTime }
func (p Params) ConvergeTol() float64       { return p.convergeTol }
func (p Params) TimeToControlVeto() float64 { return p.timeToControlVeto }
func (p Params) TimeToControlAtt() float64  { return p.timeToControlAtt }
func (p Params) TimeToControlDef() float64  { return p.timeToControlDef }

// MaxIntegrationSteps is the length of the integration time axis
// [btt-dt, btt+max_int_time) sampled every dt. It bounds every Solve call.
func (p Params) MaxIntegrationSteps() int {
	n := int(math.Ceil((p.maxIntTime+p.intDT)/p.intDT - 1e-9))
	if n < 2 {
		n = 2
	}
	return n
}

func (p Params) String() string {
	return fmt.Sprintf("vmax=%.2f reaction=%.2f sigma=%.2f lambda_att=%.2f lambda_def=%.2f ball=%.1f dt=%.3f horizon=%.1f tol=%.3f ttc_att=%.3f ttc_def=%.3f",
		p.maxPlayerSpeed, p.reactionTime, p.ttiSigma, p.lambdaAtt, p.lambdaDef,
		p.averageBallSpeed, p.intDT, p.maxIntTime, p.convergeTol,
		p.timeToControlAtt, p.timeToControlDef)
}
