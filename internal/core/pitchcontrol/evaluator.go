package pitchcontrol

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opunsoars/pitchly/internal/core/tracking"
	"github.com/opunsoars/pitchly/internal/telemetry"
)

// Stats summarises how the cells of a surface were resolved.
type Stats struct {
	Cells           int           `json:"cells"`
	Contested       int           `json:"contested"`
	DominantAttack  int           `json:"dominant_attack"`
	DominantDefense int           `json:"dominant_defense"`
	NonConverged    int           `json:"non_converged"`
	MaxSteps        int           `json:"max_steps"`
	Checksum        float64       `json:"checksum"`
	Elapsed         time.Duration `json:"elapsed_ns"`
}

func (s *Stats) add(c Control) {
	s.Cells++
	switch c.Regime {
	case DominantAttack:
		s.DominantAttack++
	case DominantDefense:
		s.DominantDefense++
	default:
		s.Contested++
	}
	if !c.Converged {
		s.NonConverged++
	}
	if c.Steps > s.MaxSteps {
		s.MaxSteps = c.Steps
	}
}

func (s *Stats) merge(o Stats) {
	s.Cells += o.Cells
	s.Contested += o.Contested
	s.DominantAttack += o.DominantAttack
	s.DominantDefense += o.DominantDefense
	s.NonConverged += o.NonConverged
	if o.MaxSteps > s.MaxSteps {
		s.MaxSteps = o.MaxSteps
	}
}

// Surface is the pitch control field of one frame. Arrays are indexed
// [y][x], matching YGrid and XGrid.
type Surface struct {
	FrameID        int64                  `json:"frame_id"`
	EventID        int64                  `json:"event_id,omitempty"`
	Attacking      tracking.Side          `json:"attacking"`
	Ball           *tracking.Vec          `json:"ball,omitempty"`
	XGrid          []float64              `json:"xgrid"`
	YGrid          []float64              `json:"ygrid"`
	Attack         [][]float64            `json:"attack"`
	Defense        [][]float64            `json:"defense"`
	AttackPlayers  map[string][][]float64 `json:"attack_players,omitempty"`
	DefensePlayers map[string][][]float64 `json:"defense_players,omitempty"`
	Stats          Stats                  `json:"stats"`
}

// EvalOption configures an Evaluator.
type EvalOption func(*Evaluator)

// WithWorkers sets how many goroutines share the grid rows.
func WithWorkers(n int) EvalOption {
	return func(e *Evaluator) {
		if n > 0 {
			e.workers = n
		}
	}
}

func WithField(f Field) EvalOption { return func(e *Evaluator) { e.field = f } }
func WithCellsX(n int) EvalOption  { return func(e *Evaluator) { e.cellsX = n } }

// Evaluator turns frames into pitch control surfaces. It holds no state
// between calls and is safe for concurrent use.
type Evaluator struct {
	params  Params
	field   Field
	cellsX  int
	workers int
	grid    Grid
}

func NewEvaluator(p Params, opts ...EvalOption) (*Evaluator, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	e := &Evaluator{
		params:  p,
		field:   DefaultField,
		cellsX:  50,
		workers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(e)
	}
	grid, err := NewGrid(e.field, e.cellsX)
	if err != nil {
		return nil, err
	}
	e.grid = grid
	return e, nil
}

func (e *Evaluator) Params() Params { return e.params }
func (e *Evaluator) Grid() Grid     { return e.grid }

// EvaluateEvent evaluates the frame at the moment of ev: the event's team
// is in possession and the ball starts at the event location.
func (e *Evaluator) EvaluateEvent(ctx context.Context, ev tracking.Event, frame tracking.Frame, individual bool) (*Surface, error) {
	if frame.ID != ev.StartFrame {
		return nil, fmt.Errorf("event %d starts at frame %d, got frame %d", ev.ID, ev.StartFrame, frame.ID)
	}
	s, err := e.Evaluate(ctx, ev.Apply(frame), individual)
	if err != nil {
		return nil, fmt.Errorf("event %d: %w", ev.ID, err)
	}
	s.EventID = ev.ID
	return s, nil
}

// Evaluate computes the surface for one frame. Any fatal condition
// (empty roster, negative increment, failed checksum, cancelled ctx)
// returns an error and no surface.
func (e *Evaluator) Evaluate(ctx context.Context, frame tracking.Frame, individual bool) (*Surface, error) {
	start := time.Now()

	surf, err := e.evaluate(ctx, frame, individual)
	if err != nil {
		telemetry.Metrics.FramesRejected.Inc()
		if IsFatal(err) {
			telemetry.ForFrame(frame.ID).Error("pitch control rejected", "err", err)
		}
		return nil, err
	}

	surf.Stats.Elapsed = time.Since(start)
	telemetry.Metrics.FramesEvaluated.Inc()
	telemetry.Metrics.CellsEvaluated.Add(int64(surf.Stats.Cells))
	telemetry.Metrics.ShortcutCells.Add(int64(surf.Stats.DominantAttack + surf.Stats.DominantDefense))
	telemetry.Metrics.FrameLatency.Record(surf.Stats.Elapsed)

	if surf.Stats.NonConverged > 0 {
		telemetry.Metrics.NonConvergedCells.Add(int64(surf.Stats.NonConverged))
		telemetry.ForFrame(frame.ID).Warn("integration failed to converge",
			"cells", surf.Stats.NonConverged, "checksum", surf.Stats.Checksum)
	}
	telemetry.ForFrame(frame.ID).Debug("pitch control evaluated",
		"cells", surf.Stats.Cells, "contested", surf.Stats.Contested,
		"elapsed", surf.Stats.Elapsed)
	return surf, nil
}

func (e *Evaluator) evaluate(ctx context.Context, frame tracking.Frame, individual bool) (*Surface, error) {
	attKin, defKin, err := frame.Sides()
	if err != nil {
		return nil, err
	}
	attacking, err := NewRoster(frame.Attacking, attKin)
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w", frame.ID, err)
	}
	defending, err := NewRoster(frame.Attacking.Opponent(), defKin)
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w", frame.ID, err)
	}

	grid := e.grid
	nx, ny := len(grid.X), len(grid.Y)
	surf := &Surface{
		FrameID:   frame.ID,
		Attacking: frame.Attacking,
		Ball:      frame.Ball,
		XGrid:     append([]float64(nil), grid.X...),
		YGrid:     append([]float64(nil), grid.Y...),
		Attack:    newMatrix(ny, nx),
		Defense:   newMatrix(ny, nx),
	}
	var attCells, defCells [][][]float64
	if individual {
		surf.AttackPlayers, attCells = playerMatrices(attacking, ny, nx)
		surf.DefensePlayers, defCells = playerMatrices(defending, ny, nx)
	}

	workers := min(e.workers, ny)
	perWorker := make([]Stats, workers)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			solver := NewSolver(e.params, attacking, defending)
			st := &perWorker[w]
			for row := w; row < ny; row += workers {
				if err := gctx.Err(); err != nil {
					return err
				}
				y := grid.Y[row]
				for col, x := range grid.X {
					c, err := solver.Solve(tracking.Vec{X: x, Y: y}, frame.Ball)
					if err != nil {
						return fmt.Errorf("frame %d cell (%.2f, %.2f): %w", frame.ID, x, y, err)
					}
					surf.Attack[row][col] = c.Attack
					surf.Defense[row][col] = c.Defense
					st.add(c)

					if individual {
						for i, v := range solver.AttackContributions() {
							attCells[i][row][col] = v
						}
						for i, v := range solver.DefenseContributions() {
							defCells[i][row][col] = v
						}
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, st := range perWorker {
		surf.Stats.merge(st)
	}

	surf.Stats.Checksum = checksum(surf.Attack, surf.Defense)
	if !(math.Abs(1-surf.Stats.Checksum) < e.params.convergeTol) {
		telemetry.Metrics.ConservationFailures.Inc()
		return nil, fmt.Errorf("frame %d: %w: %1.3f", frame.ID, ErrConservationViolation, 1-surf.Stats.Checksum)
	}
	return surf, nil
}

// playerMatrices allocates one [y][x] array per roster player. The slice
// is in roster order so workers can index it without touching the map.
func playerMatrices(r Roster, ny, nx int) (map[string][][]float64, [][][]float64) {
	byID := make(map[string][][]float64, len(r.Players))
	ordered := make([][][]float64, len(r.Players))
	for i, pl := range r.Players {
		m := newMatrix(ny, nx)
		byID[pl.ID] = m
		ordered[i] = m
	}
	return byID, ordered
}

// checksum is mean(attack + defense) over the grid.
func checksum(attack, defense [][]float64) float64 {
	var sum float64
	var n int
	for i := range attack {
		for j := range attack[i] {
			sum += attack[i][j] + defense[i][j]
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
