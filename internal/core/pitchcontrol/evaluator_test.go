package pitchcontrol

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opunsoars/pitchly/internal/core/tracking"
)

// sampleFrame is a build-up phase: home in a 4-3-3 moving up the pitch,
// away in a mid block. One away player is off the pitch (NaN) and one
// home player has no velocity.
func sampleFrame() tracking.Frame {
	nan := math.NaN()
	home := []tracking.Kinematics{
		{PlayerID: "Home_1", X: -48, Y: 0, VX: 0.2, VY: 0},
		{PlayerID: "Home_2", X: -25, Y: -28, VX: 2, VY: 0.5},
		{PlayerID: "Home_3", X: -32, Y: -9, VX: 1, VY: 0},
		{PlayerID: "Home_4", X: -32, Y: 9, VX: 1, VY: 0},
		{PlayerID: "Home_5", X: -25, Y: 28, VX: 2, VY: -0.5},
		{PlayerID: "Home_6", X: -12, Y: 0, VX: nan, VY: nan},
		{PlayerID: "Home_7", X: -5, Y: -15, VX: 3, VY: 0},
		{PlayerID: "Home_8", X: -5, Y: 15, VX: 3, VY: -1},
		{PlayerID: "Home_9", X: 12, Y: -24, VX: 4, VY: 1},
		{PlayerID: "Home_10", X: 15, Y: 2, VX: 2.5, VY: 0},
		{PlayerID: "Home_11", X: 12, Y: 24, VX: 4, VY: -1},
	}
	away := []tracking.Kinematics{
		{PlayerID: "Away_25", X: 49, Y: 0, VX: 0, VY: 0},
		{PlayerID: "Away_15", X: 30, Y: -20, VX: -1, VY: 0},
		{PlayerID: "Away_16", X: 32, Y: -6, VX: -1, VY: 0},
		{PlayerID: "Away_17", X: 32, Y: 6, VX: -1, VY: 0},
		{PlayerID: "Away_18", X: 30, Y: 20, VX: -1, VY: 0},
		{PlayerID: "Away_19", X: 18, Y: -12, VX: -2, VY: 0.5},
		{PlayerID: "Away_20", X: 16, Y: 0, VX: -2, VY: 0},
		{PlayerID: "Away_21", X: 18, Y: 12, VX: -2, VY: -0.5},
		{PlayerID: "Away_22", X: 5, Y: -8, VX: -3, VY: 0},
		{PlayerID: "Away_23", X: 5, Y: 8, VX: -3, VY: 0},
		{PlayerID: "Away_24", X: nan, Y: nan, VX: nan, VY: nan},
	}
	return tracking.Frame{
		ID:        1234,
		Period:    1,
		Time:      49.36,
		Attacking: tracking.Home,
		Ball:      &tracking.Vec{X: -12, Y: 0.5},
		Home:      home,
		Away:      away,
	}
}

func newTestEvaluator(t *testing.T, opts ...EvalOption) *Evaluator {
	t.Helper()
	opts = append([]EvalOption{WithCellsX(32), WithWorkers(4)}, opts...)
	e, err := NewEvaluator(DefaultParams(), opts...)
	require.NoError(t, err)
	return e
}

func TestNewGridAxes(t *testing.T) {
	g, err := NewGrid(Field{Length: 106, Width: 68}, 50)
	require.NoError(t, err)

	require.Len(t, g.X, 50)
	require.Len(t, g.Y, 32)
	assert.Equal(t, -53.0, g.X[0])
	assert.Equal(t, 53.0, g.X[49])
	assert.Equal(t, -34.0, g.Y[0])
	assert.Equal(t, 34.0, g.Y[31])
	assert.InDelta(t, 106.0/49, g.X[1]-g.X[0], 1e-12)
	assert.Equal(t, 1600, g.Cells())
}

func TestNewGridInvalid(t *testing.T) {
	_, err := NewGrid(DefaultField, 0)
	assert.ErrorIs(t, err, ErrInvalidGrid)

	_, err = NewGrid(DefaultField, 1)
	assert.ErrorIs(t, err, ErrInvalidGrid, "one column leaves no rows on a 106x68 field")

	_, err = NewGrid(Field{Length: 0, Width: 68}, 50)
	assert.ErrorIs(t, err, ErrInvalidGrid)

	_, err = NewEvaluator(DefaultParams(), WithCellsX(-3))
	assert.ErrorIs(t, err, ErrInvalidGrid)
}

func TestNewEvaluatorRejectsZeroParams(t *testing.T) {
	_, err := NewEvaluator(Params{})
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestEvaluateFrame(t *testing.T) {
	e := newTestEvaluator(t)
	frame := sampleFrame()

	surf, err := e.Evaluate(context.Background(), frame, false)
	require.NoError(t, err)

	ny, nx := len(surf.YGrid), len(surf.XGrid)
	assert.Equal(t, 32, nx)
	assert.Equal(t, 20, ny)
	require.Len(t, surf.Attack, ny)
	require.Len(t, surf.Defense, ny)
	assert.Nil(t, surf.AttackPlayers)
	assert.Equal(t, int64(1234), surf.FrameID)
	assert.Equal(t, tracking.Home, surf.Attacking)

	for i := range surf.Attack {
		require.Len(t, surf.Attack[i], nx)
		for j := range surf.Attack[i] {
			a, d := surf.Attack[i][j], surf.Defense[i][j]
			assert.GreaterOrEqual(t, a, 0.0)
			assert.GreaterOrEqual(t, d, 0.0)
			assert.InDelta(t, 1.0, a+d, e.Params().ConvergeTol(), "cell (%d,%d)", i, j)
		}
	}

	assert.Equal(t, nx*ny, surf.Stats.Cells)
	assert.Equal(t, surf.Stats.Cells, surf.Stats.Contested+surf.Stats.DominantAttack+surf.Stats.DominantDefense)
	assert.Greater(t, surf.Stats.DominantAttack, 0, "home own half")
	assert.Greater(t, surf.Stats.DominantDefense, 0, "away goal area")
	assert.InDelta(t, 1.0, surf.Stats.Checksum, e.Params().ConvergeTol())

	// Home keeper's corner belongs to home, away keeper's to away.
	assert.Greater(t, surf.Attack[ny/2][0], 0.9)
	assert.Less(t, surf.Attack[ny/2][nx-1], 0.1)
}

func TestEvaluateMatchesSerialSolve(t *testing.T) {
	frame := sampleFrame()
	parallel, err := newTestEvaluator(t, WithWorkers(7)).Evaluate(context.Background(), frame, false)
	require.NoError(t, err)
	serial, err := newTestEvaluator(t, WithWorkers(1)).Evaluate(context.Background(), frame, false)
	require.NoError(t, err)

	assert.Equal(t, serial.Attack, parallel.Attack)
	assert.Equal(t, serial.Defense, parallel.Defense)

	att, err := NewRoster(tracking.Home, frame.Home)
	require.NoError(t, err)
	def, err := NewRoster(tracking.Away, frame.Away)
	require.NoError(t, err)
	ev, err := ControlAtTarget(tracking.Vec{X: serial.XGrid[5], Y: serial.YGrid[3]}, frame.Ball, att, def, DefaultParams(), false)
	require.NoError(t, err)
	assert.Equal(t, ev.Attack, serial.Attack[3][5])
}

func TestEvaluateIndividualSumsToSide(t *testing.T) {
	e := newTestEvaluator(t)
	surf, err := e.Evaluate(context.Background(), sampleFrame(), true)
	require.NoError(t, err)

	assert.Len(t, surf.AttackPlayers, 11)
	assert.Len(t, surf.DefensePlayers, 10, "off-pitch player has no surface")
	require.Contains(t, surf.AttackPlayers, "home10")

	for i := range surf.Attack {
		for j := range surf.Attack[i] {
			var sa, sd float64
			for _, m := range surf.AttackPlayers {
				sa += m[i][j]
			}
			for _, m := range surf.DefensePlayers {
				sd += m[i][j]
			}
			assert.InDelta(t, surf.Attack[i][j], sa, 1e-9, "attack cell (%d,%d)", i, j)
			assert.InDelta(t, surf.Defense[i][j], sd, 1e-9, "defense cell (%d,%d)", i, j)
		}
	}
}

func TestEvaluateAwayAttacking(t *testing.T) {
	e := newTestEvaluator(t)
	frame := sampleFrame()
	home, err := e.Evaluate(context.Background(), frame, false)
	require.NoError(t, err)

	frame.Attacking = tracking.Away
	away, err := e.Evaluate(context.Background(), frame, false)
	require.NoError(t, err)
	assert.Equal(t, tracking.Away, away.Attacking)

	ny, nx := len(home.YGrid), len(home.XGrid)
	assert.Less(t, away.Attack[ny/2][0], 0.1, "home keeper area is now defended")
	assert.Greater(t, away.Attack[ny/2][nx-1], 0.9)
}

func TestEvaluateEvent(t *testing.T) {
	e := newTestEvaluator(t)
	frame := sampleFrame()
	start := tracking.Vec{X: 20, Y: -3}
	ev := tracking.Event{ID: 88, Type: "PASS", Team: tracking.Away, StartFrame: frame.ID, Start: &start}

	surf, err := e.EvaluateEvent(context.Background(), ev, frame, false)
	require.NoError(t, err)
	assert.Equal(t, int64(88), surf.EventID)
	assert.Equal(t, tracking.Away, surf.Attacking)
	require.NotNil(t, surf.Ball)
	assert.Equal(t, start, *surf.Ball)

	ev.StartFrame = frame.ID + 1
	_, err = e.EvaluateEvent(context.Background(), ev, frame, false)
	assert.Error(t, err)
}

func TestEvaluateInvalidRoster(t *testing.T) {
	e := newTestEvaluator(t)
	frame := sampleFrame()
	for i := range frame.Away {
		frame.Away[i].X = math.NaN()
	}

	surf, err := e.Evaluate(context.Background(), frame, false)
	assert.Nil(t, surf)
	assert.ErrorIs(t, err, ErrInvalidRoster)
	assert.True(t, IsFatal(err))
}

func TestEvaluateNoAttackingSide(t *testing.T) {
	frame := sampleFrame()
	frame.Attacking = ""
	surf, err := newTestEvaluator(t).Evaluate(context.Background(), frame, false)
	assert.Nil(t, surf)
	assert.ErrorIs(t, err, tracking.ErrNoAttackingSide)
}

func TestEvaluateConservationViolation(t *testing.T) {
	// A 0.2s horizon cannot get anywhere near full control when every cell
	// is contested by two players standing next to each other.
	p, err := NewParams(WithIntegration(0.04, 0.2, 0.01))
	require.NoError(t, err)
	e, err := NewEvaluator(p, WithCellsX(16), WithWorkers(2))
	require.NoError(t, err)

	frame := tracking.Frame{
		ID:        9,
		Attacking: tracking.Home,
		Home:      []tracking.Kinematics{{PlayerID: "h", X: -1, Y: 0}},
		Away:      []tracking.Kinematics{{PlayerID: "a", X: 1, Y: 0}},
	}
	surf, err := e.Evaluate(context.Background(), frame, false)
	assert.Nil(t, surf)
	assert.ErrorIs(t, err, ErrConservationViolation)
}

func TestEvaluateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	surf, err := newTestEvaluator(t).Evaluate(ctx, sampleFrame(), false)
	assert.Nil(t, surf)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvaluateDoesNotMutateFrame(t *testing.T) {
	frame := sampleFrame()
	before := len(frame.Home)
	_, err := newTestEvaluator(t).Evaluate(context.Background(), frame, true)
	require.NoError(t, err)
	assert.Len(t, frame.Home, before)
	assert.Equal(t, "Home_1", frame.Home[0].PlayerID)
}
