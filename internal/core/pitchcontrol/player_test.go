package pitchcontrol

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opunsoars/pitchly/internal/core/tracking"
)

func TestTimeToIntercept(t *testing.T) {
	p := DefaultParams()

	cases := []struct {
		name   string
		player Player
		target tracking.Vec
		want   float64
	}{
		{"standing at target", Player{Position: tracking.Vec{X: 0, Y: 0}}, tracking.Vec{X: 0, Y: 0}, 0.7},
		{"standing 20m away", Player{Position: tracking.Vec{X: 20, Y: 0}}, tracking.Vec{X: 0, Y: 0}, 0.7 + 4},
		{
			"drifts during reaction",
			Player{Position: tracking.Vec{X: 0, Y: 0}, Velocity: tracking.Vec{X: 5, Y: 0}},
			tracking.Vec{X: 3.5, Y: 10},
			0.7 + 2,
		},
		{
			"running away from target",
			Player{Position: tracking.Vec{X: 0, Y: 0}, Velocity: tracking.Vec{X: -5, Y: 0}},
			tracking.Vec{X: 6.5, Y: 0},
			0.7 + 10.0/5,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, tc.player.TimeToIntercept(tc.target, p), 1e-12)
		})
	}
}

func TestProbabilityInterceptBall(t *testing.T) {
	p := DefaultParams()
	tti := 2.0

	assert.InDelta(t, 0.5, ProbabilityInterceptBall(tti, tti, p), 1e-12)
	assert.Less(t, ProbabilityInterceptBall(tti-3, tti, p), 1e-4)
	assert.Greater(t, ProbabilityInterceptBall(tti+3, tti, p), 1-1e-4)

	prev := 0.0
	for T := -1.0; T <= 6; T += 0.05 {
		f := ProbabilityInterceptBall(T, tti, p)
		assert.GreaterOrEqual(t, f, prev, "monotone at T=%.2f", T)
		assert.GreaterOrEqual(t, f, 0.0)
		assert.LessOrEqual(t, f, 1.0)
		prev = f
	}
}

func TestNewRoster(t *testing.T) {
	nan := math.NaN()
	kin := []tracking.Kinematics{
		{PlayerID: "Home_1", X: 1, Y: 2, VX: 0.5, VY: -0.5},
		{PlayerID: "Home_2", X: nan, Y: 3},
		{PlayerID: "Home_3", X: 4, Y: nan},
		{PlayerID: "Home_4", X: 5, Y: 6, VX: nan, VY: 1},
		{PlayerID: "home 1", X: 9, Y: 9},
		{PlayerID: "", X: 7, Y: 7},
	}

	r, err := NewRoster(tracking.Home, kin)
	require.NoError(t, err)

	assert.Equal(t, tracking.Home, r.Side)
	assert.Equal(t, []string{"home1", "home4", "home5"}, r.IDs())
	assert.Equal(t, tracking.Vec{X: 0.5, Y: -0.5}, r.Players[0].Velocity)
	assert.Equal(t, tracking.Vec{}, r.Players[1].Velocity, "missing velocity means standing still")
	assert.Equal(t, tracking.Vec{X: 1, Y: 2}, r.Players[0].Position, "first duplicate wins")
}

func TestNewRosterEmpty(t *testing.T) {
	_, err := NewRoster(tracking.Away, []tracking.Kinematics{{PlayerID: "a", X: math.NaN(), Y: math.NaN()}})
	assert.ErrorIs(t, err, ErrInvalidRoster)

	_, err = NewRoster(tracking.Away, nil)
	assert.ErrorIs(t, err, ErrInvalidRoster)
}
