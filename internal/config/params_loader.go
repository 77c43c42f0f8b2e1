package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/opunsoars/pitchly/internal/core/pitchcontrol"
)

// IntegrationParams overrides the numerical integration settings. Unset
// fields keep their defaults.
type IntegrationParams struct {
	DT          *float64 `yaml:"dt"`
	MaxTime     *float64 `yaml:"max_time"`
	ConvergeTol *float64 `yaml:"converge_tol"`
}

// ModelParams is the on-disk form of the model parameters. Every field is
// optional.
type ModelParams struct {
	MaxPlayerSpeed    *float64          `yaml:"max_player_speed"`
	ReactionTime      *float64          `yaml:"reaction_time"`
	Sigma             *float64          `yaml:"tti_sigma"`
	LambdaAtt         *float64          `yaml:"lambda_att"`
	KappaDef          *float64          `yaml:"kappa_def"`
	AverageBallSpeed  *float64          `yaml:"average_ball_speed"`
	TimeToControlVeto *float64          `yaml:"time_to_control_veto"`
	Integration       IntegrationParams `yaml:"integration"`
}

// LoadModelParams reads parameter overrides from path. A missing file is not
// an error and yields the defaults.
func LoadModelParams(path string) (pitchcontrol.Params, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return pitchcontrol.DefaultParams(), nil
	}
	if err != nil {
		return pitchcontrol.Params{}, fmt.Errorf("read model params: %w", err)
	}

	var mp ModelParams
	if err := yaml.Unmarshal(data, &mp); err != nil {
		return pitchcontrol.Params{}, fmt.Errorf("parse model params: %w", err)
	}

	p, err := pitchcontrol.NewParams(mp.Options()...)
	if err != nil {
		return pitchcontrol.Params{}, fmt.Errorf("model params %s: %w", path, err)
	}
	return p, nil
}

// Options converts the set fields into pitchcontrol options.
func (mp ModelParams) Options() []pitchcontrol.Option {
	var opts []pitchcontrol.Option
	if mp.MaxPlayerSpeed != nil {
		opts = append(opts, pitchcontrol.WithMaxPlayerSpeed(*mp.MaxPlayerSpeed))
	}
	if mp.ReactionTime != nil {
		opts = append(opts, pitchcontrol.WithReactionTime(*mp.ReactionTime))
	}
	if mp.Sigma != nil {
		opts = append(opts, pitchcontrol.WithSigma(*mp.Sigma))
	}
	if mp.LambdaAtt != nil {
		opts = append(opts, pitchcontrol.WithLambdaAtt(*mp.LambdaAtt))
	}
	if mp.KappaDef != nil {
		opts = append(opts, pitchcontrol.WithKappaDef(*mp.KappaDef))
	}
	if mp.AverageBallSpeed != nil {
		opts = append(opts, pitchcontrol.WithAverageBallSpeed(*mp.AverageBallSpeed))
	}
	if mp.TimeToControlVeto != nil {
		opts = append(opts, pitchcontrol.WithTimeToControlVeto(*mp.TimeToControlVeto))
	}

	in := mp.Integration
	if in.DT != nil || in.MaxTime != nil || in.ConvergeTol != nil {
		def := pitchcontrol.DefaultParams()
		dt, horizon, tol := def.IntDT(), def.MaxIntTime(), def.ConvergeTol()
		if in.DT != nil {
			dt = *in.DT
		}
		if in.MaxTime != nil {
			horizon = *in.MaxTime
		}
		if in.ConvergeTol != nil {
			tol = *in.ConvergeTol
		}
		opts = append(opts, pitchcontrol.WithIntegration(dt, horizon, tol))
	}
	return opts
}
