package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"
)

// Step is one trajectory step as seen by the caller.
type Step struct {
	State      []float64 `yaml:"state" cbor:"state"`
	Action     []float64 `yaml:"action" cbor:"action"`
	ReturnToGo float64   `yaml:"return_to_go" cbor:"return_to_go"`
	Timestep   int       `yaml:"timestep" cbor:"timestep"`
	Reward     float64   `yaml:"reward,omitempty" cbor:"reward,omitempty"`
}

// Trajectory is the caller-owned running history fed to GetAction.
type Trajectory struct {
	ID    string `yaml:"id,omitempty" cbor:"id,omitempty"`
	Steps []Step `yaml:"steps" cbor:"steps"`
}

// Append adds a step to the end of the trajectory.
func (t *Trajectory) Append(s Step) {
	t.Steps = append(t.Steps, s)
}

// Len returns the number of steps.
func (t *Trajectory) Len() int {
	return len(t.Steps)
}

// Last returns a pointer to the most recent step, or nil if empty.
func (t *Trajectory) Last() *Step {
	if len(t.Steps) == 0 {
		return nil
	}
	return &t.Steps[len(t.Steps)-1]
}

// Validate checks every step against the model dimensions.
func (t *Trajectory) Validate(stateDim, actDim, maxEpLen int) error {
	if len(t.Steps) == 0 {
		return fmt.Errorf("%w: trajectory has no steps", ErrInvalidShape)
	}
	for i, s := range t.Steps {
		if len(s.State) != stateDim {
			return fmt.Errorf("%w: step %d state has %d values, want %d", ErrShapeMismatch, i, len(s.State), stateDim)
		}
		if len(s.Action) != actDim {
			return fmt.Errorf("%w: step %d action has %d values, want %d", ErrShapeMismatch, i, len(s.Action), actDim)
		}
		if s.Timestep < 0 || s.Timestep >= maxEpLen {
			return fmt.Errorf("%w: step %d timestep %d out of range [0,%d)", ErrInvalidIndex, i, s.Timestep, maxEpLen)
		}
	}
	return nil
}

// Sequences converts the trajectory into the four parallel inputs of
// GetAction: states (L, state_dim), actions (L, act_dim), returns-to-go
// (L, 1) and timesteps.
func (t *Trajectory) Sequences(stateDim, actDim int) (states, actions, returnsToGo *Tensor, timesteps []int, err error) {
	n := len(t.Steps)
	if n == 0 {
		return nil, nil, nil, nil, fmt.Errorf("%w: trajectory has no steps", ErrInvalidShape)
	}

	stateData := make([]float64, 0, n*stateDim)
	actionData := make([]float64, 0, n*actDim)
	rtgData := make([]float64, n)
	timesteps = make([]int, n)

	for i, s := range t.Steps {
		if len(s.State) != stateDim {
			return nil, nil, nil, nil, fmt.Errorf("%w: step %d state has %d values, want %d", ErrShapeMismatch, i, len(s.State), stateDim)
		}
		if len(s.Action) != actDim {
			return nil, nil, nil, nil, fmt.Errorf("%w: step %d action has %d values, want %d", ErrShapeMismatch, i, len(s.Action), actDim)
		}
		stateData = append(stateData, s.State...)
		actionData = append(actionData, s.Action...)
		rtgData[i] = s.ReturnToGo
		timesteps[i] = s.Timestep
	}

	if states, err = NewTensorFromData(stateData, n, stateDim); err != nil {
		return nil, nil, nil, nil, err
	}
	if actions, err = NewTensorFromData(actionData, n, actDim); err != nil {
		return nil, nil, nil, nil, err
	}
	if returnsToGo, err = NewTensorFromData(rtgData, n, 1); err != nil {
		return nil, nil, nil, nil, err
	}
	return states, actions, returnsToGo, timesteps, nil
}

// ReturnsToGo computes the cumulative future reward from each step onward:
// rtg[i] = rewards[i] + rewards[i+1] + ... + rewards[n-1].
func ReturnsToGo(rewards []float64) []float64 {
	rtg := make([]float64, len(rewards))
	acc := 0.0
	for i := len(rewards) - 1; i >= 0; i-- {
		acc += rewards[i]
		rtg[i] = acc
	}
	return rtg
}

// FillReturnsToGo overwrites every step's ReturnToGo from its Reward.
func (t *Trajectory) FillReturnsToGo() {
	rewards := make([]float64, len(t.Steps))
	for i, s := range t.Steps {
		rewards[i] = s.Reward
	}
	for i, r := range ReturnsToGo(rewards) {
		t.Steps[i].ReturnToGo = r
	}
}

// ===========================================================================
// Trajectory files
// ===========================================================================
//
// YAML (.yaml, .yml) for hand-written inputs, CBOR (.cbor) for recorded
// rollouts. The format is chosen by file extension.

type trajectoryFormat int

const (
	formatYAML trajectoryFormat = iota
	formatCBOR
)

func formatFor(path string) (trajectoryFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML, nil
	case ".cbor":
		return formatCBOR, nil
	default:
		return 0, fmt.Errorf("unsupported trajectory file extension %q (want .yaml, .yml or .cbor)", filepath.Ext(path))
	}
}

// MarshalTrajectory encodes t for the format implied by path.
func MarshalTrajectory(path string, t *Trajectory) ([]byte, error) {
	format, err := formatFor(path)
	if err != nil {
		return nil, err
	}
	if format == formatCBOR {
		return cbor.Marshal(t)
	}
	return yaml.Marshal(t)
}

// UnmarshalTrajectory decodes data in the format implied by path.
func UnmarshalTrajectory(path string, data []byte) (*Trajectory, error) {
	format, err := formatFor(path)
	if err != nil {
		return nil, err
	}

	t := &Trajectory{}
	if format == formatCBOR {
		err = cbor.Unmarshal(data, t)
	} else {
		err = yaml.Unmarshal(data, t)
	}
	if err != nil {
		return nil, fmt.Errorf("decode trajectory %s: %w", path, err)
	}
	return t, nil
}

// LoadTrajectory reads a trajectory file.
func LoadTrajectory(path string) (*Trajectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trajectory: %w", err)
	}
	return UnmarshalTrajectory(path, data)
}

// SaveTrajectory writes a trajectory file.
func SaveTrajectory(path string, t *Trajectory) error {
	data, err := MarshalTrajectory(path, t)
	if err != nil {
		return fmt.Errorf("encode trajectory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write trajectory: %w", err)
	}
	return nil
}
