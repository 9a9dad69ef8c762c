package main

import (
	"fmt"
)

// ===========================================================================
// ROLLING-CONTEXT INFERENCE
// ===========================================================================
//
// The caller owns the trajectory. Every environment step it passes the whole
// history in and gets one action back; nothing is remembered between calls.
//
// With MaxLength = W set, the history is turned into a fixed-width window:
//
//   L > W   keep the last W steps             mask = [1 1 ... 1]
//   L = W   keep everything                   mask = [1 1 ... 1]
//   L < W   left-pad W-L zero steps           mask = [0 .. 0 1 .. 1]
//                                                     W-L    L
//
// Padding steps are all zeros: zero state, zero action, zero return-to-go and
// timestep 0. The real steps always occupy the tail of the window, so the
// last position is always the most recent real step and that is the action
// that is returned.
//
// The mask describes the window but the decision model has no attention to
// apply it to; it is produced so callers that feed a masked model get the
// same window contract.
// ===========================================================================

// InferenceOptions configures GetAction.
type InferenceOptions struct {
	// MaxLength caps the context window. Zero means no cap: the whole
	// trajectory is forwarded and no mask is built.
	MaxLength int
}

// ContextWindow is the exact batch-of-one input handed to Forward.
type ContextWindow struct {
	States      *Tensor      // (1, S, state_dim)
	Actions     *Tensor      // (1, S, act_dim)
	ReturnsToGo *Tensor      // (1, S, 1)
	Timesteps   *IndexTensor // (1, S)

	// Mask is (1, MaxLength) with 1 for real steps and 0 for padding.
	// Nil when MaxLength is unset.
	Mask *IndexTensor

	// Start is the index of the first kept trajectory step.
	Start int

	// Padding is the number of zero steps prepended.
	Padding int
}

// Len returns the sequence length of the window.
func (w *ContextWindow) Len() int {
	return w.States.shape[1]
}

// PrepareContext validates a trajectory and builds the window GetAction
// would forward.
//
//	states      (L, state_dim)
//	actions     (L, act_dim)
//	returnsToGo (L, 1)
//	timesteps   length L
func PrepareContext(states, actions, returnsToGo *Tensor, timesteps []int, opts InferenceOptions) (*ContextWindow, error) {
	seqLen, err := trajectoryLength(states, actions, returnsToGo, timesteps)
	if err != nil {
		return nil, err
	}
	if opts.MaxLength < 0 {
		return nil, fmt.Errorf("%w: max_length must be >= 0, got %d", ErrInvalidConfig, opts.MaxLength)
	}

	w := &ContextWindow{}
	if w.States, err = states.Reshape(1, seqLen, states.shape[1]); err != nil {
		return nil, err
	}
	if w.Actions, err = actions.Reshape(1, seqLen, actions.shape[1]); err != nil {
		return nil, err
	}
	if w.ReturnsToGo, err = returnsToGo.Reshape(1, seqLen, 1); err != nil {
		return nil, err
	}
	if w.Timesteps, err = NewIndexTensor(timesteps, 1, seqLen); err != nil {
		return nil, err
	}

	if opts.MaxLength == 0 {
		return w, nil
	}

	maxLength := opts.MaxLength
	w.Start = max(0, seqLen-maxLength)
	kept := seqLen - w.Start
	w.Padding = maxLength - kept

	if w.Start > 0 {
		if w.States, err = w.States.Narrow(1, w.Start, kept); err != nil {
			return nil, err
		}
		if w.Actions, err = w.Actions.Narrow(1, w.Start, kept); err != nil {
			return nil, err
		}
		if w.ReturnsToGo, err = w.ReturnsToGo.Narrow(1, w.Start, kept); err != nil {
			return nil, err
		}
		if w.Timesteps, err = w.Timesteps.Narrow(1, w.Start, kept); err != nil {
			return nil, err
		}
	}

	if w.Padding > 0 {
		if w.States, err = w.States.PadLeft(1, w.Padding); err != nil {
			return nil, err
		}
		if w.Actions, err = w.Actions.PadLeft(1, w.Padding); err != nil {
			return nil, err
		}
		if w.ReturnsToGo, err = w.ReturnsToGo.PadLeft(1, w.Padding); err != nil {
			return nil, err
		}
		if w.Timesteps, err = w.Timesteps.PadLeft(1, w.Padding); err != nil {
			return nil, err
		}
	}

	w.Mask = paddingMask(maxLength, kept)

	logger.Debug().
		Int("seq_len", seqLen).
		Int("max_length", maxLength).
		Int("start", w.Start).
		Int("padding", w.Padding).
		Msg("prepared context window")

	return w, nil
}

// GetAction predicts the next action for a running trajectory.
//
// Only the action prediction at the last window position is returned, as a
// (act_dim) tensor; predicted states and returns are discarded.
func GetAction(model *DecisionTransformer, states, actions, returnsToGo *Tensor, timesteps []int, opts InferenceOptions) (*Tensor, error) {
	w, err := PrepareContext(states, actions, returnsToGo, timesteps, opts)
	if err != nil {
		return nil, err
	}

	_, actionPreds, _, err := model.Forward(w.States, w.Actions, w.ReturnsToGo, w.Timesteps)
	if err != nil {
		return nil, err
	}

	last, err := actionPreds.Narrow(1, actionPreds.shape[1]-1, 1)
	if err != nil {
		return nil, err
	}
	// (1, 1, act_dim) -> (1, act_dim) -> (act_dim)
	if last, err = last.Squeeze(1); err != nil {
		return nil, err
	}
	return last.Squeeze(0)
}

// paddingMask returns a (1, width) mask whose last real entries are 1.
func paddingMask(width, real int) *IndexTensor {
	data := make([]int, width)
	for i := width - real; i < width; i++ {
		data[i] = 1
	}
	mask, _ := NewIndexTensor(data, 1, width)
	return mask
}

// trajectoryLength checks that the four parallel sequences agree on length.
func trajectoryLength(states, actions, returnsToGo *Tensor, timesteps []int) (int, error) {
	if states == nil || actions == nil || returnsToGo == nil {
		return 0, fmt.Errorf("%w: trajectory tensors must not be nil", ErrShapeMismatch)
	}

	for _, in := range []struct {
		name string
		t    *Tensor
	}{
		{"states", states},
		{"actions", actions},
		{"returns_to_go", returnsToGo},
	} {
		if in.t.Dims() != 2 {
			return 0, fmt.Errorf("%w: %s must be rank 2 (seq, features), got shape %v", ErrShapeMismatch, in.name, in.t.shape)
		}
	}
	if returnsToGo.shape[1] != 1 {
		return 0, fmt.Errorf("%w: returns_to_go dim 1 is %d, want 1", ErrShapeMismatch, returnsToGo.shape[1])
	}

	seqLen := states.shape[0]
	if actions.shape[0] != seqLen {
		return 0, fmt.Errorf("%w: actions has %d steps, states has %d", ErrShapeMismatch, actions.shape[0], seqLen)
	}
	if returnsToGo.shape[0] != seqLen {
		return 0, fmt.Errorf("%w: returns_to_go has %d steps, states has %d", ErrShapeMismatch, returnsToGo.shape[0], seqLen)
	}
	if len(timesteps) != seqLen {
		return 0, fmt.Errorf("%w: timesteps has %d steps, states has %d", ErrShapeMismatch, len(timesteps), seqLen)
	}

	return seqLen, nil
}
