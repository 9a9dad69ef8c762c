package main

import (
	"fmt"
	"math/rand"
)

// ===========================================================================
// WHAT'S GOING ON HERE
// ===========================================================================
//
// A return-conditioned sequence model in the Decision Transformer family.
//
// Each trajectory step is (return-to-go, state, action, timestep). Instead of
// learning a value function, the model is asked: "given that I want this much
// return from here on, and this is what I've seen, what do I do next?"
//
// ARCHITECTURE:
//
//   returns (B,S,1)        --embed_return-->  (B,S,H) --+
//   states  (B,S,state)    --embed_state--->  (B,S,H) --+
//   actions (B,S,act)      --embed_action-->  (B,S,H) --+--> sum --> LayerNorm --+
//   timesteps (B,S) int    --embed_timestep-> (B,S,H) --+                        |
//                                                                                 |
//        +------------------------------+-------------------------------+--------+
//        v                              v                               v
//   predict_state (B,S,state)   predict_action (B,S,act)   predict_return (B,S,1)
//
// The four embeddings are fused by element-wise SUM. There is no attention
// over the sequence in this model, so each position is predicted from its own
// step only; the timestep embedding plays the role a position embedding plays
// in a language model (compare token+position embedding in GPT).
//
// The attention mask built by GetAction is therefore not an input here.
//
// RECOMMENDED READING:
// - "Decision Transformer: Reinforcement Learning via Sequence Modeling"
//   by Chen et al. (2021) https://arxiv.org/abs/2106.01345
// ===========================================================================

// DecisionTransformer owns the eight learned sub-modules of the model.
// Parameters are read-only after construction, so a model may be shared by
// concurrent callers.
type DecisionTransformer struct {
	stateDim   int
	actDim     int
	hiddenSize int
	maxEpLen   int
	device     Device

	embedTimestep *Embedding
	embedReturn   *Linear
	embedState    *Linear
	embedAction   *Linear
	embedLN       *LayerNorm

	predictState  *Linear
	predictAction *Linear
	predictReturn *Linear
}

// modelOptions collects optional construction settings.
type modelOptions struct {
	rng     *rand.Rand
	compute ComputeConfig
}

// ModelOption customizes model construction.
type ModelOption func(*modelOptions)

// WithRand makes parameter initialization draw from rng.
func WithRand(rng *rand.Rand) ModelOption {
	return func(o *modelOptions) { o.rng = rng }
}

// WithComputeConfig sets the parallelism of the cpu device.
func WithComputeConfig(cfg ComputeConfig) ModelOption {
	return func(o *modelOptions) { o.compute = cfg }
}

// NewDecisionTransformer allocates and randomly initializes a model.
//
// Any non-positive dimension or unknown device is a configuration error.
func NewDecisionTransformer(device Device, stateDim, actDim, hiddenSize, maxEpLen int, opts ...ModelOption) (*DecisionTransformer, error) {
	o := modelOptions{compute: DefaultComputeConfig()}
	for _, opt := range opts {
		opt(&o)
	}

	for _, d := range []struct {
		name  string
		value int
	}{
		{"state_dim", stateDim},
		{"act_dim", actDim},
		{"hidden_size", hiddenSize},
		{"max_ep_len", maxEpLen},
	} {
		if d.value <= 0 {
			return nil, fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidConfig, d.name, d.value)
		}
	}

	backend, err := NewBackend(device, o.compute)
	if err != nil {
		return nil, err
	}

	dt := &DecisionTransformer{
		stateDim:   stateDim,
		actDim:     actDim,
		hiddenSize: hiddenSize,
		maxEpLen:   maxEpLen,
		device:     backend.Device(),
	}

	if dt.embedTimestep, err = NewEmbedding("embed_timestep", maxEpLen, hiddenSize, o.rng); err != nil {
		return nil, err
	}
	if dt.embedReturn, err = NewLinear("embed_return", 1, hiddenSize, backend, o.rng); err != nil {
		return nil, err
	}
	if dt.embedState, err = NewLinear("embed_state", stateDim, hiddenSize, backend, o.rng); err != nil {
		return nil, err
	}
	if dt.embedAction, err = NewLinear("embed_action", actDim, hiddenSize, backend, o.rng); err != nil {
		return nil, err
	}
	if dt.embedLN, err = NewLayerNorm("embed_ln", hiddenSize); err != nil {
		return nil, err
	}
	if dt.predictState, err = NewLinear("predict_state", hiddenSize, stateDim, backend, o.rng); err != nil {
		return nil, err
	}
	if dt.predictAction, err = NewLinear("predict_action", hiddenSize, actDim, backend, o.rng); err != nil {
		return nil, err
	}
	if dt.predictReturn, err = NewLinear("predict_return", hiddenSize, 1, backend, o.rng); err != nil {
		return nil, err
	}

	return dt, nil
}

// NewDecisionTransformerFromConfig builds a model from the model section of
// the CLI configuration.
func NewDecisionTransformerFromConfig(cfg ModelConfig, compute ComputeConfig) (*DecisionTransformer, error) {
	device, err := ParseDevice(cfg.Device)
	if err != nil {
		return nil, err
	}
	return NewDecisionTransformer(device, cfg.StateDim, cfg.ActDim, cfg.HiddenSize, cfg.MaxEpLen,
		WithRand(rand.New(rand.NewSource(cfg.Seed))),
		WithComputeConfig(compute),
	)
}

// StateDim returns the state width.
func (dt *DecisionTransformer) StateDim() int { return dt.stateDim }

// ActDim returns the action width.
func (dt *DecisionTransformer) ActDim() int { return dt.actDim }

// HiddenSize returns the common embedding width.
func (dt *DecisionTransformer) HiddenSize() int { return dt.hiddenSize }

// MaxEpLen returns the number of rows in the timestep embedding table.
func (dt *DecisionTransformer) MaxEpLen() int { return dt.maxEpLen }

// Device returns the compute device the model runs its projections on.
func (dt *DecisionTransformer) Device() Device { return dt.device }

// Forward predicts next state, action and return for every input position.
//
//	states      (B, S, state_dim)
//	actions     (B, S, act_dim)
//	returnsToGo (B, S, 1)
//	timesteps   (B, S), values in [0, max_ep_len)
//
// Outputs mirror the input modalities: (B, S, state_dim), (B, S, act_dim),
// (B, S, 1).
func (dt *DecisionTransformer) Forward(states, actions, returnsToGo *Tensor, timesteps *IndexTensor) (statePreds, actionPreds, returnPreds *Tensor, err error) {
	if err := dt.checkInputs(states, actions, returnsToGo, timesteps); err != nil {
		return nil, nil, nil, err
	}

	stateEmb, err := dt.embedState.Forward(states)
	if err != nil {
		return nil, nil, nil, err
	}
	actionEmb, err := dt.embedAction.Forward(actions)
	if err != nil {
		return nil, nil, nil, err
	}
	returnEmb, err := dt.embedReturn.Forward(returnsToGo)
	if err != nil {
		return nil, nil, nil, err
	}
	timeEmb, err := dt.embedTimestep.Forward(timesteps)
	if err != nil {
		return nil, nil, nil, err
	}

	fused, err := Sum(stateEmb, timeEmb, actionEmb, returnEmb)
	if err != nil {
		return nil, nil, nil, err
	}
	fused, err = dt.embedLN.Forward(fused)
	if err != nil {
		return nil, nil, nil, err
	}

	if returnPreds, err = dt.predictReturn.Forward(fused); err != nil {
		return nil, nil, nil, err
	}
	if statePreds, err = dt.predictState.Forward(fused); err != nil {
		return nil, nil, nil, err
	}
	if actionPreds, err = dt.predictAction.Forward(fused); err != nil {
		return nil, nil, nil, err
	}

	return statePreds, actionPreds, returnPreds, nil
}

// checkInputs validates ranks and the shared (batch, seq) prefix up front so
// that a mismatch is reported against the input that caused it.
func (dt *DecisionTransformer) checkInputs(states, actions, returnsToGo *Tensor, timesteps *IndexTensor) error {
	if states == nil || actions == nil || returnsToGo == nil || timesteps == nil {
		return fmt.Errorf("%w: forward inputs must not be nil", ErrShapeMismatch)
	}

	for _, in := range []struct {
		name  string
		shape []int
		width int
	}{
		{"states", states.shape, dt.stateDim},
		{"actions", actions.shape, dt.actDim},
		{"returns_to_go", returnsToGo.shape, 1},
	} {
		if len(in.shape) != 3 {
			return fmt.Errorf("%w: %s must be rank 3 (batch, seq, %d), got shape %v", ErrShapeMismatch, in.name, in.width, in.shape)
		}
		if in.shape[2] != in.width {
			return fmt.Errorf("%w: %s dim 2 is %d, want %d", ErrShapeMismatch, in.name, in.shape[2], in.width)
		}
	}

	if len(timesteps.shape) != 2 {
		return fmt.Errorf("%w: timesteps must be rank 2 (batch, seq), got shape %v", ErrShapeMismatch, timesteps.shape)
	}

	batch, seq := states.shape[0], states.shape[1]
	for _, in := range []struct {
		name  string
		shape []int
	}{
		{"actions", actions.shape},
		{"returns_to_go", returnsToGo.shape},
		{"timesteps", timesteps.shape},
	} {
		if in.shape[0] != batch {
			return fmt.Errorf("%w: %s batch dim is %d, states has %d", ErrShapeMismatch, in.name, in.shape[0], batch)
		}
		if in.shape[1] != seq {
			return fmt.Errorf("%w: %s sequence dim is %d, states has %d", ErrShapeMismatch, in.name, in.shape[1], seq)
		}
	}

	return nil
}
