package main

import (
	"fmt"
)

// RolloutOptions configures RunEpisode.
type RolloutOptions struct {
	TargetReturn float64
	MaxLength    int
	EpisodeID    string
}

// EpisodeResult summarizes one rollout.
type EpisodeResult struct {
	Trajectory  *Trajectory
	TotalReward float64
	Steps       int
}

// RunEpisode drives env with the model until the episode ends.
//
// Each step the current observation is appended with a zero action and the
// remaining return-to-go, GetAction is called on the whole history, and the
// placeholder is replaced by the one-hot encoding of the chosen action.
// The reward received is then subtracted from the return-to-go.
func RunEpisode(model *DecisionTransformer, env *CartPole, opts RolloutOptions) (*EpisodeResult, error) {
	if model.StateDim() != CartPoleStateDim || model.ActDim() != CartPoleActions {
		return nil, fmt.Errorf("%w: cart-pole needs state_dim=%d act_dim=%d, model has %d and %d",
			ErrInvalidConfig, CartPoleStateDim, CartPoleActions, model.StateDim(), model.ActDim())
	}

	traj := &Trajectory{ID: opts.EpisodeID}
	obs := env.Reset()
	rtg := opts.TargetReturn
	total := 0.0

	for {
		timestep := min(env.Steps(), model.MaxEpLen()-1)
		traj.Append(Step{
			State:      obs,
			Action:     make([]float64, model.ActDim()),
			ReturnToGo: rtg,
			Timestep:   timestep,
		})

		states, actions, returnsToGo, timesteps, err := traj.Sequences(model.StateDim(), model.ActDim())
		if err != nil {
			return nil, err
		}
		pred, err := GetAction(model, states, actions, returnsToGo, timesteps, InferenceOptions{MaxLength: opts.MaxLength})
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", env.Steps(), err)
		}

		action := argmax(pred.Data())
		last := traj.Last()
		last.Action[action] = 1

		next, reward, done := env.Step(action)
		last.Reward = reward
		total += reward
		rtg -= reward
		obs = next

		logger.Debug().
			Str("episode_id", opts.EpisodeID).
			Int("step", env.Steps()).
			Int("action", action).
			Float64("return_to_go", rtg).
			Msg("rollout step")

		if done {
			break
		}
	}

	return &EpisodeResult{Trajectory: traj, TotalReward: total, Steps: env.Steps()}, nil
}
