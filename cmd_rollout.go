package main

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// newRolloutCommand drives the cart-pole environment with the model.
func newRolloutCommand(state *cliState) *cobra.Command {
	var (
		episodes     int
		targetReturn float64
		envSeed      int64
		recordPath   string
	)

	cmd := &cobra.Command{
		Use:   "rollout",
		Short: "Run cart-pole episodes with rolling-context inference",
		Long: `Runs cart-pole episodes. Every step the whole trajectory so far is passed
to the model, which sees only the last --max-length steps; the predicted
action vector is turned into a discrete action with argmax.

Parameters are randomly initialized, so episode returns reflect an untrained
policy; the command exercises the inference path end to end.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if episodes <= 0 {
				return fmt.Errorf("--episodes must be positive")
			}
			cfg := state.cfg

			model, err := NewDecisionTransformerFromConfig(cfg.Model, cfg.Compute)
			if err != nil {
				return err
			}
			env := NewCartPole(rand.New(rand.NewSource(envSeed)))

			var last *EpisodeResult
			total := 0.0
			for i := 0; i < episodes; i++ {
				episodeID := uuid.NewString()
				result, err := RunEpisode(model, env, RolloutOptions{
					TargetReturn: targetReturn,
					MaxLength:    cfg.Model.MaxLength,
					EpisodeID:    episodeID,
				})
				if err != nil {
					return fmt.Errorf("episode %s: %w", episodeID, err)
				}
				total += result.TotalReward
				last = result

				logger.Info().
					Str("episode_id", episodeID).
					Int("steps", result.Steps).
					Float64("return", result.TotalReward).
					Msg("episode finished")
			}

			fmt.Fprintf(cmd.OutOrStdout(), "episodes=%d mean_return=%.2f\n", episodes, total/float64(episodes))

			if recordPath != "" {
				if err := SaveTrajectory(recordPath, last.Trajectory); err != nil {
					return err
				}
				logger.Info().Str("path", recordPath).Str("episode_id", last.Trajectory.ID).Msg("recorded trajectory")
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&episodes, "episodes", 1, "Number of episodes to run")
	f.Float64Var(&targetReturn, "target-return", CartPoleMaxSteps, "Initial return-to-go")
	f.Int64Var(&envSeed, "env-seed", 7, "Seed for environment resets")
	f.StringVar(&recordPath, "record", "", "Write the last episode's trajectory to this file (.cbor or .yaml)")
	addModelFlags(cmd)
	return cmd
}
