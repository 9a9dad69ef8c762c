package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// newActCommand predicts the next action for a trajectory file.
func newActCommand(state *cliState) *cobra.Command {
	var trajectoryPath string

	cmd := &cobra.Command{
		Use:   "act",
		Short: "Predict the next action for a trajectory file",
		Example: `  decision-transformer act --trajectory traj.yaml --max-length 20
  decision-transformer act --trajectory episode.cbor --device gonum`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if trajectoryPath == "" {
				return fmt.Errorf("--trajectory is required")
			}
			cfg := state.cfg

			traj, err := LoadTrajectory(trajectoryPath)
			if err != nil {
				return err
			}
			if err := traj.Validate(cfg.Model.StateDim, cfg.Model.ActDim, cfg.Model.MaxEpLen); err != nil {
				return fmt.Errorf("trajectory %s: %w", trajectoryPath, err)
			}

			model, err := NewDecisionTransformerFromConfig(cfg.Model, cfg.Compute)
			if err != nil {
				return err
			}

			states, actions, returnsToGo, timesteps, err := traj.Sequences(cfg.Model.StateDim, cfg.Model.ActDim)
			if err != nil {
				return err
			}
			action, err := GetAction(model, states, actions, returnsToGo, timesteps, InferenceOptions{MaxLength: cfg.Model.MaxLength})
			if err != nil {
				return err
			}

			logger.Info().
				Str("trajectory", trajectoryPath).
				Int("steps", traj.Len()).
				Int("max_length", cfg.Model.MaxLength).
				Str("device", string(model.Device())).
				Msg("predicted action")

			fmt.Fprintln(cmd.OutOrStdout(), formatVector(action.Data()))
			return nil
		},
	}

	cmd.Flags().StringVar(&trajectoryPath, "trajectory", "", "Trajectory file (.yaml, .yml or .cbor)")
	addModelFlags(cmd)
	return cmd
}

func formatVector(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%.6f", x)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
