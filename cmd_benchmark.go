package main

import (
	"github.com/spf13/cobra"
)

// newBenchCommand times GetAction across compute strategies.
func newBenchCommand(state *cliState) *cobra.Command {
	var (
		lengths    []int
		iterations int
		jsonPath   string
		quick      bool
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure GetAction latency on every compute strategy",
		Example: `  decision-transformer bench --lengths 20,200,1000
  decision-transformer bench --max-length 0 --json results.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if quick {
				lengths = []int{20, 100}
				iterations = 3
			}

			suite, err := RunBenchmarkSuite(state.cfg.Model, lengths, iterations)
			if err != nil {
				return err
			}
			suite.PrintSummary(cmd.OutOrStdout())

			if jsonPath != "" {
				if err := suite.SaveJSON(jsonPath); err != nil {
					return err
				}
				logger.Info().Str("path", jsonPath).Int("results", len(suite.Results)).Msg("saved benchmark results")
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.IntSliceVar(&lengths, "lengths", []int{20, 100, 500}, "Trajectory lengths to benchmark")
	f.IntVar(&iterations, "iterations", 20, "GetAction calls per measurement")
	f.StringVar(&jsonPath, "json", "", "Write results to this JSON file")
	f.BoolVar(&quick, "quick", false, "Quick mode (fewer lengths and iterations)")
	addModelFlags(cmd)
	return cmd
}
