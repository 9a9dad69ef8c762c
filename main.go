package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// cliState is shared by the root command and its subcommands.
type cliState struct {
	v          *viper.Viper
	configFile string
	cfg        *Config
}

func newRootCommand() *cobra.Command {
	state := &cliState{v: newViper()}
	def := DefaultConfig()

	root := &cobra.Command{
		Use:   "decision-transformer",
		Short: "Return-conditioned sequence model inference",
		Long: `decision-transformer builds a Decision Transformer and runs rolling-context
inference with it: predict the next action of a trajectory, drive the
cart-pole environment, smoke-test the self-attention encoder, or time
GetAction on each compute device.

Configuration is layered: defaults, then --config (YAML), then DT_*
environment variables (e.g. DT_MODEL_HIDDEN_SIZE), then flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := bindFlags(state.v, cmd.Flags()); err != nil {
				return err
			}
			cfg, err := LoadConfig(state.v, state.configFile)
			if err != nil {
				return err
			}
			if err := setupLogging(cfg.Log, cmd.ErrOrStderr()); err != nil {
				return err
			}
			state.cfg = cfg
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&state.configFile, "config", "", "Path to YAML config file")
	pf.String("log-level", def.Log.Level, "Log level (debug, info, warn, error)")
	pf.String("log-format", def.Log.Format, "Log format (console, json)")
	pf.String("device", def.Model.Device, "Compute device: cpu, gonum")
	pf.Int64("seed", def.Model.Seed, "Seed for parameter initialization")
	pf.Bool("parallel", def.Compute.Parallel, "Split large matmuls across goroutines (cpu device)")
	pf.Int("workers", def.Compute.NumWorkers, "Matmul worker goroutines (0 = NumCPU)")

	root.AddCommand(
		newActCommand(state),
		newRolloutCommand(state),
		newEncoderCommand(state),
		newBenchCommand(state),
	)

	return root
}

// addModelFlags registers the model dimension flags on a subcommand.
func addModelFlags(cmd *cobra.Command) {
	def := DefaultConfig().Model
	f := cmd.Flags()
	f.Int("state-dim", def.StateDim, "State vector width")
	f.Int("act-dim", def.ActDim, "Action vector width")
	f.Int("hidden-size", def.HiddenSize, "Embedding width shared by all modalities")
	f.Int("max-ep-len", def.MaxEpLen, "Rows in the timestep embedding table")
	f.Int("max-length", def.MaxLength, "Context window length (0 = whole trajectory)")
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
