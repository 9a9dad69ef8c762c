package main

import (
	"fmt"
	"math/rand"

	"github.com/spf13/cobra"
)

// newEncoderCommand runs the encoder smoke test.
func newEncoderCommand(state *cliState) *cobra.Command {
	var batch, seqLen int

	cmd := &cobra.Command{
		Use:   "encoder",
		Short: "Feed a random tensor through the self-attention encoder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := state.cfg

			device, err := ParseDevice(cfg.Model.Device)
			if err != nil {
				return err
			}
			enc, err := NewEncoder(device, cfg.Encoder,
				WithRand(rand.New(rand.NewSource(cfg.Model.Seed))),
				WithComputeConfig(cfg.Compute),
			)
			if err != nil {
				return err
			}

			shape, err := enc.SmokeTest(batch, seqLen)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "encoder output shape: %v\n", shape)
			return nil
		},
	}

	def := DefaultEncoderConfig()
	f := cmd.Flags()
	f.IntVar(&batch, "batch", 2, "Batch size of the random input")
	f.IntVar(&seqLen, "seq-len", 5, "Sequence length of the random input")
	f.Int("layers", def.NumLayers, "Encoder layers")
	f.Int("heads", def.NumHeads, "Attention heads")
	f.Int("embed-dim", def.EmbedDim, "Embedding width")
	f.Int("ff-hidden", def.FFHidden, "Feed-forward hidden width")
	f.Float64("dropout", def.Dropout, "Dropout rate (training only)")
	return cmd
}
