package main

import (
	"fmt"
	"math"
	"math/rand"
)

// ===========================================================================
// WHAT'S GOING ON HERE: Generic Self-Attention Encoder
// ===========================================================================
//
// A stock bidirectional transformer encoder: (batch, seq, embed) in,
// (batch, seq, embed) out. Nothing here is specific to decision making; it is
// the capability a sequence model would plug in between the fused embeddings
// and the prediction heads if it wanted positions to see each other.
//
// Block layout (pre-norm, as in the GPT blocks this mirrors):
//
//   x = x + MultiHeadAttention(LayerNorm(x), keyMask)
//   x = x + FeedForward(LayerNorm(x))
//
// followed by one final LayerNorm after the last block.
//
// Attention is bidirectional: position i attends to every position j whose
// key mask entry is 1. A key mask of (batch, seq) with 0 for padding is the
// same shape GetAction builds for its left-padded window.
//
// Dropout is recorded in the config but only matters for training, which this
// package does not do; Forward is always evaluation mode.
// ===========================================================================

// EncoderConfig holds hyperparameters for the encoder stack.
type EncoderConfig struct {
	NumLayers int     `mapstructure:"layers"`
	NumHeads  int     `mapstructure:"heads"`
	EmbedDim  int     `mapstructure:"embed_dim"`
	FFHidden  int     `mapstructure:"ff_hidden"`
	Dropout   float64 `mapstructure:"dropout"`
}

// DefaultEncoderConfig returns 4 layers, 8 heads, 64-dim embeddings.
func DefaultEncoderConfig() EncoderConfig {
	return EncoderConfig{
		NumLayers: 4,
		NumHeads:  8,
		EmbedDim:  64,
		FFHidden:  256,
		Dropout:   0.1,
	}
}

// Validate checks the encoder hyperparameters.
func (c EncoderConfig) Validate() error {
	if c.NumLayers <= 0 || c.NumHeads <= 0 || c.EmbedDim <= 0 || c.FFHidden <= 0 {
		return fmt.Errorf("%w: encoder sizes must be positive (layers=%d heads=%d embed_dim=%d ff_hidden=%d)",
			ErrInvalidConfig, c.NumLayers, c.NumHeads, c.EmbedDim, c.FFHidden)
	}
	if c.EmbedDim%c.NumHeads != 0 {
		return fmt.Errorf("%w: encoder embed_dim (%d) must be divisible by heads (%d)", ErrInvalidConfig, c.EmbedDim, c.NumHeads)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return fmt.Errorf("%w: encoder dropout must be in [0,1), got %g", ErrInvalidConfig, c.Dropout)
	}
	return nil
}

// MultiHeadAttention implements bidirectional multi-head self-attention.
//
// Mechanism per head h with width d_h = embed/heads:
//
//	Attention(Q,K,V) = softmax(Q_h·K_hᵀ / √d_h + mask) · V_h
//
// Heads are concatenated and projected by wo.
type MultiHeadAttention struct {
	numHeads int
	headDim  int

	wq, wk, wv, wo *Linear
}

// NewMultiHeadAttention creates an attention layer.
func NewMultiHeadAttention(name string, embedDim, numHeads int, backend Backend, rng *rand.Rand) (*MultiHeadAttention, error) {
	if numHeads <= 0 || embedDim%numHeads != 0 {
		return nil, fmt.Errorf("%w: %s: embedDim (%d) must be divisible by numHeads (%d)", ErrInvalidConfig, name, embedDim, numHeads)
	}

	a := &MultiHeadAttention{numHeads: numHeads, headDim: embedDim / numHeads}

	var err error
	if a.wq, err = NewLinear(name+".wq", embedDim, embedDim, backend, rng); err != nil {
		return nil, err
	}
	if a.wk, err = NewLinear(name+".wk", embedDim, embedDim, backend, rng); err != nil {
		return nil, err
	}
	if a.wv, err = NewLinear(name+".wv", embedDim, embedDim, backend, rng); err != nil {
		return nil, err
	}
	if a.wo, err = NewLinear(name+".wo", embedDim, embedDim, backend, rng); err != nil {
		return nil, err
	}
	return a, nil
}

// Forward computes attention for x of shape (batch, seq, embed).
// keyMask is optional, shape (batch, seq), 0 marks keys that must be ignored.
func (a *MultiHeadAttention) Forward(x *Tensor, keyMask *IndexTensor) (*Tensor, error) {
	q, err := a.wq.Forward(x)
	if err != nil {
		return nil, err
	}
	k, err := a.wk.Forward(x)
	if err != nil {
		return nil, err
	}
	v, err := a.wv.Forward(x)
	if err != nil {
		return nil, err
	}

	batch, seqLen, embed := x.shape[0], x.shape[1], x.shape[2]
	ctx := NewTensor(batch, seqLen, embed)
	scale := 1.0 / math.Sqrt(float64(a.headDim))
	scores := make([]float64, seqLen)

	for b := 0; b < batch; b++ {
		base := b * seqLen * embed
		for h := 0; h < a.numHeads; h++ {
			off := h * a.headDim
			for i := 0; i < seqLen; i++ {
				qi := q.data[base+i*embed+off : base+i*embed+off+a.headDim]

				for j := 0; j < seqLen; j++ {
					if keyMask != nil && keyMask.data[b*seqLen+j] == 0 {
						scores[j] = -1e9
						continue
					}
					kj := k.data[base+j*embed+off : base+j*embed+off+a.headDim]
					dot := 0.0
					for d := range qi {
						dot += qi[d] * kj[d]
					}
					scores[j] = dot * scale
				}
				softmaxRow(scores)

				out := ctx.data[base+i*embed+off : base+i*embed+off+a.headDim]
				for j, w := range scores {
					vj := v.data[base+j*embed+off : base+j*embed+off+a.headDim]
					for d := range out {
						out[d] += w * vj[d]
					}
				}
			}
		}
	}

	return a.wo.Forward(ctx)
}

// FeedForward is the position-wise MLP: GELU(x @ W1 + b1) @ W2 + b2.
type FeedForward struct {
	fc1, fc2 *Linear
}

// NewFeedForward creates a feed-forward layer.
func NewFeedForward(name string, embedDim, hiddenDim int, backend Backend, rng *rand.Rand) (*FeedForward, error) {
	fc1, err := NewLinear(name+".fc1", embedDim, hiddenDim, backend, rng)
	if err != nil {
		return nil, err
	}
	fc2, err := NewLinear(name+".fc2", hiddenDim, embedDim, backend, rng)
	if err != nil {
		return nil, err
	}
	return &FeedForward{fc1: fc1, fc2: fc2}, nil
}

// Forward applies the feed-forward network.
func (ff *FeedForward) Forward(x *Tensor) (*Tensor, error) {
	hidden, err := ff.fc1.Forward(x)
	if err != nil {
		return nil, err
	}
	return ff.fc2.Forward(GELU(hidden))
}

// EncoderBlock combines attention, layer norm and feed-forward layers.
type EncoderBlock struct {
	ln1  *LayerNorm
	attn *MultiHeadAttention
	ln2  *LayerNorm
	ff   *FeedForward
}

// Forward applies the block with residual connections.
func (eb *EncoderBlock) Forward(x *Tensor, keyMask *IndexTensor) (*Tensor, error) {
	normed, err := eb.ln1.Forward(x)
	if err != nil {
		return nil, err
	}
	attended, err := eb.attn.Forward(normed, keyMask)
	if err != nil {
		return nil, err
	}
	if x, err = Add(x, attended); err != nil {
		return nil, err
	}

	if normed, err = eb.ln2.Forward(x); err != nil {
		return nil, err
	}
	ffOut, err := eb.ff.Forward(normed)
	if err != nil {
		return nil, err
	}
	return Add(x, ffOut)
}

// Encoder is a stack of self-attention blocks.
type Encoder struct {
	config  EncoderConfig
	blocks  []*EncoderBlock
	lnFinal *LayerNorm
	rng     *rand.Rand
}

// NewEncoder creates an encoder stack on the given device.
func NewEncoder(device Device, cfg EncoderConfig, opts ...ModelOption) (*Encoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := modelOptions{compute: DefaultComputeConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	backend, err := NewBackend(device, o.compute)
	if err != nil {
		return nil, err
	}

	enc := &Encoder{config: cfg, rng: o.rng}
	for i := 0; i < cfg.NumLayers; i++ {
		name := fmt.Sprintf("block%d", i)
		block := &EncoderBlock{}
		if block.ln1, err = NewLayerNorm(name+".ln1", cfg.EmbedDim); err != nil {
			return nil, err
		}
		if block.attn, err = NewMultiHeadAttention(name+".attn", cfg.EmbedDim, cfg.NumHeads, backend, o.rng); err != nil {
			return nil, err
		}
		if block.ln2, err = NewLayerNorm(name+".ln2", cfg.EmbedDim); err != nil {
			return nil, err
		}
		if block.ff, err = NewFeedForward(name+".ff", cfg.EmbedDim, cfg.FFHidden, backend, o.rng); err != nil {
			return nil, err
		}
		enc.blocks = append(enc.blocks, block)
	}
	if enc.lnFinal, err = NewLayerNorm("ln_final", cfg.EmbedDim); err != nil {
		return nil, err
	}

	return enc, nil
}

// Config returns the encoder hyperparameters.
func (e *Encoder) Config() EncoderConfig { return e.config }

// Forward transforms x (batch, seq, embed) into (batch, seq, embed).
// keyMask may be nil; otherwise it must be (batch, seq).
func (e *Encoder) Forward(x *Tensor, keyMask *IndexTensor) (*Tensor, error) {
	if x == nil || x.Dims() != 3 {
		var shape []int
		if x != nil {
			shape = x.shape
		}
		return nil, fmt.Errorf("%w: encoder input must be rank 3 (batch, seq, %d), got shape %v", ErrShapeMismatch, e.config.EmbedDim, shape)
	}
	if x.shape[2] != e.config.EmbedDim {
		return nil, fmt.Errorf("%w: encoder input dim 2 is %d, want %d", ErrShapeMismatch, x.shape[2], e.config.EmbedDim)
	}
	if keyMask != nil && !shapeEqual(keyMask.shape, x.shape[:2]) {
		return nil, fmt.Errorf("%w: key mask shape %v, want %v", ErrShapeMismatch, keyMask.shape, x.shape[:2])
	}

	var err error
	for _, block := range e.blocks {
		if x, err = block.Forward(x, keyMask); err != nil {
			return nil, err
		}
	}
	return e.lnFinal.Forward(x)
}

// SmokeTest feeds a uniform [0,1) random (batch, seqLen, embed) tensor
// through the encoder and returns the output shape.
func (e *Encoder) SmokeTest(batch, seqLen int) ([]int, error) {
	if batch <= 0 || seqLen <= 0 {
		return nil, fmt.Errorf("%w: smoke test needs positive batch and seq_len, got %d and %d", ErrInvalidShape, batch, seqLen)
	}

	input := NewTensorUniform(e.rng, 0, 1, batch, seqLen, e.config.EmbedDim)
	output, err := e.Forward(input, nil)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Ints("input_shape", input.Shape()).
		Ints("output_shape", output.Shape()).
		Msg("encoder smoke test")

	return output.Shape(), nil
}
