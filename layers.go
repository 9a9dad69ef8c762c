package main

import (
	"fmt"
	"math"
	"math/rand"
)

// Layer primitives shared by the decision model and the encoder.
//
// All three operate on the last dimension of their input and treat every
// leading dimension as batch, so the same code serves (seq, features) and
// (batch, seq, features) inputs. Each layer carries a name that ends up in
// its error messages, which is how a shape error in Forward can say which
// of the eight sub-modules rejected its input.

// Linear implements y = x @ W + b.
type Linear struct {
	name    string
	in, out int
	weight  *Tensor // (in, out)
	bias    *Tensor // (out)
	backend Backend
}

// NewLinear creates a linear layer with normal-initialized weights and zero bias.
func NewLinear(name string, in, out int, backend Backend, rng *rand.Rand) (*Linear, error) {
	if in <= 0 || out <= 0 {
		return nil, fmt.Errorf("%w: %s: linear dims must be positive, got %d->%d", ErrInvalidConfig, name, in, out)
	}
	if backend == nil {
		return nil, fmt.Errorf("%w: %s: nil backend", ErrInvalidConfig, name)
	}

	return &Linear{
		name:    name,
		in:      in,
		out:     out,
		weight:  NewTensorRand(rng, in, out),
		bias:    NewTensor(out),
		backend: backend,
	}, nil
}

// InFeatures returns the input width.
func (l *Linear) InFeatures() int { return l.in }

// OutFeatures returns the output width.
func (l *Linear) OutFeatures() int { return l.out }

// Forward applies the projection to the last dimension of x.
func (l *Linear) Forward(x *Tensor) (*Tensor, error) {
	if x.Dims() < 2 {
		return nil, fmt.Errorf("%w: %s: input must have rank >= 2, got shape %v", ErrShapeMismatch, l.name, x.shape)
	}
	last := x.shape[len(x.shape)-1]
	if last != l.in {
		return nil, fmt.Errorf("%w: %s: input feature dim is %d, want %d (shape %v)", ErrShapeMismatch, l.name, last, l.in, x.shape)
	}

	rows := x.Size() / l.in
	flat, err := x.Reshape(rows, l.in)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", l.name, err)
	}

	y, err := l.backend.MatMul(flat, l.weight)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", l.name, err)
	}
	for r := 0; r < rows; r++ {
		row := y.data[r*l.out : (r+1)*l.out]
		for j := range row {
			row[j] += l.bias.data[j]
		}
	}

	outShape := copyShape(x.shape)
	outShape[len(outShape)-1] = l.out
	return y.Reshape(outShape...)
}

// Embedding is a learned lookup table of numEmbeddings rows.
type Embedding struct {
	name   string
	num    int
	dim    int
	weight *Tensor // (num, dim)
}

// NewEmbedding creates an embedding table with normal-initialized rows.
func NewEmbedding(name string, numEmbeddings, dim int, rng *rand.Rand) (*Embedding, error) {
	if numEmbeddings <= 0 || dim <= 0 {
		return nil, fmt.Errorf("%w: %s: embedding dims must be positive, got %dx%d", ErrInvalidConfig, name, numEmbeddings, dim)
	}

	return &Embedding{
		name:   name,
		num:    numEmbeddings,
		dim:    dim,
		weight: NewTensorRand(rng, numEmbeddings, dim),
	}, nil
}

// NumEmbeddings returns the number of rows in the table.
func (e *Embedding) NumEmbeddings() int { return e.num }

// Forward looks up each index. Output shape is idx shape + (dim).
func (e *Embedding) Forward(idx *IndexTensor) (*Tensor, error) {
	outShape := append(idx.Shape(), e.dim)
	out := NewTensor(outShape...)

	for i, id := range idx.data {
		if id < 0 || id >= e.num {
			return nil, fmt.Errorf("%w: %s: index %d out of range [0,%d) at flat position %d", ErrInvalidIndex, e.name, id, e.num, i)
		}
		copy(out.data[i*e.dim:(i+1)*e.dim], e.weight.data[id*e.dim:(id+1)*e.dim])
	}

	return out, nil
}

// LayerNorm implements layer normalization over the last dimension.
//
// PAPER: "Layer Normalization" by Ba, Kiros, Hinton (2016)
// https://arxiv.org/abs/1607.06450
//
// Formula: y = γ * (x - μ) / sqrt(σ² + ε) + β
type LayerNorm struct {
	name  string
	dim   int
	eps   float64
	gamma *Tensor
	beta  *Tensor
}

// NewLayerNorm creates a layer norm with gamma=1 and beta=0 (identity transform).
func NewLayerNorm(name string, dim int) (*LayerNorm, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: %s: layer norm dim must be positive, got %d", ErrInvalidConfig, name, dim)
	}

	gamma := NewTensor(dim)
	for i := range gamma.data {
		gamma.data[i] = 1.0
	}

	return &LayerNorm{
		name:  name,
		dim:   dim,
		eps:   1e-5,
		gamma: gamma,
		beta:  NewTensor(dim),
	}, nil
}

// Forward normalizes every position of x independently.
func (ln *LayerNorm) Forward(x *Tensor) (*Tensor, error) {
	last := x.shape[len(x.shape)-1]
	if last != ln.dim {
		return nil, fmt.Errorf("%w: %s: input feature dim is %d, want %d (shape %v)", ErrShapeMismatch, ln.name, last, ln.dim, x.shape)
	}

	out := NewTensor(x.shape...)
	rows := x.Size() / ln.dim
	n := float64(ln.dim)

	for r := 0; r < rows; r++ {
		in := x.data[r*ln.dim : (r+1)*ln.dim]
		dst := out.data[r*ln.dim : (r+1)*ln.dim]

		mean := 0.0
		for _, v := range in {
			mean += v
		}
		mean /= n

		variance := 0.0
		for _, v := range in {
			diff := v - mean
			variance += diff * diff
		}
		variance /= n

		std := math.Sqrt(variance + ln.eps)
		for j, v := range in {
			dst[j] = (v-mean)/std*ln.gamma.data[j] + ln.beta.data[j]
		}
	}

	return out, nil
}
