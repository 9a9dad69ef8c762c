package main

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// ===========================================================================
// WHAT'S GOING ON HERE
// ===========================================================================
//
// This file is the tensor runtime the decision model is built on. It only
// carries what the model and encoder actually consume:
//
//   - construction from a shape (zeros, normal, uniform) or from raw data
//   - element-wise add
//   - narrow (slice a range along one dimension), reshape, squeeze
//   - left padding along the sequence dimension
//
// Layer primitives (Linear, Embedding, LayerNorm) live in layers.go and the
// matmul backends (the "device") live in backend.go.
//
// Tensors are float64, row-major. Integer index tensors (timesteps) use
// IndexTensor, which has the same layout but holds ints.
//
// Data-dependent shape problems are returned as errors wrapping one of the
// sentinels below. Misuse that can only come from a bug in this package
// (wrong number of indices passed to At, for example) panics.
// ===========================================================================

var (
	// ErrShapeMismatch indicates incompatible tensor shapes for an operation.
	ErrShapeMismatch = errors.New("tensor: shape mismatch")

	// ErrInvalidShape indicates an invalid tensor shape.
	ErrInvalidShape = errors.New("tensor: invalid shape")

	// ErrInvalidIndex indicates an out-of-bounds index access.
	ErrInvalidIndex = errors.New("tensor: invalid index")
)

// initStd is the standard deviation used for random weight initialization.
const initStd = 0.02

// Tensor represents a multi-dimensional array of float64 values.
// It stores data in row-major (C-contiguous) order.
//
// Tensor is not safe for concurrent mutation. Concurrent reads are fine,
// which is all a constructed model ever does with its parameters.
type Tensor struct {
	data  []float64
	shape []int
}

// NewTensor creates a tensor with the given shape, initialized to zero.
// Panics if shape is invalid (empty or contains non-positive dimensions).
func NewTensor(shape ...int) *Tensor {
	size, err := shapeSize(shape)
	if err != nil {
		panic(err.Error())
	}

	return &Tensor{
		data:  make([]float64, size),
		shape: copyShape(shape),
	}
}

// NewTensorFromData wraps a copy of data in a tensor of the given shape.
func NewTensorFromData(data []float64, shape ...int) (*Tensor, error) {
	size, err := shapeSize(shape)
	if err != nil {
		return nil, err
	}
	if size != len(data) {
		return nil, fmt.Errorf("%w: %d values do not fill shape %v (size %d)", ErrShapeMismatch, len(data), shape, size)
	}

	t := NewTensor(shape...)
	copy(t.data, data)
	return t, nil
}

// NewTensorRand creates a tensor with values drawn from N(0, 0.02²).
// A nil rng falls back to the global source.
func NewTensorRand(rng *rand.Rand, shape ...int) *Tensor {
	t := NewTensor(shape...)
	float := rand.Float64
	if rng != nil {
		float = rng.Float64
	}

	// Box-Muller transform, two samples per draw
	for i := 0; i < len(t.data); i += 2 {
		u1, u2 := float(), float()
		if u1 == 0 {
			u1 = math.SmallestNonzeroFloat64
		}
		mag := initStd * math.Sqrt(-2*math.Log(u1))

		t.data[i] = mag * math.Cos(2*math.Pi*u2)
		if i+1 < len(t.data) {
			t.data[i+1] = mag * math.Sin(2*math.Pi*u2)
		}
	}

	return t
}

// NewTensorUniform creates a tensor with values drawn uniformly from [low, high).
func NewTensorUniform(rng *rand.Rand, low, high float64, shape ...int) *Tensor {
	t := NewTensor(shape...)
	float := rand.Float64
	if rng != nil {
		float = rng.Float64
	}
	for i := range t.data {
		t.data[i] = low + float()*(high-low)
	}
	return t
}

// Shape returns a copy of the tensor's shape.
func (t *Tensor) Shape() []int {
	return copyShape(t.shape)
}

// Dims returns the number of dimensions (rank) of the tensor.
func (t *Tensor) Dims() int {
	return len(t.shape)
}

// Size returns the total number of elements in the tensor.
func (t *Tensor) Size() int {
	return len(t.data)
}

// Data returns a copy of the flat row-major values.
func (t *Tensor) Data() []float64 {
	out := make([]float64, len(t.data))
	copy(out, t.data)
	return out
}

// At returns the element at the given indices.
// Panics if indices are invalid - this is a programmer error.
func (t *Tensor) At(indices ...int) float64 {
	return t.data[flatIndex(t.shape, indices)]
}

// Set sets the element at the given indices.
// Panics if indices are invalid.
func (t *Tensor) Set(value float64, indices ...int) {
	t.data[flatIndex(t.shape, indices)] = value
}

// Clone creates a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	clone := NewTensor(t.shape...)
	copy(clone.data, t.data)
	return clone
}

// Reshape returns a view of the tensor with a different shape.
// The total number of elements must remain the same; data is shared.
func (t *Tensor) Reshape(newShape ...int) (*Tensor, error) {
	size, err := shapeSize(newShape)
	if err != nil {
		return nil, err
	}
	if size != len(t.data) {
		return nil, fmt.Errorf("%w: cannot reshape %v (size %d) to %v (size %d)", ErrShapeMismatch, t.shape, len(t.data), newShape, size)
	}

	return &Tensor{data: t.data, shape: copyShape(newShape)}, nil
}

// Narrow returns a copy of the range [start, start+length) along dim.
func (t *Tensor) Narrow(dim, start, length int) (*Tensor, error) {
	if err := checkNarrow(t.shape, dim, start, length); err != nil {
		return nil, err
	}

	newShape := copyShape(t.shape)
	newShape[dim] = length
	out := NewTensor(newShape...)

	outer, inner := splitAt(t.shape, dim)
	srcBlock := t.shape[dim] * inner
	dstBlock := length * inner
	for o := 0; o < outer; o++ {
		src := t.data[o*srcBlock+start*inner : o*srcBlock+(start+length)*inner]
		copy(out.data[o*dstBlock:(o+1)*dstBlock], src)
	}

	return out, nil
}

// Squeeze removes dimension dim, which must have size 1.
func (t *Tensor) Squeeze(dim int) (*Tensor, error) {
	if dim < 0 || dim >= len(t.shape) {
		return nil, fmt.Errorf("%w: squeeze dim %d of rank-%d tensor", ErrInvalidIndex, dim, len(t.shape))
	}
	if t.shape[dim] != 1 {
		return nil, fmt.Errorf("%w: cannot squeeze dim %d of size %d", ErrShapeMismatch, dim, t.shape[dim])
	}
	if len(t.shape) == 1 {
		return nil, fmt.Errorf("%w: cannot squeeze a rank-1 tensor", ErrInvalidShape)
	}

	newShape := append(copyShape(t.shape[:dim]), t.shape[dim+1:]...)
	return &Tensor{data: t.data, shape: newShape}, nil
}

// PadLeft returns a copy with pad zero-valued slices prepended along dim.
func (t *Tensor) PadLeft(dim, pad int) (*Tensor, error) {
	if dim < 0 || dim >= len(t.shape) {
		return nil, fmt.Errorf("%w: pad dim %d of rank-%d tensor", ErrInvalidIndex, dim, len(t.shape))
	}
	if pad < 0 {
		return nil, fmt.Errorf("%w: negative padding %d", ErrInvalidShape, pad)
	}
	if pad == 0 {
		return t.Clone(), nil
	}

	newShape := copyShape(t.shape)
	newShape[dim] += pad
	out := NewTensor(newShape...)

	outer, inner := splitAt(t.shape, dim)
	srcBlock := t.shape[dim] * inner
	dstBlock := newShape[dim] * inner
	for o := 0; o < outer; o++ {
		copy(out.data[o*dstBlock+pad*inner:(o+1)*dstBlock], t.data[o*srcBlock:(o+1)*srcBlock])
	}

	return out, nil
}

// String returns a string representation of the tensor for debugging.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(shape=%v, size=%d)", t.shape, len(t.data))
}

// ===========================================================================
// INDEX TENSORS
// ===========================================================================

// IndexTensor is an integer tensor used for embedding lookups (timesteps).
type IndexTensor struct {
	data  []int
	shape []int
}

// NewIndexTensor wraps a copy of data in an index tensor of the given shape.
func NewIndexTensor(data []int, shape ...int) (*IndexTensor, error) {
	size, err := shapeSize(shape)
	if err != nil {
		return nil, err
	}
	if size != len(data) {
		return nil, fmt.Errorf("%w: %d indices do not fill shape %v (size %d)", ErrShapeMismatch, len(data), shape, size)
	}

	it := &IndexTensor{data: make([]int, size), shape: copyShape(shape)}
	copy(it.data, data)
	return it, nil
}

// Shape returns a copy of the index tensor's shape.
func (it *IndexTensor) Shape() []int {
	return copyShape(it.shape)
}

// At returns the index at the given position.
func (it *IndexTensor) At(indices ...int) int {
	return it.data[flatIndex(it.shape, indices)]
}

// Data returns a copy of the flat indices.
func (it *IndexTensor) Data() []int {
	out := make([]int, len(it.data))
	copy(out, it.data)
	return out
}

// Narrow returns a copy of the range [start, start+length) along dim.
func (it *IndexTensor) Narrow(dim, start, length int) (*IndexTensor, error) {
	if err := checkNarrow(it.shape, dim, start, length); err != nil {
		return nil, err
	}

	newShape := copyShape(it.shape)
	newShape[dim] = length
	size, _ := shapeSize(newShape)
	out := &IndexTensor{data: make([]int, size), shape: newShape}

	outer, inner := splitAt(it.shape, dim)
	srcBlock := it.shape[dim] * inner
	dstBlock := length * inner
	for o := 0; o < outer; o++ {
		copy(out.data[o*dstBlock:(o+1)*dstBlock], it.data[o*srcBlock+start*inner:o*srcBlock+(start+length)*inner])
	}

	return out, nil
}

// PadLeft returns a copy with pad zero indices prepended along dim.
func (it *IndexTensor) PadLeft(dim, pad int) (*IndexTensor, error) {
	if dim < 0 || dim >= len(it.shape) {
		return nil, fmt.Errorf("%w: pad dim %d of rank-%d index tensor", ErrInvalidIndex, dim, len(it.shape))
	}
	if pad < 0 {
		return nil, fmt.Errorf("%w: negative padding %d", ErrInvalidShape, pad)
	}

	newShape := copyShape(it.shape)
	newShape[dim] += pad
	size, _ := shapeSize(newShape)
	out := &IndexTensor{data: make([]int, size), shape: newShape}

	outer, inner := splitAt(it.shape, dim)
	srcBlock := it.shape[dim] * inner
	dstBlock := newShape[dim] * inner
	for o := 0; o < outer; o++ {
		copy(out.data[o*dstBlock+pad*inner:(o+1)*dstBlock], it.data[o*srcBlock:(o+1)*srcBlock])
	}

	return out, nil
}

// ===========================================================================
// OPERATIONS
// ===========================================================================

// Add performs element-wise addition: out = a + b.
func Add(a, b *Tensor) (*Tensor, error) {
	if !shapeEqual(a.shape, b.shape) {
		return nil, fmt.Errorf("%w: cannot add shapes %v and %v", ErrShapeMismatch, a.shape, b.shape)
	}

	out := NewTensor(a.shape...)
	for i := range out.data {
		out.data[i] = a.data[i] + b.data[i]
	}

	return out, nil
}

// Sum adds any number of same-shaped tensors element-wise.
func Sum(ts ...*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("%w: sum of no tensors", ErrInvalidShape)
	}

	out := ts[0].Clone()
	for _, t := range ts[1:] {
		if !shapeEqual(out.shape, t.shape) {
			return nil, fmt.Errorf("%w: cannot add shapes %v and %v", ErrShapeMismatch, out.shape, t.shape)
		}
		for i := range out.data {
			out.data[i] += t.data[i]
		}
	}

	return out, nil
}

// GELU applies the tanh approximation of the Gaussian Error Linear Unit.
//
// GELU(x) ≈ 0.5 * x * (1 + tanh(√(2/π) * (x + 0.044715 * x³)))
func GELU(x *Tensor) *Tensor {
	out := NewTensor(x.shape...)

	const (
		sqrt2OverPi = 0.7978845608028654
		coeff       = 0.044715
	)

	for i, v := range x.data {
		inner := sqrt2OverPi * (v + coeff*v*v*v)
		out.data[i] = 0.5 * v * (1.0 + math.Tanh(inner))
	}

	return out
}

// softmaxRow applies a numerically stable softmax in place.
func softmaxRow(row []float64) {
	maxVal := row[0]
	for _, v := range row[1:] {
		if v > maxVal {
			maxVal = v
		}
	}

	sum := 0.0
	for i, v := range row {
		row[i] = math.Exp(v - maxVal)
		sum += row[i]
	}
	for i := range row {
		row[i] /= sum
	}
}

// ===========================================================================
// HELPERS
// ===========================================================================

func shapeEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func copyShape(shape []int) []int {
	out := make([]int, len(shape))
	copy(out, shape)
	return out
}

func shapeSize(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, fmt.Errorf("%w: shape cannot be empty", ErrInvalidShape)
	}
	size := 1
	for i, dim := range shape {
		if dim <= 0 {
			return 0, fmt.Errorf("%w: shape[%d] must be positive, got %d", ErrInvalidShape, i, dim)
		}
		size *= dim
	}
	return size, nil
}

// flatIndex converts multi-dimensional indices to a flat row-major index.
func flatIndex(shape, indices []int) int {
	if len(indices) != len(shape) {
		panic(fmt.Sprintf("tensor: expected %d indices, got %d", len(shape), len(indices)))
	}

	idx := 0
	stride := 1
	for i := len(indices) - 1; i >= 0; i-- {
		if indices[i] < 0 || indices[i] >= shape[i] {
			panic(fmt.Sprintf("tensor: index[%d]=%d out of bounds [0,%d)", i, indices[i], shape[i]))
		}
		idx += indices[i] * stride
		stride *= shape[i]
	}

	return idx
}

// splitAt returns the product of dims before dim and the product after it.
func splitAt(shape []int, dim int) (outer, inner int) {
	outer, inner = 1, 1
	for i := 0; i < dim; i++ {
		outer *= shape[i]
	}
	for i := dim + 1; i < len(shape); i++ {
		inner *= shape[i]
	}
	return outer, inner
}

func checkNarrow(shape []int, dim, start, length int) error {
	if dim < 0 || dim >= len(shape) {
		return fmt.Errorf("%w: narrow dim %d of rank-%d tensor", ErrInvalidIndex, dim, len(shape))
	}
	if length <= 0 || start < 0 || start+length > shape[dim] {
		return fmt.Errorf("%w: narrow [%d,%d) out of bounds for dim %d of size %d", ErrInvalidIndex, start, start+length, dim, shape[dim])
	}
	return nil
}
