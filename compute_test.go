package main

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
)

func TestMatMul(t *testing.T) {
	a, _ := NewTensorFromData([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
	b, _ := NewTensorFromData([]float64{7, 8, 9, 10, 11, 12}, 3, 2)

	c, err := MatMul(a, b)
	if err != nil {
		t.Fatal(err)
	}

	// [1 2 3] . [7 9 11] = 58, [1 2 3] . [8 10 12] = 64
	// [4 5 6] . [7 9 11] = 139, [4 5 6] . [8 10 12] = 154
	want := []float64{58, 64, 139, 154}
	for i, v := range c.Data() {
		if v != want[i] {
			t.Errorf("element %d: expected %f, got %f", i, want[i], v)
		}
	}
}

func TestMatMulErrors(t *testing.T) {
	tests := []struct {
		name string
		a, b *Tensor
		want error
	}{
		{"inner mismatch", NewTensor(2, 3), NewTensor(2, 3), ErrShapeMismatch},
		{"rank 3", NewTensor(1, 2, 3), NewTensor(3, 2), ErrInvalidShape},
		{"rank 1", NewTensor(3), NewTensor(3, 2), ErrInvalidShape},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := MatMul(tt.a, tt.b); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestParallelMatMulCorrectness(t *testing.T) {
	sizes := []struct {
		m, k, n int
	}{
		{10, 10, 10},
		{64, 64, 64},
		{100, 50, 75},
		{128, 128, 128},
	}

	rng := rand.New(rand.NewSource(42))
	for _, size := range sizes {
		t.Run(fmt.Sprintf("%dx%dx%d", size.m, size.k, size.n), func(t *testing.T) {
			a := NewTensorRand(rng, size.m, size.k)
			b := NewTensorRand(rng, size.k, size.n)

			resultST, err := MatMulWithConfig(a, b, SingleThreadedConfig())
			if err != nil {
				t.Fatal(err)
			}

			parCfg := ComputeConfig{Parallel: true, NumWorkers: 4, MinSizeForParallel: 1}
			resultPar, err := MatMulWithConfig(a, b, parCfg)
			if err != nil {
				t.Fatal(err)
			}

			if !tensorsEqual(resultST, resultPar, 1e-12) {
				t.Error("parallel and single-threaded results differ")
			}
		})
	}
}

func TestMinSizeForParallel(t *testing.T) {
	cfg := ComputeConfig{
		Parallel:           true,
		NumWorkers:         4,
		MinSizeForParallel: 100,
	}

	if cfg.shouldParallelize(50) {
		t.Error("should not parallelize 50 rows with threshold 100")
	}
	if !cfg.shouldParallelize(200) {
		t.Error("should parallelize 200 rows with threshold 100")
	}
	if SingleThreadedConfig().shouldParallelize(1 << 20) {
		t.Error("single-threaded config should never parallelize")
	}
}

func TestBackendsAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	a := NewTensorRand(rng, 33, 17)
	b := NewTensorRand(rng, 17, 9)

	cpu, err := NewBackend(DeviceCPU, DefaultComputeConfig())
	if err != nil {
		t.Fatal(err)
	}
	gonum, err := NewBackend(DeviceGonum, DefaultComputeConfig())
	if err != nil {
		t.Fatal(err)
	}

	want, err := cpu.MatMul(a, b)
	if err != nil {
		t.Fatal(err)
	}
	got, err := gonum.MatMul(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if !tensorsEqual(want, got, 1e-12) {
		t.Error("cpu and gonum backends disagree")
	}

	if _, err := gonum.MatMul(a, a); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch from gonum backend, got %v", err)
	}
}

func TestParseDevice(t *testing.T) {
	tests := []struct {
		in      string
		want    Device
		wantErr bool
	}{
		{"cpu", DeviceCPU, false},
		{"GONUM", DeviceGonum, false},
		{" gonum ", DeviceGonum, false},
		{"", DeviceCPU, false},
		{"cuda", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDevice(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("expected ErrInvalidConfig, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

// BenchmarkMatMulSingleThreaded benchmarks single-threaded matrix multiplication.
func BenchmarkMatMulSingleThreaded(b *testing.B) {
	benchmarkMatMul(b, SingleThreadedConfig())
}

// BenchmarkMatMulParallel benchmarks parallel matrix multiplication.
func BenchmarkMatMulParallel(b *testing.B) {
	benchmarkMatMul(b, DefaultComputeConfig())
}

func benchmarkMatMul(b *testing.B, cfg ComputeConfig) {
	rng := rand.New(rand.NewSource(1))
	for _, size := range []int{64, 128, 256} {
		b.Run(fmt.Sprintf("size=%d", size), func(b *testing.B) {
			x := NewTensorRand(rng, size, size)
			w := NewTensorRand(rng, size, size)

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_, _ = MatMulWithConfig(x, w, cfg)
			}
		})
	}
}

// BenchmarkMatMulGonum benchmarks the gonum backend at the same sizes.
func BenchmarkMatMulGonum(b *testing.B) {
	backend, _ := NewBackend(DeviceGonum, ComputeConfig{})
	rng := rand.New(rand.NewSource(1))
	for _, size := range []int{64, 128, 256} {
		b.Run(fmt.Sprintf("size=%d", size), func(b *testing.B) {
			x := NewTensorRand(rng, size, size)
			w := NewTensorRand(rng, size, size)

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_, _ = backend.MatMul(x, w)
			}
		})
	}
}
