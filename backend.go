package main

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// ===========================================================================
// WHAT'S GOING ON HERE
// ===========================================================================
//
// A Device picks the backend that performs matrix multiplication for every
// learned layer. Everything else (embedding lookup, layer norm, adds) is
// cheap and runs in plain Go regardless of device.
//
//   cpu    pure Go, optionally row-parallel (compute.go)
//   gonum  gonum.org/v1/gonum/mat Dense.Mul, which dispatches to the
//          registered BLAS implementation (pure-Go gonum BLAS by default,
//          or a cgo BLAS if the binary registers one)
//
// Both backends compute the same product; results agree to float64 rounding.
// ===========================================================================

// Device names a compute backend.
type Device string

const (
	// DeviceCPU runs matmul in pure Go.
	DeviceCPU Device = "cpu"

	// DeviceGonum runs matmul through gonum's BLAS-backed Dense.Mul.
	DeviceGonum Device = "gonum"
)

// ParseDevice converts a config string into a Device.
func ParseDevice(s string) (Device, error) {
	switch d := Device(strings.ToLower(strings.TrimSpace(s))); d {
	case DeviceCPU, DeviceGonum:
		return d, nil
	case "":
		return DeviceCPU, nil
	default:
		return "", fmt.Errorf("%w: unknown device %q (want cpu or gonum)", ErrInvalidConfig, s)
	}
}

// Backend performs 2D matrix multiplication: C = A @ B.
type Backend interface {
	MatMul(a, b *Tensor) (*Tensor, error)
	Device() Device
}

// NewBackend returns the backend for a device.
func NewBackend(device Device, compute ComputeConfig) (Backend, error) {
	switch device {
	case DeviceCPU, "":
		return &cpuBackend{compute: compute}, nil
	case DeviceGonum:
		return gonumBackend{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown device %q", ErrInvalidConfig, device)
	}
}

type cpuBackend struct {
	compute ComputeConfig
}

func (b *cpuBackend) MatMul(x, y *Tensor) (*Tensor, error) {
	return MatMulWithConfig(x, y, b.compute)
}

func (b *cpuBackend) Device() Device { return DeviceCPU }

type gonumBackend struct{}

func (gonumBackend) MatMul(x, y *Tensor) (*Tensor, error) {
	m, n, k, err := matmulDims(x, y)
	if err != nil {
		return nil, err
	}

	// mat.NewDense wraps the slices without copying; inputs are only read.
	a := mat.NewDense(m, k, x.data)
	b := mat.NewDense(k, n, y.data)

	out := NewTensor(m, n)
	c := mat.NewDense(m, n, out.data)
	c.Mul(a, b)

	return out, nil
}

func (gonumBackend) Device() Device { return DeviceGonum }
