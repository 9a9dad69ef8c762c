package main

// ===========================================================================
// WHAT'S GOING ON HERE
// ===========================================================================
//
// Latency benchmarks for the inference hot path.
//
// An environment loop calls GetAction once per step, so the number that
// matters is the wall time of one GetAction call at a realistic trajectory
// length. The suite runs that call for every (strategy, trajectory length)
// pair and reports average latency and speedup over the first strategy.
//
// STRATEGIES:
//   cpu-single    pure Go matmul, one goroutine
//   cpu-parallel  pure Go matmul, rows split across NumCPU goroutines
//   gonum         gonum Dense.Mul
//
// With a context window set, every call forwards exactly max_length steps no
// matter how long the trajectory is, so latency should stay flat as the
// trajectory grows. Without one it grows linearly. Running both makes the
// effect of the window visible.
// ===========================================================================

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"os"
	"runtime"
	"time"
)

// BenchmarkResult is a single measurement.
type BenchmarkResult struct {
	Strategy          string        `json:"strategy"`
	Device            Device        `json:"device"`
	TrajectoryLength  int           `json:"trajectory_length"`
	MaxLength         int           `json:"max_length"`
	Iterations        int           `json:"iterations"`
	TotalTime         time.Duration `json:"total_time_ns"`
	AvgTime           time.Duration `json:"avg_time_ns"`
	SpeedupVsBaseline float64       `json:"speedup_vs_baseline"`
}

// BenchmarkSuite collects the results of one run.
type BenchmarkSuite struct {
	Timestamp time.Time         `json:"timestamp"`
	Host      HostInfo          `json:"host"`
	Model     ModelConfig       `json:"model"`
	Results   []BenchmarkResult `json:"results"`
}

// HostInfo describes the machine the suite ran on.
type HostInfo struct {
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	NumCPU    int    `json:"num_cpu"`
	GoVersion string `json:"go_version"`
}

// benchStrategy is one device and compute setting to measure.
type benchStrategy struct {
	name    string
	device  Device
	compute ComputeConfig
}

func defaultBenchStrategies() []benchStrategy {
	parallel := DefaultComputeConfig()
	parallel.MinSizeForParallel = 1

	return []benchStrategy{
		{"cpu-single", DeviceCPU, SingleThreadedConfig()},
		{"cpu-parallel", DeviceCPU, parallel},
		{"gonum", DeviceGonum, ComputeConfig{}},
	}
}

// RunBenchmarkSuite times GetAction for every strategy at every trajectory
// length. The first strategy is the speedup baseline.
func RunBenchmarkSuite(cfg ModelConfig, lengths []int, iterations int) (*BenchmarkSuite, error) {
	if iterations <= 0 {
		return nil, fmt.Errorf("%w: iterations must be positive, got %d", ErrInvalidConfig, iterations)
	}
	if len(lengths) == 0 {
		return nil, fmt.Errorf("%w: no trajectory lengths to benchmark", ErrInvalidConfig)
	}

	suite := &BenchmarkSuite{
		Timestamp: time.Now(),
		Host: HostInfo{
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
			NumCPU:    runtime.NumCPU(),
			GoVersion: runtime.Version(),
		},
		Model: cfg,
	}
	opts := InferenceOptions{MaxLength: cfg.MaxLength}

	for _, length := range lengths {
		states, actions, rtg, timesteps, err := randomTrajectory(cfg, length)
		if err != nil {
			return nil, err
		}

		var baseline time.Duration
		for i, s := range defaultBenchStrategies() {
			model, err := NewDecisionTransformer(s.device, cfg.StateDim, cfg.ActDim, cfg.HiddenSize, cfg.MaxEpLen,
				WithRand(rand.New(rand.NewSource(cfg.Seed))),
				WithComputeConfig(s.compute),
			)
			if err != nil {
				return nil, err
			}

			// warm up once so allocation of the first call is not counted
			if _, err := GetAction(model, states, actions, rtg, timesteps, opts); err != nil {
				return nil, err
			}

			start := time.Now()
			for it := 0; it < iterations; it++ {
				if _, err := GetAction(model, states, actions, rtg, timesteps, opts); err != nil {
					return nil, err
				}
			}
			total := time.Since(start)
			avg := total / time.Duration(iterations)
			if i == 0 {
				baseline = avg
			}

			speedup := 0.0
			if avg > 0 {
				speedup = float64(baseline) / float64(avg)
			}

			suite.Results = append(suite.Results, BenchmarkResult{
				Strategy:          s.name,
				Device:            s.device,
				TrajectoryLength:  length,
				MaxLength:         cfg.MaxLength,
				Iterations:        iterations,
				TotalTime:         total,
				AvgTime:           avg,
				SpeedupVsBaseline: speedup,
			})

			logger.Debug().
				Str("strategy", s.name).
				Int("trajectory_length", length).
				Dur("avg", avg).
				Msg("benchmark finished")
		}
	}

	return suite, nil
}

// randomTrajectory builds a length-step trajectory with uniform random
// contents and timesteps counting up from 0.
func randomTrajectory(cfg ModelConfig, length int) (states, actions, rtg *Tensor, timesteps []int, err error) {
	if length <= 0 {
		return nil, nil, nil, nil, fmt.Errorf("%w: trajectory length must be positive, got %d", ErrInvalidConfig, length)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	states = NewTensorUniform(rng, -1, 1, length, cfg.StateDim)
	actions = NewTensorUniform(rng, 0, 1, length, cfg.ActDim)
	rtg = NewTensorUniform(rng, 0, 100, length, 1)

	timesteps = make([]int, length)
	for i := range timesteps {
		timesteps[i] = min(i, cfg.MaxEpLen-1)
	}
	return states, actions, rtg, timesteps, nil
}

// PrintSummary writes a table of results grouped by trajectory length.
func (suite *BenchmarkSuite) PrintSummary(w io.Writer) {
	fmt.Fprintf(w, "GetAction latency on %s/%s (%d CPUs), hidden=%d max_length=%d\n",
		suite.Host.OS, suite.Host.Arch, suite.Host.NumCPU, suite.Model.HiddenSize, suite.Model.MaxLength)

	length := -1
	for _, r := range suite.Results {
		if r.TrajectoryLength != length {
			length = r.TrajectoryLength
			fmt.Fprintf(w, "\ntrajectory length %d:\n", length)
			fmt.Fprintf(w, "  %-14s %14s %9s\n", "strategy", "avg", "speedup")
		}
		fmt.Fprintf(w, "  %-14s %14v %8.2fx\n", r.Strategy, r.AvgTime, r.SpeedupVsBaseline)
	}
}

// SaveJSON writes the suite to filename.
func (suite *BenchmarkSuite) SaveJSON(filename string) error {
	data, err := json.MarshalIndent(suite, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal benchmark results: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("write benchmark results: %w", err)
	}
	return nil
}
