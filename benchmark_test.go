package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func benchModelConfig() ModelConfig {
	cfg := DefaultConfig().Model
	cfg.HiddenSize = 8
	cfg.MaxLength = 3
	return cfg
}

func TestRunBenchmarkSuite(t *testing.T) {
	suite, err := RunBenchmarkSuite(benchModelConfig(), []int{2, 6}, 1)
	require.NoError(t, err)

	strategies := defaultBenchStrategies()
	require.Len(t, suite.Results, 2*len(strategies))

	for i, r := range suite.Results {
		s := strategies[i%len(strategies)]
		assert.Equal(t, s.name, r.Strategy)
		assert.Equal(t, s.device, r.Device)
		assert.Equal(t, 1, r.Iterations)
		assert.Equal(t, 3, r.MaxLength)
	}
	assert.Equal(t, 2, suite.Results[0].TrajectoryLength)
	assert.Equal(t, 6, suite.Results[len(strategies)].TrajectoryLength)
	assert.Positive(t, suite.Host.NumCPU)

	var buf bytes.Buffer
	suite.PrintSummary(&buf)
	assert.Contains(t, buf.String(), "trajectory length 6:")
	assert.Contains(t, buf.String(), "cpu-parallel")
}

func TestRunBenchmarkSuiteErrors(t *testing.T) {
	_, err := RunBenchmarkSuite(benchModelConfig(), []int{4}, 0)
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = RunBenchmarkSuite(benchModelConfig(), nil, 1)
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = RunBenchmarkSuite(benchModelConfig(), []int{0}, 1)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestBenchmarkSuiteSaveJSON(t *testing.T) {
	suite, err := RunBenchmarkSuite(benchModelConfig(), []int{4}, 1)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "bench.json")
	require.NoError(t, suite.SaveJSON(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded BenchmarkSuite
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Len(t, decoded.Results, len(suite.Results))
	assert.Equal(t, suite.Model, decoded.Model)
}

func TestBenchCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.json")

	stdout, _, err := runCLI(t, "bench",
		"--hidden-size", "8",
		"--lengths", "3,5",
		"--iterations", "1",
		"--json", path,
	)
	require.NoError(t, err)
	assert.Contains(t, stdout, "GetAction latency")
	assert.Contains(t, stdout, "trajectory length 5:")
	assert.FileExists(t, path)
}
