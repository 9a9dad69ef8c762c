package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCLI executes the root command with args and returns stdout and stderr.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	saved := logger
	t.Cleanup(func() { logger = saved })

	var stdout, stderr bytes.Buffer
	root := newRootCommand()
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTrajectoryFile(t *testing.T, name string, steps int) string {
	t.Helper()
	traj := &Trajectory{ID: "cli"}
	for i := 0; i < steps; i++ {
		traj.Append(Step{
			State:      []float64{0.01 * float64(i), 0, -0.01, 0.02},
			Action:     []float64{float64(i % 2), float64(1 - i%2)},
			ReturnToGo: float64(500 - i),
			Timestep:   i,
		})
	}
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, SaveTrajectory(path, traj))
	return path
}

func TestActCommand(t *testing.T) {
	for _, name := range []string{"traj.yaml", "traj.cbor"} {
		t.Run(name, func(t *testing.T) {
			path := writeTrajectoryFile(t, name, 5)

			stdout, stderr, err := runCLI(t, "act",
				"--trajectory", path,
				"--hidden-size", "8",
				"--max-length", "3",
				"--log-format", "json",
			)
			require.NoError(t, err)
			assert.Regexp(t, `^\[-?\d+\.\d{6} -?\d+\.\d{6}\]\n$`, stdout)
			assert.Contains(t, stderr, `"message":"predicted action"`)
			assert.Contains(t, stderr, `"steps":5`)
		})
	}
}

func TestActCommandDevicesAgree(t *testing.T) {
	path := writeTrajectoryFile(t, "traj.yaml", 4)

	cpuOut, _, err := runCLI(t, "act", "--trajectory", path, "--hidden-size", "8", "--device", "cpu")
	require.NoError(t, err)
	gonumOut, _, err := runCLI(t, "act", "--trajectory", path, "--hidden-size", "8", "--device", "gonum")
	require.NoError(t, err)

	assert.Equal(t, cpuOut, gonumOut)
}

func TestActCommandErrors(t *testing.T) {
	_, _, err := runCLI(t, "act")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--trajectory is required")

	path := writeTrajectoryFile(t, "traj.yaml", 3)
	_, _, err = runCLI(t, "act", "--trajectory", path, "--state-dim", "3")
	require.ErrorIs(t, err, ErrShapeMismatch)

	_, _, err = runCLI(t, "act", "--trajectory", path, "--max-ep-len", "2")
	require.ErrorIs(t, err, ErrInvalidIndex)

	_, _, err = runCLI(t, "act", "--trajectory", path, "--device", "tpu")
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestActCommandUsesEnvironment(t *testing.T) {
	path := writeTrajectoryFile(t, "traj.yaml", 3)
	t.Setenv("DT_MODEL_HIDDEN_SIZE", "0")

	_, _, err := runCLI(t, "act", "--trajectory", path)
	require.ErrorIs(t, err, ErrInvalidConfig)

	// a flag overrides the bad environment value
	_, _, err = runCLI(t, "act", "--trajectory", path, "--hidden-size", "8")
	require.NoError(t, err)
}

func TestRolloutCommand(t *testing.T) {
	record := filepath.Join(t.TempDir(), "episode.cbor")

	stdout, _, err := runCLI(t, "rollout",
		"--hidden-size", "8",
		"--max-length", "3",
		"--episodes", "2",
		"--record", record,
	)
	require.NoError(t, err)
	assert.Regexp(t, `^episodes=2 mean_return=\d+\.\d{2}\n$`, stdout)

	traj, err := LoadTrajectory(record)
	require.NoError(t, err)
	assert.NotEmpty(t, traj.ID)
	assert.Positive(t, traj.Len())
	require.NoError(t, traj.Validate(CartPoleStateDim, CartPoleActions, 1000))
}

func TestRolloutCommandErrors(t *testing.T) {
	_, _, err := runCLI(t, "rollout", "--episodes", "0")
	require.Error(t, err)

	_, _, err = runCLI(t, "rollout", "--hidden-size", "8", "--state-dim", "6")
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestEncoderCommand(t *testing.T) {
	stdout, _, err := runCLI(t, "encoder",
		"--layers", "1",
		"--heads", "2",
		"--embed-dim", "8",
		"--ff-hidden", "16",
		"--batch", "3",
		"--seq-len", "4",
	)
	require.NoError(t, err)
	assert.Equal(t, "encoder output shape: [3 4 8]\n", stdout)

	_, _, err = runCLI(t, "encoder", "--heads", "3")
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfigFileFlag(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "dt.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("encoder:\n  layers: 1\n  heads: 2\n  embed_dim: 4\n  ff_hidden: 8\n"), 0o644))

	stdout, _, err := runCLI(t, "--config="+cfgPath, "encoder", "--batch", "1", "--seq-len", "2")
	require.NoError(t, err)
	assert.Equal(t, "encoder output shape: [1 2 4]\n", stdout)
}
