package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, CartPoleStateDim, cfg.Model.StateDim)
	assert.Equal(t, CartPoleActions, cfg.Model.ActDim)
	assert.Equal(t, 20, cfg.Model.MaxLength)
	assert.Equal(t, "cpu", cfg.Model.Device)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero state dim", func(c *Config) { c.Model.StateDim = 0 }},
		{"zero act dim", func(c *Config) { c.Model.ActDim = 0 }},
		{"zero hidden size", func(c *Config) { c.Model.HiddenSize = 0 }},
		{"zero max ep len", func(c *Config) { c.Model.MaxEpLen = 0 }},
		{"negative max length", func(c *Config) { c.Model.MaxLength = -1 }},
		{"unknown device", func(c *Config) { c.Model.Device = "metal" }},
		{"bad encoder", func(c *Config) { c.Encoder.NumHeads = 7 }},
		{"negative workers", func(c *Config) { c.Compute.NumWorkers = -2 }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(newViper(), "")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dt.yaml")
	doc := `model:
  state_dim: 17
  act_dim: 6
  hidden_size: 32
  max_length: 0
  device: gonum
encoder:
  layers: 2
  heads: 4
compute:
  parallel: false
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := LoadConfig(newViper(), path)
	require.NoError(t, err)

	assert.Equal(t, 17, cfg.Model.StateDim)
	assert.Equal(t, 6, cfg.Model.ActDim)
	assert.Equal(t, 32, cfg.Model.HiddenSize)
	assert.Equal(t, 0, cfg.Model.MaxLength)
	assert.Equal(t, "gonum", cfg.Model.Device)
	assert.Equal(t, 1000, cfg.Model.MaxEpLen, "unset keys keep defaults")
	assert.Equal(t, 2, cfg.Encoder.NumLayers)
	assert.Equal(t, 4, cfg.Encoder.NumHeads)
	assert.Equal(t, 64, cfg.Encoder.EmbedDim)
	assert.False(t, cfg.Compute.Parallel)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(newViper(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model:\n  hidden_size: -4\n"), 0o644))
	_, err = LoadConfig(newViper(), path)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadConfigEnvironment(t *testing.T) {
	t.Setenv("DT_MODEL_HIDDEN_SIZE", "48")
	t.Setenv("DT_MODEL_DEVICE", "gonum")
	t.Setenv("DT_COMPUTE_WORKERS", "3")

	cfg, err := LoadConfig(newViper(), "")
	require.NoError(t, err)
	assert.Equal(t, 48, cfg.Model.HiddenSize)
	assert.Equal(t, "gonum", cfg.Model.Device)
	assert.Equal(t, 3, cfg.Compute.NumWorkers)
}

func TestLoadConfigPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dt.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model:\n  hidden_size: 32\n  max_length: 5\n  seed: 9\n"), 0o644))
	t.Setenv("DT_MODEL_HIDDEN_SIZE", "48")
	t.Setenv("DT_MODEL_MAX_LENGTH", "6")

	v := newViper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("hidden-size", 128, "")
	fs.Int("max-length", 20, "")
	require.NoError(t, fs.Parse([]string{"--hidden-size=64"}))
	require.NoError(t, bindFlags(v, fs))

	cfg, err := LoadConfig(v, path)
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Model.HiddenSize, "flag beats env and file")
	assert.Equal(t, 6, cfg.Model.MaxLength, "env beats file")
	assert.Equal(t, int64(9), cfg.Model.Seed, "file beats default")
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		"":        zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
	}
	for in, want := range tests {
		got, err := parseLogLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := parseLogLevel("trace-ish")
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSetupLoggingJSON(t *testing.T) {
	saved := logger
	t.Cleanup(func() { logger = saved })

	var buf bytes.Buffer
	require.NoError(t, setupLogging(LogConfig{Level: "warn", Format: "json"}, &buf))

	logger.Info().Msg("dropped")
	logger.Warn().Str("k", "v").Msg("kept")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Equal(t, 1, strings.Count(out, "\n"))
	assert.Contains(t, out, `"message":"kept"`)
	assert.Contains(t, out, `"k":"v"`)
}
