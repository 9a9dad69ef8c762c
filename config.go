package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrInvalidConfig indicates inconsistent construction or command configuration.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config holds all configuration for the CLI.
//
// Values are layered by viper: defaults < YAML config file < DT_* environment
// variables < command-line flags. Nested keys map to environment variables by
// replacing dots with underscores, e.g. model.hidden_size -> DT_MODEL_HIDDEN_SIZE.
type Config struct {
	Model   ModelConfig   `mapstructure:"model"`
	Encoder EncoderConfig `mapstructure:"encoder"`
	Compute ComputeConfig `mapstructure:"compute"`
	Log     LogConfig     `mapstructure:"log"`
}

// ModelConfig holds decision model dimensions and inference settings.
type ModelConfig struct {
	StateDim   int    `mapstructure:"state_dim"`
	ActDim     int    `mapstructure:"act_dim"`
	HiddenSize int    `mapstructure:"hidden_size"`
	MaxEpLen   int    `mapstructure:"max_ep_len"`
	MaxLength  int    `mapstructure:"max_length"` // 0 disables the context window
	Device     string `mapstructure:"device"`
	Seed       int64  `mapstructure:"seed"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfig returns a config sized for the cart-pole environment.
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			StateDim:   4,
			ActDim:     2,
			HiddenSize: 128,
			MaxEpLen:   1000,
			MaxLength:  20,
			Device:     string(DeviceCPU),
			Seed:       1,
		},
		Encoder: DefaultEncoderConfig(),
		Compute: DefaultComputeConfig(),
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := c.Model.Validate(); err != nil {
		return err
	}
	if err := c.Encoder.Validate(); err != nil {
		return err
	}
	if c.Compute.NumWorkers < 0 {
		return fmt.Errorf("%w: compute.workers must be >= 0", ErrInvalidConfig)
	}
	if _, err := parseLogLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("%w: log.format must be console or json, got %q", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}

// Validate checks the model dimensions.
func (m ModelConfig) Validate() error {
	if m.StateDim <= 0 {
		return fmt.Errorf("%w: model.state_dim must be positive", ErrInvalidConfig)
	}
	if m.ActDim <= 0 {
		return fmt.Errorf("%w: model.act_dim must be positive", ErrInvalidConfig)
	}
	if m.HiddenSize <= 0 {
		return fmt.Errorf("%w: model.hidden_size must be positive", ErrInvalidConfig)
	}
	if m.MaxEpLen <= 0 {
		return fmt.Errorf("%w: model.max_ep_len must be positive", ErrInvalidConfig)
	}
	if m.MaxLength < 0 {
		return fmt.Errorf("%w: model.max_length must be >= 0", ErrInvalidConfig)
	}
	if _, err := ParseDevice(m.Device); err != nil {
		return err
	}
	return nil
}

// flagBindings maps command-line flag names to config keys.
var flagBindings = map[string]string{
	"state-dim":   "model.state_dim",
	"act-dim":     "model.act_dim",
	"hidden-size": "model.hidden_size",
	"max-ep-len":  "model.max_ep_len",
	"max-length":  "model.max_length",
	"device":      "model.device",
	"seed":        "model.seed",
	"layers":      "encoder.layers",
	"heads":       "encoder.heads",
	"embed-dim":   "encoder.embed_dim",
	"ff-hidden":   "encoder.ff_hidden",
	"dropout":     "encoder.dropout",
	"parallel":    "compute.parallel",
	"workers":     "compute.workers",
	"log-level":   "log.level",
	"log-format":  "log.format",
}

// newViper returns a viper instance with every key defaulted, so that
// AutomaticEnv can resolve DT_* variables during Unmarshal.
func newViper() *viper.Viper {
	v := viper.New()
	def := DefaultConfig()

	v.SetDefault("model.state_dim", def.Model.StateDim)
	v.SetDefault("model.act_dim", def.Model.ActDim)
	v.SetDefault("model.hidden_size", def.Model.HiddenSize)
	v.SetDefault("model.max_ep_len", def.Model.MaxEpLen)
	v.SetDefault("model.max_length", def.Model.MaxLength)
	v.SetDefault("model.device", def.Model.Device)
	v.SetDefault("model.seed", def.Model.Seed)
	v.SetDefault("encoder.layers", def.Encoder.NumLayers)
	v.SetDefault("encoder.heads", def.Encoder.NumHeads)
	v.SetDefault("encoder.embed_dim", def.Encoder.EmbedDim)
	v.SetDefault("encoder.ff_hidden", def.Encoder.FFHidden)
	v.SetDefault("encoder.dropout", def.Encoder.Dropout)
	v.SetDefault("compute.parallel", def.Compute.Parallel)
	v.SetDefault("compute.workers", def.Compute.NumWorkers)
	v.SetDefault("compute.min_size_for_parallel", def.Compute.MinSizeForParallel)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)

	v.SetEnvPrefix("DT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// bindFlags binds every known flag present in fs to its config key.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagBindings {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// LoadConfig resolves the layered configuration. configFile may be empty.
func LoadConfig(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
