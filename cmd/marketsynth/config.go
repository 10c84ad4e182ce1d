package main

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/halcyontrade/marketsynth/pkg/models"
)

// Config is the replay tool configuration, loaded from a YAML file and
// MARKETSYNTH_* environment variables.
type Config struct {
	Input    string `mapstructure:"input"`
	Output   string `mapstructure:"output"`
	LogLevel string `mapstructure:"log_level"`
	Seed     uint64 `mapstructure:"seed"`
	FailFast bool   `mapstructure:"fail_fast"`

	Emulation EmulationConfig `mapstructure:"emulation"`
}

// EmulationConfig mirrors models.EmulationSettings with config-friendly
// field types.
type EmulationConfig struct {
	MaxDepth                      int     `mapstructure:"max_depth"`
	SpreadSizeSteps               int     `mapstructure:"spread_size_steps"`
	IncreaseDepthVolumeOnRegister bool    `mapstructure:"increase_depth_volume_on_register"`
	VolumeMultiplier              float64 `mapstructure:"volume_multiplier"`
}

// Settings converts the config into engine settings.
func (c EmulationConfig) Settings() models.EmulationSettings {
	return models.EmulationSettings{
		MaxDepth:                      c.MaxDepth,
		SpreadSizeSteps:               c.SpreadSizeSteps,
		IncreaseDepthVolumeOnRegister: c.IncreaseDepthVolumeOnRegister,
		VolumeMultiplier:              decimal.NewFromFloat(c.VolumeMultiplier),
	}
}

// LoadConfig reads the configuration, applying defaults for everything
// but the input path. Flags bound from the given set override both the
// config file and the environment.
func LoadConfig(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetDefault("input", "")
	v.SetDefault("output", "synthetic.log")
	v.SetDefault("log_level", "info")
	v.SetDefault("seed", 1)
	v.SetDefault("fail_fast", false)
	v.SetDefault("emulation.max_depth", 5)
	v.SetDefault("emulation.spread_size_steps", 2)
	v.SetDefault("emulation.increase_depth_volume_on_register", false)
	v.SetDefault("emulation.volume_multiplier", 1.0)

	v.SetEnvPrefix("marketsynth")
	v.AutomaticEnv()

	if flags != nil {
		for _, key := range []string{"input", "output"} {
			if f := flags.Lookup(key); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind %s flag: %w", key, err)
				}
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Input == "" {
		return nil, fmt.Errorf("input journal path is required")
	}
	if err := cfg.Emulation.Settings().Validate(); err != nil {
		return nil, fmt.Errorf("emulation settings: %w", err)
	}
	return &cfg, nil
}
