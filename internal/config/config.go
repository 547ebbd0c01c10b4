// Package config loads kernel, latency, and scenario options for a run.
// Config is read from an optional YAML file with LOBSIM_* environment
// variable overrides, matching the precedence and defaulting style of
// 0xtitan6-polymarket-mm's viper-based loader.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the top-level set of options the kernel, latency model, and
// scenario generator recognize (spec §6).
type Config struct {
	Kernel   KernelConfig   `mapstructure:"kernel"`
	Latency  LatencyConfig  `mapstructure:"latency"`
	Scenario ScenarioConfig `mapstructure:"scenario"`
}

// KernelConfig holds the kernel's own recognized options (spec §6).
type KernelConfig struct {
	// TickMs is the simulated advance per wall-clock tick; default 200.
	TickMs int `mapstructure:"tick_ms"`
	// MarketDataDepth is the default snapshot depth published after
	// every book mutation; default 10.
	MarketDataDepth int `mapstructure:"market_data_depth"`
}

// LatencyConfig holds the two-stage RPC model's recognized options
// (spec §6).
type LatencyConfig struct {
	RPCUpMs      int `mapstructure:"rpc_up_ms"`
	RPCDownMs    int `mapstructure:"rpc_down_ms"`
	ComputeMs    int `mapstructure:"compute_ms"`
	DownJitterMs int `mapstructure:"down_jitter_ms"`
	Seed         int64 `mapstructure:"seed"`
}

// ScenarioConfig selects the background order-flow preset and its seed.
type ScenarioConfig struct {
	Name string `mapstructure:"name"`
	Seed int64  `mapstructure:"seed"`
}

// Defaults matches spec §6's documented defaults exactly.
func Defaults() Config {
	return Config{
		Kernel:  KernelConfig{TickMs: 200, MarketDataDepth: 10},
		Latency: LatencyConfig{RPCUpMs: 200, RPCDownMs: 200, ComputeMs: 300, DownJitterMs: 0, Seed: 1},
		Scenario: ScenarioConfig{Name: "calm", Seed: 1},
	}
}

// Load reads config from an optional YAML file at path (skipped when
// path is empty; a non-empty path that cannot be read is an error),
// applies LOBSIM_* environment overrides, and fills
// in spec §6's documented defaults for anything left unset.
func Load(path string) (*Config, error) {
	v := viper.New()
	cfg := Defaults()
	v.SetDefault("kernel.tick_ms", cfg.Kernel.TickMs)
	v.SetDefault("kernel.market_data_depth", cfg.Kernel.MarketDataDepth)
	v.SetDefault("latency.rpc_up_ms", cfg.Latency.RPCUpMs)
	v.SetDefault("latency.rpc_down_ms", cfg.Latency.RPCDownMs)
	v.SetDefault("latency.compute_ms", cfg.Latency.ComputeMs)
	v.SetDefault("latency.down_jitter_ms", cfg.Latency.DownJitterMs)
	v.SetDefault("latency.seed", cfg.Latency.Seed)
	v.SetDefault("scenario.name", cfg.Scenario.Name)
	v.SetDefault("scenario.seed", cfg.Scenario.Seed)

	v.SetEnvPrefix("LOBSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks value ranges the kernel/latency model would otherwise
// silently misbehave on.
func (c *Config) Validate() error {
	if c.Kernel.TickMs <= 0 {
		return fmt.Errorf("kernel.tick_ms must be > 0")
	}
	if c.Kernel.MarketDataDepth <= 0 {
		return fmt.Errorf("kernel.market_data_depth must be > 0")
	}
	if c.Latency.RPCUpMs < 0 || c.Latency.RPCDownMs < 0 || c.Latency.ComputeMs < 0 {
		return fmt.Errorf("latency delays must be >= 0")
	}
	if c.Latency.DownJitterMs < 0 {
		return fmt.Errorf("latency.down_jitter_ms must be >= 0")
	}
	switch c.Scenario.Name {
	case "calm", "thin", "spike":
	default:
		return fmt.Errorf("scenario.name must be one of calm, thin, spike (got %q)", c.Scenario.Name)
	}
	return nil
}
