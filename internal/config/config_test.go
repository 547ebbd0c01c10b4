package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithNoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 200, cfg.Kernel.TickMs)
	require.Equal(t, 10, cfg.Kernel.MarketDataDepth)
	require.Equal(t, 200, cfg.Latency.RPCUpMs)
	require.Equal(t, 300, cfg.Latency.ComputeMs)
	require.Equal(t, "calm", cfg.Scenario.Name)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lobsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte("kernel:\n  tick_ms: 50\nscenario:\n  name: spike\n  seed: 42\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 50, cfg.Kernel.TickMs)
	require.Equal(t, "spike", cfg.Scenario.Name)
	require.EqualValues(t, 42, cfg.Scenario.Seed)
	// unspecified fields keep their defaults
	require.Equal(t, 10, cfg.Kernel.MarketDataDepth)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("LOBSIM_KERNEL_TICK_MS", "75")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 75, cfg.Kernel.TickMs)
}

func TestValidateRejectsUnknownScenario(t *testing.T) {
	cfg := Defaults()
	cfg.Scenario.Name = "chaotic"
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroTick(t *testing.T) {
	cfg := Defaults()
	cfg.Kernel.TickMs = 0
	require.Error(t, cfg.Validate())
}
