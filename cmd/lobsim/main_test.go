package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lobsim/lobsim/internal/config"
)

func TestParseFlagsParsesKeyValuePairs(t *testing.T) {
	flags := parseFlags([]string{"--scenario", "thin", "--seed", "7"})
	require.Equal(t, "thin", flags["scenario"])
	require.Equal(t, "7", flags["seed"])
}

func TestParseFlagsIgnoresBareArguments(t *testing.T) {
	flags := parseFlags([]string{"run", "--seed", "3"})
	require.Equal(t, "3", flags["seed"])
	_, ok := flags["run"]
	require.False(t, ok)
}

func TestFlagOrReturnsDefaultWhenMissing(t *testing.T) {
	flags := map[string]string{"scenario": "spike"}
	require.Equal(t, "spike", flagOr(flags, "scenario", "calm"))
	require.Equal(t, "calm", flagOr(flags, "missing", "calm"))
}

func TestFlagInt64ParsesAndFallsBackOnError(t *testing.T) {
	flags := map[string]string{"seed": "99", "bad": "not-a-number"}
	require.Equal(t, int64(99), flagInt64(flags, "seed", 1))
	require.Equal(t, int64(1), flagInt64(flags, "bad", 1))
	require.Equal(t, int64(1), flagInt64(flags, "missing", 1))
}

func TestBatchTicksDividesDurationByTickSize(t *testing.T) {
	cfg := config.Defaults()
	cfg.Kernel.TickMs = 100
	opts := runOptions{durationMs: 1000}
	require.Equal(t, int64(10), batchTicks(opts, &cfg))
}

func TestBatchTicksNeverReturnsZero(t *testing.T) {
	cfg := config.Defaults()
	cfg.Kernel.TickMs = 1000
	opts := runOptions{durationMs: 1}
	require.Equal(t, int64(1), batchTicks(opts, &cfg))
}

func TestRunBatchWritesEventLogAndMeta(t *testing.T) {
	outDir := t.TempDir()
	opts := runOptions{scenarioName: "calm", seed: 1, durationMs: 2000, outDir: outDir}

	result, err := runBatch(opts)
	require.NoError(t, err)
	require.Equal(t, "calm", result.Scenario)
	require.FileExists(t, result.LogPath)
	require.NotEmpty(t, result.LogHash)

	metaPath := filepath.Join(result.OutputDir, "meta.json")
	require.FileExists(t, metaPath)

	reportPath := filepath.Join(result.OutputDir, "report.md")
	require.FileExists(t, reportPath)
}

func TestRunBatchIsDeterministicAcrossRunsWithSameSeed(t *testing.T) {
	opts1 := runOptions{scenarioName: "calm", seed: 5, durationMs: 1500, outDir: t.TempDir()}
	opts2 := runOptions{scenarioName: "calm", seed: 5, durationMs: 1500, outDir: t.TempDir()}

	result1, err := runBatch(opts1)
	require.NoError(t, err)
	result2, err := runBatch(opts2)
	require.NoError(t, err)

	require.Equal(t, result1.LogHash, result2.LogHash)
	require.Equal(t, result1.EventCount, result2.EventCount)
}

func TestRunBatchAllScenariosProduceEventsAndTrades(t *testing.T) {
	for _, name := range []string{"calm", "thin", "spike"} {
		t.Run(name, func(t *testing.T) {
			opts := runOptions{scenarioName: name, seed: 42, durationMs: 4000, outDir: t.TempDir()}
			result, err := runBatch(opts)
			require.NoError(t, err)
			require.NotZero(t, result.EventCount, "expected at least one event")
			require.NotZero(t, result.TradeCount, "expected at least one trade")
		})
	}
}

func TestReplayVerifiesDeterministicMatch(t *testing.T) {
	outDir := t.TempDir()
	opts := runOptions{scenarioName: "thin", seed: 3, durationMs: 1500, outDir: outDir}
	result, err := runBatch(opts)
	require.NoError(t, err)

	err = runReplay([]string{"--run-dir", result.OutputDir})
	require.NoError(t, err)
}
