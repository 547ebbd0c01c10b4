package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lobsim/lobsim/internal/report"
)

type runMeta struct {
	Scenario   string `json:"scenario"`
	Seed       int64  `json:"seed"`
	DurationMs int64  `json:"duration_ms"`
}

// runReplay recomputes metrics from a previously written event log and
// then deterministically regenerates the same run into a temp
// directory, comparing sha256 hashes to confirm the kernel replayed
// identically (grounded on the teacher's runReplay/simHashFile).
func runReplay(args []string) error {
	flags := parseFlags(args)
	runDir := flags["run-dir"]
	configPath := flags["config"]
	if runDir == "" {
		return fmt.Errorf("--run-dir is required")
	}

	metaPath := filepath.Join(runDir, "meta.json")
	metaData, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("could not read run metadata at %s: %w", metaPath, err)
	}
	var meta runMeta
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return fmt.Errorf("could not decode run metadata: %w", err)
	}

	logPath := filepath.Join(runDir, "events.jsonl")
	if _, err := os.Stat(logPath); err != nil {
		return fmt.Errorf("could not access event log at %s: %w", logPath, err)
	}

	targetHash, err := hashFile(logPath)
	if err != nil {
		return fmt.Errorf("could not hash target event log: %w", err)
	}

	fmt.Printf("Analyzing event log: %s\n", logPath)
	summaries, err := metricsSummariesOrWarn(logPath)
	if err != nil {
		return fmt.Errorf("could not recompute metrics from event log: %w", err)
	}
	fmt.Println("\nMetrics Summary (Replay):")
	report.PrintSummary(meta.Scenario, meta.Seed, summaries)

	tmpDir, err := os.MkdirTemp("", "lobsim-replay-*")
	if err != nil {
		return fmt.Errorf("create temp directory for deterministic replay: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	replayOpts := runOptions{
		scenarioName: meta.Scenario, seed: meta.Seed, durationMs: meta.DurationMs,
		configPath: configPath, outDir: tmpDir,
	}
	replayResult, err := runBatch(replayOpts)
	if err != nil {
		return fmt.Errorf("run deterministic replay: %w", err)
	}

	fmt.Printf("\nDeterministic replay log: %s\n", replayResult.LogPath)
	if targetHash == replayResult.LogHash {
		fmt.Printf("Event log hash matches deterministic replay: %s...\n", targetHash[:16])
	} else {
		fmt.Printf("Event log hash MISMATCH!\nOriginal: %s...\nReplay:   %s...\n", targetHash[:16], replayResult.LogHash[:16])
	}
	return nil
}
