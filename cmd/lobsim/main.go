package main

import (
	"fmt"
	"os"

	"github.com/lobsim/lobsim/internal/report"
)

const defaultOutDir = "runs"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		cmdRun(os.Args[2:])
	case "demo":
		cmdDemo(os.Args[2:])
	case "replay":
		cmdReplay(os.Args[2:])
	case "serve":
		cmdServe(os.Args[2:])
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: lobsim <command> [options]

Commands:
  run      Run one scenario to completion and write an event log
  demo     Run calm, thin, and spike back to back and compare them
  replay   Recompute metrics from a run's event log and verify determinism
  serve    Run in real time and accept WebSocket connections

Run options:
  --scenario <name>   calm, thin, or spike (default: calm)
  --seed <n>          Random seed (default: 1)
  --duration <ms>     Simulated milliseconds to run (default: 10000)
  --config <path>     YAML config file (optional)
  --out <dir>         Output directory (default: runs)

Demo options:
  --seed <n>          Random seed applied to every scenario (default: 1)
  --duration <ms>     Simulated milliseconds per scenario (default: 10000)
  --config <path>     YAML config file (optional)
  --out <dir>         Output directory (default: runs)

Replay options:
  --run-dir <path>    Path to a run directory produced by "run" (required)
  --config <path>     YAML config file used for the original run (optional)

Serve options:
  --addr <host:port>  Listen address (default: :8080)
  --scenario <name>   Background order-flow preset (default: calm)
  --seed <n>          Random seed (default: 1)
  --config <path>     YAML config file (optional)`)
}

func parseFlags(args []string) map[string]string {
	flags := make(map[string]string)
	for i := 0; i < len(args); i++ {
		if len(args[i]) < 2 || args[i][:2] != "--" {
			continue
		}
		key := args[i][2:]
		val := ""
		if i+1 < len(args) {
			i++
			val = args[i]
		}
		flags[key] = val
	}
	return flags
}

func cmdRun(args []string) {
	flags := parseFlags(args)
	opts := runOptions{
		scenarioName: flagOr(flags, "scenario", "calm"),
		seed:         flagInt64(flags, "seed", 1),
		durationMs:   flagInt64(flags, "duration", 10_000),
		configPath:   flags["config"],
		outDir:       flagOr(flags, "out", defaultOutDir),
	}

	fmt.Printf("Running scenario: %s (seed=%d)\n", opts.scenarioName, opts.seed)

	result, err := runBatch(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	printResult(result)
}

func cmdDemo(args []string) {
	flags := parseFlags(args)
	seed := flagInt64(flags, "seed", 1)
	durationMs := flagInt64(flags, "duration", 10_000)
	configPath := flags["config"]
	outDir := flagOr(flags, "out", defaultOutDir)

	names := []string{"calm", "thin", "spike"}
	var crossResults []report.CrossResult

	for _, name := range names {
		fmt.Printf("Running scenario: %s (seed=%d)...\n", name, seed)
		opts := runOptions{scenarioName: name, seed: seed, durationMs: durationMs, configPath: configPath, outDir: outDir}
		result, err := runBatch(opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error running %s: %v\n", name, err)
			os.Exit(1)
		}
		fmt.Printf("  %s: %d events, %d trades, %v\n", name, result.EventCount, result.TradeCount, result.Duration)

		summaries, err := metricsSummariesOrWarn(result.LogPath)
		if err != nil {
			continue
		}
		crossResults = append(crossResults, report.CrossResult{
			Scenario: name, Seed: seed, Summaries: summaries, RunDir: result.OutputDir,
		})
	}

	report.PrintCrossSummary(crossResults)
	cross := report.NewCrossReport(crossResults, outDir)
	if err := cross.Generate(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: cross-scenario report failed: %v\n", err)
		return
	}
	fmt.Printf("\nCross-scenario report: %s/cross-scenario-report.md\n", outDir)
}

func cmdReplay(args []string) {
	if err := runReplay(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func cmdServe(args []string) {
	flags := parseFlags(args)
	opts := runOptions{
		scenarioName: flagOr(flags, "scenario", "calm"),
		seed:         flagInt64(flags, "seed", 1),
		configPath:   flags["config"],
		serveAddr:    flagOr(flags, "addr", ":8080"),
	}

	app := buildServeApp(opts)
	app.Run()
}

func printResult(result Result) {
	fmt.Printf("Simulation complete.\n")
	fmt.Printf("  Events processed: %d\n", result.EventCount)
	fmt.Printf("  Trades executed:  %d\n", result.TradeCount)
	fmt.Printf("  Wall time:        %v\n", result.Duration)
	fmt.Printf("  Log hash:         %s...\n", result.LogHash[:16])
	fmt.Printf("  Output:           %s\n", result.OutputDir)
}

func flagOr(flags map[string]string, key, def string) string {
	if v, ok := flags[key]; ok && v != "" {
		return v
	}
	return def
}

func flagInt64(flags map[string]string, key string, def int64) int64 {
	v, ok := flags[key]
	if !ok {
		return def
	}
	var n int64
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return def
	}
	return n
}
