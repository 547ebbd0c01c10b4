package main

import (
	"fmt"
	"os"

	"github.com/lobsim/lobsim/internal/domain"
	"github.com/lobsim/lobsim/internal/metrics"
)

// runBatch drives one scenario to completion inside an fx.App and
// returns its result once the app's Shutdowner has fired.
func runBatch(opts runOptions) (Result, error) {
	var result Result
	app := buildBatchApp(opts, &result)
	if err := app.Err(); err != nil {
		return Result{}, fmt.Errorf("build app: %w", err)
	}
	app.Run()
	return result, nil
}

func metricsSummariesOrWarn(logPath string) (map[domain.AgentID]*metrics.AgentSummary, error) {
	summaries, err := metrics.ComputeFromLog(logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not compute metrics: %v\n", err)
		return nil, err
	}
	return summaries, nil
}
