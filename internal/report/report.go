// Package report renders per-agent activity summaries as markdown,
// grounded on the teacher's internal/report package (report.go/cross.go)
// but adapted to this simulator's metrics.AgentSummary shape and its
// single-symbol, single-run scope (no per-scenario config struct to
// echo back, since SPEC_FULL.md's scenario presets are named by a
// single string rather than a full JSON config).
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lobsim/lobsim/internal/domain"
	"github.com/lobsim/lobsim/internal/metrics"
)

// Report renders one run's agent summaries to a markdown file.
type Report struct {
	scenario   string
	seed       int64
	summaries  map[domain.AgentID]*metrics.AgentSummary
	outDir     string
}

// NewReport creates a report for one completed run.
func NewReport(scenario string, seed int64, summaries map[domain.AgentID]*metrics.AgentSummary, outDir string) *Report {
	return &Report{scenario: scenario, seed: seed, summaries: summaries, outDir: outDir}
}

func sortedIDs(summaries map[domain.AgentID]*metrics.AgentSummary) []domain.AgentID {
	ids := make([]domain.AgentID, 0, len(summaries))
	for id := range summaries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func renderTable(summaries map[domain.AgentID]*metrics.AgentSummary) string {
	var b strings.Builder
	b.WriteString("| Agent | Orders | Cancels | Fills (maker) | Fills (taker) | Qty filled |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, id := range sortedIDs(summaries) {
		s := summaries[id]
		fmt.Fprintf(&b, "| %d | %d | %d | %d | %d | %d |\n",
			s.AgentID, s.OrdersSent, s.CancelsSent, s.FillsAsMaker, s.FillsAsTaker, s.QtyFilled)
	}
	return b.String()
}

// PrintSummary writes a plain-text table to stdout, for the "run" and
// "demo" CLI commands to show inline without touching the filesystem.
func PrintSummary(scenarioName string, seed int64, summaries map[domain.AgentID]*metrics.AgentSummary) {
	fmt.Printf("Scenario: %s (seed=%d)\n", scenarioName, seed)
	for _, id := range sortedIDs(summaries) {
		s := summaries[id]
		fmt.Printf("  agent %-4d orders=%-4d cancels=%-4d fills(maker)=%-4d fills(taker)=%-4d qty=%d\n",
			s.AgentID, s.OrdersSent, s.CancelsSent, s.FillsAsMaker, s.FillsAsTaker, s.QtyFilled)
	}
}

// Generate writes report.md under the report's output directory.
func (r *Report) Generate() error {
	if err := os.MkdirAll(r.outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# lobsim run report\n\n")
	fmt.Fprintf(&b, "Scenario: `%s`  \nSeed: `%d`\n\n", r.scenario, r.seed)
	b.WriteString(renderTable(r.summaries))
	return os.WriteFile(filepath.Join(r.outDir, "report.md"), []byte(b.String()), 0o644)
}

// CrossResult bundles one scenario's summaries and output directory,
// for cross-scenario comparison in the "demo" command.
type CrossResult struct {
	Scenario  string
	Seed      int64
	Summaries map[domain.AgentID]*metrics.AgentSummary
	RunDir    string
}

// CrossReport renders a side-by-side comparison across several runs.
type CrossReport struct {
	results []CrossResult
	outDir  string
}

// NewCrossReport creates a cross-scenario report.
func NewCrossReport(results []CrossResult, outDir string) *CrossReport {
	return &CrossReport{results: results, outDir: outDir}
}

// PrintCrossSummary writes a short per-scenario recap to stdout.
func PrintCrossSummary(results []CrossResult) {
	fmt.Println("\nCross-scenario summary:")
	for _, r := range results {
		var trades int
		for _, s := range r.Summaries {
			trades += s.FillsAsTaker
		}
		fmt.Printf("  %-8s seed=%-6d agents=%-3d taker-fills=%d\n", r.Scenario, r.Seed, len(r.Summaries), trades)
	}
}

// Generate writes cross-scenario-report.md under the report's output
// directory.
func (cr *CrossReport) Generate() error {
	if err := os.MkdirAll(cr.outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	var b strings.Builder
	b.WriteString("# lobsim cross-scenario report\n\n")
	for _, r := range cr.results {
		fmt.Fprintf(&b, "## %s (seed=%d)\n\n", r.Scenario, r.Seed)
		fmt.Fprintf(&b, "Run directory: `%s`\n\n", r.RunDir)
		b.WriteString(renderTable(r.Summaries))
		b.WriteString("\n")
	}
	return os.WriteFile(filepath.Join(cr.outDir, "cross-scenario-report.md"), []byte(b.String()), 0o644)
}
