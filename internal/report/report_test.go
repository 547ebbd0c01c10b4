package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lobsim/lobsim/internal/domain"
	"github.com/lobsim/lobsim/internal/metrics"
)

func sampleSummaries() map[domain.AgentID]*metrics.AgentSummary {
	return map[domain.AgentID]*metrics.AgentSummary{
		2: {AgentID: 2, OrdersSent: 10, CancelsSent: 2, FillsAsMaker: 3, QtyFilled: 30},
		1: {AgentID: 1, OrdersSent: 5, FillsAsTaker: 4, QtyFilled: 12},
	}
}

func TestGenerateWritesMarkdownTable(t *testing.T) {
	dir := t.TempDir()
	r := NewReport("calm", 7, sampleSummaries(), dir)
	require.NoError(t, r.Generate())

	data, err := os.ReadFile(filepath.Join(dir, "report.md"))
	require.NoError(t, err)
	body := string(data)
	require.Contains(t, body, "calm")
	require.Contains(t, body, "| Agent |")
	require.Contains(t, body, "| 1 |")
	require.Contains(t, body, "| 2 |")
}

func TestGenerateCreatesMissingOutputDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "run")
	r := NewReport("thin", 1, sampleSummaries(), dir)
	require.NoError(t, r.Generate())
	require.FileExists(t, filepath.Join(dir, "report.md"))
}

func TestCrossReportGenerateListsEveryScenario(t *testing.T) {
	dir := t.TempDir()
	cr := NewCrossReport([]CrossResult{
		{Scenario: "calm", Seed: 1, Summaries: sampleSummaries(), RunDir: "runs/calm_seed1"},
		{Scenario: "spike", Seed: 1, Summaries: sampleSummaries(), RunDir: "runs/spike_seed1"},
	}, dir)
	require.NoError(t, cr.Generate())

	data, err := os.ReadFile(filepath.Join(dir, "cross-scenario-report.md"))
	require.NoError(t, err)
	body := string(data)
	require.Contains(t, body, "## calm")
	require.Contains(t, body, "## spike")
}

func TestSortedIDsOrdersAscending(t *testing.T) {
	ids := sortedIDs(sampleSummaries())
	require.Equal(t, []domain.AgentID{1, 2}, ids)
}
