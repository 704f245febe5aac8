package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/receipts/internal/model"
	"github.com/roach88/receipts/internal/testutil"
	"github.com/roach88/receipts/internal/writer"
)

func noEnv(string) string { return "" }

// writeInputs writes a three-event ledger and its coverage manifest.
func writeInputs(t *testing.T) (eventsPath, coveragePath string) {
	t.Helper()
	dir := t.TempDir()
	events := []model.EventEnvelope{
		testutil.PR("o/r1", 1, testutil.WithDiffStats(10, 2, 3)),
		testutil.PR("o/r2", 2),
		testutil.Review("o/r1", 3, "APPROVED"),
	}
	cov := testutil.Coverage("", "octocat", testutil.Window("2025-01-01", "2025-02-01"), len(events))

	eventsPath = filepath.Join(dir, writer.LedgerName)
	coveragePath = filepath.Join(dir, writer.CoverageName)
	require.NoError(t, writer.WriteLedger(eventsPath, events))
	require.NoError(t, writer.WriteCoverage(coveragePath, cov))
	return eventsPath, coveragePath
}

// execute runs the root command with args and returns stdout, stderr and the error.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand(&RootOptions{Getenv: noEnv})
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// decodeData decodes the data field of a JSON CLIResponse into v.
func decodeData(t *testing.T, out string, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status, out)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

// runOK runs the pipeline with a test key and returns its summary.
func runOK(t *testing.T, extra ...string) RunSummary {
	t.Helper()
	eventsPath, coveragePath := writeInputs(t)
	args := append([]string{
		"--format", "json", "run",
		"--events", eventsPath,
		"--coverage", coveragePath,
		"--out", t.TempDir(),
		"--redaction-key", "cli-test-key",
	}, extra...)
	stdout, stderr, err := execute(t, args...)
	require.NoError(t, err, stderr)

	var s RunSummary
	decodeData(t, stdout, &s)
	return s
}
