package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/receipts/internal/model"
	"github.com/roach88/receipts/internal/testutil"
	"github.com/roach88/receipts/internal/writer"
)

func TestFileImporter(t *testing.T) {
	dir := t.TempDir()
	events := []model.EventEnvelope{testutil.PR("o/r", 1), testutil.Review("o/r", 1, "APPROVED")}
	cov := testutil.Coverage("run-1", "octocat", testutil.Window("2025-01-01", "2025-02-01"), 2)
	cov.Slices[0].TotalCount = 9
	// A stale verdict must not survive import.
	cov.Completeness = model.CompletenessComplete

	evPath := filepath.Join(dir, "events.jsonl")
	covPath := filepath.Join(dir, "coverage.json")
	require.NoError(t, writer.WriteLedger(evPath, events))
	require.NoError(t, writer.WriteCoverage(covPath, cov))

	got, m, err := FileImporter{EventsPath: evPath, CoveragePath: covPath}.Ingest(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, model.CompletenessPartial, m.Completeness)
	assert.NotEmpty(t, m.Warnings)
}

func TestFileImporterBadLine(t *testing.T) {
	dir := t.TempDir()
	evPath := filepath.Join(dir, "events.jsonl")
	covPath := filepath.Join(dir, "coverage.json")
	require.NoError(t, os.WriteFile(evPath, []byte("\n{\"id\": 5}\n"), 0o644))
	require.NoError(t, writer.WriteCoverage(covPath, model.CoverageManifest{}))

	_, _, err := FileImporter{EventsPath: evPath, CoveragePath: covPath}.Ingest(context.Background())
	var lerr *model.LineError
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, 2, lerr.Line)
}

func TestFileImporterMissingFile(t *testing.T) {
	_, _, err := FileImporter{EventsPath: "/nonexistent/e.jsonl"}.Ingest(context.Background())
	assert.Error(t, err)
}

func TestStaticClones(t *testing.T) {
	s := Static{Events: []model.EventEnvelope{testutil.PR("o/r", 1)}}
	got, m, err := s.Ingest(context.Background())
	require.NoError(t, err)

	p, _ := got[0].PullRequest()
	p.Title = "changed"
	orig, _ := s.Events[0].PullRequest()
	assert.NotEqual(t, "changed", orig.Title)
	assert.Equal(t, model.CompletenessUnknown, m.Completeness)
}

func TestStaticCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := Static{}.Ingest(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFilterExcludesRepos(t *testing.T) {
	src := Static{
		Events: []model.EventEnvelope{
			testutil.PR("acme/api", 1),
			testutil.PR("acme/sandbox-x", 2),
			testutil.PR("other/sandbox-y", 3),
			testutil.PR("acme/sandbox-x", 4),
		},
		Coverage: testutil.Coverage("run-1", "octocat", testutil.Window("2025-01-01", "2025-02-01"), 4),
	}
	f, err := NewFilter(src, []string{"*/sandbox-*"}, nil)
	require.NoError(t, err)

	got, m, err := f.Ingest(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "acme/api", got[0].Repo.FullName)
	assert.Equal(t, []model.Exclusion{
		{Repo: "acme/sandbox-x", Pattern: "*/sandbox-*", Events: 2},
		{Repo: "other/sandbox-y", Pattern: "*/sandbox-*", Events: 1},
	}, m.Exclusions)
	assert.Empty(t, m.Warnings)
	assert.Equal(t, []string{
		`excluded 2 events from acme/sandbox-x (pattern "*/sandbox-*")`,
		`excluded 1 events from other/sandbox-y (pattern "*/sandbox-*")`,
	}, m.Notices())
	assert.Equal(t, model.CompletenessComplete, m.Completeness)
}

func TestNewFilterRejectsBadPattern(t *testing.T) {
	_, err := NewFilter(Static{}, []string{"acme/[oops"}, nil)
	assert.Error(t, err)
}

func TestSourceOptionsValidate(t *testing.T) {
	ok := SourceOptions{
		User:    "octocat",
		Window:  testutil.Window("2025-01-01", "2025-02-01"),
		Mode:    model.ModeMerged,
		BaseURL: "https://api.github.com",
	}
	require.NoError(t, ok.Validate())

	bad := SourceOptions{Window: testutil.Window("2025-02-01", "2025-01-01"), Mode: "closed", BaseURL: "nope", Delay: -1}
	err := bad.Validate()
	require.Error(t, err)
	for _, want := range []string{"user is required", "is empty", "unknown activity mode", "invalid base URL", "delay"} {
		assert.ErrorContains(t, err, want)
	}
}
