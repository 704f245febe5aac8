package cli

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryEmpty(t *testing.T) {
	db := filepath.Join(t.TempDir(), "history.db")

	stdout, _, err := execute(t, "history", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "No runs recorded.\n", stdout)
}

func TestHistoryListsRuns(t *testing.T) {
	db := filepath.Join(t.TempDir(), "history.db")
	first := runOK(t, "--history", db)
	second := runOK(t, "--history", db)

	stdout, _, err := execute(t, "--format", "json", "history", "--db", db)
	require.NoError(t, err)

	var runs []HistoryRun
	decodeData(t, stdout, &runs)
	require.Len(t, runs, 2)
	assert.Equal(t, first.RunID, runs[0].ID)
	assert.Equal(t, second.RunID, runs[1].ID)
	assert.Less(t, runs[0].Seq, runs[1].Seq)
	assert.Equal(t, "octocat", runs[0].Subject)
	assert.Equal(t, "[2025-01-01, 2025-02-01)", runs[0].Window)
	assert.Equal(t, 3, runs[0].Events)
	assert.Equal(t, 2, runs[0].Workstreams)

	stdout, _, err = execute(t, "--format", "json", "history", "--db", db, "--subject", "someone-else")
	require.NoError(t, err)
	decodeData(t, stdout, &runs)
	assert.Empty(t, runs)
}

func TestHistoryText(t *testing.T) {
	db := filepath.Join(t.TempDir(), "history.db")
	s := runOK(t, "--history", db)

	stdout, _, err := execute(t, "history", "--db", db)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "SEQ"))
	assert.Contains(t, lines[1], s.RunID)
	assert.Contains(t, lines[1], "complete")
}

func TestHistoryShowRun(t *testing.T) {
	db := filepath.Join(t.TempDir(), "history.db")
	s := runOK(t, "--history", db)

	stdout, _, err := execute(t, "--format", "json", "history", "--db", db, "--run", s.RunID)
	require.NoError(t, err)

	var runs []HistoryRun
	decodeData(t, stdout, &runs)
	require.Len(t, runs, 1)
	assert.Equal(t, s.Dir, runs[0].Dir)
	require.Len(t, runs[0].Files, s.Files)

	paths := make([]string, len(runs[0].Files))
	for i, f := range runs[0].Files {
		paths[i] = f.Path
	}
	assert.Contains(t, paths, "packet.md")
	assert.Contains(t, paths, "profiles/public/packet.md")
}

func TestHistoryUnknownRun(t *testing.T) {
	db := filepath.Join(t.TempDir(), "history.db")

	_, _, err := execute(t, "history", "--db", db, "--run", "run-missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
