package store

import (
	"database/sql"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/roach88/receipts/internal/model"
)

// createTestStore opens a fresh store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun builds a run record with minimal required fields.
func createTestRun(id, subject string) RunRecord {
	return RunRecord{
		ID:      id,
		Subject: subject,
		Window: model.TimeWindow{
			Since: model.MustParseDate("2025-01-01"),
			Until: model.MustParseDate("2025-02-01"),
		},
		Mode:           model.ModeMerged,
		Completeness:   model.CompletenessComplete,
		Events:         3,
		Workstreams:    2,
		Profiles:       []model.Profile{model.ProfileManager, model.ProfilePublic},
		ManifestSHA256: "abc123",
		Dir:            "/out/" + id,
		CreatedAt:      time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC),
	}
}

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("failed to scan column info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	if err != nil {
		t.Fatalf("failed to get indexes for %q: %v", table, err)
	}
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan index name: %v", err)
		}
		indexes = append(indexes, name)
	}
	return indexes
}

func contains(s []string, item string) bool {
	return slices.Contains(s, item)
}
