package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/receipts/internal/model"
)

// ErrNotFound is returned when a run id is not in the store.
var ErrNotFound = errors.New("run not found")

const runColumns = `id, seq, subject, window_since, window_until, mode, completeness,
	events, workstreams, profiles, manifest_sha256, dir, created_at`

// ListRuns returns recorded runs in insertion order.
// An empty subject lists every subject.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ListRuns(ctx context.Context, subject string) ([]RunRecord, error) {
	// Deterministic ordering: seq ASC, id COLLATE BINARY ASC
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE ? = '' OR subject = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, subject, subject)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunRecord{}
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun returns one run and its artifacts ordered by path.
func (s *Store) GetRun(ctx context.Context, id string) (RunRecord, []model.BundleFile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return RunRecord{}, nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT path, sha256, bytes
		FROM artifacts
		WHERE run_id = ?
		ORDER BY path COLLATE BINARY ASC
	`, id)
	if err != nil {
		return rec, nil, fmt.Errorf("query artifacts: %w", err)
	}
	defer rows.Close()

	files := []model.BundleFile{}
	for rows.Next() {
		var f model.BundleFile
		if err := rows.Scan(&f.Path, &f.SHA256, &f.Bytes); err != nil {
			return rec, nil, fmt.Errorf("scan artifact: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return rec, nil, fmt.Errorf("iterate artifacts: %w", err)
	}
	return rec, files, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (RunRecord, error) {
	var (
		rec                       RunRecord
		since, until, mode, compl string
		profiles, created         string
	)
	err := sc.Scan(&rec.ID, &rec.Seq, &rec.Subject, &since, &until, &mode, &compl,
		&rec.Events, &rec.Workstreams, &profiles, &rec.ManifestSHA256, &rec.Dir, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, err
	}
	if err != nil {
		return rec, fmt.Errorf("scan run: %w", err)
	}

	if rec.Window.Since, err = parseDateText(since); err != nil {
		return rec, fmt.Errorf("run %s: window_since: %w", rec.ID, err)
	}
	if rec.Window.Until, err = parseDateText(until); err != nil {
		return rec, fmt.Errorf("run %s: window_until: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(profiles), &rec.Profiles); err != nil {
		return rec, fmt.Errorf("run %s: profiles: %w", rec.ID, err)
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return rec, fmt.Errorf("run %s: created_at: %w", rec.ID, err)
	}
	rec.Mode = model.ActivityMode(mode)
	rec.Completeness = model.Completeness(compl)
	return rec, nil
}

func parseDateText(s string) (model.Date, error) {
	if s == "" {
		return model.Date{}, nil
	}
	return model.ParseDate(s)
}
