package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/receipts/internal/model"
)

// RunRecord is one completed run.
type RunRecord struct {
	ID             string
	Seq            int64 // assigned by RecordRun
	Subject        string
	Window         model.TimeWindow
	Mode           model.ActivityMode
	Completeness   model.Completeness
	Events         int
	Workstreams    int
	Profiles       []model.Profile
	ManifestSHA256 string
	Dir            string
	CreatedAt      time.Time
}

// RecordRun inserts a run and its artifacts in one transaction.
// Uses ON CONFLICT(id) DO NOTHING for idempotency: recording the same run id
// twice leaves the first record untouched and returns nil.
func (s *Store) RecordRun(ctx context.Context, rec RunRecord, files []model.BundleFile) error {
	profiles, err := json.Marshal(rec.Profiles)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	if rec.Profiles == nil {
		profiles = []byte("[]")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record run: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, seq, subject, window_since, window_until, mode, completeness,
		 events, workstreams, profiles, manifest_sha256, dir, created_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM runs), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID,
		rec.Subject,
		dateText(rec.Window.Since),
		dateText(rec.Window.Until),
		string(rec.Mode),
		string(rec.Completeness),
		rec.Events,
		rec.Workstreams,
		string(profiles),
		rec.ManifestSHA256,
		rec.Dir,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", rec.ID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("record run %s: %w", rec.ID, err)
	} else if n == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO artifacts (run_id, path, sha256, bytes) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("record artifacts: %w", err)
	}
	defer stmt.Close()

	for _, f := range files {
		if _, err := stmt.ExecContext(ctx, rec.ID, f.Path, f.SHA256, f.Bytes); err != nil {
			return fmt.Errorf("record artifact %s: %w", f.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record run %s: commit: %w", rec.ID, err)
	}
	return nil
}

// dateText stores a zero date as "" rather than an unparseable "0000-00-00".
func dateText(d model.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}
