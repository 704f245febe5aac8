// Package ingest defines the boundary through which events and their
// coverage manifest enter a run.
//
// Fetching activity from a hosted source is done by an external Ingestor;
// this package provides file import, an in-memory source, and repository
// exclusion.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/roach88/receipts/internal/coverage"
	"github.com/roach88/receipts/internal/model"
	"github.com/roach88/receipts/internal/writer"
)

// Ingestor produces the events of a run and the coverage of the queries
// that found them.
type Ingestor interface {
	Ingest(ctx context.Context) ([]model.EventEnvelope, model.CoverageManifest, error)
}

// SourceOptions parameterize an activity-source Ingestor.
type SourceOptions struct {
	User           string
	Window         model.TimeWindow // since inclusive, until exclusive
	Mode           model.ActivityMode
	IncludeReviews bool
	SkipDetail     bool          // skip per-PR detail requests (diff stats, paths)
	Delay          time.Duration // pause between requests
	Token          string
	BaseURL        string
}

// Validate checks the options before any request is made.
func (o SourceOptions) Validate() error {
	var errs []error
	if o.User == "" {
		errs = append(errs, errors.New("user is required"))
	}
	if o.Window.Empty() {
		errs = append(errs, fmt.Errorf("window %s is empty", o.Window))
	}
	if !model.ValidModes[o.Mode] {
		errs = append(errs, fmt.Errorf("unknown activity mode %q", o.Mode))
	}
	if o.Delay < 0 {
		errs = append(errs, errors.New("delay must not be negative"))
	}
	if o.BaseURL != "" {
		if u, err := url.Parse(o.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("invalid base URL %q", o.BaseURL))
		}
	}
	return errors.Join(errs...)
}

// FileImporter reads a previously written ledger and coverage manifest.
type FileImporter struct {
	EventsPath   string
	CoveragePath string
}

// Ingest implements Ingestor. A malformed ledger line is fatal and reported
// with its line number. The coverage verdict is recomputed, not trusted.
func (f FileImporter) Ingest(ctx context.Context) ([]model.EventEnvelope, model.CoverageManifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, model.CoverageManifest{}, err
	}
	events, err := writer.ReadLedger(f.EventsPath)
	if err != nil {
		return nil, model.CoverageManifest{}, err
	}
	m, err := writer.ReadCoverage(f.CoveragePath)
	if err != nil {
		return nil, model.CoverageManifest{}, err
	}
	return events, coverage.Finalize(m), nil
}

// Static returns fixed events and coverage.
type Static struct {
	Events   []model.EventEnvelope
	Coverage model.CoverageManifest
}

// Ingest implements Ingestor.
func (s Static) Ingest(ctx context.Context) ([]model.EventEnvelope, model.CoverageManifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, model.CoverageManifest{}, err
	}
	events := make([]model.EventEnvelope, len(s.Events))
	for i, ev := range s.Events {
		events[i] = ev.Clone()
	}
	return events, coverage.Finalize(s.Coverage), nil
}
