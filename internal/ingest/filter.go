package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/roach88/receipts/internal/model"
)

// Filter drops events from repositories matching any exclude glob, such as
// "acme/*" or "**/sandbox-*". Each excluded repository is recorded as a
// coverage exclusion so the packet says what was left out.
type Filter struct {
	source   Ingestor
	patterns []string
	logger   *slog.Logger
}

// NewFilter wraps source. Invalid globs are rejected here, not at ingest.
func NewFilter(source Ingestor, patterns []string, logger *slog.Logger) (*Filter, error) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid exclude pattern %q", p)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Filter{source: source, patterns: patterns, logger: logger}, nil
}

// Ingest implements Ingestor.
func (f *Filter) Ingest(ctx context.Context) ([]model.EventEnvelope, model.CoverageManifest, error) {
	events, m, err := f.source.Ingest(ctx)
	if err != nil || len(f.patterns) == 0 {
		return events, m, err
	}

	dropped := make(map[string]int)
	matched := make(map[string]string)
	kept := events[:0:0]
	for _, ev := range events {
		if p, ok := f.match(ev.Repo.FullName); ok {
			dropped[ev.Repo.FullName]++
			matched[ev.Repo.FullName] = p
			continue
		}
		kept = append(kept, ev)
	}

	repos := make([]string, 0, len(dropped))
	for r := range dropped {
		repos = append(repos, r)
	}
	sort.Strings(repos)
	m.Exclusions = append([]model.Exclusion{}, m.Exclusions...)
	for _, r := range repos {
		m.Exclusions = append(m.Exclusions, model.Exclusion{Repo: r, Pattern: matched[r], Events: dropped[r]})
	}
	if len(repos) > 0 {
		f.logger.Info("excluded repositories", "repos", len(repos), "events", len(events)-len(kept))
	}
	return kept, m, nil
}

func (f *Filter) match(repo string) (string, bool) {
	for _, p := range f.patterns {
		if ok, _ := doublestar.Match(p, repo); ok {
			return p, true
		}
	}
	return "", false
}
