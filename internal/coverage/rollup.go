package coverage

import (
	"fmt"
	"time"

	"github.com/roach88/receipts/internal/model"
)

// Rollup computes the completeness verdict for a set of slices.
//
//   - Unknown if there are no slices to judge
//   - Partial if any slice under-fetched or was flagged truncated
//   - Complete only if every slice fully matched its claimed total
func Rollup(slices []model.CoverageSlice) model.Completeness {
	if len(slices) == 0 {
		return model.CompletenessUnknown
	}
	for _, s := range slices {
		if s.UnderFetched() {
			return model.CompletenessPartial
		}
	}
	return model.CompletenessComplete
}

// SliceWarning returns the warning text for an under-fetched slice, or "" if
// the slice is fully covered.
func SliceWarning(s model.CoverageSlice) string {
	if !s.UnderFetched() {
		return ""
	}
	if s.Truncated != nil && *s.Truncated && s.Fetched >= s.TotalCount {
		return fmt.Sprintf("%s %q: source flagged results as truncated", s.Window, s.Query)
	}
	return fmt.Sprintf("%s %q: fetched %d of %d", s.Window, s.Query, s.Fetched, s.TotalCount)
}

// Recorder accumulates coverage slices during ingestion.
//
// Not safe for concurrent use; ingestion is sequential.
type Recorder struct {
	slices   []model.CoverageSlice
	warnings []string
	sources  []string
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// AddSource notes that a source was queried. Duplicates are ignored.
func (r *Recorder) AddSource(name string) {
	for _, s := range r.sources {
		if s == name {
			return
		}
	}
	r.sources = append(r.sources, name)
}

// Record appends one slice and, if it under-fetched, a warning.
func (r *Recorder) Record(s model.CoverageSlice) {
	r.slices = append(r.slices, s)
	if w := SliceWarning(s); w != "" {
		r.warnings = append(r.warnings, w)
	}
}

// Warn appends a free-form warning.
func (r *Recorder) Warn(format string, args ...any) {
	r.warnings = append(r.warnings, fmt.Sprintf(format, args...))
}

// Manifest builds a coverage manifest with the rolled-up verdict.
func (r *Recorder) Manifest(runID, user string, window model.TimeWindow, mode model.ActivityMode, generatedAt time.Time) model.CoverageManifest {
	return model.CoverageManifest{
		RunID:        runID,
		GeneratedAt:  generatedAt,
		User:         user,
		Window:       window,
		Mode:         mode,
		Sources:      append([]string{}, r.sources...),
		Slices:       append([]model.CoverageSlice{}, r.slices...),
		Warnings:     append([]string{}, r.warnings...),
		Completeness: Rollup(r.slices),
	}
}

// Finalize recomputes the verdict of an existing manifest and adds any
// under-fetch warning that is not already present. Imported manifests are
// never trusted to carry a correct verdict.
func Finalize(m model.CoverageManifest) model.CoverageManifest {
	out := m
	out.Slices = append([]model.CoverageSlice{}, m.Slices...)
	out.Warnings = append([]string{}, m.Warnings...)
	out.Exclusions = append([]model.Exclusion(nil), m.Exclusions...)
	out.Sources = append([]string{}, m.Sources...)

	have := make(map[string]bool, len(out.Warnings))
	for _, w := range out.Warnings {
		have[w] = true
	}
	for _, s := range out.Slices {
		if w := SliceWarning(s); w != "" && !have[w] {
			out.Warnings = append(out.Warnings, w)
			have[w] = true
		}
	}
	if len(out.Slices) == 0 && !have[noSlicesWarning] {
		out.Warnings = append(out.Warnings, noSlicesWarning)
	}
	out.Completeness = Rollup(out.Slices)
	return out
}

const noSlicesWarning = "no coverage slices recorded; completeness cannot be judged"
