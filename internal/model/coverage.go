package model

import (
	"fmt"
	"time"
)

// Completeness is the tri-state coverage verdict for a run.
// It is always computed from slices; there is no default.
type Completeness string

const (
	CompletenessComplete Completeness = "complete"
	CompletenessPartial  Completeness = "partial"
	CompletenessUnknown  Completeness = "unknown"
)

// ActivityMode selects which timestamp places a pull request in a window.
type ActivityMode string

const (
	ModeCreated ActivityMode = "created"
	ModeMerged  ActivityMode = "merged"
)

// ValidModes defines the allowed activity modes.
var ValidModes = map[ActivityMode]bool{
	ModeCreated: true,
	ModeMerged:  true,
}

// CoverageSlice records what one query over one sub-window claimed vs returned.
type CoverageSlice struct {
	Window     TimeWindow `json:"window"`
	Query      string     `json:"query"`
	TotalCount int        `json:"total_count"`
	Fetched    int        `json:"fetched"`
	Truncated  *bool      `json:"incomplete_results,omitempty"`
	Notes      []string   `json:"notes,omitempty"`
}

// UnderFetched reports whether the slice retrieved fewer results than claimed
// or the source flagged its results as truncated.
func (s CoverageSlice) UnderFetched() bool {
	return s.Fetched < s.TotalCount || (s.Truncated != nil && *s.Truncated)
}

// CoverageManifest summarizes what ingestion queried and how complete it was.
type CoverageManifest struct {
	RunID        string          `json:"run_id"`
	GeneratedAt  time.Time       `json:"generated_at"`
	User         string          `json:"user"`
	Window       TimeWindow      `json:"window"`
	Mode         ActivityMode    `json:"mode"`
	Sources      []string        `json:"sources"`
	Slices       []CoverageSlice `json:"slices"`
	Warnings     []string        `json:"warnings"`
	Exclusions   []Exclusion     `json:"exclusions,omitempty"`
	Completeness Completeness    `json:"completeness"`
}

// Exclusion records events dropped from one repository by an exclude glob.
// Repo is an identifying value and is aliased by redacting profiles.
type Exclusion struct {
	Repo    string `json:"repo"`
	Pattern string `json:"pattern,omitempty"`
	Events  int    `json:"events"`
}

// Notices returns the warnings followed by one line per exclusion.
func (m CoverageManifest) Notices() []string {
	if len(m.Exclusions) == 0 {
		return m.Warnings
	}
	out := append([]string{}, m.Warnings...)
	for _, x := range m.Exclusions {
		line := fmt.Sprintf("excluded %d events from %s", x.Events, x.Repo)
		if x.Pattern != "" {
			line += fmt.Sprintf(" (pattern %q)", x.Pattern)
		}
		out = append(out, line)
	}
	return out
}
