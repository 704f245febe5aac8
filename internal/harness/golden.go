package harness

import (
	"context"
	"encoding/json"
	"sort"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot is the summary of a run compared against golden files. Digests
// and alias tokens are omitted.
type Snapshot struct {
	Scenario     string               `json:"scenario"`
	RunID        string               `json:"run_id"`
	Completeness string               `json:"completeness"`
	Warnings     []string             `json:"warnings"`
	Workstreams  []WorkstreamSnapshot `json:"workstreams"`
	Bundles      []BundleSnapshot     `json:"bundles"`
}

// WorkstreamSnapshot is one canonical workstream.
type WorkstreamSnapshot struct {
	Title    string `json:"title"`
	Summary  string `json:"summary"`
	Events   int    `json:"events"`
	Receipts int    `json:"receipts"`
}

// BundleSnapshot is one manifest's profile and file list.
type BundleSnapshot struct {
	Dir     string   `json:"dir"`
	Profile string   `json:"profile"`
	Files   []string `json:"files"`
}

// NewSnapshot summarizes r.
func NewSnapshot(name string, r *Result) Snapshot {
	s := Snapshot{
		Scenario:     name,
		RunID:        r.RunID,
		Completeness: string(r.Completeness),
		Warnings:     append([]string{}, r.Warnings...),
		Workstreams:  []WorkstreamSnapshot{},
		Bundles:      []BundleSnapshot{},
	}
	for _, ws := range r.Workstreams.Workstreams {
		s.Workstreams = append(s.Workstreams, WorkstreamSnapshot{
			Title:    ws.Title,
			Summary:  ws.Summary,
			Events:   len(ws.Events),
			Receipts: len(ws.Receipts),
		})
	}

	dirs := make([]string, 0, len(r.Manifests))
	for d := range r.Manifests {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	for _, d := range dirs {
		m := r.Manifests[d]
		files := make([]string, len(m.Files))
		for i, f := range m.Files {
			files[i] = f.Path
		}
		s.Bundles = append(s.Bundles, BundleSnapshot{Dir: d, Profile: string(m.Profile), Files: files})
	}
	return s
}

// RunWithGolden runs the scenario in a temporary directory, fails t on any
// assertion error and compares its snapshot with testdata/golden/<name>.golden.
func RunWithGolden(t *testing.T, s *Scenario) *Result {
	t.Helper()

	result, err := Run(context.Background(), s, t.TempDir())
	if err != nil {
		t.Fatalf("scenario %s: %v", s.Name, err)
	}
	for _, msg := range result.Errors {
		t.Errorf("scenario %s: %s", s.Name, msg)
	}
	AssertGolden(t, s.Name, result)
	return result
}

// AssertGolden compares r's snapshot with testdata/golden/<name>.golden.
func AssertGolden(t *testing.T, name string, r *Result) {
	t.Helper()

	data, err := json.MarshalIndent(NewSnapshot(name, r), "", "  ")
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	data = append(data, '\n')

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}
