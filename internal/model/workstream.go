package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// WorkstreamsVersion is the schema tag written to workstreams files.
const WorkstreamsVersion = "receipts.workstreams/v1"

// MaxReceipts bounds the curated receipt list of a workstream.
const MaxReceipts = 10

// WorkstreamStats counts member events per kind.
type WorkstreamStats struct {
	PullRequests int `json:"pull_requests" yaml:"pull_requests"`
	Reviews      int `json:"reviews" yaml:"reviews"`
}

// Bump increments the counter for kind.
func (s *WorkstreamStats) Bump(kind EventKind) {
	switch kind {
	case KindPullRequest:
		s.PullRequests++
	case KindReview:
		s.Reviews++
	}
}

// Workstream is a named, curated grouping of events.
type Workstream struct {
	ID       string          `json:"id" yaml:"id"`
	Title    string          `json:"title" yaml:"title"`
	Summary  string          `json:"summary,omitempty" yaml:"summary,omitempty"`
	Tags     []string        `json:"tags" yaml:"tags"`
	Stats    WorkstreamStats `json:"stats" yaml:"stats"`
	Events   []string        `json:"events" yaml:"events"`
	Receipts []string        `json:"receipts" yaml:"receipts"`
}

// WorkstreamsFile is the user-editable list of workstreams for a run.
type WorkstreamsFile struct {
	Version     string       `json:"version" yaml:"version"`
	GeneratedAt time.Time    `json:"generated_at" yaml:"generated_at"`
	Workstreams []Workstream `json:"workstreams" yaml:"workstreams"`
}

// PartitionError describes how a workstreams file fails to partition an event set.
type PartitionError struct {
	Missing    []string // event ids in no workstream
	Duplicated []string // event ids in more than one workstream
	Unknown    []string // member ids not in the event set
	BadReceipt []string // receipt ids not members of their workstream, or over the cap
}

func (e *PartitionError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("%d missing", len(e.Missing)))
	}
	if len(e.Duplicated) > 0 {
		parts = append(parts, fmt.Sprintf("%d duplicated", len(e.Duplicated)))
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, fmt.Sprintf("%d unknown", len(e.Unknown)))
	}
	if len(e.BadReceipt) > 0 {
		parts = append(parts, fmt.Sprintf("%d invalid receipts", len(e.BadReceipt)))
	}
	return "workstreams do not partition events: " + strings.Join(parts, ", ")
}

// CheckPartition verifies that the member lists of f contain every event
// exactly once, reference no unknown ids, and that receipts are bounded
// subsets of their own workstream's members.
func (f WorkstreamsFile) CheckPartition(events []EventEnvelope) error {
	known := make(map[string]bool, len(events))
	for _, ev := range events {
		known[ev.ID] = true
	}

	perr := &PartitionError{}
	seen := make(map[string]int, len(events))
	for _, ws := range f.Workstreams {
		members := make(map[string]bool, len(ws.Events))
		for _, id := range ws.Events {
			members[id] = true
			if !known[id] {
				perr.Unknown = append(perr.Unknown, id)
				continue
			}
			seen[id]++
			if seen[id] == 2 {
				perr.Duplicated = append(perr.Duplicated, id)
			}
		}
		if len(ws.Receipts) > MaxReceipts {
			perr.BadReceipt = append(perr.BadReceipt, ws.Receipts[MaxReceipts:]...)
		}
		for _, id := range ws.Receipts {
			if !members[id] {
				perr.BadReceipt = append(perr.BadReceipt, id)
			}
		}
	}
	for _, ev := range events {
		if seen[ev.ID] == 0 {
			perr.Missing = append(perr.Missing, ev.ID)
		}
	}

	if len(perr.Missing)+len(perr.Duplicated)+len(perr.Unknown)+len(perr.BadReceipt) == 0 {
		return nil
	}
	sort.Strings(perr.Missing)
	sort.Strings(perr.Duplicated)
	return perr
}

// Clone returns a deep copy of f.
func (f WorkstreamsFile) Clone() WorkstreamsFile {
	c := f
	c.Workstreams = make([]Workstream, len(f.Workstreams))
	for i, ws := range f.Workstreams {
		ws.Tags = cloneSlice(ws.Tags)
		ws.Events = cloneSlice(ws.Events)
		ws.Receipts = cloneSlice(ws.Receipts)
		c.Workstreams[i] = ws
	}
	return c
}
