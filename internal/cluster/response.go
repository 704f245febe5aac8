package cluster

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/roach88/receipts/internal/llm"
	"github.com/roach88/receipts/internal/model"
)

// untitled replaces an empty or missing workstream title.
const untitled = "Untitled workstream"

// ResponseError reports a completion that is not the expected JSON shape.
// This fails the clustering attempt; callers may retry or fall back.
type ResponseError struct {
	Reason string
	Raw    string // truncated for logging
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("unparseable clustering response: %s", e.Reason)
}

func newResponseError(reason, raw string) *ResponseError {
	if len(raw) > 300 {
		raw = raw[:300] + "..."
	}
	return &ResponseError{Reason: reason, Raw: raw}
}

// responseShape is the top-level JSON the model must return.
// Indices decode as raw values so a single bad index never fails the parse.
type responseShape struct {
	Workstreams *[]responseWorkstream `json:"workstreams"`
}

type responseWorkstream struct {
	Title          string   `json:"title"`
	Summary        string   `json:"summary"`
	Tags           []string `json:"tags"`
	EventIndices   []any    `json:"event_indices"`
	ReceiptIndices []any    `json:"receipt_indices"`
}

// Parsed is one validated workstream from a response, in chunk-local indices.
type Parsed struct {
	Title    string
	Summary  string
	Tags     []string
	Events   []int // sorted, unique, in [0, n)
	Receipts []int // subset of Events, at most model.MaxReceipts
}

// ParseResponse validates a completion for a chunk of n events.
//
// Only the top-level shape is fatal. Within a well-formed response:
//   - indices that are not integers, out of range, or already claimed by an
//     earlier workstream are dropped
//   - a workstream left with no valid indices is discarded
//   - receipts are filtered to the workstream's own indices and capped
//
// Indices not claimed by any returned workstream are left for the caller.
func ParseResponse(raw string, n int) ([]Parsed, error) {
	body := llm.ExtractJSON(raw)
	if body == "" {
		return nil, newResponseError("no JSON object found", raw)
	}
	var shape responseShape
	if err := json.Unmarshal([]byte(body), &shape); err != nil {
		return nil, newResponseError(err.Error(), raw)
	}
	if shape.Workstreams == nil {
		return nil, newResponseError(`missing "workstreams" array`, raw)
	}

	claimed := make(map[int]bool, n)
	var out []Parsed
	for _, rw := range *shape.Workstreams {
		var members []int
		own := make(map[int]bool)
		for _, v := range rw.EventIndices {
			idx, ok := toIndex(v)
			if !ok || idx < 0 || idx >= n || claimed[idx] {
				continue
			}
			claimed[idx] = true
			own[idx] = true
			members = append(members, idx)
		}
		if len(members) == 0 {
			continue
		}
		slices.Sort(members)

		var receipts []int
		seen := make(map[int]bool)
		for _, v := range rw.ReceiptIndices {
			idx, ok := toIndex(v)
			if !ok || !own[idx] || seen[idx] {
				continue
			}
			seen[idx] = true
			receipts = append(receipts, idx)
			if len(receipts) == model.MaxReceipts {
				break
			}
		}

		title := strings.TrimSpace(rw.Title)
		if title == "" {
			title = untitled
		}
		out = append(out, Parsed{
			Title:    title,
			Summary:  strings.TrimSpace(rw.Summary),
			Tags:     cleanTags(rw.Tags),
			Events:   members,
			Receipts: receipts,
		})
	}
	return out, nil
}

// toIndex accepts JSON numbers with an integral value.
func toIndex(v any) (int, bool) {
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) || math.IsInf(f, 0) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}

// cleanTags trims, lowercases and de-duplicates tags, keeping first-seen order.
func cleanTags(tags []string) []string {
	out := []string{}
	seen := make(map[string]bool)
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

