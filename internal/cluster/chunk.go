package cluster

import (
	"fmt"
	"strings"

	"github.com/roach88/receipts/internal/model"
)

// charsPerToken approximates tokenizer density for budget estimates.
const charsPerToken = 4

// DefaultTokenBudget is the per-chunk budget for rendered event lines.
const DefaultTokenBudget = 6000

// EventLine renders one event as a single descriptive line.
//
//	PR o/r1#7 "Add widget" (+10/-2, 3 files) 2025-01-22
//	Review APPROVED on o/r2#3 "Fix flake" 2025-01-21
//
// The diff-stat suffix appears only when additions, deletions and changed
// files are all known. Dates are UTC.
func EventLine(ev model.EventEnvelope) string {
	switch p := ev.Payload.(type) {
	case *model.PullRequestPayload:
		var sb strings.Builder
		fmt.Fprintf(&sb, "PR %s#%d %q", ev.Repo.FullName, p.Number, p.Title)
		if p.HasDiffStats() {
			fmt.Fprintf(&sb, " (+%d/-%d, %d files)", *p.Additions, *p.Deletions, *p.ChangedFiles)
		}
		when := p.CreatedAt
		if p.MergedAt != nil {
			when = *p.MergedAt
		}
		sb.WriteString(" " + model.DateOf(when.UTC()).String())
		return sb.String()
	case *model.ReviewPayload:
		return fmt.Sprintf("Review %s on %s#%d %q %s",
			p.State, ev.Repo.FullName, p.PullNumber, p.PullTitle, model.DateOf(p.SubmittedAt.UTC()))
	default:
		return fmt.Sprintf("Event %s in %s", ev.Kind, ev.Repo.FullName)
	}
}

// numberedLine is the form a line takes inside a prompt.
func numberedLine(local int, line string) string {
	return fmt.Sprintf("[%d] %s", local, line)
}

// ChunkIndices splits lines into runs of consecutive indices such that each
// run's numbered text stays under budgetTokens (at ~4 characters per token).
//
// The split is greedy left to right: a line joins the current chunk unless
// that would push it over budget. A single line larger than the whole budget
// forms its own chunk. Input that already fits is never split.
func ChunkIndices(lines []string, budgetTokens int) [][]int {
	if len(lines) == 0 {
		return nil
	}
	if budgetTokens <= 0 {
		budgetTokens = DefaultTokenBudget
	}
	budget := budgetTokens * charsPerToken

	var chunks [][]int
	var cur []int
	size := 0
	for i, line := range lines {
		n := len(numberedLine(len(cur), line)) + 1
		if len(cur) > 0 && size+n > budget {
			chunks = append(chunks, cur)
			cur = nil
			size = 0
			n = len(numberedLine(0, line)) + 1
		}
		cur = append(cur, i)
		size += n
	}
	if len(cur) > 0 {
		chunks = append(chunks, cur)
	}
	return chunks
}
