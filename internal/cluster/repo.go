package cluster

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/roach88/receipts/internal/ids"
	"github.com/roach88/receipts/internal/model"
)

// maxRepoReviewReceipts bounds how many reviews a repo workstream shows.
const maxRepoReviewReceipts = 5

// RepoClusterer groups events by repository full name.
//
// Output: one workstream per distinct repository, ordered by name, id
// FromParts("repo", full_name), tag "repo". Members keep input order.
type RepoClusterer struct {
	// Now stamps GeneratedAt. Nil means time.Now.
	Now func() time.Time
}

// NewRepoClusterer creates a RepoClusterer.
func NewRepoClusterer() *RepoClusterer {
	return &RepoClusterer{}
}

// Cluster implements Clusterer. It never fails.
func (c *RepoClusterer) Cluster(_ context.Context, events []model.EventEnvelope) (model.WorkstreamsFile, error) {
	byRepo := make(map[string]*model.Workstream)
	reviewReceipts := make(map[string]int)
	var names []string

	for _, ev := range events {
		name := ev.Repo.FullName
		ws, ok := byRepo[name]
		if !ok {
			ws = &model.Workstream{
				ID:       ids.FromParts("repo", name),
				Title:    name,
				Tags:     []string{"repo"},
				Events:   []string{},
				Receipts: []string{},
			}
			byRepo[name] = ws
			names = append(names, name)
		}
		ws.Events = append(ws.Events, ev.ID)
		ws.Stats.Bump(ev.Kind)

		switch ev.Kind {
		case model.KindPullRequest:
			ws.Receipts = append(ws.Receipts, ev.ID)
		case model.KindReview:
			if reviewReceipts[name] < maxRepoReviewReceipts {
				ws.Receipts = append(ws.Receipts, ev.ID)
				reviewReceipts[name]++
			}
		}
	}
	sort.Strings(names)

	out := make([]model.Workstream, 0, len(names))
	for _, name := range names {
		ws := byRepo[name]
		if len(ws.Receipts) > model.MaxReceipts {
			ws.Receipts = ws.Receipts[:model.MaxReceipts]
		}
		ws.Summary = repoSummary(ws.Stats)
		out = append(out, *ws)
	}

	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return model.WorkstreamsFile{
		Version:     model.WorkstreamsVersion,
		GeneratedAt: now().UTC(),
		Workstreams: out,
	}, nil
}

func repoSummary(s model.WorkstreamStats) string {
	return fmt.Sprintf("%s and %s.", plural(s.PullRequests, "pull request"), plural(s.Reviews, "review"))
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
