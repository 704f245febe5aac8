// Package testutil provides fixtures shared by package tests: a deterministic
// clock and builders for canonical events and coverage manifests.
package testutil

import (
	"fmt"
	"time"

	"github.com/roach88/receipts/internal/model"
)

// BaseTime is the default timestamp for built events.
var BaseTime = time.Date(2025, 1, 20, 10, 0, 0, 0, time.UTC)

// EventOption customizes a built event.
type EventOption func(*model.EventEnvelope)

// PR builds a merged pull-request event in repo with the given number.
// The id is the canonical PullRequestEventID for source "github".
func PR(repo string, number int, opts ...EventOption) model.EventEnvelope {
	created := BaseTime.Add(time.Duration(number) * time.Hour)
	merged := created.Add(2 * time.Hour)
	ev := model.EventEnvelope{
		ID:         model.PullRequestEventID("github", repo, number),
		Kind:       model.KindPullRequest,
		OccurredAt: merged,
		Actor:      model.Actor{Login: "octocat"},
		Repo: model.RepoRef{
			FullName:   repo,
			URL:        "https://github.com/" + repo,
			Visibility: model.VisibilityPublic,
		},
		Payload: &model.PullRequestPayload{
			Number:    number,
			Title:     fmt.Sprintf("Change %d in %s", number, repo),
			State:     "merged",
			CreatedAt: created,
			MergedAt:  &merged,
		},
		Links: []model.Link{{Label: "pull request", URL: fmt.Sprintf("https://github.com/%s/pull/%d", repo, number)}},
		Source: model.SourceRef{
			System:     "github",
			URL:        fmt.Sprintf("https://api.github.com/repos/%s/pulls/%d", repo, number),
			ProviderID: fmt.Sprintf("PR_%d", number),
		},
	}
	for _, opt := range opts {
		opt(&ev)
	}
	return ev
}

// Review builds a review event on pull request number in repo.
func Review(repo string, number int, state string, opts ...EventOption) model.EventEnvelope {
	at := BaseTime.Add(time.Duration(number)*time.Hour + 30*time.Minute)
	providerID := fmt.Sprintf("R_%d_%s", number, state)
	ev := model.EventEnvelope{
		ID:         model.ReviewEventID("github", repo, number, providerID),
		Kind:       model.KindReview,
		OccurredAt: at,
		Actor:      model.Actor{Login: "octocat"},
		Repo: model.RepoRef{
			FullName:   repo,
			URL:        "https://github.com/" + repo,
			Visibility: model.VisibilityPublic,
		},
		Payload: &model.ReviewPayload{
			PullNumber:  number,
			PullTitle:   fmt.Sprintf("Change %d in %s", number, repo),
			SubmittedAt: at,
			State:       state,
		},
		Source: model.SourceRef{System: "github", ProviderID: providerID},
	}
	for _, opt := range opts {
		opt(&ev)
	}
	return ev
}

// WithTitle sets the PR title (or the reviewed PR's title).
func WithTitle(title string) EventOption {
	return func(ev *model.EventEnvelope) {
		switch p := ev.Payload.(type) {
		case *model.PullRequestPayload:
			p.Title = title
		case *model.ReviewPayload:
			p.PullTitle = title
		}
	}
}

// WithDiffStats sets additions, deletions and changed files on a PR.
func WithDiffStats(additions, deletions, changed int) EventOption {
	return func(ev *model.EventEnvelope) {
		if p, ok := ev.Payload.(*model.PullRequestPayload); ok {
			p.Additions = &additions
			p.Deletions = &deletions
			p.ChangedFiles = &changed
		}
	}
}

// WithPaths sets the touched-path hints on a PR.
func WithPaths(paths ...string) EventOption {
	return func(ev *model.EventEnvelope) {
		if p, ok := ev.Payload.(*model.PullRequestPayload); ok {
			p.TouchedPaths = paths
		}
	}
}

// WithVisibility sets the repository visibility.
func WithVisibility(v model.Visibility) EventOption {
	return func(ev *model.EventEnvelope) {
		ev.Repo.Visibility = v
	}
}

// WithActor sets the actor login and numeric id.
func WithActor(login string, id int64) EventOption {
	return func(ev *model.EventEnvelope) {
		ev.Actor = model.Actor{Login: login, ID: &id}
	}
}

// WithTags sets free-form tags.
func WithTags(tags ...string) EventOption {
	return func(ev *model.EventEnvelope) {
		ev.Tags = tags
	}
}

// Coverage builds a complete single-slice coverage manifest over window for user.
func Coverage(runID, user string, window model.TimeWindow, fetched int) model.CoverageManifest {
	return model.CoverageManifest{
		RunID:       runID,
		GeneratedAt: BaseTime.Add(30 * 24 * time.Hour),
		User:        user,
		Window:      window,
		Mode:        model.ModeMerged,
		Sources:     []string{"github"},
		Slices: []model.CoverageSlice{{
			Window:     window,
			Query:      "author:" + user + " is:pr is:merged",
			TotalCount: fetched,
			Fetched:    fetched,
		}},
		Warnings:     []string{},
		Completeness: model.CompletenessComplete,
	}
}

// Window returns [since, until) from YYYY-MM-DD strings.
func Window(since, until string) model.TimeWindow {
	return model.TimeWindow{Since: model.MustParseDate(since), Until: model.MustParseDate(until)}
}
