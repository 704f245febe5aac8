// Package redact projects canonical events and workstreams onto privacy
// profiles.
//
// Redaction is a pure function of the canonical data and a key. Identifying
// values become keyed aliases (HMAC-SHA256 over namespace and NFC-normalized
// value), so the same login or repository maps to the same alias across
// runs that share a key, and nothing reversible is written into redacted
// output. Profiles are strictly ordered: internal is identity, manager hides
// what belongs to non-public repositories, public hides everything
// identifying.
package redact

import (
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/receipts/internal/model"
)

// RedactedTitle replaces titles that may not be shown.
const RedactedTitle = "[redacted]"

// Redactor applies one profile. A Redactor accumulates the aliases it hands
// out; use one per profile per run.
type Redactor struct {
	profile model.Profile
	key     Key
	aliases *AliasTable
	paths   pathMatcher

	// publicRepos holds repositories seen public in redacted events.
	publicRepos map[string]bool
}

// Option configures a Redactor.
type Option func(*Redactor)

// WithSensitivePaths replaces DefaultSensitivePaths.
func WithSensitivePaths(globs []string) Option {
	return func(r *Redactor) { r.paths = newPathMatcher(globs) }
}

// New creates a Redactor. Redacting profiles require a key; internal does not.
func New(profile model.Profile, key Key, opts ...Option) (*Redactor, error) {
	if _, err := model.ParseProfile(string(profile)); err != nil {
		return nil, err
	}
	if profile != model.ProfileInternal && key.IsZero() {
		return nil, ErrNoKey
	}
	r := &Redactor{
		profile: profile,
		key:     key,
		aliases: NewAliasTable(key),
		paths:   newPathMatcher(DefaultSensitivePaths),

		publicRepos: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Profile returns the profile r applies.
func (r *Redactor) Profile() model.Profile { return r.profile }

// Aliases snapshots every alias r has produced so far.
func (r *Redactor) Aliases() AliasState { return r.aliases.state(r.profile) }

// RedactEvents returns redacted copies of events in the same order.
func (r *Redactor) RedactEvents(events []model.EventEnvelope) ([]model.EventEnvelope, error) {
	out := make([]model.EventEnvelope, len(events))
	for i, ev := range events {
		red, err := r.redactEvent(ev)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", ev.ID, err)
		}
		out[i] = red
	}
	return out, nil
}

func (r *Redactor) redactEvent(src model.EventEnvelope) (model.EventEnvelope, error) {
	ev := src.Clone()
	if r.profile == model.ProfileInternal {
		return ev, nil
	}
	public := r.profile == model.ProfilePublic
	private := !src.Repo.Visibility.IsPublic()
	if !private {
		r.publicRepos[src.Repo.FullName] = true
	}
	var err error

	ev.Actor.ID = nil
	if public {
		if ev.Actor.Login, err = r.aliases.Alias(NamespaceUser, src.Actor.Login); err != nil {
			return ev, err
		}
		if ev.ID, err = r.eventID(src.ID); err != nil {
			return ev, err
		}
		ev.Tags = kindTags(src.Tags)
	}

	if public || private {
		if ev.Repo.FullName, err = r.aliases.Alias(NamespaceRepo, src.Repo.FullName); err != nil {
			return ev, err
		}
		ev.Repo.URL = ""
		ev.Links = nil
		ev.Source.URL = ""
		ev.Source.ProviderID = ""
	}

	switch p := ev.Payload.(type) {
	case *model.PullRequestPayload:
		if public || private {
			p.Title = RedactedTitle
		}
		if public {
			p.TouchedPaths = nil
		} else {
			p.TouchedPaths = r.paths.filter(p.TouchedPaths)
		}
	case *model.ReviewPayload:
		if public || private {
			p.PullTitle = RedactedTitle
		}
	}
	return ev, nil
}

func (r *Redactor) eventID(id string) (string, error) {
	if r.profile != model.ProfilePublic {
		return id, nil
	}
	return r.aliases.ID(NamespaceEvent, id)
}

func kindTags(tags []string) []string {
	var out []string
	for _, t := range tags {
		if model.ValidKinds[model.EventKind(t)] {
			out = append(out, t)
		}
	}
	return out
}

// RedactWorkstreams returns a redacted copy of file. events must be the
// canonical (unredacted) events the file refers to; member and receipt ids
// are remapped exactly as RedactEvents remaps them.
func (r *Redactor) RedactWorkstreams(file model.WorkstreamsFile, events []model.EventEnvelope) (model.WorkstreamsFile, error) {
	out := file.Clone()
	if r.profile == model.ProfileInternal {
		return out, nil
	}

	byID := make(map[string]model.EventEnvelope, len(events))
	for _, ev := range events {
		byID[ev.ID] = ev
	}

	public := r.profile == model.ProfilePublic
	for i := range out.Workstreams {
		ws := &out.Workstreams[i]

		hidden := public
		var repos []string
		for _, id := range ws.Events {
			ev, ok := byID[id]
			if !ok {
				continue
			}
			if !ev.Repo.Visibility.IsPublic() {
				hidden = true
			}
			repos = append(repos, ev.Repo.FullName)
		}

		if hidden {
			title, err := r.workstreamTitle(ws.Title, repos)
			if err != nil {
				return out, fmt.Errorf("workstream %s: %w", ws.ID, err)
			}
			ws.Title = title
			ws.Summary = ""
		}
		if public {
			id, err := r.aliases.ID(NamespaceWorkstreamID, ws.ID)
			if err != nil {
				return out, fmt.Errorf("workstream %s: %w", ws.ID, err)
			}
			ws.ID = id
			ws.Tags = []string{}
			for j, id := range ws.Events {
				if ws.Events[j], err = r.eventID(id); err != nil {
					return out, err
				}
			}
			for j, id := range ws.Receipts {
				if ws.Receipts[j], err = r.eventID(id); err != nil {
					return out, err
				}
			}
		}
	}
	return out, nil
}

// workstreamTitle aliases a title. A title naming a member repository gets
// that repository's alias so the packet reads consistently.
func (r *Redactor) workstreamTitle(title string, memberRepos []string) (string, error) {
	if slices.Contains(memberRepos, title) {
		return r.aliases.Alias(NamespaceRepo, title)
	}
	return r.aliases.Alias(NamespaceWorkstream, title)
}

// repoQualifier finds repository names in search queries.
var repoQualifier = regexp.MustCompile(`\brepo:([^\s"]+)`)

// RedactCoverage returns a redacted copy of m. Excluded repositories and
// repository qualifiers in queries are aliased unless the manager profile
// has seen the repository as public. Under public the user login is aliased
// too. Every value aliased so far is replaced wherever it appears in
// warnings, queries and notes, so call it after RedactEvents.
func (r *Redactor) RedactCoverage(m model.CoverageManifest) (model.CoverageManifest, error) {
	out := m
	out.Sources = slices.Clone(m.Sources)
	out.Warnings = slices.Clone(m.Warnings)
	out.Exclusions = slices.Clone(m.Exclusions)
	out.Slices = make([]model.CoverageSlice, len(m.Slices))
	for i, s := range m.Slices {
		s.Notes = slices.Clone(s.Notes)
		out.Slices[i] = s
	}
	if r.profile == model.ProfileInternal {
		return out, nil
	}

	for i := range out.Exclusions {
		x := &out.Exclusions[i]
		if !r.hidesRepo(x.Repo) {
			continue
		}
		alias, err := r.aliases.Alias(NamespaceRepo, x.Repo)
		if err != nil {
			return out, fmt.Errorf("excluded repo: %w", err)
		}
		x.Repo = alias
		x.Pattern = ""
	}
	for _, s := range m.Slices {
		for _, match := range repoQualifier.FindAllStringSubmatch(s.Query, -1) {
			if !r.hidesRepo(match[1]) {
				continue
			}
			if _, err := r.aliases.Alias(NamespaceRepo, match[1]); err != nil {
				return out, fmt.Errorf("query repo: %w", err)
			}
		}
	}
	hidden := r.aliases.values(NamespaceRepo)
	if r.profile == model.ProfilePublic && m.User != "" {
		alias, err := r.aliases.Alias(NamespaceUser, m.User)
		if err != nil {
			return out, fmt.Errorf("coverage user: %w", err)
		}
		out.User = alias
		hidden[m.User] = alias
	}

	hide := replacer(hidden)
	for i := range out.Warnings {
		out.Warnings[i] = hide.Replace(out.Warnings[i])
	}
	for i := range out.Slices {
		out.Slices[i].Query = hide.Replace(out.Slices[i].Query)
		for j := range out.Slices[i].Notes {
			out.Slices[i].Notes[j] = hide.Replace(out.Slices[i].Notes[j])
		}
	}
	return out, nil
}

// hidesRepo reports whether repo must be aliased. Manager only shows
// repositories it has redacted an event of and found public.
func (r *Redactor) hidesRepo(repo string) bool {
	return r.profile == model.ProfilePublic || !r.publicRepos[repo]
}

// replacer rewrites each value of hidden to its alias, longest value first
// so "acme/api-v2" is not caught by "acme/api".
func replacer(hidden map[string]string) *strings.Replacer {
	pairs := make([][2]string, 0, len(hidden))
	for value, alias := range hidden {
		pairs = append(pairs, [2]string{value, alias})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if len(pairs[i][0]) != len(pairs[j][0]) {
			return len(pairs[i][0]) > len(pairs[j][0])
		}
		return pairs[i][0] < pairs[j][0]
	})
	args := make([]string, 0, 2*len(pairs))
	for _, p := range pairs {
		args = append(args, p[0], p[1])
	}
	return strings.NewReplacer(args...)
}
