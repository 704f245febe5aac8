package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/roach88/receipts/internal/ids"
)

// EventKind discriminates the payload variant of an event.
type EventKind string

const (
	KindPullRequest EventKind = "pull_request"
	KindReview      EventKind = "review"
)

// ValidKinds defines the allowed event kinds.
var ValidKinds = map[EventKind]bool{
	KindPullRequest: true,
	KindReview:      true,
}

// Visibility is the tri-state visibility of a repository.
// The zero value is treated as VisibilityUnknown.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
	VisibilityUnknown Visibility = "unknown"
)

// IsPublic reports whether the repository is known to be public.
// Unknown visibility is never treated as public.
func (v Visibility) IsPublic() bool { return v == VisibilityPublic }

// Actor identifies who performed an event.
type Actor struct {
	Login string `json:"login"`
	ID    *int64 `json:"id,omitempty"`
}

// RepoRef identifies the repository an event belongs to.
type RepoRef struct {
	FullName   string     `json:"full_name"`
	URL        string     `json:"url,omitempty"`
	Visibility Visibility `json:"visibility,omitempty"`
}

// Link is a labeled URL attached to an event.
type Link struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// SourceRef records where an event came from.
type SourceRef struct {
	System     string `json:"system"`
	URL        string `json:"url,omitempty"`
	ProviderID string `json:"provider_id,omitempty"`
}

// Payload is the closed set of kind-specific event fields.
// Implemented by *PullRequestPayload and *ReviewPayload only.
type Payload interface {
	Kind() EventKind
	clonePayload() Payload
}

// PullRequestPayload holds pull-request fields.
// Diff stats are optional: nil means the source did not report them.
type PullRequestPayload struct {
	Number       int         `json:"number"`
	Title        string      `json:"title"`
	State        string      `json:"state"`
	CreatedAt    time.Time   `json:"created_at"`
	MergedAt     *time.Time  `json:"merged_at,omitempty"`
	Additions    *int        `json:"additions,omitempty"`
	Deletions    *int        `json:"deletions,omitempty"`
	ChangedFiles *int        `json:"changed_files,omitempty"`
	TouchedPaths []string    `json:"touched_paths,omitempty"`
	Window       *TimeWindow `json:"window,omitempty"`
}

// Kind implements Payload.
func (*PullRequestPayload) Kind() EventKind { return KindPullRequest }

// HasDiffStats reports whether additions, deletions and changed files are all known.
func (p *PullRequestPayload) HasDiffStats() bool {
	return p.Additions != nil && p.Deletions != nil && p.ChangedFiles != nil
}

func (p *PullRequestPayload) clonePayload() Payload {
	c := *p
	c.MergedAt = clonePtr(p.MergedAt)
	c.Additions = clonePtr(p.Additions)
	c.Deletions = clonePtr(p.Deletions)
	c.ChangedFiles = clonePtr(p.ChangedFiles)
	c.TouchedPaths = cloneSlice(p.TouchedPaths)
	c.Window = clonePtr(p.Window)
	return &c
}

// ReviewPayload holds code-review fields.
type ReviewPayload struct {
	PullNumber  int         `json:"pull_number"`
	PullTitle   string      `json:"pull_title"`
	SubmittedAt time.Time   `json:"submitted_at"`
	State       string      `json:"state"`
	Window      *TimeWindow `json:"window,omitempty"`
}

// Kind implements Payload.
func (*ReviewPayload) Kind() EventKind { return KindReview }

func (p *ReviewPayload) clonePayload() Payload {
	c := *p
	c.Window = clonePtr(p.Window)
	return &c
}

// EventEnvelope is the canonical, immutable record of one observed unit of activity.
type EventEnvelope struct {
	ID         string
	Kind       EventKind
	OccurredAt time.Time
	Actor      Actor
	Repo       RepoRef
	Payload    Payload
	Tags       []string
	Links      []Link
	Source     SourceRef
}

// envelopeWire is the JSON form of EventEnvelope. Field order is wire order.
type envelopeWire struct {
	ID         string      `json:"id"`
	Kind       EventKind   `json:"kind"`
	OccurredAt time.Time   `json:"occurred_at"`
	Actor      Actor       `json:"actor"`
	Repo       RepoRef     `json:"repo"`
	Payload    payloadWire `json:"payload"`
	Tags       []string    `json:"tags,omitempty"`
	Links      []Link      `json:"links,omitempty"`
	Source     SourceRef   `json:"source"`
}

// payloadWire is the externally tagged payload: {"type": ..., "<type>": {...}}.
type payloadWire struct {
	Type        EventKind           `json:"type"`
	PullRequest *PullRequestPayload `json:"pull_request,omitempty"`
	Review      *ReviewPayload      `json:"review,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e EventEnvelope) MarshalJSON() ([]byte, error) {
	w := envelopeWire{
		ID:         e.ID,
		Kind:       e.Kind,
		OccurredAt: e.OccurredAt,
		Actor:      e.Actor,
		Repo:       e.Repo,
		Tags:       e.Tags,
		Links:      e.Links,
		Source:     e.Source,
	}
	switch p := e.Payload.(type) {
	case *PullRequestPayload:
		w.Payload = payloadWire{Type: KindPullRequest, PullRequest: p}
	case *ReviewPayload:
		w.Payload = payloadWire{Type: KindReview, Review: p}
	case nil:
		return nil, fmt.Errorf("event %s: missing payload", e.ID)
	default:
		return nil, fmt.Errorf("event %s: unsupported payload %T", e.ID, p)
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
// Unknown payload tags and a tag with no matching body are rejected.
func (e *EventEnvelope) UnmarshalJSON(b []byte) error {
	var w envelopeWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	var p Payload
	switch w.Payload.Type {
	case KindPullRequest:
		if w.Payload.PullRequest == nil {
			return errors.New("payload tagged pull_request has no pull_request body")
		}
		p = w.Payload.PullRequest
	case KindReview:
		if w.Payload.Review == nil {
			return errors.New("payload tagged review has no review body")
		}
		p = w.Payload.Review
	default:
		return fmt.Errorf("unknown payload type %q", w.Payload.Type)
	}
	*e = EventEnvelope{
		ID:         w.ID,
		Kind:       w.Kind,
		OccurredAt: w.OccurredAt,
		Actor:      w.Actor,
		Repo:       w.Repo,
		Payload:    p,
		Tags:       w.Tags,
		Links:      w.Links,
		Source:     w.Source,
	}
	return nil
}

// PullRequest returns the pull-request payload if the event carries one.
func (e EventEnvelope) PullRequest() (*PullRequestPayload, bool) {
	p, ok := e.Payload.(*PullRequestPayload)
	return p, ok
}

// Review returns the review payload if the event carries one.
func (e EventEnvelope) Review() (*ReviewPayload, bool) {
	p, ok := e.Payload.(*ReviewPayload)
	return p, ok
}

// Validate checks the envelope's structural invariants.
func (e EventEnvelope) Validate() error {
	if e.ID == "" {
		return errors.New("event id is empty")
	}
	if !ValidKinds[e.Kind] {
		return fmt.Errorf("event %s: invalid kind %q", e.ID, e.Kind)
	}
	if e.Payload == nil {
		return fmt.Errorf("event %s: missing payload", e.ID)
	}
	if e.Payload.Kind() != e.Kind {
		return fmt.Errorf("event %s: kind %q does not match payload %q", e.ID, e.Kind, e.Payload.Kind())
	}
	if e.Repo.FullName == "" {
		return fmt.Errorf("event %s: repo full_name is empty", e.ID)
	}
	return nil
}

// Clone returns a deep copy of e.
func (e EventEnvelope) Clone() EventEnvelope {
	c := e
	c.Actor.ID = clonePtr(e.Actor.ID)
	if e.Payload != nil {
		c.Payload = e.Payload.clonePayload()
	}
	c.Tags = cloneSlice(e.Tags)
	c.Links = cloneSlice(e.Links)
	return c
}

// PullRequestEventID computes the content-addressed id of a pull-request event.
func PullRequestEventID(system, repo string, number int) string {
	return ids.FromParts("pr", system, repo, strconv.Itoa(number))
}

// ReviewEventID computes the content-addressed id of a review event.
// discriminator is the provider's review id when known, otherwise the
// RFC 3339 submission time.
func ReviewEventID(system, repo string, pullNumber int, discriminator string) string {
	return ids.FromParts("review", system, repo, strconv.Itoa(pullNumber), discriminator)
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	return append([]T(nil), s...)
}
