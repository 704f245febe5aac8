// Package render turns events, workstreams and coverage into the packet
// document.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/receipts/internal/model"
)

//go:embed templates/packet.md.tmpl
var templates embed.FS

// Renderer produces a packet document.
type Renderer interface {
	Render(events []model.EventEnvelope, workstreams model.WorkstreamsFile, coverage model.CoverageManifest, profile model.Profile) ([]byte, error)
}

// MarkdownRenderer renders packet.md from an embedded template.
type MarkdownRenderer struct {
	tmpl  *template.Template
	title cases.Caser
}

// NewMarkdownRenderer parses the embedded template.
func NewMarkdownRenderer() (*MarkdownRenderer, error) {
	tmpl, err := template.ParseFS(templates, "templates/packet.md.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse packet template: %w", err)
	}
	return &MarkdownRenderer{
		tmpl:  tmpl,
		title: cases.Title(language.English),
	}, nil
}

type packetView struct {
	User         string
	Window       string
	Mode         string
	Profile      string
	Completeness string
	Totals       string
	Warnings     []string
	Workstreams  []workstreamView
	Slices       []sliceView
}

type workstreamView struct {
	Title    string
	Summary  string
	Stats    string
	Tags     string
	Receipts []string
	More     int
}

type sliceView struct {
	Window    string
	Query     string
	Fetched   int
	Total     int
	Truncated string
}

// Render implements Renderer. Output ends with exactly one newline.
func (r *MarkdownRenderer) Render(events []model.EventEnvelope, ws model.WorkstreamsFile, cov model.CoverageManifest, profile model.Profile) ([]byte, error) {
	byID := make(map[string]model.EventEnvelope, len(events))
	var totals model.WorkstreamStats
	for _, ev := range events {
		byID[ev.ID] = ev
		totals.Bump(ev.Kind)
	}

	view := packetView{
		User:         cov.User,
		Window:       cov.Window.String(),
		Mode:         r.title.String(string(cov.Mode)),
		Profile:      r.title.String(string(profile)),
		Completeness: r.title.String(string(cov.Completeness)),
		Totals:       fmt.Sprintf("%d (%s)", len(events), statsLine(totals)),
		Warnings:     cov.Notices(),
	}

	for _, w := range ws.Workstreams {
		wv := workstreamView{
			Title:   w.Title,
			Summary: w.Summary,
			Stats:   statsLine(w.Stats),
			Tags:    strings.Join(w.Tags, ", "),
		}
		for _, id := range w.Receipts {
			ev, ok := byID[id]
			if !ok {
				return nil, fmt.Errorf("workstream %s: receipt %s is not a known event", w.ID, id)
			}
			wv.Receipts = append(wv.Receipts, receiptLine(ev))
		}
		if len(wv.Receipts) > 0 {
			wv.More = len(w.Events) - len(w.Receipts)
		}
		view.Workstreams = append(view.Workstreams, wv)
	}

	for _, s := range cov.Slices {
		view.Slices = append(view.Slices, sliceView{
			Window:    s.Window.String(),
			Query:     s.Query,
			Fetched:   s.Fetched,
			Total:     s.TotalCount,
			Truncated: truncatedCell(s.Truncated),
		})
	}

	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, "packet.md.tmpl", view); err != nil {
		return nil, fmt.Errorf("render packet: %w", err)
	}
	out := bytes.TrimRight(buf.Bytes(), "\n")
	return append(out, '\n'), nil
}

func statsLine(s model.WorkstreamStats) string {
	return plural(s.PullRequests, "pull request") + ", " + plural(s.Reviews, "review")
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}

// receiptLine is one bullet. Unknown diff stats are omitted, not zeroed.
func receiptLine(ev model.EventEnvelope) string {
	var sb strings.Builder
	switch p := ev.Payload.(type) {
	case *model.PullRequestPayload:
		fmt.Fprintf(&sb, "%s#%d %s", ev.Repo.FullName, p.Number, p.Title)
		if p.HasDiffStats() {
			fmt.Fprintf(&sb, " (+%d/-%d, %d files)", *p.Additions, *p.Deletions, *p.ChangedFiles)
		}
		if p.MergedAt != nil {
			fmt.Fprintf(&sb, ", merged %s", model.DateOf(p.MergedAt.UTC()))
		} else {
			fmt.Fprintf(&sb, ", opened %s", model.DateOf(p.CreatedAt.UTC()))
		}
	case *model.ReviewPayload:
		fmt.Fprintf(&sb, "%s#%d review %s: %s, %s",
			ev.Repo.FullName, p.PullNumber, p.State, p.PullTitle, model.DateOf(p.SubmittedAt.UTC()))
	default:
		fmt.Fprintf(&sb, "%s %s", ev.Repo.FullName, ev.Kind)
	}
	for _, l := range ev.Links {
		fmt.Fprintf(&sb, " [%s](%s)", l.Label, l.URL)
	}
	return sb.String()
}

func truncatedCell(b *bool) string {
	switch {
	case b == nil:
		return "n/a"
	case *b:
		return "yes"
	default:
		return "no"
	}
}
