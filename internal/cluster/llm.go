package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/receipts/internal/ids"
	"github.com/roach88/receipts/internal/llm"
	"github.com/roach88/receipts/internal/model"
)

// UncategorizedTitle names the workstream that collects unclaimed events.
const UncategorizedTitle = "Uncategorized"

// DefaultConcurrency bounds in-flight completion requests.
const DefaultConcurrency = 4

// UncategorizedID is the id of the synthesized catch-all workstream.
var UncategorizedID = ids.FromParts("llm", "uncategorized")

// LLMClusterer asks a text-completion backend to group events thematically.
//
// Whatever the backend returns, the output partitions the input: indices are
// validated per chunk and every event left unclaimed lands in Uncategorized.
type LLMClusterer struct {
	completer   llm.Completer
	tokenBudget int
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
}

// LLMOption configures an LLMClusterer.
type LLMOption func(*LLMClusterer)

// WithTokenBudget sets the approximate per-chunk token budget.
func WithTokenBudget(tokens int) LLMOption {
	return func(c *LLMClusterer) { c.tokenBudget = tokens }
}

// WithConcurrency bounds how many chunks are in flight at once.
func WithConcurrency(n int) LLMOption {
	return func(c *LLMClusterer) { c.concurrency = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) LLMOption {
	return func(c *LLMClusterer) { c.logger = l }
}

// WithNow sets the clock used for GeneratedAt.
func WithNow(now func() time.Time) LLMOption {
	return func(c *LLMClusterer) { c.now = now }
}

// NewLLMClusterer creates a clusterer backed by completer.
func NewLLMClusterer(completer llm.Completer, opts ...LLMOption) *LLMClusterer {
	c := &LLMClusterer{
		completer:   completer,
		tokenBudget: DefaultTokenBudget,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.concurrency < 1 {
		c.concurrency = 1
	}
	return c
}

// Cluster implements Clusterer.
//
// A transport failure or an unparseable response for any chunk fails the
// whole attempt; callers decide whether to retry or fall back.
func (c *LLMClusterer) Cluster(ctx context.Context, events []model.EventEnvelope) (model.WorkstreamsFile, error) {
	lines := make([]string, len(events))
	for i, ev := range events {
		lines[i] = EventLine(ev)
	}
	chunks := ChunkIndices(lines, c.tokenBudget)
	c.logger.Debug("clustering events", "events", len(events), "chunks", len(chunks))

	results := make([][]Parsed, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for ci, chunk := range chunks {
		g.Go(func() error {
			chunkLines := make([]string, len(chunk))
			for i, idx := range chunk {
				chunkLines[i] = lines[idx]
			}
			raw, err := c.completer.Complete(gctx, systemPrompt, userPrompt(chunkLines))
			if err != nil {
				return fmt.Errorf("chunk %d: %w", ci, err)
			}
			parsed, err := ParseResponse(raw, len(chunk))
			if err != nil {
				return fmt.Errorf("chunk %d: %w", ci, err)
			}
			results[ci] = parsed
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.WorkstreamsFile{}, err
	}

	return model.WorkstreamsFile{
		Version:     model.WorkstreamsVersion,
		GeneratedAt: c.now().UTC(),
		Workstreams: reconcile(events, chunks, results),
	}, nil
}

// draft accumulates one workstream across chunks, in global indices.
type draft struct {
	title    string
	summary  string
	tags     []string
	events   []int
	receipts []int
}

// reconcile maps chunk-local results back to global indices, merges
// same-titled workstreams in chunk order and appends Uncategorized. A
// workstream the model itself titles Uncategorized is folded into that
// bucket so the title appears once.
func reconcile(events []model.EventEnvelope, chunks [][]int, results [][]Parsed) []model.Workstream {
	claimed := make([]bool, len(events))
	byTitle := make(map[string]*draft)
	var order []*draft

	for ci, parsed := range results {
		chunk := chunks[ci]
		for _, p := range parsed {
			if strings.EqualFold(strings.TrimSpace(p.Title), UncategorizedTitle) {
				continue
			}
			d, ok := byTitle[p.Title]
			if !ok {
				d = &draft{title: p.Title, summary: p.Summary}
				byTitle[p.Title] = d
				order = append(order, d)
			}
			if d.summary == "" {
				d.summary = p.Summary
			}
			d.tags = mergeTags(d.tags, p.Tags)
			for _, local := range p.Events {
				global := chunk[local]
				if claimed[global] {
					continue
				}
				claimed[global] = true
				d.events = append(d.events, global)
			}
			for _, local := range p.Receipts {
				if len(d.receipts) < model.MaxReceipts {
					d.receipts = append(d.receipts, chunk[local])
				}
			}
		}
	}

	out := make([]model.Workstream, 0, len(order)+1)
	for _, d := range order {
		if len(d.events) == 0 {
			continue
		}
		first := events[d.events[0]].ID
		out = append(out, buildWorkstream(events, ids.FromParts("llm", d.title, first), d))
	}

	var rest []int
	for i := range events {
		if !claimed[i] {
			rest = append(rest, i)
		}
	}
	if len(rest) > 0 {
		receipts := rest
		if len(receipts) > model.MaxReceipts {
			receipts = receipts[:model.MaxReceipts]
		}
		out = append(out, buildWorkstream(events, UncategorizedID, &draft{
			title:    UncategorizedTitle,
			tags:     []string{"uncategorized"},
			events:   rest,
			receipts: receipts,
		}))
	}
	return out
}

func buildWorkstream(events []model.EventEnvelope, id string, d *draft) model.Workstream {
	ws := model.Workstream{
		ID:       id,
		Title:    d.title,
		Summary:  d.summary,
		Tags:     d.tags,
		Events:   make([]string, 0, len(d.events)),
		Receipts: make([]string, 0, len(d.receipts)),
	}
	if ws.Tags == nil {
		ws.Tags = []string{}
	}
	for _, i := range d.events {
		ws.Events = append(ws.Events, events[i].ID)
		ws.Stats.Bump(events[i].Kind)
	}
	for _, i := range d.receipts {
		ws.Receipts = append(ws.Receipts, events[i].ID)
	}
	return ws
}

func mergeTags(have, add []string) []string {
	for _, t := range add {
		if !slices.Contains(have, t) {
			have = append(have, t)
		}
	}
	return have
}
