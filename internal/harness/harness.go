package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/receipts/internal/bundle"
	"github.com/roach88/receipts/internal/cluster"
	"github.com/roach88/receipts/internal/engine"
	"github.com/roach88/receipts/internal/ids"
	"github.com/roach88/receipts/internal/ingest"
	"github.com/roach88/receipts/internal/model"
	"github.com/roach88/receipts/internal/redact"
	"github.com/roach88/receipts/internal/render"
	"github.com/roach88/receipts/internal/store"
	"github.com/roach88/receipts/internal/testutil"
	"github.com/roach88/receipts/internal/writer"
)

// RunID is the fixed run id every scenario runs under.
const RunID = "run-scenario"

// historyName is the history database written next to the run.
const historyName = "history.db"

// Key is the redaction key scenarios run with.
func Key() redact.Key {
	return redact.NewKey("scenario-harness-key", redact.KeySourceExplicit)
}

// Run executes a scenario under dir and evaluates its assertions.
//
// The run uses the repository clusterer, a frozen clock, RunID and Key, so
// the same scenario always writes the same bytes. The returned error covers
// pipeline failures only; failed assertions are recorded on the Result.
func Run(ctx context.Context, s *Scenario, dir string) (*Result, error) {
	events, cov, err := s.Input()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(filepath.Join(dir, historyName))
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}
	defer st.Close()

	renderer, err := render.NewMarkdownRenderer()
	if err != nil {
		return nil, err
	}
	clock := testutil.NewDeterministicClock(testutil.BaseTime, 0)
	outDir := filepath.Join(dir, "out")
	eng := engine.New(outDir, &cluster.RepoClusterer{Now: clock.Now}, renderer,
		engine.WithProfiles(s.profiles()...),
		engine.WithKey(Key()),
		engine.WithRunIDGenerator(ids.NewFixedGenerator(RunID)),
		engine.WithNow(clock.Now),
		engine.WithStore(st),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	res, err := eng.RunFrom(ctx, ingest.Static{Events: events, Coverage: cov})
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}

	result := NewResult()
	result.RunID = res.RunID
	result.Dir = res.Dir
	result.Completeness = res.Completeness
	result.Warnings = res.Warnings

	if err := collect(ctx, result, s.profiles(), st); err != nil {
		return nil, err
	}
	for _, msg := range EvaluateAssertions(result, s.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// collect reads back what the run wrote.
func collect(ctx context.Context, r *Result, profiles []model.Profile, st *store.Store) error {
	ws, err := writer.LoadWorkstreams(filepath.Join(r.Dir, writer.WorkstreamsName))
	if err != nil {
		return err
	}
	r.Workstreams = ws

	packet, err := os.ReadFile(filepath.Join(r.Dir, writer.PacketName))
	if err != nil {
		return err
	}
	r.Packets[model.ProfileInternal] = string(packet)

	top, err := bundle.Read(filepath.Join(r.Dir, bundle.ManifestName))
	if err != nil {
		return err
	}
	r.Manifests["."] = top

	for _, p := range profiles {
		pdir := writer.ProfileDir(r.Dir, p)
		packet, err := os.ReadFile(filepath.Join(pdir, writer.PacketName))
		if err != nil {
			return err
		}
		r.Packets[p] = string(packet)

		m, err := bundle.Read(filepath.Join(pdir, bundle.ManifestName))
		if err != nil {
			return err
		}
		r.Manifests[writer.ProfilesDir+"/"+string(p)] = m
	}

	rec, _, err := st.GetRun(ctx, r.RunID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	r.History = &rec
	return nil
}
