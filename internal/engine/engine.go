package engine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/roach88/receipts/internal/bundle"
	"github.com/roach88/receipts/internal/cluster"
	"github.com/roach88/receipts/internal/coverage"
	"github.com/roach88/receipts/internal/ids"
	"github.com/roach88/receipts/internal/ingest"
	"github.com/roach88/receipts/internal/model"
	"github.com/roach88/receipts/internal/redact"
	"github.com/roach88/receipts/internal/render"
	"github.com/roach88/receipts/internal/store"
	"github.com/roach88/receipts/internal/writer"
)

// DefaultProfiles are rendered when no profiles are configured.
var DefaultProfiles = []model.Profile{model.ProfileManager, model.ProfilePublic}

// Engine runs the pipeline. Configure it once with New and call Run for each
// data set; runs do not share state apart from the optional store and metrics.
type Engine struct {
	outDir    string
	clusterer cluster.Clusterer
	renderer  render.Renderer

	profiles   []model.Profile
	key        redact.Key
	redactOpts []redact.Option
	archive    bool
	override   string // path of a hand-edited workstreams.yaml

	store   *store.Store
	metrics *Metrics
	runIDs  ids.RunIDGenerator
	prefix  string
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithProfiles sets the redaction profiles rendered under profiles/.
// Default: DefaultProfiles.
func WithProfiles(profiles ...model.Profile) Option {
	return func(e *Engine) {
		e.profiles = slices.Clone(profiles)
	}
}

// WithKey sets the redaction key. Required when any configured profile is
// not internal.
func WithKey(key redact.Key) Option {
	return func(e *Engine) {
		e.key = key
	}
}

// WithRedactOptions passes options to every profile's Redactor.
func WithRedactOptions(opts ...redact.Option) Option {
	return func(e *Engine) {
		e.redactOpts = append(e.redactOpts, opts...)
	}
}

// WithArchive enables <run>.zip and <run>.<profile>.zip next to the run directory.
func WithArchive(enabled bool) Option {
	return func(e *Engine) {
		e.archive = enabled
	}
}

// WithWorkstreamsOverride replaces clusterer output with the workstreams
// file at path. The file must validate and partition the run's events.
func WithWorkstreamsOverride(path string) Option {
	return func(e *Engine) {
		e.override = path
	}
}

// WithStore records each completed run in a history store.
func WithStore(s *store.Store) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithMetrics records run statistics into m.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithRunIDGenerator replaces the clock-based run id generator.
func WithRunIDGenerator(g ids.RunIDGenerator) Option {
	return func(e *Engine) {
		e.runIDs = g
	}
}

// WithRunPrefix sets the prefix of generated run ids. Default: "run-".
func WithRunPrefix(prefix string) Option {
	return func(e *Engine) {
		e.prefix = prefix
	}
}

// WithNow sets the clock used for manifest times and run timing.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine writing run directories under outDir.
func New(outDir string, clusterer cluster.Clusterer, renderer render.Renderer, opts ...Option) *Engine {
	e := &Engine{
		outDir:    outDir,
		clusterer: clusterer,
		renderer:  renderer,
		profiles:  slices.Clone(DefaultProfiles),
		prefix:    ids.DefaultRunPrefix,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.runIDs == nil {
		e.runIDs = ids.ClockGenerator{Now: e.now}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Result describes a completed run.
type Result struct {
	RunID        string
	Dir          string
	Events       int
	Workstreams  int
	Completeness model.Completeness
	Warnings     []string
	Profiles     []model.Profile
	Manifest     model.BundleManifest
	Archives     []string
}

// RunFrom ingests from source and runs the pipeline on the result.
func (e *Engine) RunFrom(ctx context.Context, source ingest.Ingestor) (*Result, error) {
	events, cov, err := source.Ingest(ctx)
	if err != nil {
		err = newRunError(StageIngest, "", err)
		e.metrics.observeRun(nil, 0, err)
		return nil, err
	}
	return e.Run(ctx, events, cov)
}

// Run executes one pipeline run over already-ingested events and coverage.
//
// On error nothing is left under the run id: the staging directory and any
// archives are removed. Errors are *RunError.
func (e *Engine) Run(ctx context.Context, events []model.EventEnvelope, cov model.CoverageManifest) (res *Result, err error) {
	start := e.now()
	runID := e.runIDs.Generate(e.prefix)
	logger := e.logger.With("run_id", runID)
	defer func() {
		e.metrics.observeRun(res, e.now().Sub(start), err)
	}()

	if err := e.checkKey(); err != nil {
		return nil, newRunError(StageRedact, runID, err)
	}
	events, err = canonicalEvents(events)
	if err != nil {
		return nil, newRunError(StageIngest, runID, err)
	}

	cov = coverage.Finalize(cov)
	cov.RunID = runID
	if cov.GeneratedAt.IsZero() {
		cov.GeneratedAt = start.UTC()
	}

	final := filepath.Join(e.outDir, runID)
	staging := filepath.Join(e.outDir, "."+runID+".partial")
	if err := prepareStaging(final, staging); err != nil {
		return nil, newRunError(StageWrite, runID, err)
	}
	var archives []string
	committed := false
	defer func() {
		if committed {
			return
		}
		if rmErr := os.RemoveAll(staging); rmErr != nil {
			logger.Warn("failed to remove staging directory", "dir", staging, "error", rmErr)
		}
		for _, a := range archives {
			os.Remove(a)
		}
	}()

	logger.Info("run started", "events", len(events), "completeness", cov.Completeness)

	ws, err := e.workstreams(ctx, events)
	if err != nil {
		return nil, newRunError(StageCluster, runID, err)
	}
	ws.GeneratedAt = cov.GeneratedAt

	if err := ctx.Err(); err != nil {
		return nil, newRunError(StageCluster, runID, err)
	}
	if err := writeCanonical(staging, events, cov, ws); err != nil {
		return nil, newRunError(StageWrite, runID, err)
	}
	packet, err := e.renderer.Render(events, ws, cov, model.ProfileInternal)
	if err != nil {
		return nil, newRunError(StageRender, runID, err)
	}
	if err := writer.WritePacket(filepath.Join(staging, writer.PacketName), packet); err != nil {
		return nil, newRunError(StageWrite, runID, err)
	}

	aliases := redact.AliasFile{Version: redact.AliasStateVersion, RunID: runID, Profiles: []redact.AliasState{}}
	for _, p := range e.profiles {
		if err := ctx.Err(); err != nil {
			return nil, newRunError(StageRedact, runID, err)
		}
		state, err := e.writeProfile(staging, runID, p, events, ws, cov)
		if err != nil {
			return nil, err
		}
		if p != model.ProfileInternal {
			aliases.Profiles = append(aliases.Profiles, state)
		}
		logger.Debug("profile written", "profile", p, "aliases", len(state.Entries))
	}
	if len(aliases.Profiles) > 0 {
		if err := writer.WriteAliases(filepath.Join(staging, writer.AliasesName), aliases); err != nil {
			return nil, newRunError(StageWrite, runID, err)
		}
	}

	shared := bundle.Exclude(writer.AliasesName)
	manifest, err := bundle.Compute(staging, runID, model.ProfileInternal, e.now(), shared)
	if err != nil {
		return nil, newRunError(StageBundle, runID, err)
	}
	if err := bundle.Write(staging, manifest); err != nil {
		return nil, newRunError(StageBundle, runID, err)
	}

	if e.archive {
		if err := ctx.Err(); err != nil {
			return nil, newRunError(StageArchive, runID, err)
		}
		if archives, err = e.writeArchives(staging, runID, shared); err != nil {
			return nil, newRunError(StageArchive, runID, err)
		}
	}

	if err := os.Rename(staging, final); err != nil {
		return nil, newRunError(StageWrite, runID, fmt.Errorf("finalize run directory: %w", err))
	}
	committed = true

	res = &Result{
		RunID:        runID,
		Dir:          final,
		Events:       len(events),
		Workstreams:  len(ws.Workstreams),
		Completeness: cov.Completeness,
		Warnings:     cov.Notices(),
		Profiles:     slices.Clone(e.profiles),
		Manifest:     manifest,
		Archives:     archives,
	}
	e.record(ctx, logger, res, cov)

	logger.Info("run complete",
		"dir", final,
		"workstreams", res.Workstreams,
		"files", len(manifest.Files),
		"completeness", res.Completeness,
	)
	return res, nil
}

// checkKey fails before any file is written when a redacting profile has no key.
func (e *Engine) checkKey() error {
	for _, p := range e.profiles {
		if _, err := model.ParseProfile(string(p)); err != nil {
			return err
		}
		if p != model.ProfileInternal && e.key.IsZero() {
			return redact.ErrNoKey
		}
	}
	return nil
}

// canonicalEvents validates events and orders them by occurrence time, then id.
func canonicalEvents(events []model.EventEnvelope) ([]model.EventEnvelope, error) {
	seen := make(map[string]bool, len(events))
	out := make([]model.EventEnvelope, len(events))
	for i, ev := range events {
		if err := ev.Validate(); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		if seen[ev.ID] {
			return nil, fmt.Errorf("duplicate event id %s", ev.ID)
		}
		seen[ev.ID] = true
		out[i] = ev
	}
	slices.SortStableFunc(out, func(a, b model.EventEnvelope) int {
		if c := a.OccurredAt.Compare(b.OccurredAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func prepareStaging(final, staging string) error {
	if _, err := os.Stat(final); err == nil {
		return fmt.Errorf("run directory %s already exists", final)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("check run directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(staging), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := os.Mkdir(staging, 0o755); err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	return nil
}

// workstreams returns the edited override when configured, else clusters.
// Either way the result must partition events. Stats in an edited file are
// not trusted and are recounted from member events.
func (e *Engine) workstreams(ctx context.Context, events []model.EventEnvelope) (model.WorkstreamsFile, error) {
	var (
		ws  model.WorkstreamsFile
		err error
	)
	if e.override != "" {
		ws, err = writer.LoadWorkstreams(e.override)
		if err != nil {
			return ws, fmt.Errorf("load edited workstreams: %w", err)
		}
	} else {
		ws, err = e.clusterer.Cluster(ctx, events)
		if err != nil {
			return ws, err
		}
	}
	if err := ws.CheckPartition(events); err != nil {
		return ws, err
	}
	if e.override != "" {
		recountStats(&ws, events)
	}
	return ws, nil
}

func recountStats(ws *model.WorkstreamsFile, events []model.EventEnvelope) {
	kinds := make(map[string]model.EventKind, len(events))
	for _, ev := range events {
		kinds[ev.ID] = ev.Kind
	}
	for i := range ws.Workstreams {
		var s model.WorkstreamStats
		for _, id := range ws.Workstreams[i].Events {
			s.Bump(kinds[id])
		}
		ws.Workstreams[i].Stats = s
	}
}

func writeCanonical(dir string, events []model.EventEnvelope, cov model.CoverageManifest, ws model.WorkstreamsFile) error {
	if err := writer.WriteLedger(filepath.Join(dir, writer.LedgerName), events); err != nil {
		return err
	}
	if err := writer.WriteCoverage(filepath.Join(dir, writer.CoverageName), cov); err != nil {
		return err
	}
	return writer.WriteWorkstreams(filepath.Join(dir, writer.WorkstreamsName), ws)
}

// writeProfile redacts, renders and writes profile p with its own manifest.
func (e *Engine) writeProfile(staging, runID string, p model.Profile, events []model.EventEnvelope, ws model.WorkstreamsFile, cov model.CoverageManifest) (redact.AliasState, error) {
	r, err := redact.New(p, e.key, e.redactOpts...)
	if err != nil {
		return redact.AliasState{}, newRunError(StageRedact, runID, err)
	}
	redEvents, err := r.RedactEvents(events)
	if err != nil {
		return redact.AliasState{}, newRunError(StageRedact, runID, fmt.Errorf("profile %s: %w", p, err))
	}
	redWS, err := r.RedactWorkstreams(ws, events)
	if err != nil {
		return redact.AliasState{}, newRunError(StageRedact, runID, fmt.Errorf("profile %s: %w", p, err))
	}
	redCov, err := r.RedactCoverage(cov)
	if err != nil {
		return redact.AliasState{}, newRunError(StageRedact, runID, fmt.Errorf("profile %s: %w", p, err))
	}

	packet, err := e.renderer.Render(redEvents, redWS, redCov, p)
	if err != nil {
		return redact.AliasState{}, newRunError(StageRender, runID, fmt.Errorf("profile %s: %w", p, err))
	}
	dir := writer.ProfileDir(staging, p)
	if err := writer.WritePacket(filepath.Join(dir, writer.PacketName), packet); err != nil {
		return redact.AliasState{}, newRunError(StageWrite, runID, err)
	}
	if err := writer.WriteWorkstreams(filepath.Join(dir, writer.WorkstreamsName), redWS); err != nil {
		return redact.AliasState{}, newRunError(StageWrite, runID, err)
	}

	m, err := bundle.Compute(dir, runID, p, e.now(), nil)
	if err != nil {
		return redact.AliasState{}, newRunError(StageBundle, runID, err)
	}
	if err := bundle.Write(dir, m); err != nil {
		return redact.AliasState{}, newRunError(StageBundle, runID, err)
	}
	return r.Aliases(), nil
}

// writeArchives produces <run>.zip over the whole run and <run>.<p>.zip per
// redacting profile. It returns every archive written, even on error.
func (e *Engine) writeArchives(staging, runID string, filter bundle.Filter) ([]string, error) {
	var written []string
	dest := filepath.Join(e.outDir, runID+".zip")
	if err := bundle.Archive(staging, dest, filter); err != nil {
		return written, err
	}
	written = append(written, dest)

	for _, p := range e.profiles {
		if p == model.ProfileInternal {
			continue
		}
		dest := filepath.Join(e.outDir, runID+"."+string(p)+".zip")
		if err := bundle.Archive(writer.ProfileDir(staging, p), dest, nil); err != nil {
			return written, err
		}
		written = append(written, dest)
	}
	return written, nil
}

// record stores the run in history. Failure is logged, not returned: the run
// directory is already complete.
func (e *Engine) record(ctx context.Context, logger *slog.Logger, res *Result, cov model.CoverageManifest) {
	if e.store == nil {
		return
	}
	rec := store.RunRecord{
		ID:             res.RunID,
		Subject:        cov.User,
		Window:         cov.Window,
		Mode:           cov.Mode,
		Completeness:   res.Completeness,
		Events:         res.Events,
		Workstreams:    res.Workstreams,
		Profiles:       res.Profiles,
		ManifestSHA256: manifestDigest(res.Dir),
		Dir:            res.Dir,
		CreatedAt:      res.Manifest.GeneratedAt,
	}
	if err := e.store.RecordRun(ctx, rec, res.Manifest.Files); err != nil {
		logger.Warn("failed to record run history", "error", err)
	}
}

func manifestDigest(dir string) string {
	sum, err := bundle.Digest(filepath.Join(dir, bundle.ManifestName))
	if err != nil {
		return ""
	}
	return sum
}
