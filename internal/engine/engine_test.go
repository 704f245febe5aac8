package engine

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/receipts/internal/bundle"
	"github.com/roach88/receipts/internal/cluster"
	"github.com/roach88/receipts/internal/ids"
	"github.com/roach88/receipts/internal/ingest"
	"github.com/roach88/receipts/internal/model"
	"github.com/roach88/receipts/internal/redact"
	"github.com/roach88/receipts/internal/render"
	"github.com/roach88/receipts/internal/store"
	"github.com/roach88/receipts/internal/testutil"
	"github.com/roach88/receipts/internal/writer"
)

var errClusterDown = errors.New("clusterer down")

type failingClusterer struct{}

func (failingClusterer) Cluster(context.Context, []model.EventEnvelope) (model.WorkstreamsFile, error) {
	return model.WorkstreamsFile{}, errClusterDown
}

func testKey() redact.Key {
	return redact.NewKey("engine-test-key", redact.KeySourceExplicit)
}

func sampleInput() ([]model.EventEnvelope, model.CoverageManifest) {
	events := []model.EventEnvelope{
		testutil.PR("o/r2", 3),
		testutil.PR("o/r1", 1, testutil.WithDiffStats(10, 2, 3)),
		testutil.Review("o/secret", 2, "APPROVED", testutil.WithVisibility(model.VisibilityPrivate)),
	}
	cov := testutil.Coverage("", "octocat", testutil.Window("2025-01-01", "2025-02-01"), len(events))
	return events, cov
}

func newTestEngine(t *testing.T, outDir string, runIDs ...string) *Engine {
	t.Helper()
	renderer, err := render.NewMarkdownRenderer()
	require.NoError(t, err)
	if len(runIDs) == 0 {
		runIDs = []string{"run-1"}
	}
	return New(outDir, cluster.NewRepoClusterer(), renderer,
		WithKey(testKey()),
		WithRunIDGenerator(ids.NewFixedGenerator(runIDs...)),
		WithNow(testutil.NewDeterministicClock(testutil.BaseTime, 0).Now),
		WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))),
	)
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestRun_WritesRunDirectory(t *testing.T) {
	out := t.TempDir()
	e := newTestEngine(t, out)
	events, cov := sampleInput()

	res, err := e.Run(context.Background(), events, cov)
	require.NoError(t, err)

	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, filepath.Join(out, "run-1"), res.Dir)
	assert.Equal(t, 3, res.Events)
	assert.Equal(t, 3, res.Workstreams)
	assert.Equal(t, model.CompletenessComplete, res.Completeness)

	for _, rel := range []string{
		writer.LedgerName,
		writer.CoverageName,
		writer.WorkstreamsName,
		writer.PacketName,
		writer.AliasesName,
		bundle.ManifestName,
		"profiles/manager/packet.md",
		"profiles/manager/workstreams.yaml",
		"profiles/manager/bundle.manifest.json",
		"profiles/public/packet.md",
		"profiles/public/workstreams.yaml",
		"profiles/public/bundle.manifest.json",
	} {
		assert.FileExists(t, filepath.Join(res.Dir, filepath.FromSlash(rel)))
	}

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	require.Len(t, entries, 1, "staging directory must be renamed away")
	assert.Equal(t, "run-1", entries[0].Name())
}

func TestRun_CanonicalArtifactsAreStamped(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	events, cov := sampleInput()

	res, err := e.Run(context.Background(), events, cov)
	require.NoError(t, err)

	gotCov, err := writer.ReadCoverage(filepath.Join(res.Dir, writer.CoverageName))
	require.NoError(t, err)
	assert.Equal(t, "run-1", gotCov.RunID)

	ws, err := writer.LoadWorkstreams(filepath.Join(res.Dir, writer.WorkstreamsName))
	require.NoError(t, err)
	assert.True(t, cov.GeneratedAt.Equal(ws.GeneratedAt))

	ledger, err := writer.ReadLedger(filepath.Join(res.Dir, writer.LedgerName))
	require.NoError(t, err)
	require.Len(t, ledger, 3)
	for i := 1; i < len(ledger); i++ {
		assert.False(t, ledger[i].OccurredAt.Before(ledger[i-1].OccurredAt), "ledger is ordered by time")
	}
}

func TestRun_ReproducibleAcrossRuns(t *testing.T) {
	out := t.TempDir()
	e := newTestEngine(t, out, "run-a", "run-b")
	events, cov := sampleInput()

	a, err := e.Run(context.Background(), events, cov)
	require.NoError(t, err)

	// Same events in a different order.
	shuffled := []model.EventEnvelope{events[2], events[0], events[1]}
	b, err := e.Run(context.Background(), shuffled, cov)
	require.NoError(t, err)

	for _, rel := range []string{
		writer.LedgerName,
		writer.WorkstreamsName,
		writer.PacketName,
		"profiles/manager/packet.md",
		"profiles/public/packet.md",
		"profiles/public/workstreams.yaml",
	} {
		assert.Equal(t,
			readFile(t, filepath.Join(a.Dir, rel)),
			readFile(t, filepath.Join(b.Dir, rel)),
			"%s differs between runs", rel)
	}
}

func TestRun_ManifestVerifies(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	events, cov := sampleInput()

	res, err := e.Run(context.Background(), events, cov)
	require.NoError(t, err)

	m, mismatches, err := bundle.Verify(res.Dir, bundle.Exclude(writer.AliasesName))
	require.NoError(t, err)
	assert.Empty(t, mismatches)
	assert.Equal(t, model.ProfileInternal, m.Profile)
	for _, f := range m.Files {
		assert.NotEqual(t, writer.AliasesName, f.Path, "alias state must stay out of the manifest")
	}

	pm, mismatches, err := bundle.Verify(writer.ProfileDir(res.Dir, model.ProfilePublic), nil)
	require.NoError(t, err)
	assert.Empty(t, mismatches)
	assert.Equal(t, model.ProfilePublic, pm.Profile)
}

func TestRun_PublicPacketHidesIdentity(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	events, cov := sampleInput()

	res, err := e.Run(context.Background(), events, cov)
	require.NoError(t, err)

	public := string(readFile(t, filepath.Join(res.Dir, "profiles/public/packet.md")))
	assert.NotContains(t, public, "octocat")
	assert.NotContains(t, public, "o/r1")
	assert.NotContains(t, public, "o/secret")

	manager := string(readFile(t, filepath.Join(res.Dir, "profiles/manager/packet.md")))
	assert.Contains(t, manager, "o/r1")
	assert.NotContains(t, manager, "o/secret")
}

func TestRun_NoKeyFailsBeforeWriting(t *testing.T) {
	out := t.TempDir()
	renderer, err := render.NewMarkdownRenderer()
	require.NoError(t, err)
	e := New(out, cluster.NewRepoClusterer(), renderer,
		WithRunIDGenerator(ids.NewFixedGenerator("run-1")),
	)
	events, cov := sampleInput()

	_, err = e.Run(context.Background(), events, cov)
	require.Error(t, err)
	assert.True(t, IsStage(err, StageRedact))
	assert.ErrorIs(t, err, redact.ErrNoKey)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_InternalOnlyNeedsNoKey(t *testing.T) {
	renderer, err := render.NewMarkdownRenderer()
	require.NoError(t, err)
	e := New(t.TempDir(), cluster.NewRepoClusterer(), renderer,
		WithProfiles(model.ProfileInternal),
		WithRunIDGenerator(ids.NewFixedGenerator("run-1")),
	)
	events, cov := sampleInput()

	res, err := e.Run(context.Background(), events, cov)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(res.Dir, "profiles/internal/packet.md"))
	assert.NoFileExists(t, filepath.Join(res.Dir, writer.AliasesName))
}

func TestRun_ClusterFailureLeavesNothing(t *testing.T) {
	out := t.TempDir()
	renderer, err := render.NewMarkdownRenderer()
	require.NoError(t, err)
	e := New(out, failingClusterer{}, renderer,
		WithKey(testKey()),
		WithRunIDGenerator(ids.NewFixedGenerator("run-1")),
	)
	events, cov := sampleInput()

	_, err = e.Run(context.Background(), events, cov)
	require.Error(t, err)
	assert.True(t, IsStage(err, StageCluster))
	assert.ErrorIs(t, err, errClusterDown)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries, "staging directory must be removed")
}

func TestRun_InvalidEvents(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	ev := testutil.PR("o/r1", 1)

	_, err := e.Run(context.Background(), []model.EventEnvelope{ev, ev}, model.CoverageManifest{})
	require.Error(t, err)
	assert.True(t, IsStage(err, StageIngest))
	assert.Contains(t, err.Error(), "duplicate event id")
}

func TestRun_RefusesExistingRunDirectory(t *testing.T) {
	out := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(out, "run-1"), 0o755))
	e := newTestEngine(t, out)
	events, cov := sampleInput()

	_, err := e.Run(context.Background(), events, cov)
	require.Error(t, err)
	assert.True(t, IsStage(err, StageWrite))

	entries, err := os.ReadDir(filepath.Join(out, "run-1"))
	require.NoError(t, err)
	assert.Empty(t, entries, "existing run directory must not be touched")
}

func TestRun_CancelledContext(t *testing.T) {
	out := t.TempDir()
	e := newTestEngine(t, out)
	events, cov := sampleInput()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Run(ctx, events, cov)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_WorkstreamsOverride(t *testing.T) {
	events, cov := sampleInput()
	edited := model.WorkstreamsFile{
		Version: model.WorkstreamsVersion,
		Workstreams: []model.Workstream{{
			ID:       ids.FromParts("edited", "everything"),
			Title:    "Everything I did",
			Summary:  "Hand curated.",
			Tags:     []string{"curated"},
			Stats:    model.WorkstreamStats{PullRequests: 2, Reviews: 1},
			Events:   []string{events[0].ID, events[1].ID, events[2].ID},
			Receipts: []string{events[1].ID},
		}},
	}
	path := filepath.Join(t.TempDir(), "edited.yaml")
	require.NoError(t, writer.WriteWorkstreams(path, edited))

	renderer, err := render.NewMarkdownRenderer()
	require.NoError(t, err)
	e := New(t.TempDir(), failingClusterer{}, renderer,
		WithKey(testKey()),
		WithRunIDGenerator(ids.NewFixedGenerator("run-1")),
		WithWorkstreamsOverride(path),
	)

	res, err := e.Run(context.Background(), events, cov)
	require.NoError(t, err, "override must bypass the clusterer")
	assert.Equal(t, 1, res.Workstreams)

	packet := string(readFile(t, filepath.Join(res.Dir, writer.PacketName)))
	assert.Contains(t, packet, "### Everything I did")
}

func TestRun_WorkstreamsOverrideMustPartition(t *testing.T) {
	events, cov := sampleInput()
	edited := model.WorkstreamsFile{
		Version: model.WorkstreamsVersion,
		Workstreams: []model.Workstream{{
			ID:       ids.FromParts("edited", "partial"),
			Title:    "Only one",
			Tags:     []string{},
			Stats:    model.WorkstreamStats{PullRequests: 1},
			Events:   []string{events[0].ID},
			Receipts: []string{},
		}},
	}
	path := filepath.Join(t.TempDir(), "edited.yaml")
	require.NoError(t, writer.WriteWorkstreams(path, edited))

	e := newTestEngine(t, t.TempDir())
	e.override = path

	_, err := e.Run(context.Background(), events, cov)
	require.Error(t, err)
	assert.True(t, IsStage(err, StageCluster))
	var perr *model.PartitionError
	require.ErrorAs(t, err, &perr)
	assert.Len(t, perr.Missing, 2)
}

func TestRun_WorkstreamsOverrideRecountsStats(t *testing.T) {
	events, cov := sampleInput()
	edited := model.WorkstreamsFile{
		Version: model.WorkstreamsVersion,
		Workstreams: []model.Workstream{{
			ID:       ids.FromParts("edited", "inflated"),
			Title:    "Inflated",
			Tags:     []string{},
			Stats:    model.WorkstreamStats{PullRequests: 40, Reviews: 12},
			Events:   []string{events[0].ID, events[1].ID, events[2].ID},
			Receipts: []string{},
		}},
	}
	path := filepath.Join(t.TempDir(), "edited.yaml")
	require.NoError(t, writer.WriteWorkstreams(path, edited))

	e := newTestEngine(t, t.TempDir())
	e.override = path

	res, err := e.Run(context.Background(), events, cov)
	require.NoError(t, err)

	packet := string(readFile(t, filepath.Join(res.Dir, writer.PacketName)))
	assert.Contains(t, packet, "2 pull requests, 1 review")
	assert.NotContains(t, packet, "40 pull requests")

	saved, err := writer.LoadWorkstreams(filepath.Join(res.Dir, writer.WorkstreamsName))
	require.NoError(t, err)
	assert.Equal(t, model.WorkstreamStats{PullRequests: 2, Reviews: 1}, saved.Workstreams[0].Stats)
}

func TestRun_Archives(t *testing.T) {
	out := t.TempDir()
	e := newTestEngine(t, out)
	e.archive = true
	events, cov := sampleInput()

	res, err := e.Run(context.Background(), events, cov)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(out, "run-1.zip"),
		filepath.Join(out, "run-1.manager.zip"),
		filepath.Join(out, "run-1.public.zip"),
	}, res.Archives)

	zr, err := zip.OpenReader(filepath.Join(out, "run-1.zip"))
	require.NoError(t, err)
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, bundle.ManifestName, names[0])
	assert.Contains(t, names, "profiles/public/packet.md")
	assert.NotContains(t, names, writer.AliasesName)

	pr, err := zip.OpenReader(filepath.Join(out, "run-1.public.zip"))
	require.NoError(t, err)
	defer pr.Close()
	names = names[:0]
	for _, f := range pr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{bundle.ManifestName, writer.PacketName, writer.WorkstreamsName}, names)
}

func TestRun_RecordsHistory(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	e := newTestEngine(t, t.TempDir())
	e.store = s
	events, cov := sampleInput()

	res, err := e.Run(context.Background(), events, cov)
	require.NoError(t, err)

	rec, files, err := s.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, "octocat", rec.Subject)
	assert.Equal(t, cov.Window, rec.Window)
	assert.Equal(t, 3, rec.Events)
	assert.Equal(t, res.Dir, rec.Dir)
	assert.Len(t, files, len(res.Manifest.Files))

	sum, err := bundle.Digest(filepath.Join(res.Dir, bundle.ManifestName))
	require.NoError(t, err)
	assert.Equal(t, sum, rec.ManifestSHA256)
}

func TestRun_Metrics(t *testing.T) {
	m := NewMetrics()
	e := newTestEngine(t, t.TempDir(), "run-1", "run-2")
	e.metrics = m
	events, cov := sampleInput()

	_, err := e.Run(context.Background(), events, cov)
	require.NoError(t, err)

	dup := []model.EventEnvelope{events[0], events[0]}
	_, err = e.Run(context.Background(), dup, cov)
	require.Error(t, err)

	assert.Equal(t, 1.0, promtest.ToFloat64(m.runs.WithLabelValues("ok")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.runs.WithLabelValues("error")))
	assert.Equal(t, 3.0, promtest.ToFloat64(m.events))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.completeness.WithLabelValues("complete")))
	assert.Equal(t, 0.0, promtest.ToFloat64(m.completeness.WithLabelValues("partial")))

	path := filepath.Join(t.TempDir(), "receipts.prom")
	require.NoError(t, m.WriteTextfile(path))
	assert.Contains(t, string(readFile(t, path)), "receipts_runs_total")
}

func TestRunFrom_IngestError(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	src := ingest.FileImporter{
		EventsPath:   filepath.Join(t.TempDir(), "missing.jsonl"),
		CoveragePath: filepath.Join(t.TempDir(), "missing.json"),
	}

	_, err := e.RunFrom(context.Background(), src)
	require.Error(t, err)
	assert.True(t, IsStage(err, StageIngest))
}

func TestRunFrom_Static(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	events, cov := sampleInput()

	res, err := e.RunFrom(context.Background(), ingest.Static{Events: events, Coverage: cov})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Events)
}

func TestRunFrom_ExcludedReposStayHidden(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	events, cov := sampleInput()
	events = append(events, testutil.PR("o/skunkworks-ui", 7), testutil.PR("o/skunkworks-ui", 8))
	cov = testutil.Coverage("", "octocat", testutil.Window("2025-01-01", "2025-02-01"), len(events))

	src, err := ingest.NewFilter(ingest.Static{Events: events, Coverage: cov}, []string{"o/skunkworks-*"}, nil)
	require.NoError(t, err)

	res, err := e.RunFrom(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Events)
	assert.Contains(t, res.Warnings, `excluded 2 events from o/skunkworks-ui (pattern "o/skunkworks-*")`)

	internal := string(readFile(t, filepath.Join(res.Dir, writer.PacketName)))
	assert.Contains(t, internal, "o/skunkworks-ui")

	for _, p := range []string{"manager", "public"} {
		packet := string(readFile(t, filepath.Join(res.Dir, "profiles", p, writer.PacketName)))
		assert.NotContains(t, packet, "skunkworks", p)
		assert.Contains(t, packet, "excluded 2 events from repo-", p)
	}
}
