package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/receipts/internal/cluster"
	"github.com/roach88/receipts/internal/config"
	"github.com/roach88/receipts/internal/engine"
	"github.com/roach88/receipts/internal/ids"
	"github.com/roach88/receipts/internal/ingest"
	"github.com/roach88/receipts/internal/llm"
	"github.com/roach88/receipts/internal/model"
	"github.com/roach88/receipts/internal/redact"
	"github.com/roach88/receipts/internal/render"
	"github.com/roach88/receipts/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions

	Events       string
	Coverage     string
	OutDir       string
	Archive      bool
	Profiles     []string
	RedactionKey string
	AllowDevKey  bool
	Clusterer    string
	Workstreams  string
	HistoryDB    string
	MetricsFile  string
	Exclude      []string
	RunPrefix    string

	// RunIDs overrides the run id generator (for testing).
	RunIDs ids.RunIDGenerator

	// Completer overrides the HTTP completion client (for testing).
	Completer llm.Completer
}

// RunSummary is the JSON result of a run.
type RunSummary struct {
	RunID        string             `json:"run_id"`
	Dir          string             `json:"dir"`
	Events       int                `json:"events"`
	Workstreams  int                `json:"workstreams"`
	Completeness model.Completeness `json:"completeness"`
	Profiles     []model.Profile    `json:"profiles"`
	Files        int                `json:"files"`
	Archives     []string           `json:"archives,omitempty"`
	Warnings     []string           `json:"warnings,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build a packet from an event ledger and coverage manifest",
		Long: `Build a self-review packet from previously ingested data.

The run writes a fresh directory <out>/<run-id> holding the canonical ledger,
coverage manifest, workstreams.yaml and packet.md, one redacted copy per
profile under profiles/, and a checksummed bundle.manifest.json.

Redacted profiles need a key: --redaction-key, then $RECEIPTS_REDACTION_KEY,
then the development key if --allow-dev-key is set.

Example:
  receipts run --events ledger.events.jsonl --coverage coverage.manifest.json --out packets
  receipts run --events e.jsonl --coverage c.json --workstreams edited.yaml --archive`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Events, "events", "", "event ledger (JSONL) to import (required)")
	f.StringVar(&opts.Coverage, "coverage", "", "coverage manifest (JSON) to import (required)")
	f.StringVarP(&opts.OutDir, "out", "o", "", "output directory for run directories")
	f.BoolVar(&opts.Archive, "archive", false, "also write <run>.zip and <run>.<profile>.zip")
	f.StringSliceVar(&opts.Profiles, "profile", nil, "redaction profiles to render (internal|manager|public)")
	f.StringVar(&opts.RedactionKey, "redaction-key", "", "redaction key (overrides $"+redact.KeyEnv+")")
	f.BoolVar(&opts.AllowDevKey, "allow-dev-key", false, "fall back to the insecure development key")
	f.StringVar(&opts.Clusterer, "clusterer", "", "workstream clusterer (repo|llm)")
	f.StringVar(&opts.Workstreams, "workstreams", "", "edited workstreams.yaml to use instead of clustering")
	f.StringVar(&opts.HistoryDB, "history", "", "SQLite run history database")
	f.StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this textfile")
	f.StringSliceVar(&opts.Exclude, "exclude", nil, "drop events from repositories matching these globs")
	f.StringVar(&opts.RunPrefix, "run-prefix", "", "prefix for generated run ids")
	_ = cmd.MarkFlagRequired("events")
	_ = cmd.MarkFlagRequired("coverage")

	return cmd
}

func runPipeline(cmd *cobra.Command, opts *RunOptions) error {
	out := opts.formatter(cmd)
	logger := out.Logger()

	cfg, err := loadRunConfig(cmd, opts, logger)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeInput, "invalid configuration", err)
	}
	profiles, _ := cfg.ParsedProfiles()

	key, err := resolveKey(profiles, opts, cfg, logger)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeKey, "redaction key", err)
	}

	var source ingest.Ingestor = ingest.FileImporter{EventsPath: opts.Events, CoveragePath: opts.Coverage}
	if len(cfg.Ingest.Exclude) > 0 {
		if source, err = ingest.NewFilter(source, cfg.Ingest.Exclude, logger); err != nil {
			return out.Fail(ExitCommandError, ErrCodeInput, "invalid exclude pattern", err)
		}
	}

	var metrics *engine.Metrics
	if cfg.MetricsFile != "" {
		metrics = engine.NewMetrics()
	}

	clusterer, err := buildClusterer(cfg, opts.Completer, metrics, logger)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeInput, "clusterer", err)
	}
	renderer, err := render.NewMarkdownRenderer()
	if err != nil {
		return out.Fail(ExitFailure, ErrCodeRun, "renderer", err)
	}

	engineOpts := []engine.Option{
		engine.WithProfiles(profiles...),
		engine.WithKey(key),
		engine.WithArchive(cfg.Archive),
		engine.WithRunPrefix(cfg.RunPrefix),
		engine.WithMetrics(metrics),
		engine.WithLogger(logger),
	}
	if len(cfg.Redaction.SensitivePaths) > 0 {
		engineOpts = append(engineOpts, engine.WithRedactOptions(redact.WithSensitivePaths(cfg.Redaction.SensitivePaths)))
	}
	if opts.Workstreams != "" {
		engineOpts = append(engineOpts, engine.WithWorkstreamsOverride(opts.Workstreams))
	}
	if opts.RunIDs != nil {
		engineOpts = append(engineOpts, engine.WithRunIDGenerator(opts.RunIDs))
	}
	if cfg.HistoryDB != "" {
		st, err := store.Open(cfg.HistoryDB)
		if err != nil {
			return out.Fail(ExitCommandError, ErrCodeHistory, "failed to open history database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing history database", "error", closeErr)
			}
		}()
		engineOpts = append(engineOpts, engine.WithStore(st))
	}

	eng := engine.New(cfg.OutDir, clusterer, renderer, engineOpts...)

	ctx, stop := signalContext(cmd.Context(), logger)
	defer stop()

	res, runErr := eng.RunFrom(ctx, source)
	if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
		logger.Warn("failed to write metrics", "path", cfg.MetricsFile, "error", err)
	}
	if runErr != nil {
		if engine.IsStage(runErr, engine.StageIngest) {
			return out.Fail(ExitCommandError, ErrCodeInput, "failed to read input", runErr)
		}
		return out.Fail(ExitFailure, ErrCodeRun, "run failed", runErr)
	}

	summary := RunSummary{
		RunID:        res.RunID,
		Dir:          res.Dir,
		Events:       res.Events,
		Workstreams:  res.Workstreams,
		Completeness: res.Completeness,
		Profiles:     res.Profiles,
		Files:        len(res.Manifest.Files),
		Archives:     res.Archives,
		Warnings:     res.Warnings,
	}
	if out.Format == "json" {
		return out.Success(summary)
	}
	printRunSummary(out, summary)
	return nil
}

// loadRunConfig layers defaults, file, environment, then explicitly set flags.
func loadRunConfig(cmd *cobra.Command, opts *RunOptions, logger *slog.Logger) (*config.Config, error) {
	cfg, err := config.NewLoader(logger, opts.Getenv).Load(opts.Config)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("out") {
		cfg.OutDir = opts.OutDir
	}
	if f.Changed("archive") {
		cfg.Archive = opts.Archive
	}
	if f.Changed("profile") {
		cfg.Profiles = opts.Profiles
	}
	if f.Changed("allow-dev-key") {
		cfg.Redaction.AllowDevKey = opts.AllowDevKey
	}
	if f.Changed("clusterer") {
		cfg.Clusterer = opts.Clusterer
	}
	if f.Changed("history") {
		cfg.HistoryDB = opts.HistoryDB
	}
	if f.Changed("metrics-file") {
		cfg.MetricsFile = opts.MetricsFile
	}
	if f.Changed("exclude") {
		cfg.Ingest.Exclude = opts.Exclude
	}
	if f.Changed("run-prefix") {
		cfg.RunPrefix = opts.RunPrefix
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveKey only demands a key when some profile redacts.
func resolveKey(profiles []model.Profile, opts *RunOptions, cfg *config.Config, logger *slog.Logger) (redact.Key, error) {
	needed := false
	for _, p := range profiles {
		if p != model.ProfileInternal {
			needed = true
		}
	}
	if !needed {
		return redact.Key{}, nil
	}
	return redact.ResolveKey(redact.KeyOptions{
		Explicit: opts.RedactionKey,
		AllowDev: cfg.Redaction.AllowDevKey,
		Getenv:   opts.Getenv,
		Logger:   logger,
	})
}

func buildClusterer(cfg *config.Config, completer llm.Completer, metrics *engine.Metrics, logger *slog.Logger) (cluster.Clusterer, error) {
	if cfg.Clusterer == config.ClustererRepo {
		return cluster.NewRepoClusterer(), nil
	}

	if completer == nil {
		if cfg.LLM.APIKey == "" {
			return nil, errors.New("llm clusterer needs an API key in the environment")
		}
		client, err := llm.NewClient(llm.Config{
			Provider:  cfg.LLM.Provider,
			Model:     cfg.LLM.Model,
			BaseURL:   cfg.LLM.BaseURL,
			APIKey:    cfg.LLM.APIKey,
			MaxTokens: cfg.LLM.MaxTokens,
			Timeout:   cfg.LLM.Timeout,
		}, llm.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		completer = client
	}

	llmOpts := []cluster.LLMOption{cluster.WithLogger(logger)}
	if cfg.LLM.TokenBudget > 0 {
		llmOpts = append(llmOpts, cluster.WithTokenBudget(cfg.LLM.TokenBudget))
	}
	if cfg.LLM.Concurrency > 0 {
		llmOpts = append(llmOpts, cluster.WithConcurrency(cfg.LLM.Concurrency))
	}
	primary := cluster.NewLLMClusterer(metrics.InstrumentCompleter(completer), llmOpts...)
	if !cfg.LLM.Fallback {
		return primary, nil
	}
	return cluster.Fallback{Primary: primary, Secondary: cluster.NewRepoClusterer(), Logger: logger}, nil
}

// signalContext cancels on SIGINT/SIGTERM. A cancelled run removes its
// staging directory before returning.
func signalContext(parent context.Context, logger *slog.Logger) (context.Context, func()) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, cancelling run", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

func printRunSummary(out *OutputFormatter, s RunSummary) {
	w := out.Writer
	fmt.Fprintf(w, "Run %s: %d events, %d workstreams, coverage %s\n",
		s.RunID, s.Events, s.Workstreams, s.Completeness)
	fmt.Fprintf(w, "Directory: %s (%d files)\n", s.Dir, s.Files)
	for _, a := range s.Archives {
		fmt.Fprintf(w, "Archive: %s\n", a)
	}
	for _, warn := range s.Warnings {
		fmt.Fprintf(w, "Warning: %s\n", warn)
	}
}
