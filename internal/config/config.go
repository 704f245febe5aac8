// Package config loads receipts settings.
//
// Precedence, lowest first: built-in defaults, the YAML file (receipts.yaml),
// environment variables, then command-line flags (applied by the CLI).
// Secrets never come from the file: API keys are read from the environment
// and the redaction key is resolved by package redact.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/roach88/receipts/internal/cluster"
	"github.com/roach88/receipts/internal/llm"
	"github.com/roach88/receipts/internal/model"
)

// FileName is the config file looked up in the working directory.
const FileName = "receipts.yaml"

// Clusterer names.
const (
	ClustererRepo = "repo"
	ClustererLLM  = "llm"
)

// Config is the complete receipts configuration.
type Config struct {
	OutDir      string          `yaml:"out_dir"`
	Profiles    []string        `yaml:"profiles"`
	Archive     bool            `yaml:"archive"`
	RunPrefix   string          `yaml:"run_prefix"`
	Clusterer   string          `yaml:"clusterer"`
	LLM         LLMConfig       `yaml:"llm"`
	Redaction   RedactionConfig `yaml:"redaction"`
	Ingest      IngestConfig    `yaml:"ingest"`
	HistoryDB   string          `yaml:"history_db"`
	MetricsFile string          `yaml:"metrics_file"`
}

// LLMConfig configures model-assisted clustering.
type LLMConfig struct {
	// Provider is "anthropic" or "openai".
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`
	// APIKey is only ever read from the environment.
	APIKey      string        `yaml:"-"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxTokens   int           `yaml:"max_tokens"`
	TokenBudget int           `yaml:"token_budget"`
	Concurrency int           `yaml:"concurrency"`
	// Fallback degrades to per-repository clustering when the model fails.
	Fallback bool `yaml:"fallback"`
}

// RedactionConfig configures the redaction profiles.
type RedactionConfig struct {
	AllowDevKey bool `yaml:"allow_dev_key"`
	// SensitivePaths replaces the built-in sensitive path globs when non-empty.
	SensitivePaths []string `yaml:"sensitive_paths"`
}

// IngestConfig configures ingestion.
type IngestConfig struct {
	// Exclude drops events from repositories matching these globs.
	Exclude []string `yaml:"exclude"`
}

// Default returns a Config with defaults.
func Default() *Config {
	return &Config{
		OutDir:    "receipts-out",
		Profiles:  []string{string(model.ProfileManager), string(model.ProfilePublic)},
		RunPrefix: "run-",
		Clusterer: ClustererRepo,
		LLM: LLMConfig{
			Provider:    "anthropic",
			Model:       "claude-sonnet-4-20250514",
			Timeout:     llm.DefaultTimeout,
			MaxTokens:   4096,
			TokenBudget: cluster.DefaultTokenBudget,
			Concurrency: cluster.DefaultConcurrency,
			Fallback:    true,
		},
	}
}

// ParsedProfiles returns Profiles as model profiles.
func (c *Config) ParsedProfiles() ([]model.Profile, error) {
	out := make([]model.Profile, 0, len(c.Profiles))
	for _, s := range c.Profiles {
		p, err := model.ParseProfile(s)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if c.OutDir == "" {
		errs = append(errs, errors.New("out_dir is required"))
	}
	if _, err := c.ParsedProfiles(); err != nil {
		errs = append(errs, err)
	}
	switch c.Clusterer {
	case ClustererRepo:
	case ClustererLLM:
		if llm.GetProvider(c.LLM.Provider) == nil {
			errs = append(errs, fmt.Errorf("llm.provider %q: must be one of %v", c.LLM.Provider, llm.ListProviders()))
		}
		if c.LLM.Model == "" {
			errs = append(errs, errors.New("llm.model is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("clusterer %q: must be %q or %q", c.Clusterer, ClustererRepo, ClustererLLM))
	}
	if c.LLM.Timeout < 0 {
		errs = append(errs, errors.New("llm.timeout must not be negative"))
	}
	if c.LLM.TokenBudget < 0 || c.LLM.Concurrency < 0 || c.LLM.MaxTokens < 0 {
		errs = append(errs, errors.New("llm.token_budget, llm.concurrency and llm.max_tokens must not be negative"))
	}
	for _, g := range c.Redaction.SensitivePaths {
		if !doublestar.ValidatePattern(g) {
			errs = append(errs, fmt.Errorf("redaction.sensitive_paths: invalid glob %q", g))
		}
	}
	for _, g := range c.Ingest.Exclude {
		if !doublestar.ValidatePattern(g) {
			errs = append(errs, fmt.Errorf("ingest.exclude: invalid glob %q", g))
		}
	}
	return errors.Join(errs...)
}
