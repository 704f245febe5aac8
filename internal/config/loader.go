package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables read by ApplyEnv.
const (
	EnvOutDir      = "RECEIPTS_OUT_DIR"
	EnvClusterer   = "RECEIPTS_CLUSTERER"
	EnvLLMProvider = "RECEIPTS_LLM_PROVIDER"
	EnvLLMModel    = "RECEIPTS_LLM_MODEL"
	EnvLLMBaseURL  = "RECEIPTS_LLM_BASE_URL"
	EnvLLMTimeout  = "RECEIPTS_LLM_TIMEOUT"
	EnvHistoryDB   = "RECEIPTS_HISTORY_DB"
)

// Loader reads configuration with layered precedence.
type Loader struct {
	logger *slog.Logger
	getenv func(string) string
}

// NewLoader creates a loader. A nil getenv uses os.Getenv.
func NewLoader(logger *slog.Logger, getenv func(string) string) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	return &Loader{logger: logger, getenv: getenv}
}

// Load applies defaults, then the file at path, then the environment.
//
// An empty path tries FileName in the working directory and silently skips
// it when absent. An explicit path must exist.
func (l *Loader) Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = FileName
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
		l.logger.Debug("loaded config", "path", path)
	case errors.Is(err, os.ErrNotExist) && !explicit:
		l.logger.Debug("no config file", "path", path)
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := l.ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile decodes path over the defaults without consulting the environment.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := decode(data, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// decode rejects unknown keys so typos do not silently fall back to defaults.
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overlays environment variables onto cfg.
func (l *Loader) ApplyEnv(cfg *Config) error {
	cfg.OutDir = l.envStr(EnvOutDir, cfg.OutDir)
	cfg.Clusterer = l.envStr(EnvClusterer, cfg.Clusterer)
	cfg.LLM.Provider = l.envStr(EnvLLMProvider, cfg.LLM.Provider)
	cfg.LLM.Model = l.envStr(EnvLLMModel, cfg.LLM.Model)
	cfg.LLM.BaseURL = l.envStr(EnvLLMBaseURL, cfg.LLM.BaseURL)
	cfg.HistoryDB = l.envStr(EnvHistoryDB, cfg.HistoryDB)

	timeout, err := l.envDuration(EnvLLMTimeout, cfg.LLM.Timeout)
	if err != nil {
		return err
	}
	cfg.LLM.Timeout = timeout

	switch cfg.LLM.Provider {
	case "anthropic":
		cfg.LLM.APIKey = l.envStr("ANTHROPIC_API_KEY", cfg.LLM.APIKey)
	case "openai":
		cfg.LLM.APIKey = l.envStr("OPENAI_API_KEY", cfg.LLM.APIKey)
	}
	return nil
}

func (l *Loader) envStr(key, fallback string) string {
	if v := strings.TrimSpace(l.getenv(key)); v != "" {
		return v
	}
	return fallback
}

func (l *Loader) envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(l.getenv(key))
	if v == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
