package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anyllm"},
	"stt":        {"whisper"},
	"embeddings": {"openai"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Decoding starts from [Default], so absent keys keep their default values.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	for _, entry := range cfg.Providers.LLMFallbacks {
		validateProviderName("llm", entry.Name)
	}
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm is required; transcript analysis cannot run without a completion provider"))
	}
	if len(cfg.Providers.LLMFallbacks) > 0 && cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm_fallbacks is set but providers.llm is not"))
	}
	for i, entry := range cfg.Providers.LLMFallbacks {
		if entry.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
		}
	}

	if cfg.Providers.STT.Name == "" {
		slog.Warn("providers.stt is not configured; videos without YouTube captions cannot be transcribed")
	}

	// Repair
	if cfg.Repair.SimilarityThreshold < 0 || cfg.Repair.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("repair.similarity_threshold %.2f is out of range [0, 1]", cfg.Repair.SimilarityThreshold))
	}
	if cfg.Repair.LLMTemperature < 0 || cfg.Repair.LLMTemperature > 2 {
		errs = append(errs, fmt.Errorf("repair.llm_temperature %.2f is out of range [0, 2]", cfg.Repair.LLMTemperature))
	}
	if cfg.Repair.LLMTimeout < 0 {
		errs = append(errs, fmt.Errorf("repair.llm_timeout %v is negative", cfg.Repair.LLMTimeout))
	}

	// Analysis
	if cfg.Analysis.ChunkSeconds <= 0 {
		errs = append(errs, fmt.Errorf("analysis.chunk_seconds %d must be positive", cfg.Analysis.ChunkSeconds))
	}
	if cfg.Analysis.Workers <= 0 {
		errs = append(errs, fmt.Errorf("analysis.workers %d must be positive", cfg.Analysis.Workers))
	}

	// Embeddings ↔ storage dimensions
	if cfg.Providers.Embeddings.Name != "" && cfg.Storage.EmbeddingDimensions <= 0 {
		errs = append(errs, errors.New("providers.embeddings is configured but storage.embedding_dimensions is not set"))
	}
	if cfg.Providers.Embeddings.Name != "" && cfg.Storage.PostgresDSN == "" {
		slog.Warn("providers.embeddings is configured but storage.postgres_dsn is empty; embeddings have nowhere to go")
	}

	// Storage availability
	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; analyses will not be persisted")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
