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
	"llm": {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq"},
	"tts": {"elevenlabs", "openai", "coqui"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and [Validate].
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
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
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

	// Providers. The pipeline cannot run without a language backend; speech
	// is optional and merely disables narration.
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}
	validateProviderName("llm", cfg.Providers.LLM.Name)
	for i, entry := range cfg.Providers.LLMFallbacks {
		if entry.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("llm", entry.Name)
	}

	if cfg.Providers.TTS.Name == "" {
		slog.Warn("providers.tts is not configured; translations will be returned without narration audio")
		if len(cfg.Providers.TTSFallbacks) > 0 {
			errs = append(errs, errors.New("providers.tts_fallbacks configured without a primary providers.tts"))
		}
	}
	validateProviderName("tts", cfg.Providers.TTS.Name)
	for i, entry := range cfg.Providers.TTSFallbacks {
		if entry.Name == "" {
			errs = append(errs, fmt.Errorf("providers.tts_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("tts", entry.Name)
	}

	// Pipeline
	if cfg.Pipeline.LLMTimeout < 0 {
		errs = append(errs, fmt.Errorf("pipeline.llm_timeout %v is negative", cfg.Pipeline.LLMTimeout))
	}
	if cfg.Pipeline.Temperature < 0 || cfg.Pipeline.Temperature > 2 {
		errs = append(errs, fmt.Errorf("pipeline.temperature %.2f is out of range [0, 2]", cfg.Pipeline.Temperature))
	}
	if cfg.Pipeline.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_tokens %d is negative", cfg.Pipeline.MaxTokens))
	}

	// Cache
	if cfg.Cache.Capacity < 0 {
		errs = append(errs, fmt.Errorf("cache.capacity %d is negative", cfg.Cache.Capacity))
	}
	if cfg.Cache.MinConfidence < 0 || cfg.Cache.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("cache.min_confidence %.2f is out of range [0, 1]", cfg.Cache.MinConfidence))
	}
	if cfg.Cache.WriteTimeout < 0 {
		errs = append(errs, fmt.Errorf("cache.write_timeout %v is negative", cfg.Cache.WriteTimeout))
	}
	if cfg.Cache.PostgresDSN == "" && (cfg.Cache.MinConfidence != 0 || cfg.Cache.WriteTimeout != 0) {
		slog.Warn("cache durable-tier settings are set but cache.postgres_dsn is empty; the durable tier stays disabled")
	}

	// Narration
	if cfg.Narration.Speed != 0 {
		if cfg.Narration.Speed < 0.5 || cfg.Narration.Speed > 2.0 {
			errs = append(errs, fmt.Errorf("narration.speed %.2f is out of range [0.5, 2.0]", cfg.Narration.Speed))
		}
	}
	if cfg.Narration.Timeout < 0 {
		errs = append(errs, fmt.Errorf("narration.timeout %v is negative", cfg.Narration.Timeout))
	}
	if cfg.Providers.TTS.Name == "" && cfg.Narration.Voice != "" {
		slog.Warn("narration.voice is set but providers.tts is not configured; the voice will not be used")
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
