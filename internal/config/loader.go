package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/flowlyrics/internal/lyric/fit"
	"github.com/MrWong99/flowlyrics/pkg/rhythm"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"g2p": {"cmudict"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. An empty document yields the default configuration. Analysis
// thresholds start from [rhythm.DefaultAnalysisConfig], so a file only needs
// to name the values it changes.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{Analysis: rhythm.DefaultAnalysisConfig()}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{Analysis: rhythm.DefaultAnalysisConfig()}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.MaxUploadBytes <= 0 {
		cfg.Server.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.G2P.Name == "" {
		cfg.G2P.Name = DefaultG2P
	}
	cfg.Analysis = cfg.Analysis.WithDefaults()
	cfg.Generation = cfg.Generation.WithDefaults()
	if cfg.Validation.Weights == (fit.Weights{}) {
		cfg.Validation.Weights = fit.DefaultWeights()
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil && (cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// LLM failover list
	seen := make(map[string]int, len(cfg.LLM))
	for i, p := range cfg.LLM {
		prefix := fmt.Sprintf("llm[%d]", i)
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		key := p.Name + "/" + p.Model
		if prev, ok := seen[key]; ok {
			errs = append(errs, fmt.Errorf("%s %q is a duplicate of llm[%d]", prefix, key, prev))
		}
		seen[key] = i
		validateProviderName("llm", p.Name)
	}
	if len(cfg.LLM) == 0 && !cfg.Generation.Mock {
		slog.Warn("no llm provider configured; generation will return mock candidates")
	}

	// Recognizer
	r := cfg.Recognizer
	if r.Padding < 0 || r.MinDuration < 0 || r.RetryPadding < 0 {
		errs = append(errs, errors.New("recognizer.padding, min_duration and retry_padding must not be negative"))
	}
	if r.ServerURL == "" && r.ModelPath == "" && !r.FallbackEnabled() {
		slog.Warn("no recognizer configured and fallback disabled; phonetic scoring will be unavailable")
	}

	// G2P
	validateProviderName("g2p", cfg.G2P.Name)

	// Analysis
	a := cfg.Analysis
	if a.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("analysis.sample_rate %d must be positive", a.SampleRate))
	}
	if a.Onset.HopLength <= 0 || a.Onset.FrameSize < a.Onset.HopLength {
		errs = append(errs, fmt.Errorf("analysis.onset: frame_size %d must be at least hop_length %d > 0", a.Onset.FrameSize, a.Onset.HopLength))
	}

	// Generation
	g := cfg.Generation
	if g.Temperature > 2 {
		errs = append(errs, fmt.Errorf("generation.temperature %.2f is out of range (0, 2]", g.Temperature))
	}
	if g.CandidateCount > 20 {
		errs = append(errs, fmt.Errorf("generation.candidate_count %d exceeds 20", g.CandidateCount))
	}

	// Validation
	w := cfg.Validation.Weights
	if w.Rhythm < 0 || w.Phonetic < 0 || w.Rhythm+w.Phonetic == 0 {
		errs = append(errs, fmt.Errorf("validation.weights %+v must be non-negative and not both zero", w))
	}
	if cfg.Validation.MinScore < 0 || cfg.Validation.MinScore > 1 {
		errs = append(errs, fmt.Errorf("validation.min_score %.2f is out of range [0, 1]", cfg.Validation.MinScore))
	}

	// Store
	if !cfg.Store.Driver.IsValid() {
		errs = append(errs, fmt.Errorf("store.driver %q is invalid; valid values: postgres, sqlite, or empty", cfg.Store.Driver))
	} else if cfg.Store.Driver != "" && cfg.Store.DSN == "" {
		errs = append(errs, fmt.Errorf("store.dsn is required when store.driver is %q", cfg.Store.Driver))
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
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
