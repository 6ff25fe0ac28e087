// Package config provides the configuration schema, loader, and provider
// registry for flowlyrics.
package config

import (
	"github.com/MrWong99/flowlyrics/internal/generate"
	"github.com/MrWong99/flowlyrics/internal/lyric/fit"
	"github.com/MrWong99/flowlyrics/internal/resilience"
	"github.com/MrWong99/flowlyrics/internal/store"
	"github.com/MrWong99/flowlyrics/pkg/rhythm"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr     = ":8080"
	DefaultMaxUploadBytes = 50 << 20
	DefaultG2P            = "cmudict"
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server ServerConfig `yaml:"server"`

	// LLM lists candidate generation backends in failover order. An empty
	// list runs generation in mock mode.
	LLM []ProviderEntry `yaml:"llm"`

	// CircuitBreaker tunes the per-backend breakers of the LLM failover group.
	CircuitBreaker resilience.CircuitBreakerConfig `yaml:"circuit_breaker"`

	Recognizer RecognizerConfig      `yaml:"recognizer"`
	G2P        G2PConfig             `yaml:"g2p"`
	Analysis   rhythm.AnalysisConfig `yaml:"analysis"`
	Generation generate.Config       `yaml:"generation"`
	Validation ValidationConfig      `yaml:"validation"`
	Store      store.Config          `yaml:"store"`
}

// ServerConfig holds network and logging settings for the HTTP server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MaxUploadBytes caps WAV request bodies.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProviderEntry configures one LLM backend. The Name field is used to look up
// the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "ollama").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini").
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// RecognizerConfig selects and tunes the phonetic recognizer. Backends are
// tried in order: whisper server, native whisper, heuristic.
type RecognizerConfig struct {
	// ServerURL is the base URL of a whisper.cpp server.
	ServerURL string `yaml:"server_url"`

	// Model is passed to the whisper server's inference endpoint.
	Model string `yaml:"model"`

	// ModelPath is a ggml model file for native whisper.
	ModelPath string `yaml:"model_path"`

	// Language is the spoken language hint, e.g. "en".
	Language string `yaml:"language"`

	// Fallback enables the heuristic classifier when no whisper backend is
	// usable. Defaults to true.
	Fallback *bool `yaml:"fallback"`

	// Padding, MinDuration and RetryPadding are in seconds and apply to
	// per-window recognition.
	Padding      float64 `yaml:"padding"`
	MinDuration  float64 `yaml:"min_duration"`
	Retry        bool    `yaml:"retry"`
	RetryPadding float64 `yaml:"retry_padding"`
}

// FallbackEnabled reports whether the heuristic fallback may be used.
func (r RecognizerConfig) FallbackEnabled() bool {
	return r.Fallback == nil || *r.Fallback
}

// G2PConfig selects the grapheme-to-phoneme converter.
type G2PConfig struct {
	// Name selects the registered converter. Default "cmudict".
	Name string `yaml:"name"`

	// DictPath is an optional CMU Pronouncing Dictionary file merged over
	// the built-in seed lexicon.
	DictPath string `yaml:"dict_path"`

	// NoGuess disables spelling-rule pronunciations for unknown words.
	NoGuess bool `yaml:"no_guess"`
}

// ValidationConfig tunes candidate scoring and selection.
type ValidationConfig struct {
	Weights  fit.Weights `yaml:"weights"`
	MinScore float64     `yaml:"min_score"`
	Workers  int         `yaml:"workers"`
}
