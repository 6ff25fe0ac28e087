package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs. Analysis,
// validation, generation and the log level can be applied to a running
// server; the remaining sections need a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	AnalysisChanged   bool
	ValidationChanged bool
	GenerationChanged bool

	// RestartRequired lists changed sections that are only read at startup.
	RestartRequired []string
}

// HasChanges reports whether anything differs.
func (d ConfigDiff) HasChanges() bool {
	return d.LogLevelChanged || d.AnalysisChanged || d.ValidationChanged ||
		d.GenerationChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	d.AnalysisChanged = old.Analysis != new.Analysis
	d.ValidationChanged = old.Validation != new.Validation
	d.GenerationChanged = old.Generation != new.Generation

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	if !reflect.DeepEqual(oldServer, newServer) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !slices.EqualFunc(old.LLM, new.LLM, func(a, b ProviderEntry) bool { return reflect.DeepEqual(a, b) }) {
		d.RestartRequired = append(d.RestartRequired, "llm")
	}
	if old.CircuitBreaker != new.CircuitBreaker {
		d.RestartRequired = append(d.RestartRequired, "circuit_breaker")
	}
	if !reflect.DeepEqual(old.Recognizer, new.Recognizer) {
		d.RestartRequired = append(d.RestartRequired, "recognizer")
	}
	if old.G2P != new.G2P {
		d.RestartRequired = append(d.RestartRequired, "g2p")
	}
	if old.Store != new.Store {
		d.RestartRequired = append(d.RestartRequired, "store")
	}
	return d
}
