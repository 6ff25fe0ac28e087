// Package generate turns a rhythm grid into candidate lyric lines by
// prompting a language model.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/flowlyrics/internal/observe"
	"github.com/MrWong99/flowlyrics/pkg/provider/llm"
	"github.com/MrWong99/flowlyrics/pkg/rhythm"
)

// Defaults applied by [Config.WithDefaults].
const (
	DefaultTemperature    = 0.7
	DefaultTimeout        = 60 * time.Second
	DefaultCandidateCount = 5
	DefaultMaxTokens      = 512
)

var (
	// ErrEmptyGrid is returned when the grid has no segments to write for.
	ErrEmptyGrid = errors.New("generate: grid has no segments")

	// ErrNoCandidates is returned when the model reply held no usable line.
	ErrNoCandidates = errors.New("generate: no candidates in model reply")

	// ErrPromptTooLarge is returned when the prompt plus the reply budget
	// exceeds the model's context window.
	ErrPromptTooLarge = errors.New("generate: prompt exceeds context window")
)

// MockCandidates are returned in mock mode.
var MockCandidates = []string{
	"Riding through the city",
	"Never looking back now",
	"Money on my mind state",
	"Living for the moment",
	"Sky is not the limit",
}

// Config tunes generation.
type Config struct {
	Temperature    float64       `yaml:"temperature" json:"temperature"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
	CandidateCount int           `yaml:"candidate_count" json:"candidate_count"`
	MaxTokens      int           `yaml:"max_tokens" json:"max_tokens"`

	// Mock skips the model and returns [MockCandidates].
	Mock bool `yaml:"mock" json:"mock"`
}

// WithDefaults fills zero fields.
func (c Config) WithDefaults() Config {
	if c.Temperature <= 0 {
		c.Temperature = DefaultTemperature
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.CandidateCount <= 0 {
		c.CandidateCount = DefaultCandidateCount
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	return c
}

// Option configures a [Generator].
type Option func(*Generator)

// WithMetrics sets the metrics recorder. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

// WithProviderName sets the label used on metrics and logs.
func WithProviderName(name string) Option {
	return func(g *Generator) { g.name = name }
}

// Generator writes candidate lines for a rhythm grid.
type Generator struct {
	provider llm.Provider
	cfg      Config
	metrics  *observe.Metrics
	name     string
}

// New returns a Generator. A nil provider forces mock mode.
func New(p llm.Provider, cfg Config, opts ...Option) *Generator {
	g := &Generator{
		provider: p,
		cfg:      cfg.WithDefaults(),
		name:     "llm",
	}
	if p == nil {
		g.cfg.Mock = true
	}
	for _, o := range opts {
		o(g)
	}
	if g.metrics == nil {
		g.metrics = observe.DefaultMetrics()
	}
	return g
}

// Config returns the effective configuration.
func (g *Generator) Config() Config { return g.cfg }

// Generate returns up to CandidateCount distinct lines written for grid.
func (g *Generator) Generate(ctx context.Context, grid rhythm.Grid) ([]string, error) {
	if grid.IsEmpty() {
		return nil, ErrEmptyGrid
	}
	pivot := rhythm.NewPivot(grid)
	return g.GenerateBlock(ctx, pivot.Blocks[0])
}

// GenerateBlock returns up to CandidateCount distinct lines for one block.
func (g *Generator) GenerateBlock(ctx context.Context, block rhythm.Block) ([]string, error) {
	if len(block.Segments) == 0 {
		return nil, ErrEmptyGrid
	}
	if g.cfg.Mock {
		return Cap(append([]string(nil), MockCandidates...), g.cfg.CandidateCount), nil
	}

	ctx, span := observe.StartSpan(ctx, "generate.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.Int("syllable_target", block.SyllableTarget),
		attribute.String("provider", g.name),
	)

	system, user, err := BuildPrompt(Describe(block, g.cfg.CandidateCount))
	if err != nil {
		return nil, err
	}
	req := llm.CompletionRequest{
		SystemPrompt: system,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: user}},
		Temperature:  g.cfg.Temperature,
		MaxTokens:    g.cfg.MaxTokens,
	}
	if err := g.checkBudget(req); err != nil {
		observe.Fail(span, err)
		return nil, err
	}

	cctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.provider.Complete(cctx, req)
	g.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("provider", g.name)))
	if err != nil {
		g.metrics.RecordProviderRequest(ctx, g.name, "llm", "error")
		observe.Fail(span, err)
		return nil, fmt.Errorf("generate: complete: %w", err)
	}
	g.metrics.RecordProviderRequest(ctx, g.name, "llm", "ok")

	if resp == nil {
		resp = &llm.CompletionResponse{}
	}

	lines := Cap(Dedupe(Parse(resp.Content, 0)), g.cfg.CandidateCount)
	observe.Logger(ctx).Debug("generate: candidates parsed",
		slog.Int("count", len(lines)),
		slog.Int("prompt_tokens", resp.Usage.PromptTokens),
		slog.Int("completion_tokens", resp.Usage.CompletionTokens),
	)
	if len(lines) == 0 {
		observe.Fail(span, ErrNoCandidates)
		return nil, ErrNoCandidates
	}
	span.SetAttributes(observe.AttrCandidate.Int(len(lines)))
	return lines, nil
}

func (g *Generator) checkBudget(req llm.CompletionRequest) error {
	limit := g.provider.Capabilities().ContextWindow
	if limit <= 0 {
		return nil
	}
	tokens, err := g.provider.CountTokens(llm.RequestMessages(req))
	if err != nil {
		slog.Warn("generate: token count failed, skipping budget check", "err", err)
		return nil
	}
	if tokens+req.MaxTokens > limit {
		return fmt.Errorf("%w: %d prompt + %d reply tokens > %d", ErrPromptTooLarge, tokens, req.MaxTokens, limit)
	}
	return nil
}

// Cap truncates lines to at most n entries.
func Cap(lines []string, n int) []string {
	if n > 0 && len(lines) > n {
		return lines[:n]
	}
	return lines
}
