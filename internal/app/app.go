// Package app wires the flowlyrics subsystems into a running application.
//
// New builds the run store, analyzer, generator, selector, pipeline, health
// checks and HTTP API from a config and a set of [Providers]. Run serves the
// API until its context ends, Apply pushes hot-reloaded settings into the
// running pipeline, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithStore, WithMetrics).
// When an option is not provided, New creates real implementations from the
// config.
package app

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/flowlyrics/internal/analysis"
	"github.com/MrWong99/flowlyrics/internal/api"
	"github.com/MrWong99/flowlyrics/internal/config"
	"github.com/MrWong99/flowlyrics/internal/generate"
	"github.com/MrWong99/flowlyrics/internal/health"
	"github.com/MrWong99/flowlyrics/internal/lyric/fit"
	"github.com/MrWong99/flowlyrics/internal/lyric/selector"
	"github.com/MrWong99/flowlyrics/internal/lyric/syllable"
	"github.com/MrWong99/flowlyrics/internal/observe"
	"github.com/MrWong99/flowlyrics/internal/pipeline"
	"github.com/MrWong99/flowlyrics/internal/store"
)

// readHeaderTimeout bounds how long a client may take to send headers.
const readHeaderTimeout = 10 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics        *observe.Metrics
	metricsHandler http.Handler
	version        string

	store         store.Store
	analyzer      *analysis.Analyzer
	pipeline      *pipeline.Pipeline
	health        *health.Handler
	api           *api.Server
	server        *http.Server
	serverMu      sync.Mutex
	storeInjected bool

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithStore injects a run store instead of opening one from config. The
// caller keeps ownership and closes it.
func WithStore(s store.Store) Option {
	return func(a *App) {
		a.store = s
		a.storeInjected = true
	}
}

// WithMetrics sets the metrics recorder. Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler replaces the /metrics handler.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithVersion sets the version reported by the API.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// ErrNoConverter is returned by New when providers carry no g2p converter.
var ErrNoConverter = errors.New("app: a g2p converter is required")

// New creates an App by wiring all subsystems together. providers comes
// from [BuildProviders] or from a test.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
		version:   "dev",
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if providers == nil || providers.G2P == nil {
		return nil, ErrNoConverter
	}

	// ── 1. Run store ─────────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. Analyzer ──────────────────────────────────────────────────────
	aopts := []analysis.Option{analysis.WithMetrics(a.metrics)}
	if providers.Annotator != nil {
		aopts = append(aopts, analysis.WithAnnotator(providers.Annotator))
	}
	a.analyzer = analysis.New(cfg.Analysis, aopts...)

	// ── 3. Pipeline ──────────────────────────────────────────────────────
	popts := []pipeline.Option{pipeline.WithMetrics(a.metrics)}
	if a.store != nil {
		popts = append(popts, pipeline.WithStore(a.store))
	}
	a.pipeline = pipeline.New(a.analyzer, a.newGenerator(cfg.Generation), a.newSelector(cfg.Validation), popts...)

	// ── 4. Health ────────────────────────────────────────────────────────
	var checkers []health.Checker
	if a.store != nil {
		checkers = append(checkers, health.PingChecker("store", a.store))
	}
	if providers.LLM != nil {
		checkers = append(checkers, health.BreakerChecker("llm", providers.LLM))
	}
	a.health = health.New(checkers...)

	// ── 5. HTTP API ──────────────────────────────────────────────────────
	apiOpts := []api.Option{
		api.WithHealth(a.health),
		api.WithMetrics(a.metrics),
		api.WithMaxUploadBytes(cfg.Server.MaxUploadBytes),
		api.WithVersion(a.version),
	}
	if a.metricsHandler != nil {
		apiOpts = append(apiOpts, api.WithMetricsHandler(a.metricsHandler))
	}
	a.api = api.New(a.pipeline, apiOpts...)

	return a, nil
}

// initStore opens the configured run store unless one was injected.
func (a *App) initStore(ctx context.Context) error {
	if a.storeInjected {
		return nil
	}
	s, err := store.Open(ctx, a.cfg.Store)
	if err != nil {
		return err
	}
	if s == nil {
		slog.Info("run storage disabled")
		return nil
	}
	a.store = s
	a.closers = append(a.closers, s.Close)
	slog.Info("run storage ready", "driver", a.cfg.Store.Driver)
	return nil
}

func (a *App) newGenerator(cfg generate.Config) *generate.Generator {
	opts := []generate.Option{generate.WithMetrics(a.metrics)}
	if a.providers.LLMName != "" {
		opts = append(opts, generate.WithProviderName(a.providers.LLMName))
	}
	return generate.New(a.providers.CompletionProvider(), cfg, opts...)
}

func (a *App) newSelector(cfg config.ValidationConfig) *selector.Selector {
	scorer := fit.NewScorer(syllable.New(a.providers.G2P), fit.WithWeights(cfg.Weights))
	return selector.New(scorer, selector.Options{MinScore: cfg.MinScore, Workers: cfg.Workers})
}

// Pipeline returns the wired pipeline.
func (a *App) Pipeline() *pipeline.Pipeline { return a.pipeline }

// Health returns the readiness handler.
func (a *App) Health() *health.Handler { return a.health }

// Handler returns the HTTP handler of the API.
func (a *App) Handler() http.Handler { return a.api.Handler() }

// Apply pushes the hot-reloadable sections of cfg into the running
// pipeline. Sections listed in d.RestartRequired are ignored.
func (a *App) Apply(cfg *config.Config, d config.ConfigDiff) {
	if d.AnalysisChanged {
		a.analyzer.SetConfig(cfg.Analysis)
		slog.Info("analysis thresholds updated", "version", cfg.Analysis.Version)
	}
	if d.ValidationChanged {
		a.pipeline.SetSelector(a.newSelector(cfg.Validation))
		slog.Info("validation settings updated", "min_score", cfg.Validation.MinScore)
	}
	if d.GenerationChanged {
		a.pipeline.SetGenerator(a.newGenerator(cfg.Generation))
		slog.Info("generation settings updated", "candidates", cfg.Generation.CandidateCount)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("ignoring changes that need a restart", "sections", d.RestartRequired)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run listens on the configured address and serves the API until ctx is
// cancelled. It returns ctx's error on a clean stop.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %q: %w", a.cfg.Server.ListenAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve serves the API on ln until ctx is cancelled.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	tlsCfg := a.cfg.Server.TLS
	if tlsCfg != nil {
		cert, err := tls.LoadX509KeyPair(tlsCfg.CertFile, tlsCfg.KeyFile)
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("app: load tls key pair: %w", err)
		}
		srv.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
		ln = tls.NewListener(ln, srv.TLSConfig)
	}

	a.serverMu.Lock()
	a.server = srv
	a.serverMu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	slog.Info("app running", "addr", ln.Addr().String(), "tls", tlsCfg != nil)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the HTTP server, then runs closers in order. It respects
// the context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		a.serverMu.Lock()
		srv := a.server
		a.serverMu.Unlock()
		if srv != nil {
			if err := srv.Shutdown(ctx); err != nil {
				slog.Warn("http shutdown error", "err", err)
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
