// Package api exposes the lyric pipeline over HTTP.
//
// Routes:
//
//	GET  /               service status
//	GET  /healthz        liveness
//	GET  /readyz         readiness
//	GET  /metrics        Prometheus scrape endpoint
//	POST /v1/analyze     WAV body, returns the pivot document
//	POST /v1/validate    JSON grid and candidates, returns scores and winner
//	POST /v1/generate    WAV body, runs the full pipeline
//	GET  /v1/runs        recent stored runs
//	GET  /v1/runs/{id}   one stored run
//
// Every route is wrapped in [observe.Middleware].
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/flowlyrics/internal/health"
	"github.com/MrWong99/flowlyrics/internal/lyric/fit"
	"github.com/MrWong99/flowlyrics/internal/observe"
	"github.com/MrWong99/flowlyrics/internal/pipeline"
	"github.com/MrWong99/flowlyrics/internal/store"
	"github.com/MrWong99/flowlyrics/pkg/audio"
	"github.com/MrWong99/flowlyrics/pkg/rhythm"
)

// DefaultMaxUploadBytes caps WAV uploads when no limit is configured.
const DefaultMaxUploadBytes = 50 << 20

// maxJSONBytes caps JSON request bodies.
const maxJSONBytes = 4 << 20

// Option configures a [Server].
type Option func(*Server)

// WithHealth mounts the given health handler. Without it, /healthz and
// /readyz report ok with no checks.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMaxUploadBytes limits the size of WAV request bodies.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithMetrics sets the metrics used by the request middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMetricsHandler replaces the /metrics handler. The default serves the
// Prometheus default gatherer.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithVersion sets the version reported by GET /.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// Server holds the HTTP handlers.
type Server struct {
	pipeline       *pipeline.Pipeline
	health         *health.Handler
	metrics        *observe.Metrics
	metricsHandler http.Handler
	maxUpload      int64
	version        string
}

// New returns a Server backed by p.
func New(p *pipeline.Pipeline, opts ...Option) *Server {
	s := &Server{
		pipeline:  p,
		maxUpload: DefaultMaxUploadBytes,
		version:   "dev",
	}
	for _, o := range opts {
		o(s)
	}
	if s.health == nil {
		s.health = health.New()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.metricsHandler == nil {
		s.metricsHandler = promhttp.Handler()
	}
	return s
}

// Handler returns the instrumented router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleStatus)
	s.health.Register(mux)
	mux.Handle("GET /metrics", s.metricsHandler)
	mux.HandleFunc("POST /v1/analyze", s.handleAnalyze)
	mux.HandleFunc("POST /v1/validate", s.handleValidate)
	mux.HandleFunc("POST /v1/generate", s.handleGenerate)
	mux.HandleFunc("GET /v1/runs", s.handleListRuns)
	mux.HandleFunc("GET /v1/runs/{id}", s.handleGetRun)
	return observe.Middleware(s.metrics)(mux)
}

type statusResponse struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Status  string `json:"status"`
	Store   bool   `json:"store"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Service: "flowlyrics",
		Version: s.version,
		Status:  "ok",
		Store:   s.pipeline.Store() != nil,
	})
}

// AnalyzeResponse is the body of POST /v1/analyze.
type AnalyzeResponse struct {
	Pivot    rhythm.Pivot      `json:"pivot"`
	Metadata pipeline.Metadata `json:"metadata"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	buf, ok := s.readWAV(w, r)
	if !ok {
		return
	}
	grid, err := s.pipeline.Analyze(r.Context(), buf)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, AnalyzeResponse{
		Pivot: rhythm.NewPivot(grid),
		Metadata: pipeline.Metadata{
			Tempo:          rhythm.Round(grid.Tempo, 2),
			Duration:       rhythm.Round(grid.Duration, 2),
			SyllableTarget: grid.Len(),
			StressPattern:  grid.StressPattern(),
			PitchPattern:   grid.PitchPattern(),
		},
	})
}

// ValidateRequest is the body of POST /v1/validate. Either Grid or Pivot
// must be set; with a pivot, Block selects the block by position.
type ValidateRequest struct {
	Grid       *rhythm.Grid  `json:"grid,omitempty"`
	Pivot      *rhythm.Pivot `json:"pivot,omitempty"`
	Block      int           `json:"block,omitempty"`
	Candidates []string      `json:"candidates"`
}

// ValidateResponse is the body returned by POST /v1/validate.
type ValidateResponse struct {
	Results     []fit.Result `json:"results"`
	Winner      *fit.Result  `json:"winner,omitempty"`
	WinnerIndex int          `json:"winner_index"`
	HasWinner   bool         `json:"has_winner"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBytes))
	if err := dec.Decode(&req); err != nil {
		s.fail(w, r, statusForBodyError(err), fmt.Errorf("api: decode request: %w", err))
		return
	}
	grid, err := req.grid()
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err)
		return
	}
	if len(req.Candidates) == 0 {
		s.fail(w, r, http.StatusBadRequest, errors.New("api: candidates must not be empty"))
		return
	}

	sel, err := s.pipeline.Validate(r.Context(), grid, req.Candidates)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	resp := ValidateResponse{
		Results:     sel.Results,
		WinnerIndex: sel.WinnerIndex,
		HasWinner:   sel.HasWinner,
	}
	if sel.HasWinner {
		resp.Winner = &sel.Winner
	}
	writeJSON(w, http.StatusOK, resp)
}

func (req ValidateRequest) grid() (rhythm.Grid, error) {
	switch {
	case req.Grid != nil:
		return *req.Grid, nil
	case req.Pivot != nil:
		if req.Block < 0 || req.Block >= len(req.Pivot.Blocks) {
			return rhythm.Grid{}, fmt.Errorf("api: block %d out of range (pivot has %d)", req.Block, len(req.Pivot.Blocks))
		}
		return req.Pivot.Blocks[req.Block].Grid(req.Pivot.Meta), nil
	default:
		return rhythm.Grid{}, errors.New("api: request needs a grid or a pivot")
	}
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	buf, ok := s.readWAV(w, r)
	if !ok {
		return
	}
	source := r.URL.Query().Get("source")
	if source == "" {
		source = "upload"
	}
	res, err := s.pipeline.RunBuffer(r.Context(), source, buf)
	if err != nil {
		s.fail(w, r, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	st := s.pipeline.Store()
	if st == nil {
		s.fail(w, r, http.StatusNotImplemented, errors.New("api: run storage is disabled"))
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.fail(w, r, http.StatusBadRequest, fmt.Errorf("api: invalid limit %q", v))
			return
		}
		limit = n
	}
	runs, err := st.ListRuns(r.Context(), limit)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	out := make([]pipeline.Result, 0, len(runs))
	for i := range runs {
		out = append(out, pipeline.FromRun(&runs[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	st := s.pipeline.Store()
	if st == nil {
		s.fail(w, r, http.StatusNotImplemented, errors.New("api: run storage is disabled"))
		return
	}
	run, err := st.GetRun(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		s.fail(w, r, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, pipeline.FromRun(run))
}

// readWAV decodes the request body at the analyzer's sample rate. On
// failure it writes the error response and returns false.
func (s *Server) readWAV(w http.ResponseWriter, r *http.Request) (audio.Buffer, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxUpload))
	if err != nil {
		s.fail(w, r, statusForBodyError(err), fmt.Errorf("api: read body: %w", err))
		return audio.Buffer{}, false
	}
	if len(data) == 0 {
		s.fail(w, r, http.StatusBadRequest, errors.New("api: empty request body"))
		return audio.Buffer{}, false
	}
	rate := s.pipeline.Analyzer().Config().SampleRate
	buf, err := audio.DecodeBytes(data, audio.WithSampleRate(rate))
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, fmt.Errorf("api: decode wav: %w", err))
		return audio.Buffer{}, false
	}
	return buf, true
}

func statusForBodyError(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	log := observe.Logger(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "path", r.URL.Path, "status", status, "err", err)
	} else {
		log.Debug("request rejected", "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("api: encode response", "err", err)
	}
}
