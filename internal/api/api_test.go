package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/flowlyrics/internal/analysis"
	"github.com/MrWong99/flowlyrics/internal/api"
	"github.com/MrWong99/flowlyrics/internal/generate"
	"github.com/MrWong99/flowlyrics/internal/health"
	"github.com/MrWong99/flowlyrics/internal/lyric/fit"
	"github.com/MrWong99/flowlyrics/internal/lyric/selector"
	"github.com/MrWong99/flowlyrics/internal/lyric/syllable"
	"github.com/MrWong99/flowlyrics/internal/observe"
	"github.com/MrWong99/flowlyrics/internal/pipeline"
	"github.com/MrWong99/flowlyrics/internal/store"
	"github.com/MrWong99/flowlyrics/pkg/audio"
	g2pmock "github.com/MrWong99/flowlyrics/pkg/provider/g2p/mock"
	"github.com/MrWong99/flowlyrics/pkg/rhythm"
)

const rate = 22050

func burstsWAV(t *testing.T, seconds float64, starts ...float64) []byte {
	t.Helper()
	x := make([]float32, int(seconds*rate))
	for _, at := range starts {
		s := int(at * rate)
		for i := 0; i < rate/10 && s+i < len(x); i++ {
			tt := float64(i) / rate
			env := math.Exp(-tt / 0.03)
			if tt < 0.005 {
				env = tt / 0.005
			}
			x[s+i] = float32(0.7 * env * math.Sin(2*math.Pi*330*tt))
		}
	}
	data, err := audio.EncodeBytes(audio.Buffer{Samples: x, SampleRate: rate})
	if err != nil {
		t.Fatalf("EncodeBytes: %v", err)
	}
	return data
}

var dictionary = &g2pmock.Converter{
	Responses: map[string][]string{
		"Monster City": {"M", "AA1", "N", "S", "T", "ER0", "S", "IH1", "T", "IY0"},
		"The machine":  {"DH", "AH0", "M", "AH0", "SH", "IY1", "N"},
	},
	Default: []string{"AA1"},
}

type fixture struct {
	srv   *httptest.Server
	store store.Store
}

func newServer(t *testing.T, withStore bool, opts ...api.Option) fixture {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	popts := []pipeline.Option{pipeline.WithMetrics(m)}
	var st store.Store
	if withStore {
		sq, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "runs.db"))
		if err != nil {
			t.Fatalf("OpenSQLite: %v", err)
		}
		t.Cleanup(func() { _ = sq.Close() })
		st = sq
		popts = append(popts, pipeline.WithStore(sq))
	}

	a := analysis.New(rhythm.DefaultAnalysisConfig(), analysis.WithMetrics(m))
	gen := generate.New(nil, generate.Config{}, generate.WithMetrics(m))
	sel := selector.New(fit.NewScorer(syllable.New(dictionary)), selector.Options{})
	p := pipeline.New(a, gen, sel, popts...)

	s := api.New(p, append([]api.Option{api.WithMetrics(m)}, opts...)...)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return fixture{srv: srv, store: st}
}

func do(t *testing.T, method, url, contentType string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return v
}

func TestStatus(t *testing.T) {
	t.Parallel()
	f := newServer(t, false, api.WithVersion("1.2.3"))

	resp := do(t, "GET", f.srv.URL+"/", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody[map[string]any](t, resp)
	if body["version"] != "1.2.3" || body["status"] != "ok" || body["store"] != false {
		t.Errorf("body = %v", body)
	}

	if resp := do(t, "GET", f.srv.URL+"/nope", "", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /nope status = %d, want 404", resp.StatusCode)
	}
}

func TestHealthRoutes(t *testing.T) {
	t.Parallel()
	failing := health.Checker{Name: "store", Check: func(context.Context) error { return errors.New("down") }}
	f := newServer(t, false, api.WithHealth(health.New(failing)))

	if resp := do(t, "GET", f.srv.URL+"/healthz", "", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("/healthz status = %d, want 200", resp.StatusCode)
	}
	if resp := do(t, "GET", f.srv.URL+"/readyz", "", nil); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("/readyz status = %d, want 503", resp.StatusCode)
	}
}

func TestMetricsHandler(t *testing.T) {
	t.Parallel()
	var called atomic.Bool
	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called.Store(true)
		_, _ = w.Write([]byte("# metrics\n"))
	})
	f := newServer(t, false, api.WithMetricsHandler(h))

	resp := do(t, "GET", f.srv.URL+"/metrics", "", nil)
	if resp.StatusCode != http.StatusOK || !called.Load() {
		t.Errorf("status = %d, called = %v", resp.StatusCode, called.Load())
	}
}

func TestAnalyze(t *testing.T) {
	t.Parallel()
	f := newServer(t, false)

	resp := do(t, "POST", f.srv.URL+"/v1/analyze", "audio/wav", burstsWAV(t, 1.8, 0.2, 0.6, 1.0, 1.4))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody[api.AnalyzeResponse](t, resp)
	if len(body.Pivot.Blocks) != 1 {
		t.Fatalf("blocks = %d, want 1", len(body.Pivot.Blocks))
	}
	n := body.Pivot.Blocks[0].SyllableTarget
	if n == 0 || n != len(body.Pivot.Blocks[0].Segments) {
		t.Errorf("syllable_target = %d with %d segments", n, len(body.Pivot.Blocks[0].Segments))
	}
	if body.Metadata.SyllableTarget != n {
		t.Errorf("metadata.syllable_target = %d, want %d", body.Metadata.SyllableTarget, n)
	}
	if math.Abs(body.Pivot.Meta.Duration-1.8) > 0.01 {
		t.Errorf("meta.duration = %v, want 1.8", body.Pivot.Meta.Duration)
	}
}

func TestAnalyze_BadInput(t *testing.T) {
	t.Parallel()
	f := newServer(t, false, api.WithMaxUploadBytes(1024))

	tests := []struct {
		name string
		body []byte
		want int
	}{
		{name: "empty", body: nil, want: http.StatusBadRequest},
		{name: "not a wav", body: []byte("definitely not RIFF data"), want: http.StatusBadRequest},
		{name: "too large", body: burstsWAV(t, 1, 0.2), want: http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp := do(t, "POST", f.srv.URL+"/v1/analyze", "audio/wav", tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			body := decodeBody[map[string]string](t, resp)
			if body["error"] == "" {
				t.Error("error body is empty")
			}
		})
	}
}

const fourSegmentGrid = `{"tempo": 120, "duration": 2, "segments": [
	{"start": 0.0, "duration": 0.4, "is_stressed": true,  "is_sustained": false, "pitch_contour": "mid", "observed_phonemes": ""},
	{"start": 0.5, "duration": 0.4, "is_stressed": false, "is_sustained": false, "pitch_contour": "mid", "observed_phonemes": ""},
	{"start": 1.0, "duration": 0.4, "is_stressed": true,  "is_sustained": false, "pitch_contour": "mid", "observed_phonemes": ""},
	{"start": 1.5, "duration": 0.4, "is_stressed": false, "is_sustained": false, "pitch_contour": "mid", "observed_phonemes": ""}
]}`

func TestValidate(t *testing.T) {
	t.Parallel()
	f := newServer(t, false)

	req := `{"grid": ` + fourSegmentGrid + `, "candidates": ["The machine", "Monster City"]}`
	resp := do(t, "POST", f.srv.URL+"/v1/validate", "application/json", []byte(req))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody[api.ValidateResponse](t, resp)
	if len(body.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(body.Results))
	}
	if body.Results[0].IsValid {
		t.Error(`"The machine" should not fit four segments`)
	}
	if !body.Results[1].IsValid || body.Results[1].GrooveScore != 1.0 {
		t.Errorf(`"Monster City" = %+v, want valid with groove 1.0`, body.Results[1])
	}
	if !body.HasWinner || body.WinnerIndex != 1 || body.Winner == nil || body.Winner.Text != "Monster City" {
		t.Errorf("winner = %+v (index %d)", body.Winner, body.WinnerIndex)
	}
}

func TestValidate_Pivot(t *testing.T) {
	t.Parallel()
	f := newServer(t, false)

	var grid rhythm.Grid
	if err := json.Unmarshal([]byte(fourSegmentGrid), &grid); err != nil {
		t.Fatalf("unmarshal grid: %v", err)
	}
	payload, err := json.Marshal(api.ValidateRequest{
		Pivot:      ptr(rhythm.NewPivot(grid)),
		Candidates: []string{"Monster City"},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp := do(t, "POST", f.srv.URL+"/v1/validate", "application/json", payload)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body := decodeBody[api.ValidateResponse](t, resp); !body.HasWinner {
		t.Errorf("expected a winner, got %+v", body)
	}
}

func TestValidate_BadRequest(t *testing.T) {
	t.Parallel()
	f := newServer(t, false)

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"grid": `},
		{name: "no grid", body: `{"candidates": ["hello"]}`},
		{name: "no candidates", body: `{"grid": ` + fourSegmentGrid + `}`},
		{name: "block out of range", body: `{"pivot": {"meta": {}, "blocks": []}, "block": 2, "candidates": ["a"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp := do(t, "POST", f.srv.URL+"/v1/validate", "application/json", []byte(tt.body))
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestGenerateAndRuns(t *testing.T) {
	t.Parallel()
	f := newServer(t, true)

	resp := do(t, "POST", f.srv.URL+"/v1/generate?source=take1.wav", "audio/wav", burstsWAV(t, 1.8, 0.2, 0.6, 1.0, 1.4))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	res := decodeBody[pipeline.Result](t, resp)
	if res.ID == "" || res.Source != "take1.wav" {
		t.Errorf("result id/source = %q/%q", res.ID, res.Source)
	}
	if len(res.Candidates) != len(generate.MockCandidates) {
		t.Errorf("candidates = %d, want %d", len(res.Candidates), len(generate.MockCandidates))
	}
	if len(res.Validations) != len(res.Candidates) {
		t.Errorf("validations = %d, want %d", len(res.Validations), len(res.Candidates))
	}

	got := do(t, "GET", f.srv.URL+"/v1/runs/"+res.ID, "", nil)
	if got.StatusCode != http.StatusOK {
		t.Fatalf("GET run status = %d, want 200", got.StatusCode)
	}
	stored := decodeBody[pipeline.Result](t, got)
	if stored.ID != res.ID || stored.Metadata.SyllableTarget != res.Metadata.SyllableTarget {
		t.Errorf("stored run = %+v, want id %q", stored, res.ID)
	}

	list := do(t, "GET", f.srv.URL+"/v1/runs?limit=5", "", nil)
	if list.StatusCode != http.StatusOK {
		t.Fatalf("GET runs status = %d, want 200", list.StatusCode)
	}
	if runs := decodeBody[[]pipeline.Result](t, list); len(runs) != 1 {
		t.Errorf("runs = %d, want 1", len(runs))
	}

	if missing := do(t, "GET", f.srv.URL+"/v1/runs/does-not-exist", "", nil); missing.StatusCode != http.StatusNotFound {
		t.Errorf("missing run status = %d, want 404", missing.StatusCode)
	}
	if bad := do(t, "GET", f.srv.URL+"/v1/runs?limit=abc", "", nil); bad.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", bad.StatusCode)
	}
}

func TestRuns_StoreDisabled(t *testing.T) {
	t.Parallel()
	f := newServer(t, false)

	for _, path := range []string{"/v1/runs", "/v1/runs/abc"} {
		resp := do(t, "GET", f.srv.URL+path, "", nil)
		if resp.StatusCode != http.StatusNotImplemented {
			t.Errorf("GET %s status = %d, want 501", path, resp.StatusCode)
		}
		body := decodeBody[map[string]string](t, resp)
		if !strings.Contains(body["error"], "disabled") {
			t.Errorf("GET %s error = %q", path, body["error"])
		}
	}
}

func ptr[T any](v T) *T { return &v }
