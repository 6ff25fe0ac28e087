// Package whisper provides word recognizers backed by whisper.cpp.
//
// Server talks to a running whisper-server binary over its REST API
// (POST /inference) and asks for verbose JSON so that every recognized word
// comes back with its time span. Native links whisper.cpp in through its Go
// bindings and reads word timings from single-word segments.
//
// Both resample the track to 16 kHz mono before inference, which is what
// whisper models are trained on.
//
// Usage:
//
//	s, err := whisper.New("http://localhost:8080", whisper.WithLanguage("en"))
//	words, err := s.RecognizeWords(ctx, buf.Samples, buf.SampleRate)
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/flowlyrics/pkg/audio"
	"github.com/MrWong99/flowlyrics/pkg/provider/phonetic"
)

const (
	// SampleRate is the input rate whisper models expect.
	SampleRate = 16000

	defaultLanguage = "en"
	defaultTimeout  = 60 * time.Second
)

// Compile-time assertion that Server implements phonetic.WordRecognizer.
var _ phonetic.WordRecognizer = (*Server)(nil)

// Option is a functional option for configuring a Server.
type Option func(*Server)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en"). When empty the server uses whichever model it was
// started with.
func WithModel(model string) Option {
	return func(s *Server) { s.model = model }
}

// WithLanguage sets the language code sent to the server. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(s *Server) { s.language = lang }
}

// WithHTTPClient replaces the HTTP client. The default client has a 60 s
// timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Server) { s.httpClient = c }
}

// Server implements phonetic.WordRecognizer against a whisper.cpp HTTP
// server. It holds no per-request state and is safe for concurrent use.
type Server struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a Server that talks to the whisper.cpp server at serverURL
// (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Server, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	s := &Server{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// verboseResponse is the subset of whisper-server's verbose_json output that
// carries timing.
type verboseResponse struct {
	Text     string           `json:"text"`
	Duration float64          `json:"duration"`
	Segments []verboseSegment `json:"segments"`
}

type verboseSegment struct {
	Start float64       `json:"start"`
	End   float64       `json:"end"`
	Text  string        `json:"text"`
	Words []verboseWord `json:"words"`
}

type verboseWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// RecognizeWords uploads the track as a 16 kHz WAV file and returns the
// recognized words in time order.
func (s *Server) RecognizeWords(ctx context.Context, samples []float32, sampleRate int) ([]phonetic.Word, error) {
	if len(samples) == 0 {
		return nil, nil
	}
	mono, err := audio.Resample(samples, sampleRate, SampleRate)
	if err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}
	wav, err := audio.EncodeBytes(audio.Buffer{Samples: mono, SampleRate: SampleRate})
	if err != nil {
		return nil, fmt.Errorf("whisper: encode wav: %w", err)
	}

	data, err := s.infer(ctx, wav)
	if err != nil {
		return nil, err
	}

	var resp verboseResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	duration := float64(len(mono)) / SampleRate
	return resp.words(duration), nil
}

// infer POSTs wav to the /inference endpoint as multipart/form-data and
// returns the raw response body.
func (s *Server) infer(ctx context.Context, wav []byte) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return nil, fmt.Errorf("whisper: write wav data: %w", err)
	}

	fields := [][2]string{
		{"response_format", "verbose_json"},
		{"language", s.language},
		{"model", s.model},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("whisper: write %s field: %w", f[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serverURL+"/inference", &body)
	if err != nil {
		return nil, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("whisper: read response body: %w", err)
	}
	return data, nil
}

// words flattens the response into timed words. Segments without word
// timings have their text spread evenly over the segment span. A response
// with only top-level text is spread over the whole track.
func (r verboseResponse) words(duration float64) []phonetic.Word {
	segs := r.Segments
	if len(segs) == 0 && strings.TrimSpace(r.Text) != "" {
		if r.Duration > 0 {
			duration = r.Duration
		}
		segs = []verboseSegment{{Start: 0, End: duration, Text: r.Text}}
	}

	var out []phonetic.Word
	for _, seg := range segs {
		if len(seg.Words) > 0 {
			for _, w := range seg.Words {
				if text := strings.TrimSpace(w.Word); text != "" {
					out = append(out, phonetic.Word{Text: text, Start: w.Start, End: w.End})
				}
			}
			continue
		}
		out = append(out, spread(strings.Fields(seg.Text), seg.Start, seg.End)...)
	}
	return out
}

// spread assigns equal time slices of [start, end] to words.
func spread(words []string, start, end float64) []phonetic.Word {
	if len(words) == 0 {
		return nil
	}
	step := (end - start) / float64(len(words))
	out := make([]phonetic.Word, len(words))
	for i, w := range words {
		s := start + float64(i)*step
		out[i] = phonetic.Word{Text: w, Start: s, End: s + step}
	}
	return out
}

// Probe reports whether a whisper.cpp server answers at serverURL. Any
// response below HTTP 500 counts as reachable.
func Probe(ctx context.Context, serverURL string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(serverURL, "/")+"/", nil)
	if err != nil {
		return fmt.Errorf("whisper: create probe request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("whisper: probe %s: %w", serverURL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("whisper: probe %s: HTTP %d", serverURL, resp.StatusCode)
	}
	return nil
}
