package phonetic_test

import (
	"context"
	"errors"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/flowlyrics/internal/observe"
	"github.com/MrWong99/flowlyrics/pkg/audio"
	"github.com/MrWong99/flowlyrics/pkg/provider/g2p/cmudict"
	"github.com/MrWong99/flowlyrics/pkg/provider/phonetic"
	"github.com/MrWong99/flowlyrics/pkg/provider/phonetic/mock"
	"github.com/MrWong99/flowlyrics/pkg/rhythm"
)

const rate = 1000

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func buffer(seconds float64) audio.Buffer {
	x := make([]float32, int(seconds*rate))
	for i := range x {
		x[i] = 0.5
	}
	return audio.Buffer{Samples: x, SampleRate: rate}
}

func segs(spans ...[2]float64) []rhythm.Segment {
	out := make([]rhythm.Segment, len(spans))
	for i, s := range spans {
		out[i] = rhythm.Segment{Start: s[0], Duration: s[1], PitchContour: rhythm.PitchMid}
	}
	return out
}

func TestWindowAnnotator_PaddingAndClamping(t *testing.T) {
	t.Parallel()

	rec := &mock.WindowRecognizer{Responses: []string{"m ɑ", "n s"}}
	a := phonetic.NewWindowAnnotator(rec, phonetic.WithMetrics(testMetrics(t)))
	in := segs([2]float64{0, 0.2}, [2]float64{0.5, 0.2})

	out, err := a.Annotate(context.Background(), buffer(1), in)
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	if out[0].ObservedPhonemes != "m ɑ" || out[1].ObservedPhonemes != "n s" {
		t.Errorf("phonemes = %q, %q", out[0].ObservedPhonemes, out[1].ObservedPhonemes)
	}
	if in[0].ObservedPhonemes != "" {
		t.Error("input segments were mutated")
	}
	// First window is clamped at 0: 0.2 s + 50 ms right padding.
	if got := rec.Calls[0].Samples; got != 250 {
		t.Errorf("first window = %d samples, want 250", got)
	}
	// Second window is padded on both sides.
	if got := rec.Calls[1].Samples; got != 300 {
		t.Errorf("second window = %d samples, want 300", got)
	}
}

func TestWindowAnnotator_SkipsTinySegments(t *testing.T) {
	t.Parallel()

	rec := &mock.WindowRecognizer{Responses: []string{"a"}}
	a := phonetic.NewWindowAnnotator(rec, phonetic.WithMetrics(testMetrics(t)))
	out, err := a.Annotate(context.Background(), buffer(1), segs([2]float64{0.1, 0.01}, [2]float64{0.3, 0.1}))
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	if rec.CallCount() != 1 {
		t.Errorf("calls = %d, want 1", rec.CallCount())
	}
	if out[0].ObservedPhonemes != "" || out[1].ObservedPhonemes != "a" {
		t.Errorf("phonemes = %q, %q", out[0].ObservedPhonemes, out[1].ObservedPhonemes)
	}
}

func TestWindowAnnotator_Retry(t *testing.T) {
	t.Parallel()

	rec := &mock.WindowRecognizer{Responses: []string{"", "i"}}
	a := phonetic.NewWindowAnnotator(rec, phonetic.WithMetrics(testMetrics(t)), phonetic.WithRetry(0))
	out, err := a.Annotate(context.Background(), buffer(1), segs([2]float64{0.4, 0.2}))
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	if out[0].ObservedPhonemes != "i" {
		t.Errorf("phonemes = %q, want the retry result", out[0].ObservedPhonemes)
	}
	if rec.CallCount() != 2 {
		t.Fatalf("calls = %d, want 2", rec.CallCount())
	}
	if rec.Calls[1].Samples != 400 {
		t.Errorf("retry window = %d samples, want 400 with 100 ms padding", rec.Calls[1].Samples)
	}
}

func TestWindowAnnotator_ErrorsDegrade(t *testing.T) {
	t.Parallel()

	rec := &mock.WindowRecognizer{
		Responses: []string{"", "k"},
		Errs:      []error{errors.New("boom")},
	}
	a := phonetic.NewWindowAnnotator(rec, phonetic.WithMetrics(testMetrics(t)))
	out, err := a.Annotate(context.Background(), buffer(1), segs([2]float64{0, 0.2}, [2]float64{0.5, 0.2}))
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	if out[0].ObservedPhonemes != "" || out[1].ObservedPhonemes != "k" {
		t.Errorf("phonemes = %q, %q", out[0].ObservedPhonemes, out[1].ObservedPhonemes)
	}
}

func TestWindowAnnotator_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := phonetic.NewWindowAnnotator(&mock.WindowRecognizer{}, phonetic.WithMetrics(testMetrics(t)))
	if _, err := a.Annotate(ctx, buffer(1), segs([2]float64{0, 0.2})); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestWordAnnotator_PositionalAlignment(t *testing.T) {
	t.Parallel()

	d, err := cmudict.New()
	if err != nil {
		t.Fatalf("cmudict.New: %v", err)
	}
	tests := []struct {
		name  string
		words []phonetic.Word
		n     int
		want  []string
	}{
		{
			name:  "exact",
			words: []phonetic.Word{{Text: "city", Start: 0.5, End: 0.9}, {Text: "monster", Start: 0, End: 0.5}},
			n:     4,
			want:  []string{"m ɑ n s t", "ɝ", "s ɪ t", "i"},
		},
		{
			name:  "fewer syllables than segments",
			words: []phonetic.Word{{Text: "man"}},
			n:     3,
			want:  []string{"m æ n", "", ""},
		},
		{
			name:  "more syllables than segments",
			words: []phonetic.Word{{Text: "monster", Start: 0}, {Text: "city", Start: 1}},
			n:     1,
			want:  []string{"m ɑ n s t"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in := make([][2]float64, tt.n)
			for i := range in {
				in[i] = [2]float64{float64(i) * 0.25, 0.25}
			}
			a := phonetic.NewWordAnnotator(&mock.WordRecognizer{Words: tt.words}, d, phonetic.WithMetrics(testMetrics(t)))
			out, err := a.Annotate(context.Background(), buffer(2), segs(in...))
			if err != nil {
				t.Fatalf("Annotate: %v", err)
			}
			for i, want := range tt.want {
				if out[i].ObservedPhonemes != want {
					t.Errorf("segment %d = %q, want %q", i, out[i].ObservedPhonemes, want)
				}
			}
		})
	}
}

func TestWordAnnotator_RecognizerErrorDegrades(t *testing.T) {
	t.Parallel()

	d, _ := cmudict.New()
	a := phonetic.NewWordAnnotator(&mock.WordRecognizer{Err: errors.New("server down")}, d, phonetic.WithMetrics(testMetrics(t)))
	out, err := a.Annotate(context.Background(), buffer(1), segs([2]float64{0, 0.3}))
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	if out[0].ObservedPhonemes != "" {
		t.Errorf("phonemes = %q, want empty", out[0].ObservedPhonemes)
	}
}

func TestAnnotate_EmptyInputs(t *testing.T) {
	t.Parallel()

	rec := &mock.WindowRecognizer{}
	a := phonetic.NewWindowAnnotator(rec, phonetic.WithMetrics(testMetrics(t)))
	if out, err := a.Annotate(context.Background(), buffer(1), nil); err != nil || len(out) != 0 {
		t.Errorf("Annotate(no segments) = %v, %v", out, err)
	}
	if _, err := a.Annotate(context.Background(), audio.Buffer{SampleRate: rate}, segs([2]float64{0, 0.2})); err != nil {
		t.Errorf("Annotate(empty buffer): %v", err)
	}
	if rec.CallCount() != 0 {
		t.Errorf("calls = %d, want 0", rec.CallCount())
	}
}
