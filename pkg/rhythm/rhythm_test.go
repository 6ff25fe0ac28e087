package rhythm_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/MrWong99/flowlyrics/pkg/rhythm"
)

func TestGrid_StressPattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		flags []bool
		want  string
	}{
		{"empty", nil, ""},
		{"single stressed", []bool{true}, "DA"},
		{"alternating", []bool{true, false, true, false}, "DA-da-DA-da"},
		{"upbeat", []bool{false, true, false, true}, "da-DA-da-DA"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var g rhythm.Grid
			for i, f := range tt.flags {
				g.Segments = append(g.Segments, rhythm.Segment{Start: float64(i) * 0.2, Duration: 0.2, IsStressed: f})
			}
			if got := g.StressPattern(); got != tt.want {
				t.Errorf("StressPattern() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGrid_IsOrdered(t *testing.T) {
	t.Parallel()

	ordered := rhythm.Grid{Segments: []rhythm.Segment{
		{Start: 0, Duration: 0.25},
		{Start: 0.25, Duration: 0.3},
		{Start: 0.6, Duration: 0.1},
	}}
	if !ordered.IsOrdered(1e-9) {
		t.Error("IsOrdered() = false for contiguous segments, want true")
	}

	overlapping := rhythm.Grid{Segments: []rhythm.Segment{
		{Start: 0, Duration: 0.5},
		{Start: 0.3, Duration: 0.2},
	}}
	if overlapping.IsOrdered(1e-9) {
		t.Error("IsOrdered() = true for overlapping segments, want false")
	}
}

func TestGrid_HasPhonemes(t *testing.T) {
	t.Parallel()

	g := rhythm.Grid{Segments: []rhythm.Segment{{ObservedPhonemes: "  "}, {}}}
	if g.HasPhonemes() {
		t.Error("HasPhonemes() = true for blank phoneme strings, want false")
	}
	g.Segments[1].ObservedPhonemes = "m æ n"
	if !g.HasPhonemes() {
		t.Error("HasPhonemes() = false, want true")
	}
}

func TestSegment_JSONRoundsToMilliseconds(t *testing.T) {
	t.Parallel()

	s := rhythm.Segment{
		Start:        1.23456,
		Duration:     0.20049,
		IsStressed:   true,
		PitchContour: rhythm.PitchRising,
	}
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got := string(data)
	for _, want := range []string{`"start":1.235`, `"duration":0.2`, `"pitch_contour":"rising"`, `"observed_phonemes":""`} {
		if !strings.Contains(got, want) {
			t.Errorf("Marshal() = %s, missing %s", got, want)
		}
	}

	var back rhythm.Segment
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.Start != 1.235 || !back.IsStressed || back.PitchContour != rhythm.PitchRising {
		t.Errorf("Unmarshal() = %+v", back)
	}
}

func TestSegment_UnmarshalRejectsUnknownContour(t *testing.T) {
	t.Parallel()

	var s rhythm.Segment
	err := json.Unmarshal([]byte(`{"start":0,"duration":0.2,"pitch_contour":"wobbly"}`), &s)
	if err == nil {
		t.Fatal("expected error for unknown pitch contour, got nil")
	}
}

func TestGrid_JSONEmptySegmentsIsArray(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(rhythm.Grid{Tempo: 120})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `"segments":[]`) {
		t.Errorf("Marshal() = %s, want empty segments array", data)
	}
}

func TestNewPivot(t *testing.T) {
	t.Parallel()

	g := rhythm.Grid{
		Tempo:    139.6789,
		Duration: 3.14159,
		Segments: []rhythm.Segment{{Start: 0, Duration: 0.2}, {Start: 0.2, Duration: 0.2}},
	}
	p := rhythm.NewPivot(g)
	if p.Meta.Tempo != 139.68 || p.Meta.Duration != 3.14 {
		t.Errorf("Meta = %+v, want tempo 139.68 duration 3.14", p.Meta)
	}
	if len(p.Blocks) != 1 {
		t.Fatalf("len(Blocks) = %d, want 1", len(p.Blocks))
	}
	if p.Blocks[0].ID != 1 || p.Blocks[0].SyllableTarget != 2 {
		t.Errorf("Block = %+v", p.Blocks[0])
	}

	back := p.Blocks[0].Grid(p.Meta)
	if back.Len() != 2 || back.Tempo != 139.68 {
		t.Errorf("Block.Grid() = %+v", back)
	}
}

func TestAnalysisConfig_WithDefaults(t *testing.T) {
	t.Parallel()

	c := rhythm.AnalysisConfig{Onset: rhythm.OnsetConfig{Delta: 0.1}}.WithDefaults()
	if c.Onset.Delta != 0.1 {
		t.Errorf("Onset.Delta = %v, want explicit 0.1 preserved", c.Onset.Delta)
	}
	d := rhythm.DefaultAnalysisConfig()
	if c.Version != rhythm.ConfigVersion {
		t.Errorf("Version = %d, want %d", c.Version, rhythm.ConfigVersion)
	}
	if c.Segment != d.Segment {
		t.Errorf("Segment = %+v, want defaults %+v", c.Segment, d.Segment)
	}
	if c.Prosody != d.Prosody {
		t.Errorf("Prosody = %+v, want defaults %+v", c.Prosody, d.Prosody)
	}
}

func TestAnalysisConfig_WithDefaultsZeroAndNegative(t *testing.T) {
	t.Parallel()

	d := rhythm.DefaultAnalysisConfig()
	in := d
	in.Onset.Wait = 0
	in.Onset.Delta = 0
	in.Onset.PreMax = -3
	in.Onset.HopLength = 0
	in.Segment.EdgeGuard = 0
	in.Segment.ValleyDepth = -0.2
	in.Prosody.StressWindow = 0
	in.Prosody.PitchHop = -1

	c := in.WithDefaults()
	if c.Onset.Wait != 0 || c.Onset.Delta != 0 {
		t.Errorf("Onset wait/delta = %d/%v, want explicit zeros kept", c.Onset.Wait, c.Onset.Delta)
	}
	if c.Segment.EdgeGuard != 0 {
		t.Errorf("Segment.EdgeGuard = %v, want explicit zero kept", c.Segment.EdgeGuard)
	}
	if c.Prosody.StressWindow != 0 {
		t.Errorf("Prosody.StressWindow = %d, want explicit zero kept", c.Prosody.StressWindow)
	}
	if c.Onset.PreMax != d.Onset.PreMax {
		t.Errorf("Onset.PreMax = %d, want default %d for a negative value", c.Onset.PreMax, d.Onset.PreMax)
	}
	if c.Onset.HopLength != d.Onset.HopLength {
		t.Errorf("Onset.HopLength = %d, want default %d for zero", c.Onset.HopLength, d.Onset.HopLength)
	}
	if c.Segment.ValleyDepth != d.Segment.ValleyDepth {
		t.Errorf("Segment.ValleyDepth = %v, want default %v", c.Segment.ValleyDepth, d.Segment.ValleyDepth)
	}
	if c.Prosody.PitchHop != d.Prosody.PitchHop {
		t.Errorf("Prosody.PitchHop = %d, want default %d", c.Prosody.PitchHop, d.Prosody.PitchHop)
	}
}
