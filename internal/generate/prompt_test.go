package generate_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/flowlyrics/internal/generate"
	"github.com/MrWong99/flowlyrics/pkg/rhythm"
)

func testBlock() rhythm.Block {
	return rhythm.Block{
		ID:             1,
		SyllableTarget: 3,
		Segments: []rhythm.Segment{
			{Start: 0.0, Duration: 0.2, IsStressed: true, PitchContour: rhythm.PitchHigh},
			{Start: 0.3, Duration: 0.6, IsSustained: true, PitchContour: rhythm.PitchMid, ObservedPhonemes: "ɑ"},
			{Start: 1.0, Duration: 0.2, IsStressed: true, PitchContour: rhythm.PitchRising},
		},
	}
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	d := generate.Describe(testBlock(), 5)
	if d.SyllableCount != 3 {
		t.Errorf("SyllableCount = %d, want 3", d.SyllableCount)
	}
	if d.StressPattern != "DA-da-DA" {
		t.Errorf("StressPattern = %q, want DA-da-DA", d.StressPattern)
	}
	if d.CandidateCount != 5 {
		t.Errorf("CandidateCount = %d, want 5", d.CandidateCount)
	}
	wantSustain := "Syllable 2 is long (sustained), use open vowels like 'fly', 'go', 'day', 'way', 'sky'."
	if d.SustainConstraints != wantSustain {
		t.Errorf("SustainConstraints = %q, want %q", d.SustainConstraints, wantSustain)
	}
	for _, want := range []string{
		"- Syllable 1 is **high-pitch**.",
		"- Syllable 3 **rises** in pitch.",
	} {
		if !strings.Contains(d.PitchGuidance, want) {
			t.Errorf("PitchGuidance = %q, missing %q", d.PitchGuidance, want)
		}
	}
	if strings.Contains(d.PitchGuidance, "Syllable 2") {
		t.Errorf("PitchGuidance mentions mid-pitch syllable: %q", d.PitchGuidance)
	}
	if d.PhoneticHints != "- Syllable 2 sounds like: **/ɑ/**" {
		t.Errorf("PhoneticHints = %q", d.PhoneticHints)
	}
}

func TestDescribe_Fallbacks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		segs        []rhythm.Segment
		wantSustain string
		wantPitch   string
		wantHints   string
	}{
		{
			name:        "flat short unannotated",
			segs:        []rhythm.Segment{{PitchContour: rhythm.PitchMid}, {PitchContour: rhythm.PitchMid}},
			wantSustain: "No sustained notes. All syllables are short.",
			wantPitch:   "All syllables are **mid-pitch**. Standard syllable placement.",
			wantHints:   "No clear phonetic patterns detected. Generate based on rhythm only.",
		},
		{
			name:        "no segments",
			wantSustain: "No sustained notes. All syllables are short.",
			wantPitch:   "No pitch data available.",
			wantHints:   "No phonetic data available.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := generate.Describe(rhythm.Block{Segments: tt.segs, SyllableTarget: len(tt.segs)}, 5)
			if d.SustainConstraints != tt.wantSustain {
				t.Errorf("SustainConstraints = %q, want %q", d.SustainConstraints, tt.wantSustain)
			}
			if d.PitchGuidance != tt.wantPitch {
				t.Errorf("PitchGuidance = %q, want %q", d.PitchGuidance, tt.wantPitch)
			}
			if d.PhoneticHints != tt.wantHints {
				t.Errorf("PhoneticHints = %q, want %q", d.PhoneticHints, tt.wantHints)
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	system, user, err := generate.BuildPrompt(generate.Describe(testBlock(), 4))
	if err != nil {
		t.Fatalf("BuildPrompt: %v", err)
	}
	if !strings.Contains(system, `{"candidates"`) {
		t.Errorf("system prompt does not describe the reply shape:\n%s", system)
	}
	for _, want := range []string{
		"Write 4 different lyric lines",
		"Syllable count: 3",
		"Stress pattern: DA-da-DA",
		"Syllable 2 is long (sustained)",
		"**high-pitch**",
		"**/ɑ/**",
	} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing %q:\n%s", want, user)
		}
	}
}
