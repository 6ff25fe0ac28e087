package generate

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/MrWong99/flowlyrics/pkg/rhythm"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// Description is a block's rhythm rendered as prompt text.
type Description struct {
	SyllableCount      int
	StressPattern      string
	SustainConstraints string
	PitchGuidance      string
	PhoneticHints      string
	CandidateCount     int
}

// Describe renders block for the lyric prompt, asking for count candidates.
func Describe(block rhythm.Block, count int) Description {
	flags := make([]bool, len(block.Segments))
	for i, s := range block.Segments {
		flags[i] = s.IsStressed
	}
	return Description{
		SyllableCount:      block.SyllableTarget,
		StressPattern:      rhythm.StressPattern(flags),
		SustainConstraints: sustainConstraints(block.Segments),
		PitchGuidance:      pitchGuidance(block.Segments),
		PhoneticHints:      phoneticHints(block.Segments),
		CandidateCount:     count,
	}
}

func sustainConstraints(segs []rhythm.Segment) string {
	var lines []string
	for i, s := range segs {
		if s.IsSustained {
			lines = append(lines, fmt.Sprintf(
				"Syllable %d is long (sustained), use open vowels like 'fly', 'go', 'day', 'way', 'sky'.", i+1))
		}
	}
	if len(lines) == 0 {
		return "No sustained notes. All syllables are short."
	}
	return strings.Join(lines, "\n")
}

func pitchGuidance(segs []rhythm.Segment) string {
	if len(segs) == 0 {
		return "No pitch data available."
	}
	var lines []string
	for i, s := range segs {
		n := i + 1
		switch s.PitchContour {
		case rhythm.PitchHigh:
			lines = append(lines, fmt.Sprintf("- Syllable %d is **high-pitch**. Use bright, open vowels (EE, AY, OH).", n))
		case rhythm.PitchLow:
			lines = append(lines, fmt.Sprintf("- Syllable %d is **low-pitch**. Use deep vowels (OO, AW, O).", n))
		case rhythm.PitchRising:
			lines = append(lines, fmt.Sprintf("- Syllable %d **rises** in pitch. Build energy into the word.", n))
		case rhythm.PitchFalling:
			lines = append(lines, fmt.Sprintf("- Syllable %d **falls** in pitch. Use it for emphasis or resolution.", n))
		}
	}
	if len(lines) == 0 {
		return "All syllables are **mid-pitch**. Standard syllable placement."
	}
	return strings.Join(lines, "\n")
}

func phoneticHints(segs []rhythm.Segment) string {
	if len(segs) == 0 {
		return "No phonetic data available."
	}
	var lines []string
	for i, s := range segs {
		if p := strings.TrimSpace(s.ObservedPhonemes); p != "" {
			lines = append(lines, fmt.Sprintf("- Syllable %d sounds like: **/%s/**", i+1, p))
		}
	}
	if len(lines) == 0 {
		return "No clear phonetic patterns detected. Generate based on rhythm only."
	}
	return strings.Join(lines, "\n")
}

// BuildPrompt renders the system and user messages for d.
func BuildPrompt(d Description) (system, user string, err error) {
	var sb, ub bytes.Buffer
	if err := templates.ExecuteTemplate(&sb, "system.tmpl", d); err != nil {
		return "", "", fmt.Errorf("generate: render system prompt: %w", err)
	}
	if err := templates.ExecuteTemplate(&ub, "user.tmpl", d); err != nil {
		return "", "", fmt.Errorf("generate: render user prompt: %w", err)
	}
	return strings.TrimSpace(sb.String()), strings.TrimSpace(ub.String()), nil
}
