package generate_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/flowlyrics/internal/generate"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		n       int
		want    []string
	}{
		{
			name:    "plain json",
			content: `{"candidates": ["Riding through the city", "Never looking back now"]}`,
			n:       5,
			want:    []string{"Riding through the city", "Never looking back now"},
		},
		{
			name:    "fenced json with preamble",
			content: "Here you go:\n```json\n{\"candidates\": [\"  Living for the moment  \", \"\"]}\n```\nEnjoy!",
			n:       5,
			want:    []string{"Living for the moment"},
		},
		{
			name:    "trailing comma repaired",
			content: `{"candidates": ["Riding through the city", "Never looking back now",]}`,
			n:       5,
			want:    []string{"Riding through the city", "Never looking back now"},
		},
		{
			name:    "capped",
			content: `{"candidates": ["one line here", "two line here", "three line here"]}`,
			n:       2,
			want:    []string{"one line here", "two line here"},
		},
		{
			name: "line fallback",
			content: "Sure! Here are some lines:\n" +
				"1. numbered lines are dropped\n" +
				"\"Riding through the city\"\n" +
				"- Never looking back now\n" +
				"-\n" +
				"ok\n",
			n:    5,
			want: []string{"Riding through the city", "Never looking back now"},
		},
		{
			name:    "empty candidates",
			content: `{"candidates": []}`,
			n:       5,
			want:    nil,
		},
		{
			name:    "empty reply",
			content: "",
			n:       5,
			want:    nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := generate.Parse(tt.content, tt.n)
			if !slices.Equal(got, tt.want) {
				t.Errorf("Parse() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDedupe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		lines []string
		want  []string
	}{
		{
			name:  "case and punctuation variants",
			lines: []string{"Riding through the city", "riding through the city!", "Never looking back now"},
			want:  []string{"Riding through the city", "Never looking back now"},
		},
		{
			name:  "homophones",
			lines: []string{"Right through the sea", "Write through the see"},
			want:  []string{"Right through the sea"},
		},
		{
			name:  "distinct lines kept",
			lines: []string{"Money on my mind state", "Sky is not the limit"},
			want:  []string{"Money on my mind state", "Sky is not the limit"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := generate.Dedupe(tt.lines); !slices.Equal(got, tt.want) {
				t.Errorf("Dedupe() = %q, want %q", got, tt.want)
			}
		})
	}
}
