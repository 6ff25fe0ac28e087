package g2p_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/flowlyrics/pkg/provider/g2p"
)

func TestStress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		level  int
		stress bool
	}{
		{"AA1", 1, true},
		{"IY0", 0, true},
		{"EH2", 2, true},
		{"K", 0, false},
		{"", 0, false},
		{"AH3", 0, false},
	}
	for _, tt := range tests {
		level, ok := g2p.Stress(tt.in)
		if level != tt.level || ok != tt.stress {
			t.Errorf("Stress(%q) = %d, %v; want %d, %v", tt.in, level, ok, tt.level, tt.stress)
		}
	}
}

func TestIsVowel(t *testing.T) {
	t.Parallel()

	for _, v := range []string{"AA1", "ER0", "uw", "OY2"} {
		if !g2p.IsVowel(v) {
			t.Errorf("IsVowel(%q) = false, want true", v)
		}
	}
	for _, c := range []string{"K", "NG", "HH", ""} {
		if g2p.IsVowel(c) {
			t.Errorf("IsVowel(%q) = true, want false", c)
		}
	}
}

func TestWords(t *testing.T) {
	t.Parallel()

	got := g2p.Words("Don't stop, 'til the  BEAT drops!!")
	want := []string{"don't", "stop", "til", "the", "beat", "drops"}
	if !slices.Equal(got, want) {
		t.Errorf("Words() = %q, want %q", got, want)
	}
	if got := g2p.Words("  ... "); len(got) != 0 {
		t.Errorf("Words(punctuation) = %q, want none", got)
	}
}
