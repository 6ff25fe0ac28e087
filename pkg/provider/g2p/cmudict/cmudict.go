// Package cmudict implements g2p.Converter on top of a pronouncing dictionary
// in CMU Pronouncing Dictionary format.
//
// Both the classic upper-case layout ("WORD  W ER1 D") and the lower-case
// cmudict.dict layout ("word w er1 d") are accepted. Alternate pronunciations
// ("word(2) ...") are skipped so the first listed pronunciation wins. Lines
// starting with ";;;" or "#" are comments.
//
// A small seed lexicon is embedded so the converter works without any file.
// Words missing from the dictionary are approximated by spelling rules unless
// guessing is disabled with [WithoutGuessing]; numbers are read digit by digit.
package cmudict

import (
	"bufio"
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/MrWong99/flowlyrics/pkg/provider/g2p"
)

//go:embed seed.dict
var seed string

var digitWords = [...]string{"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine"}

// Dictionary is a g2p.Converter backed by an in-memory pronouncing dictionary.
// It is immutable after construction and safe for concurrent use.
type Dictionary struct {
	entries map[string][]string
	guess   bool
}

// Ensure Dictionary implements g2p.Converter at compile time.
var _ g2p.Converter = (*Dictionary)(nil)

// Option is a functional option for Dictionary.
type Option func(*Dictionary)

// WithoutGuessing makes unknown words contribute no phonemes instead of a
// spelling-rule approximation.
func WithoutGuessing() Option {
	return func(d *Dictionary) { d.guess = false }
}

// New returns a Dictionary holding only the embedded seed lexicon.
func New(opts ...Option) (*Dictionary, error) {
	return Load(nil, opts...)
}

// Load returns a Dictionary holding the seed lexicon plus every entry read
// from r. Entries from r override seed entries. r may be nil.
func Load(r io.Reader, opts ...Option) (*Dictionary, error) {
	d := &Dictionary{entries: make(map[string][]string, 256), guess: true}
	for _, o := range opts {
		o(d)
	}
	if err := d.parse(strings.NewReader(seed)); err != nil {
		return nil, fmt.Errorf("cmudict: seed lexicon: %w", err)
	}
	if r != nil {
		if err := d.parse(r); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Open loads the dictionary file at path on top of the seed lexicon.
func Open(path string, opts ...Option) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cmudict: open %q: %w", path, err)
	}
	defer f.Close()
	return Load(f, opts...)
}

func (d *Dictionary) parse(r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if i := strings.Index(text, "#"); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
		if text == "" || strings.HasPrefix(text, ";;;") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 2 {
			return fmt.Errorf("cmudict: line %d: entry %q has no phonemes", line, fields[0])
		}
		word := strings.ToLower(fields[0])
		if strings.HasSuffix(word, ")") && strings.Contains(word, "(") {
			continue
		}
		phones := make([]string, len(fields)-1)
		for i, f := range fields[1:] {
			if !validToken(f) {
				return fmt.Errorf("cmudict: line %d: invalid phoneme %q", line, f)
			}
			phones[i] = strings.ToUpper(f)
		}
		d.entries[word] = phones
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("cmudict: read: %w", err)
	}
	return nil
}

func validToken(tok string) bool {
	if tok == "" {
		return false
	}
	for i, r := range tok {
		if unicode.IsLetter(r) {
			continue
		}
		if i == len(tok)-1 && r >= '0' && r <= '2' {
			continue
		}
		return false
	}
	return true
}

// Len returns the number of words in the dictionary.
func (d *Dictionary) Len() int {
	return len(d.entries)
}

// Lookup returns the dictionary pronunciation of word, ignoring case.
func (d *Dictionary) Lookup(word string) ([]string, bool) {
	p, ok := d.entries[strings.ToLower(word)]
	if !ok {
		return nil, false
	}
	return append([]string(nil), p...), true
}

// Phonemes implements g2p.Converter.
func (d *Dictionary) Phonemes(ctx context.Context, text string) ([]string, error) {
	var out []string
	for _, w := range g2p.Words(text) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, d.word(w)...)
	}
	return out, nil
}

func (d *Dictionary) word(w string) []string {
	if p, ok := d.entries[w]; ok {
		return p
	}
	if isDigits(w) {
		var out []string
		for _, r := range w {
			out = append(out, d.word(digitWords[r-'0'])...)
		}
		return out
	}
	bare := strings.ReplaceAll(w, "'", "")
	if p, ok := d.entries[bare]; ok {
		return p
	}
	if !d.guess {
		return nil
	}
	return Guess(bare)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
