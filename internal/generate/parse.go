package generate

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"
	"github.com/kaptinlin/jsonrepair"
)

// DuplicateThreshold is the Jaro-Winkler similarity at or above which two
// lines count as the same candidate.
const DuplicateThreshold = 0.97

var skipLine = regexp.MustCompile(`(?i)^(here|sure|okay|of course)|^` + "```" + `|^\{|^\}|^\d+\.|^-\s*$`)

type candidateReply struct {
	Candidates []string `json:"candidates"`
}

// Parse extracts up to n candidate lines from a model reply, or all of them
// when n is not positive. It reads a
// {"candidates": [...]} object, repairing malformed JSON when it can, and
// otherwise falls back to treating each plausible line as a candidate.
func Parse(content string, n int) []string {
	if lines, ok := parseJSON(content); ok {
		return Cap(clean(lines), n)
	}
	return Cap(parseLines(content), n)
}

func parseJSON(content string) ([]string, bool) {
	s := strings.TrimSpace(content)
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	i, j := strings.Index(s, "{"), strings.LastIndex(s, "}")
	if i < 0 {
		return nil, false
	}
	if j > i {
		s = s[i : j+1]
	} else {
		s = s[i:]
	}

	var reply candidateReply
	if err := json.Unmarshal([]byte(s), &reply); err != nil {
		fixed, rerr := jsonrepair.JSONRepair(s)
		if rerr != nil {
			return nil, false
		}
		if err := json.Unmarshal([]byte(fixed), &reply); err != nil {
			return nil, false
		}
	}
	if len(reply.Candidates) == 0 {
		return nil, false
	}
	return reply.Candidates, true
}

func parseLines(content string) []string {
	var out []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || skipLine.MatchString(line) {
			continue
		}
		line = strings.Trim(line, `"'`)
		line = strings.TrimSpace(strings.TrimPrefix(line, "-"))
		line = strings.Trim(line, `"',`)
		if len(line) > 3 {
			out = append(out, line)
		}
	}
	return out
}

func clean(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// Dedupe drops lines that are near-identical to an earlier line. Two lines
// are duplicates when their lowercase Jaro-Winkler similarity reaches
// [DuplicateThreshold] or when they sound the same word for word.
func Dedupe(lines []string) []string {
	var (
		out    []string
		lowers []string
		sounds = map[string]bool{}
	)
	for _, l := range lines {
		low := strings.ToLower(l)
		dup := false
		for _, prev := range lowers {
			if matchr.JaroWinkler(low, prev, false) >= DuplicateThreshold {
				dup = true
				break
			}
		}
		key := soundKey(low)
		if !dup && key != "" && sounds[key] {
			dup = true
		}
		if dup {
			continue
		}
		if key != "" {
			sounds[key] = true
		}
		out = append(out, l)
		lowers = append(lowers, low)
	}
	return out
}

// soundKey joins the primary Double Metaphone code of every word.
func soundKey(line string) string {
	words := strings.FieldsFunc(line, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r == '\'')
	})
	codes := make([]string, 0, len(words))
	for _, w := range words {
		p, _ := matchr.DoubleMetaphone(w)
		if p == "" {
			p = w
		}
		codes = append(codes, p)
	}
	return strings.Join(codes, " ")
}
