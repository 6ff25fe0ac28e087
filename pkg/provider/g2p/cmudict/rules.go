package cmudict

import "strings"

var vowelGroups = map[string]string{
	"ee": "IY", "ea": "IY", "ie": "IY", "ei": "EY",
	"oo": "UW", "ou": "AW", "ow": "OW", "oa": "OW",
	"oi": "OY", "oy": "OY", "ai": "EY", "ay": "EY",
	"au": "AO", "aw": "AO", "ue": "UW", "ui": "UW",
}

var singleVowels = map[byte]string{
	'a': "AE", 'e': "EH", 'i': "IH", 'o': "AA", 'u': "AH",
}

var consonantGroups = map[string][]string{
	"ch": {"CH"}, "sh": {"SH"}, "th": {"TH"}, "ph": {"F"},
	"ng": {"NG"}, "ck": {"K"}, "qu": {"K", "W"}, "wh": {"W"},
	"gh": nil, "kn": {"N"}, "wr": {"R"},
}

var singleConsonants = map[byte][]string{
	'b': {"B"}, 'c': {"K"}, 'd': {"D"}, 'f': {"F"}, 'g': {"G"},
	'h': {"HH"}, 'j': {"JH"}, 'k': {"K"}, 'l': {"L"}, 'm': {"M"},
	'n': {"N"}, 'p': {"P"}, 'q': {"K"}, 'r': {"R"}, 's': {"S"},
	't': {"T"}, 'v': {"V"}, 'w': {"W"}, 'x': {"K", "S"}, 'y': {"Y"},
	'z': {"Z"},
}

func isVowelLetter(c byte) bool {
	return strings.IndexByte("aeiou", c) >= 0
}

// Guess approximates the pronunciation of an unknown lower-case word from
// its spelling. The first vowel nucleus carries primary stress and the rest
// are unstressed. Non-letter characters are ignored. The result always has at
// least one nucleus when the word contains a vowel letter or "y".
func Guess(word string) []string {
	w := onlyLetters(word)
	if w == "" {
		return nil
	}

	var syllabicLE bool
	if n := len(w); n >= 3 && strings.HasSuffix(w, "e") && !isVowelLetter(w[n-2]) && hasVowelBefore(w, n-2) {
		if w[n-2] == 'l' && !isVowelLetter(w[n-3]) {
			syllabicLE = true
			w = w[:n-2]
		} else {
			w = w[:n-1]
		}
	}

	var out []string
	for i := 0; i < len(w); {
		c := w[i]
		if i+1 < len(w) {
			pair := w[i : i+2]
			if v, ok := vowelGroups[pair]; ok {
				out = append(out, v)
				i += 2
				continue
			}
			if cs, ok := consonantGroups[pair]; ok {
				out = append(out, cs...)
				i += 2
				continue
			}
			if pair[0] == pair[1] && !isVowelLetter(c) {
				i++
				continue
			}
		}
		switch {
		case isVowelLetter(c):
			out = append(out, singleVowels[c])
		case c == 'y' && i > 0:
			if i == len(w)-1 {
				out = append(out, "IY")
			} else {
				out = append(out, "IH")
			}
		case c == 'c' && i+1 < len(w) && strings.IndexByte("eiy", w[i+1]) >= 0:
			out = append(out, "S")
		default:
			out = append(out, singleConsonants[c]...)
		}
		i++
	}
	if syllabicLE {
		out = append(out, "AH", "L")
	}
	return markStress(out)
}

func onlyLetters(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= 'a' && c <= 'z' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

func hasVowelBefore(w string, end int) bool {
	for i := 0; i < end; i++ {
		if isVowelLetter(w[i]) || (w[i] == 'y' && i > 0) {
			return true
		}
	}
	return false
}

func markStress(phones []string) []string {
	first := true
	for i, p := range phones {
		if !isVowelPhone(p) {
			continue
		}
		if first {
			phones[i] = p + "1"
			first = false
		} else {
			phones[i] = p + "0"
		}
	}
	return phones
}

func isVowelPhone(p string) bool {
	switch p {
	case "AA", "AE", "AH", "AO", "AW", "AY", "EH", "ER", "EY", "IH", "IY", "OW", "OY", "UH", "UW":
		return true
	}
	return false
}
