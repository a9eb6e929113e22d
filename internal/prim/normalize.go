package prim

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// droppedPunctuation is stripped entirely rather than splitting or
// substituting a word.
var droppedPunctuation = map[rune]bool{
	'"': true, '“': true, '”': true, '‘': true, '’': true,
	'\'': true, '«': true, '»': true, '|': true, '…': true,
}

// cutCharacters split a run of text into separate words, but are themselves
// emitted as one-character words so a user can search for e.g. "-" literally.
var cutCharacters = map[rune]bool{
	'/': true, '\\': true, '@': true, '_': true, '+': true, '-': true,
	':': true, ';': true, '!': true, '?': true, '<': true, '>': true,
	'–': true, '—': true, // en dash, em dash
}

// substitutions map single runes to their normalized ASCII-ish replacement.
var substitutions = map[rune]string{
	'°': "o", '♯': "#", 'ø': "o", 'ð': "d",
	'æ': "ae", 'œ': "oe", '✝': "cross", '∞': "infinity",
	'¥': "yen", '¿': "?", '¡': "!",
}

// isCombiningAccent reports whether r is one of the combining marks
// stripped after NFKD decomposition (U+0300-U+0328 plus the two Japanese
// sound marks U+3099/U+309A).
func isCombiningAccent(r rune) bool {
	if r >= 0x0300 && r <= 0x0328 {
		return true
	}
	return r == 0x309a || r == 0x3099
}

// NormalizeWords decomposes s with NFKD, lowercases it, strips accents and
// dropped punctuation, applies the substitution table, and splits on cut
// characters and whitespace — emitting cut characters as their own
// single-character words. Three consecutive periods become the literal
// word "...", other periods are dropped entirely.
func NormalizeWords(s string) []string {
	decomposed := norm.NFKD.String(s)
	decomposed = strings.ToLower(decomposed)

	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}

	runes := []rune(decomposed)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case isCombiningAccent(r):
			continue
		case droppedPunctuation[r]:
			continue
		case r == '.':
			if i+2 < len(runes) && runes[i+1] == '.' && runes[i+2] == '.' {
				flush()
				words = append(words, "...")
				i += 2
			}
			// lone/double periods are dropped
			continue
		case cutCharacters[r]:
			flush()
			words = append(words, string(r))
			continue
		case unicode.IsSpace(r):
			flush()
			continue
		default:
			if rep, ok := substitutions[r]; ok {
				cur.WriteString(rep)
			} else {
				cur.WriteRune(r)
			}
		}
	}
	flush()
	return words
}
