// Package strdedup interns strings so that MemoryIndex doesn't carry
// thousands of duplicate "Various Artists" or "Greatest Hits" allocations,
// and fixes up typographic quotes the way IndexBuilder wants before strings
// are frozen into the immutable arena.
package strdedup

import "strings"

// Deduper interns strings, returning the same backing string for repeated
// equal inputs.
type Deduper struct {
	seen map[string]string
}

// New returns an empty Deduper.
func New() *Deduper {
	return &Deduper{seen: make(map[string]string)}
}

// Intern returns a canonical copy of s: the first time a given value is
// seen it is kept verbatim, and every subsequent equal value reuses that
// same string header.
func (d *Deduper) Intern(s string) string {
	if v, ok := d.seen[s]; ok {
		return v
	}
	d.seen[s] = s
	return s
}

// Len reports how many distinct strings have been interned.
func (d *Deduper) Len() int { return len(d.seen) }

// FixupQuotes heuristically replaces straight apostrophes with the correct
// typographic quote based on the character classes adjacent to it: a
// straight quote between two letters (or at a word boundary consistent with
// a contraction/possessive) becomes a right single quote; one preceded by
// whitespace or start-of-string and followed by a letter becomes a left
// single quote. Any other quote character is left untouched.
func FixupQuotes(s string) string {
	if !strings.ContainsRune(s, '\'') {
		return s
	}
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range runes {
		if r != '\'' {
			b.WriteRune(r)
			continue
		}
		prevIsLetter := i > 0 && isWordChar(runes[i-1])
		nextIsLetter := i+1 < len(runes) && isWordChar(runes[i+1])
		switch {
		case prevIsLetter:
			// Contraction or possessive: "don't", "Alice's".
			b.WriteRune('’')
		case nextIsLetter:
			// Opening quote: 'Twas, 'cause.
			b.WriteRune('‘')
		default:
			b.WriteRune('’')
		}
	}
	return b.String()
}

func isWordChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
