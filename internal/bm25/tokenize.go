package bm25

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MinTokenLength is the shortest token, in runes, kept by Tokenize.
const MinTokenLength = 2

// Tokenize lowercases text, splits it on whitespace, trims leading and
// trailing characters that are neither letters nor numbers, and drops tokens
// shorter than MinTokenLength. Documents and queries share this function so
// both sides see the same vocabulary.
func Tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	tokens := fields[:0]
	for _, f := range fields {
		t := strings.TrimFunc(f, notAlphanumeric)
		if t == "" || utf8.RuneCountInString(t) < MinTokenLength {
			continue
		}
		tokens = append(tokens, t)
	}
	return tokens
}

func notAlphanumeric(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsNumber(r)
}
