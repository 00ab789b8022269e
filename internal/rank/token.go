// Package rank scores a document version's blocks against a field query by
// fusing semantic, lexical, and structural signals into one deterministic
// ordering.
package rank

import (
	"strings"
	"unicode"
)

// Tokenize lowercases, strips punctuation, collapses whitespace, and drops
// tokens of length <= 2 as stop-noise. All lexical scoring in the engine
// shares this tokenizer so overlap ratios are comparable across components.
func Tokenize(text string) []string {
	var tokens []string
	var b strings.Builder
	flush := func() {
		if b.Len() > 2 {
			tokens = append(tokens, b.String())
		}
		b.Reset()
	}
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// TokenSet returns the unique tokens of text.
func TokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range Tokenize(text) {
		set[t] = struct{}{}
	}
	return set
}

// OverlapRatio is |query ∩ block| / |query| over token sets. Zero when the
// query has no usable tokens.
func OverlapRatio(queryTokens []string, blockTokens map[string]struct{}) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(queryTokens))
	hits := 0
	total := 0
	for _, qt := range queryTokens {
		if _, dup := seen[qt]; dup {
			continue
		}
		seen[qt] = struct{}{}
		total++
		if _, ok := blockTokens[qt]; ok {
			hits++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
