// Package text implements query and document text processing: normalization,
// tokenization with stop-word filtering, keyboard-layout variants, and
// character n-grams. All functions operate on runes, not bytes, because the
// catalogs served by this service are predominantly Cyrillic.
package text

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Query is the processed form of a raw search query.
type Query struct {
	// Raw is the query exactly as received.
	Raw string
	// Normalized is the lowercased, cleaned form of Raw.
	Normalized string
	// Tokens are the searchable terms in first-seen order, deduplicated.
	Tokens []string
	// LayoutVariants are alternate renderings of Normalized produced by the
	// EN<->RU keyboard-position map, present only when they differ from
	// Normalized. They recover queries typed in the wrong keyboard layout.
	LayoutVariants []string
}

// Processor turns raw query or document text into tokens.
type Processor struct {
	stop map[string]struct{}
}

// NewProcessor creates a Processor with the given stop-word list.
// A nil list selects the default Russian baseline set.
func NewProcessor(stopwords []string) *Processor {
	if stopwords == nil {
		stopwords = DefaultStopwords
	}
	return &Processor{stop: BuildStopwordSet(stopwords)}
}

// Process runs the full pipeline: normalize, tokenize, layout variants.
func (p *Processor) Process(query string) Query {
	normalized := Normalize(query)
	return Query{
		Raw:            query,
		Normalized:     normalized,
		Tokens:         p.Tokenize(normalized),
		LayoutVariants: LayoutVariants(normalized),
	}
}

// Normalize lowercases the input, maps ё to е, replaces every character that
// is not a letter, digit, whitespace, or hyphen with a space, and collapses
// runs of whitespace into single spaces.
func Normalize(query string) string {
	lower := strings.ToLower(query)

	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		switch {
		case r == 'ё':
			b.WriteRune('е')
		case r == '-' || unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// Tokenize splits a normalized string into search tokens.
// Surface forms of length <= 1 and stop-words are rejected. A hyphenated
// form additionally yields its hyphen-stripped concatenation and each part
// of length >= 2 that is not a stop-word. Order is first-seen; duplicates
// are dropped.
func (p *Processor) Tokenize(normalized string) []string {
	words := strings.Fields(normalized)

	tokens := make([]string, 0, len(words))
	seen := make(map[string]struct{}, len(words))
	add := func(t string) {
		if _, dup := seen[t]; dup {
			return
		}
		seen[t] = struct{}{}
		tokens = append(tokens, t)
	}

	for _, w := range words {
		if _, stop := p.stop[w]; stop {
			continue
		}
		if utf8.RuneCountInString(w) > 1 {
			add(w)
		}
		if !strings.Contains(w, "-") {
			continue
		}
		parts := strings.Split(w, "-")
		if joined := strings.Join(parts, ""); utf8.RuneCountInString(joined) > 1 {
			add(joined)
		}
		for _, part := range parts {
			if utf8.RuneCountInString(part) < 2 {
				continue
			}
			if _, stop := p.stop[part]; stop {
				continue
			}
			add(part)
		}
	}

	return tokens
}
