package text

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_LowercasesAndStripsPunctuation(t *testing.T) {
	// Given a query with mixed case and punctuation
	// When normalized
	got := Normalize("Apple iPhone 15, Pro/Max!")

	// Then punctuation becomes spaces and the text is lowercased
	assert.Equal(t, "apple iphone 15 pro max", got)
}

func TestNormalize_MapsYoToYe(t *testing.T) {
	assert.Equal(t, "веселый елка", Normalize("Весёлый ёлка"))
}

func TestNormalize_KeepsHyphensAndDigits(t *testing.T) {
	assert.Equal(t, "wi-fi 6e", Normalize("Wi-Fi 6E"))
}

func TestNormalize_CollapsesWhitespace(t *testing.T) {
	assert.Equal(t, "красные кроссовки", Normalize("  красные \t\n кроссовки  "))
}

func TestProcessor_Tokenize_DropsStopwordsAndShortTokens(t *testing.T) {
	p := NewProcessor(nil)

	// "и" is a stop-word, "я" is both short and a stop-word, "5" is short
	tokens := p.Tokenize("кроссовки и носки я 5")

	assert.Equal(t, []string{"кроссовки", "носки"}, tokens)
}

func TestProcessor_Tokenize_HyphenYieldsJoinedAndParts(t *testing.T) {
	p := NewProcessor(nil)

	tokens := p.Tokenize("wi-fi роутер")

	// Surface form first, then the stripped concatenation, then the parts
	assert.Equal(t, []string{"wi-fi", "wifi", "wi", "fi", "роутер"}, tokens)
}

func TestProcessor_Tokenize_HyphenPartsSkipStopwordsAndShort(t *testing.T) {
	p := NewProcessor(nil)

	// "и" part is a stop-word, "x" part is too short; both are dropped while
	// the concatenation survives
	tokens := p.Tokenize("и-x")

	assert.Equal(t, []string{"и-x", "иx"}, tokens)
}

func TestProcessor_Tokenize_DeduplicatesPreservingOrder(t *testing.T) {
	p := NewProcessor(nil)

	tokens := p.Tokenize("чехол iphone чехол")

	assert.Equal(t, []string{"чехол", "iphone"}, tokens)
}

func TestProcessor_Process_StopwordOnlyQueryHasNoTokens(t *testing.T) {
	p := NewProcessor(nil)

	q := p.Process("и в на")

	assert.Equal(t, "и в на", q.Normalized)
	assert.Empty(t, q.Tokens)
}

func TestProcessor_Process_CustomStopwords(t *testing.T) {
	p := NewProcessor([]string{"купить"})

	q := p.Process("купить кроссовки")

	assert.Equal(t, []string{"кроссовки"}, q.Tokens)
}
