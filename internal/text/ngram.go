package text

// DefaultNGramSize is the character window used by the fuzzy-match index.
const DefaultNGramSize = 3

// NGrams emits the consecutive rune windows of length n for s.
// Inputs shorter than n yield the input itself as the only gram, so every
// token has at least one entry in the n-gram index.
func NGrams(s string, n int) []string {
	if n <= 0 {
		n = DefaultNGramSize
	}
	runes := []rune(s)
	if len(runes) < n {
		return []string{s}
	}
	grams := make([]string, 0, len(runes)-n+1)
	for i := 0; i+n <= len(runes); i++ {
		grams = append(grams, string(runes[i:i+n]))
	}
	return grams
}

// NGramSimilarity is the Jaccard similarity of the n-gram sets of two
// tokens, in [0,1]. Identical tokens score 1 without generating grams.
func NGramSimilarity(a, b string, n int) float64 {
	if a == b {
		return 1.0
	}

	aSet := gramSet(a, n)
	bSet := gramSet(b, n)

	intersection := 0
	for g := range aSet {
		if _, ok := bSet[g]; ok {
			intersection++
		}
	}
	union := len(aSet) + len(bSet) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func gramSet(s string, n int) map[string]struct{} {
	grams := NGrams(s, n)
	set := make(map[string]struct{}, len(grams))
	for _, g := range grams {
		set[g] = struct{}{}
	}
	return set
}
