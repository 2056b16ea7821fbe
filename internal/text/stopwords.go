package text

// DefaultStopwords is the baseline Russian stop-word set. Queries and
// indexed fields are normalized before the stop-word check, so the ё forms
// are kept only for callers that filter unnormalized text.
var DefaultStopwords = []string{
	"и", "в", "во", "не", "что", "он", "на", "я", "с", "со", "как", "а", "то",
	"все", "она", "так", "его", "но", "да", "ты", "к", "у", "же", "вы", "за",
	"бы", "по", "только", "её", "ее", "мне", "было", "вот", "от", "меня", "ещё",
	"нет", "о", "из", "ему", "теперь", "когда", "уже", "вам", "ни", "быть", "был",
	"для", "мы", "их", "без", "том", "более", "всего",
}

// BuildStopwordSet converts a stop-word list to a set for O(1) lookup.
func BuildStopwordSet(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
