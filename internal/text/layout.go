package text

// ruToEn maps ЙЦУКЕН key positions to their QWERTY counterparts.
// A query typed with the wrong layout active lands on the same physical
// keys, so applying the position map recovers the intended string.
var ruToEn = map[rune]rune{
	'й': 'q', 'ц': 'w', 'у': 'e', 'к': 'r', 'е': 't', 'н': 'y', 'г': 'u',
	'ш': 'i', 'щ': 'o', 'з': 'p', 'х': '[', 'ъ': ']',
	'ф': 'a', 'ы': 's', 'в': 'd', 'а': 'f', 'п': 'g', 'р': 'h', 'о': 'j',
	'л': 'k', 'д': 'l', 'ж': ';', 'э': '\'',
	'я': 'z', 'ч': 'x', 'с': 'c', 'м': 'v', 'и': 'b', 'т': 'n', 'ь': 'm',
	'б': ',', 'ю': '.', 'ё': '`',
}

// enToRu is the inverse position map.
var enToRu = func() map[rune]rune {
	m := make(map[rune]rune, len(ruToEn))
	for ru, en := range ruToEn {
		m[en] = ru
	}
	return m
}()

// LayoutVariants applies the keyboard-position map in both directions and
// returns the renderings that differ from the input. A purely Cyrillic
// string yields at most one variant (its QWERTY reading), a purely Latin
// string its ЙЦУКЕН reading, and a string without mapped runes none.
func LayoutVariants(normalized string) []string {
	var variants []string
	if v := mapRunes(normalized, ruToEn); v != normalized {
		variants = append(variants, v)
	}
	if v := mapRunes(normalized, enToRu); v != normalized && !contains(variants, v) {
		variants = append(variants, v)
	}
	return variants
}

func mapRunes(s string, m map[rune]rune) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if mapped, ok := m[r]; ok {
			out = append(out, mapped)
		} else {
			out = append(out, r)
		}
	}
	return string(out)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
