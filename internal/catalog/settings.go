package catalog

// WidgetSettings is the appearance configuration of a project's embeddable
// search widget. Stored as JSONB on the project row; the JSON keys are the
// widget's own camelCase contract.
type WidgetSettings struct {
	Theme        string `json:"theme"`
	PrimaryColor string `json:"primaryColor"`
	BorderRadius int    `json:"borderRadius"`
	ShowImages   bool   `json:"showImages"`
	ShowPrices   bool   `json:"showPrices"`
	Placeholder  string `json:"placeholder"`
	MaxResults   int    `json:"maxResults"`
}

// DefaultWidgetSettings returns the settings every new project starts with.
func DefaultWidgetSettings() WidgetSettings {
	return WidgetSettings{
		Theme:        "light",
		PrimaryColor: "#2563eb",
		BorderRadius: 8,
		ShowImages:   true,
		ShowPrices:   true,
		Placeholder:  "Поиск товаров...",
		MaxResults:   10,
	}
}

// SearchSettings tunes per-project retrieval behavior. RelatedProductsField
// is nil until the owner picks a field (a top-level product field such as
// brand or category, or params.<Name> for a feed parameter).
type SearchSettings struct {
	RelatedProductsField *string  `json:"relatedProductsField"`
	RelatedProductsLimit int      `json:"relatedProductsLimit"`
	BoostFields          []string `json:"boostFields"`
}

// DefaultSearchSettings returns the settings every new project starts with.
func DefaultSearchSettings() SearchSettings {
	return SearchSettings{
		RelatedProductsLimit: 4,
		BoostFields:          []string{"brand", "category"},
	}
}

// SynonymGroups is a project's synonym dictionary. Every surface form in a
// group is treated as equivalent to the others during retrieval.
type SynonymGroups [][]string
