package kv

import "fmt"

// Key schema. Every key the service writes is built here so the layout
// stays greppable in one place.
//
//	products:{p}:{id}                      product record (JSON)
//	idx:{p}:inv:{token}                    zset product id -> score
//	idx:{p}:ngram:{gram}                   set of tokens containing gram
//	idx:{p}:suggest                        zset phrase -> count
//	project:{p}:feed                       hash with feed status
//	synonyms:{p}                           cached synonym groups (JSON)
//	apikey:{k}                             api key -> project id
//	lock:feed:{p}                          feed ingestion lock
//	analytics:{p}:...                      counters, see below

func ProductKey(project, productID string) string {
	return fmt.Sprintf("products:%s:%s", project, productID)
}

func InvertedKey(project, token string) string {
	return fmt.Sprintf("idx:%s:inv:%s", project, token)
}

func NGramKey(project, gram string) string {
	return fmt.Sprintf("idx:%s:ngram:%s", project, gram)
}

func SuggestKey(project string) string {
	return fmt.Sprintf("idx:%s:suggest", project)
}

func FeedStatusKey(project string) string {
	return fmt.Sprintf("project:%s:feed", project)
}

func SynonymsKey(project string) string {
	return fmt.Sprintf("synonyms:%s", project)
}

func APIKeyKey(apiKey string) string {
	return fmt.Sprintf("apikey:%s", apiKey)
}

func FeedLockKey(project string) string {
	return fmt.Sprintf("lock:feed:%s", project)
}

// Patterns for bulk scans during reindex and project deletion.

func ProductsPattern(project string) string {
	return fmt.Sprintf("products:%s:*", project)
}

func IndexPattern(project string) string {
	return fmt.Sprintf("idx:%s:*", project)
}

func AnalyticsPattern(project string) string {
	return fmt.Sprintf("analytics:%s:*", project)
}

// Analytics keys. Day keys use YYYY-MM-DD, hour keys YYYY-MM-DD-HH,
// both in UTC.

func QueriesDayKey(project, day string) string {
	return fmt.Sprintf("analytics:%s:queries:%s", project, day)
}

func QueriesHourKey(project, hour string) string {
	return fmt.Sprintf("analytics:%s:queries:hourly:%s", project, hour)
}

func ClicksDayKey(project, day string) string {
	return fmt.Sprintf("analytics:%s:clicks:%s", project, day)
}

func PopularQueriesKey(project string) string {
	return fmt.Sprintf("analytics:%s:popular_queries", project)
}

func PopularProductsKey(project string) string {
	return fmt.Sprintf("analytics:%s:popular_products", project)
}

func ConvertingQueriesKey(project string) string {
	return fmt.Sprintf("analytics:%s:converting_queries", project)
}

func ResponseTimesKey(project string) string {
	return fmt.Sprintf("analytics:%s:response_times", project)
}
