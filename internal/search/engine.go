package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/vitrina-search/vitrina/internal/catalog"
	verrors "github.com/vitrina-search/vitrina/internal/errors"
	"github.com/vitrina-search/vitrina/internal/kv"
	"github.com/vitrina-search/vitrina/internal/text"
)

// ErrNilDependency is returned by NewEngine when a required dependency is
// missing.
var ErrNilDependency = errors.New("nil dependency")

// SettingsSource resolves a project's search settings. The engine consults
// it for the related-items block; a nil source disables that block.
type SettingsSource interface {
	SearchSettings(ctx context.Context, projectID string) (catalog.SearchSettings, error)
}

// Engine answers search and suggest queries from the KV indexes.
type Engine struct {
	store    kv.Store
	proc     *text.Processor
	ngramN   int
	settings SettingsSource
	logger   *slog.Logger
}

// Option configures the engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithSettings wires the settings source that enables related items.
func WithSettings(src SettingsSource) Option {
	return func(e *Engine) { e.settings = src }
}

// WithNGramSize overrides the n-gram window of the fuzzy fallback. It must
// match the size the index was written with.
func WithNGramSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.ngramN = n
		}
	}
}

// NewEngine creates a search engine over the given store and text
// processor.
func NewEngine(store kv.Store, proc *text.Processor, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrNilDependency)
	}
	if proc == nil {
		return nil, fmt.Errorf("%w: text processor is required", ErrNilDependency)
	}
	e := &Engine{
		store:  store,
		proc:   proc,
		ngramN: text.DefaultNGramSize,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Search runs the retrieval pipeline: tokenize, expand with synonyms, read
// the inverted index, widen through layout variants and the n-gram index
// while the match set stays below the page size, then hydrate, filter,
// sort and paginate.
func (e *Engine) Search(ctx context.Context, projectID string, req Request) (*Response, error) {
	start := time.Now()
	req = applyDefaults(req)

	q := e.proc.Process(req.Query)
	if len(q.Tokens) == 0 {
		return &Response{Query: req.Query, Items: []Item{}, TookMs: tookMS(start)}, nil
	}

	tokens := expandWithSynonyms(q.Tokens, e.loadSynonyms(ctx, projectID))
	e.logger.Debug("query expanded", "project_id", projectID, "query", req.Query, "tokens", tokens)

	board := newScoreboard()
	if err := e.searchInverted(ctx, projectID, tokens, board); err != nil {
		return nil, err
	}

	// Wrong-layout recovery. Variant hits rank below direct hits of equal
	// weight and never replace them.
	if board.size() < req.Limit && len(q.LayoutVariants) > 0 {
		for _, variant := range q.LayoutVariants {
			vtokens := e.proc.Tokenize(variant)
			if len(vtokens) == 0 {
				continue
			}
			vboard := newScoreboard()
			if err := e.searchInverted(ctx, projectID, vtokens, vboard); err != nil {
				return nil, err
			}
			board.mergeNew(vboard, layoutPenalty)
		}
	}

	// Fuzzy recovery through the n-gram index, weighted by token
	// similarity.
	if board.size() < req.Limit {
		nboard, err := e.searchNGram(ctx, projectID, q.Tokens)
		if err != nil {
			return nil, err
		}
		board.mergeNew(nboard, 1.0)
	}

	scored, err := e.hydrate(ctx, projectID, board, req.Filters)
	if err != nil {
		return nil, err
	}

	sortScored(scored, req.Sort)

	total := len(scored)
	page := paginate(scored, req.Offset, req.Limit)

	items := make([]Item, 0, len(page))
	for _, s := range page {
		items = append(items, Item{
			Product:         s.product,
			Score:           round2(s.score),
			HighlightedName: highlightTokens(s.product.Name, q.Tokens),
		})
	}

	resp := &Response{Query: req.Query, Total: total, Items: items, TookMs: tookMS(start)}
	e.attachRelated(ctx, projectID, resp)

	e.logger.Info("search served",
		"project_id", projectID,
		"query", req.Query,
		"total", total,
		"took_ms", resp.TookMs)
	return resp, nil
}

// Suggest returns autocomplete phrases starting with the normalized prefix,
// most frequent first. With includeProducts it also searches for the top
// suggestion (or the raw prefix when nothing matched) and attaches the
// items.
func (e *Engine) Suggest(ctx context.Context, projectID, prefix string, limit int, includeProducts bool) (*Suggestions, error) {
	if limit <= 0 {
		limit = DefaultSuggestLimit
	}
	if limit > MaxSuggestLimit {
		limit = MaxSuggestLimit
	}

	normalized := text.Normalize(prefix)

	all, err := e.store.ZRevRangeWithScores(ctx, kv.SuggestKey(projectID), 0, -1)
	if err != nil {
		return nil, verrors.StorageError("suggest index read failed", err)
	}

	queries := make([]Suggestion, 0, limit)
	for _, sm := range all {
		if !strings.HasPrefix(sm.Member, normalized) {
			continue
		}
		queries = append(queries, Suggestion{
			Text:      sm.Member,
			Count:     int(sm.Score),
			Highlight: "<em>" + normalized + "</em>" + sm.Member[len(normalized):],
		})
		if len(queries) == limit {
			break
		}
	}

	res := &Suggestions{Queries: queries, Categories: []string{}, Products: []Item{}}
	if includeProducts {
		searchQuery := prefix
		if len(queries) > 0 {
			searchQuery = queries[0].Text
		}
		found, err := e.Search(ctx, projectID, Request{Query: searchQuery, Limit: SuggestSearchLimit})
		if err != nil {
			return nil, err
		}
		res.Products = found.Items
	}
	return res, nil
}

// SearchByField scans the project's product records for up to limit
// products whose field equals value case-insensitively, skipping excluded
// ids. Field is a top-level product field or params.<Name>.
func (e *Engine) SearchByField(ctx context.Context, projectID, field, value string, limit int, excludeIDs []string) ([]catalog.Product, error) {
	if limit <= 0 {
		limit = catalog.DefaultSearchSettings().RelatedProductsLimit
	}

	keys, err := e.store.Scan(ctx, kv.ProductsPattern(projectID))
	if err != nil {
		return nil, verrors.StorageError("product scan failed", err)
	}
	sort.Strings(keys)

	exclude := make(map[string]struct{}, len(excludeIDs))
	for _, id := range excludeIDs {
		exclude[id] = struct{}{}
	}

	matched := make([]catalog.Product, 0, limit)
	for _, key := range keys {
		raw, err := e.store.Get(ctx, key)
		if err != nil {
			if errors.Is(err, kv.ErrNotFound) {
				continue
			}
			return nil, verrors.StorageError("product read failed", err)
		}
		prod, err := catalog.UnmarshalProduct(raw)
		if err != nil {
			continue
		}
		if _, skip := exclude[prod.ID]; skip {
			continue
		}
		v := productFieldValue(prod, field)
		if v == "" || !strings.EqualFold(v, value) {
			continue
		}
		matched = append(matched, prod)
		if len(matched) >= limit {
			break
		}
	}
	return matched, nil
}

// scoreboard accumulates per-product scores while preserving first-seen
// order, so score ties keep encounter order through the stable sort.
type scoreboard struct {
	scores map[string]float64
	order  []string
}

func newScoreboard() *scoreboard {
	return &scoreboard{scores: make(map[string]float64)}
}

func (b *scoreboard) add(id string, score float64) {
	if _, ok := b.scores[id]; !ok {
		b.order = append(b.order, id)
	}
	b.scores[id] += score
}

// mergeNew folds other into b, keeping only products b has not seen and
// discounting their scores by factor. Existing entries are never
// overwritten.
func (b *scoreboard) mergeNew(other *scoreboard, factor float64) {
	for _, id := range other.order {
		if _, ok := b.scores[id]; ok {
			continue
		}
		b.scores[id] = other.scores[id] * factor
		b.order = append(b.order, id)
	}
}

func (b *scoreboard) size() int { return len(b.scores) }

func (e *Engine) searchInverted(ctx context.Context, projectID string, tokens []string, board *scoreboard) error {
	for _, token := range tokens {
		postings, err := e.store.ZRevRangeWithScores(ctx, kv.InvertedKey(projectID, token), 0, -1)
		if err != nil {
			return verrors.StorageError("inverted index read failed", err)
		}
		for _, p := range postings {
			board.add(p.Member, p.Score)
		}
	}
	return nil
}

// searchNGram collects every indexed token sharing an n-gram with a query
// token and sums its postings weighted by Jaccard similarity of the two
// tokens' gram sets.
func (e *Engine) searchNGram(ctx context.Context, projectID string, tokens []string) (*scoreboard, error) {
	board := newScoreboard()
	for _, token := range tokens {
		candidates := make(map[string]struct{})
		for _, gram := range text.NGrams(token, e.ngramN) {
			members, err := e.store.SMembers(ctx, kv.NGramKey(projectID, gram))
			if err != nil {
				return nil, verrors.StorageError("ngram index read failed", err)
			}
			for _, m := range members {
				candidates[m] = struct{}{}
			}
		}

		ordered := make([]string, 0, len(candidates))
		for c := range candidates {
			ordered = append(ordered, c)
		}
		sort.Strings(ordered)

		for _, candidate := range ordered {
			similarity := text.NGramSimilarity(token, candidate, e.ngramN)
			if similarity == 0 {
				continue
			}
			postings, err := e.store.ZRevRangeWithScores(ctx, kv.InvertedKey(projectID, candidate), 0, -1)
			if err != nil {
				return nil, verrors.StorageError("inverted index read failed", err)
			}
			for _, p := range postings {
				board.add(p.Member, p.Score*similarity)
			}
		}
	}
	return board, nil
}

type scoredProduct struct {
	id      string
	score   float64
	product catalog.Product
}

// hydrate loads the matched product records and applies the filters.
// Missing records are dropped without error: postings can outlive their
// products during a rebuild, and the next full index heals them.
func (e *Engine) hydrate(ctx context.Context, projectID string, board *scoreboard, filters Filters) ([]scoredProduct, error) {
	if len(board.order) == 0 {
		return nil, nil
	}

	keys := make([]string, len(board.order))
	for i, id := range board.order {
		keys[i] = kv.ProductKey(projectID, id)
	}
	records, err := e.store.MGet(ctx, keys...)
	if err != nil {
		return nil, verrors.StorageError("product hydrate failed", err)
	}

	out := make([]scoredProduct, 0, len(records))
	for i, id := range board.order {
		raw, ok := records[keys[i]]
		if !ok {
			continue
		}
		prod, err := catalog.UnmarshalProduct(raw)
		if err != nil {
			e.logger.Warn("corrupt product record", "project_id", projectID, "product_id", id, "err", err)
			continue
		}
		if !filters.matches(prod) {
			continue
		}
		out = append(out, scoredProduct{id: id, score: board.scores[id], product: prod})
	}
	return out, nil
}

// attachRelated fills the related block when the project settings name a
// related field. Failures only cost the block, never the search.
func (e *Engine) attachRelated(ctx context.Context, projectID string, resp *Response) {
	if e.settings == nil || len(resp.Items) == 0 {
		return
	}

	settings, err := e.settings.SearchSettings(ctx, projectID)
	if err != nil {
		e.logger.Warn("search settings load failed", "project_id", projectID, "err", err)
		return
	}
	if settings.RelatedProductsField == nil || *settings.RelatedProductsField == "" {
		return
	}

	field := *settings.RelatedProductsField
	value := productFieldValue(resp.Items[0].Product, field)
	if value == "" {
		return
	}

	exclude := make([]string, 0, relatedExcludeTop)
	for i, item := range resp.Items {
		if i == relatedExcludeTop {
			break
		}
		exclude = append(exclude, item.ID)
	}

	items, err := e.SearchByField(ctx, projectID, field, value, settings.RelatedProductsLimit, exclude)
	if err != nil {
		e.logger.Warn("related items scan failed", "project_id", projectID, "field", field, "err", err)
		return
	}
	resp.Related = &Related{Items: items, Field: field, Value: value}
}

// productFieldValue resolves field on the product: params.<Name> reads the
// feed parameter, known top-level fields read the struct, anything else
// falls back to the params map.
func productFieldValue(p catalog.Product, field string) string {
	if name, ok := strings.CutPrefix(field, "params."); ok {
		return p.Params[name]
	}
	switch field {
	case "brand":
		return p.Brand
	case "category":
		return p.Category
	case "name":
		return p.Name
	case "vendor_code":
		return p.VendorCode
	default:
		return p.Params[field]
	}
}

// highlightTokens wraps case-insensitive occurrences of each token in
// <em> tags.
func highlightTokens(name string, tokens []string) string {
	highlighted := name
	for _, token := range tokens {
		re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(token))
		highlighted = re.ReplaceAllStringFunc(highlighted, func(m string) string {
			return "<em>" + m + "</em>"
		})
	}
	return highlighted
}

func applyDefaults(req Request) Request {
	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}
	if req.Offset < 0 {
		req.Offset = 0
	}
	if req.Sort == "" {
		req.Sort = SortRelevance
	}
	return req
}

func sortScored(scored []scoredProduct, order Sort) {
	switch order {
	case SortPriceAsc:
		sort.SliceStable(scored, func(i, j int) bool { return scored[i].product.Price < scored[j].product.Price })
	case SortPriceDesc:
		sort.SliceStable(scored, func(i, j int) bool { return scored[i].product.Price > scored[j].product.Price })
	case SortPopular:
		sort.SliceStable(scored, func(i, j int) bool { return scored[i].product.Popularity > scored[j].product.Popularity })
	default:
		sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	}
}

func paginate(scored []scoredProduct, offset, limit int) []scoredProduct {
	if offset >= len(scored) {
		return nil
	}
	end := offset + limit
	if end > len(scored) {
		end = len(scored)
	}
	return scored[offset:end]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func tookMS(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
