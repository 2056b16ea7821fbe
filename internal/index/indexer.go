// Package index builds and maintains the per-project search indexes:
// product records, the inverted token index, the n-gram index behind
// fuzzy matching, and the suggest phrase index. A rebuild replaces all
// of them in a single pipelined batch so concurrent readers never see a
// half-replaced index.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/vitrina-search/vitrina/internal/catalog"
	verrors "github.com/vitrina-search/vitrina/internal/errors"
	"github.com/vitrina-search/vitrina/internal/kv"
	"github.com/vitrina-search/vitrina/internal/text"
)

// Field weights for token extraction. A token appearing in several
// fields accumulates their weights.
const (
	WeightName        = 3.0
	WeightBrand       = 2.0
	WeightCategory    = 1.5
	WeightDescription = 1.0
	WeightVendorCode  = 3.0
	WeightParam       = 2.0
)

// MaxDescriptionRunes caps how much of a description is tokenized.
// Long marketing texts past this point add noise, not signal.
const MaxDescriptionRunes = 500

// OutOfStockDemotion scales a product's inverted-index scores when it
// goes out of stock. Back in stock restores the extracted scores.
const OutOfStockDemotion = 0.5

// backupTimeout bounds one background backup write.
const backupTimeout = 2 * time.Minute

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// BackupStore archives the indexed product set of a project in durable
// storage. Implemented by the relational store; failures are logged and
// never fail the refresh that triggered the backup.
type BackupStore interface {
	ReplaceProductsBackup(ctx context.Context, projectID string, products []catalog.Product) error
}

// Indexer writes the per-project search indexes.
type Indexer struct {
	store  kv.Store
	proc   *text.Processor
	ngramN int
	logger *slog.Logger
	backup BackupStore

	wg sync.WaitGroup
}

// Option configures the indexer.
type Option func(*Indexer)

// WithLogger sets the indexer logger.
func WithLogger(logger *slog.Logger) Option {
	return func(ix *Indexer) {
		if logger != nil {
			ix.logger = logger
		}
	}
}

// WithBackup enables background product backups after each rebuild.
func WithBackup(b BackupStore) Option {
	return func(ix *Indexer) {
		ix.backup = b
	}
}

// WithNGramSize overrides the n-gram window length.
func WithNGramSize(n int) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.ngramN = n
		}
	}
}

// NewIndexer creates an indexer. Returns an error if a required
// dependency is nil.
func NewIndexer(store kv.Store, proc *text.Processor, opts ...Option) (*Indexer, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: kv store is required", ErrNilDependency)
	}
	if proc == nil {
		return nil, fmt.Errorf("%w: text processor is required", ErrNilDependency)
	}
	ix := &Indexer{
		store:  store,
		proc:   proc,
		ngramN: text.DefaultNGramSize,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix, nil
}

// IndexProducts replaces the project's product records and all derived
// indexes with the given set. The old keys are deleted and the new ones
// written in one pipelined batch. An empty product list is a no-op that
// leaves the existing index in place.
func (ix *Indexer) IndexProducts(ctx context.Context, projectID string, products []catalog.Product) (int, error) {
	if len(products) == 0 {
		return 0, nil
	}

	records := make(map[string]string, len(products))
	inverted := make(map[string]map[string]float64)
	ngrams := make(map[string]map[string]struct{})
	suggest := make(map[string]float64)

	indexed := 0
	for i := range products {
		prod := &products[i]
		raw, err := prod.MarshalString()
		if err != nil {
			ix.logger.Warn("skipping unserializable product", "project_id", projectID, "product_id", prod.ID, "err", err)
			continue
		}
		records[kv.ProductKey(projectID, prod.ID)] = raw
		indexed++

		for token, score := range ix.ExtractTokens(*prod) {
			bucket, ok := inverted[token]
			if !ok {
				bucket = make(map[string]float64)
				inverted[token] = bucket
			}
			bucket[prod.ID] = round4(score)

			for _, gram := range text.NGrams(token, ix.ngramN) {
				set, ok := ngrams[gram]
				if !ok {
					set = make(map[string]struct{})
					ngrams[gram] = set
				}
				set[token] = struct{}{}
			}
		}

		// Suggest phrases are the cumulative left prefixes of the name:
		// "кроссовки nike air" yields "кроссовки", "кроссовки nike",
		// "кроссовки nike air", each counted across the catalog.
		nameTokens := ix.proc.Tokenize(text.Normalize(prod.Name))
		for n := range nameTokens {
			suggest[strings.Join(nameTokens[:n+1], " ")]++
		}
	}

	oldKeys, err := ix.projectKeys(ctx, projectID)
	if err != nil {
		return 0, err
	}

	pipe := ix.store.Pipeline()
	if len(oldKeys) > 0 {
		pipe.Del(oldKeys...)
	}
	for key, raw := range records {
		pipe.Set(key, raw, 0)
	}
	for token, members := range inverted {
		pipe.ZAdd(kv.InvertedKey(projectID, token), members)
	}
	for gram, tokens := range ngrams {
		members := make([]string, 0, len(tokens))
		for token := range tokens {
			members = append(members, token)
		}
		pipe.SAdd(kv.NGramKey(projectID, gram), members...)
	}
	if len(suggest) > 0 {
		pipe.ZAdd(kv.SuggestKey(projectID), suggest)
	}

	if err := pipe.Exec(ctx); err != nil {
		return 0, verrors.New(verrors.ErrCodeIndexFailed, "index rebuild failed", err)
	}

	ix.logger.Info("project indexed",
		"project_id", projectID,
		"products", indexed,
		"tokens", len(inverted),
		"ngrams", len(ngrams))

	ix.scheduleBackup(projectID, products)
	return indexed, nil
}

// UpdateStockPrices applies partial price and stock changes without a
// reindex. Rows for unknown products are skipped. A product that flips
// out of stock has its inverted scores halved; coming back in stock
// restores them from a fresh extraction.
func (ix *Indexer) UpdateStockPrices(ctx context.Context, projectID string, updates []catalog.StockUpdate) (int, error) {
	if len(updates) == 0 {
		return 0, nil
	}

	pipe := ix.store.Pipeline()
	updated := 0
	for _, u := range updates {
		if u.ID == "" {
			continue
		}
		key := kv.ProductKey(projectID, u.ID)
		raw, err := ix.store.Get(ctx, key)
		if errors.Is(err, kv.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, verrors.StorageError("failed to read product for stock update", err)
		}
		prod, err := catalog.UnmarshalProduct(raw)
		if err != nil {
			ix.logger.Warn("corrupt product record", "project_id", projectID, "product_id", u.ID, "err", err)
			continue
		}

		changed := false
		if u.Price != nil && *u.Price != prod.Price {
			prod.Price = *u.Price
			changed = true
		}
		if u.OldPrice != nil {
			prod.OldPrice = u.OldPrice
			changed = true
		}
		if u.InStock != nil && *u.InStock != prod.InStock {
			prod.InStock = *u.InStock
			changed = true
			if prod.InStock {
				ix.restoreScores(pipe, projectID, prod)
			} else {
				ix.demoteScores(ctx, pipe, projectID, prod)
			}
		}
		if u.Quantity != nil {
			prod.Quantity = u.Quantity
			changed = true
		}
		if !changed {
			continue
		}

		prod.RecomputeDiscount()
		next, err := prod.MarshalString()
		if err != nil {
			continue
		}
		pipe.Set(key, next, 0)
		updated++
	}

	if err := pipe.Exec(ctx); err != nil {
		return 0, verrors.New(verrors.ErrCodeIndexFailed, "stock update failed", err)
	}
	return updated, nil
}

// ClearProject deletes the project's product records and indexes. Used
// when a project is removed.
func (ix *Indexer) ClearProject(ctx context.Context, projectID string) error {
	keys, err := ix.projectKeys(ctx, projectID)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := ix.store.Del(ctx, keys...); err != nil {
		return verrors.StorageError("failed to clear project index", err)
	}
	return nil
}

// ExtractTokens tokenizes the searchable fields of a product and
// accumulates the field weights per token.
func (ix *Indexer) ExtractTokens(prod catalog.Product) map[string]float64 {
	scores := make(map[string]float64)
	add := func(field string, weight float64) {
		if field == "" {
			return
		}
		for _, token := range ix.proc.Tokenize(text.Normalize(field)) {
			scores[token] += weight
		}
	}

	add(prod.Name, WeightName)
	add(truncateRunes(prod.Description, MaxDescriptionRunes), WeightDescription)
	add(prod.Brand, WeightBrand)
	add(prod.Category, WeightCategory)
	add(prod.VendorCode, WeightVendorCode)
	for _, value := range prod.Params {
		add(value, WeightParam)
	}
	return scores
}

// Wait blocks until queued background backups finish. Called on
// shutdown so in-flight writes are not dropped.
func (ix *Indexer) Wait() {
	ix.wg.Wait()
}

// projectKeys lists the product and index keys of a project. Feed
// status, synonyms and analytics live under other prefixes and are
// deliberately not included.
func (ix *Indexer) projectKeys(ctx context.Context, projectID string) ([]string, error) {
	productKeys, err := ix.store.Scan(ctx, kv.ProductsPattern(projectID))
	if err != nil {
		return nil, verrors.StorageError("failed to scan product keys", err)
	}
	indexKeys, err := ix.store.Scan(ctx, kv.IndexPattern(projectID))
	if err != nil {
		return nil, verrors.StorageError("failed to scan index keys", err)
	}
	return append(productKeys, indexKeys...), nil
}

// demoteScores halves the product's current score on every token it is
// indexed under.
func (ix *Indexer) demoteScores(ctx context.Context, pipe kv.Pipeline, projectID string, prod catalog.Product) {
	for token := range ix.ExtractTokens(prod) {
		key := kv.InvertedKey(projectID, token)
		score, err := ix.store.ZScore(ctx, key, prod.ID)
		if err != nil {
			continue
		}
		pipe.ZAdd(key, map[string]float64{prod.ID: round4(score * OutOfStockDemotion)})
	}
}

// restoreScores writes the freshly extracted scores, undoing any
// demotion.
func (ix *Indexer) restoreScores(pipe kv.Pipeline, projectID string, prod catalog.Product) {
	for token, score := range ix.ExtractTokens(prod) {
		pipe.ZAdd(kv.InvertedKey(projectID, token), map[string]float64{prod.ID: round4(score)})
	}
}

// scheduleBackup archives the product set without blocking the caller.
func (ix *Indexer) scheduleBackup(projectID string, products []catalog.Product) {
	if ix.backup == nil {
		return
	}
	snapshot := make([]catalog.Product, len(products))
	copy(snapshot, products)

	ix.wg.Add(1)
	go func() {
		defer ix.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), backupTimeout)
		defer cancel()
		if err := ix.backup.ReplaceProductsBackup(ctx, projectID, snapshot); err != nil {
			ix.logger.Warn("products backup failed", "project_id", projectID, "err", err)
		}
	}()
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
