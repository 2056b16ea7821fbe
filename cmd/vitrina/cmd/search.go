package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vitrina-search/vitrina/internal/kv"
	"github.com/vitrina-search/vitrina/internal/output"
	"github.com/vitrina-search/vitrina/internal/search"
	"github.com/vitrina-search/vitrina/internal/store"
	"github.com/vitrina-search/vitrina/internal/text"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	project  string
	limit    int
	offset   int
	sort     string
	category string
	inStock  bool
	minPrice float64
	maxPrice float64
	format   string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search a project's product index",
		Long: `Runs a query against the live Redis index, the same way the API
does. Useful for checking relevance and typo correction after a feed
load.

Examples:
  vitrina search "кроссовки nike" --project demo
  vitrina search "крассовки" --project demo --limit 5
  vitrina search "nike" --project demo --sort price_asc --in-stock
  vitrina search "nike" --project demo --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.project, "project", "p", "", "Project ID (required)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().IntVar(&opts.offset, "offset", 0, "Pagination offset")
	cmd.Flags().StringVar(&opts.sort, "sort", "", "Sort order: relevance, price_asc, price_desc, popular")
	cmd.Flags().StringVar(&opts.category, "category", "", "Filter by category")
	cmd.Flags().BoolVar(&opts.inStock, "in-stock", false, "Only products in stock")
	cmd.Flags().Float64Var(&opts.minPrice, "min-price", 0, "Minimum price")
	cmd.Flags().Float64Var(&opts.maxPrice, "max-price", 0, "Maximum price")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	_ = cmd.MarkFlagRequired("project")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	cleanup := setupCLILogging(cfg.Logging.Level)
	defer cleanup()

	out := output.New(cmd.OutOrStdout())

	kvStore := kv.NewRedis(kv.RedisOptions{
		Addr:     cfg.KV.Addr(),
		Password: cfg.KV.Password,
		DB:       cfg.KV.DB,
		PoolSize: cfg.KV.PoolSize,
	})
	defer kvStore.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = kvStore.Ping(pingCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("redis unreachable at %s: %w", cfg.KV.Addr(), err)
	}

	registry, err := store.New(ctx, cfg.DB.URL(), store.WithPoolSize(cfg.DB.PoolSize))
	if err != nil {
		return fmt.Errorf("failed to open registry: %w", err)
	}
	defer registry.Close()

	engine, err := search.NewEngine(kvStore, text.NewProcessor(cfg.Search.StopWords),
		search.WithSettings(registry),
		search.WithNGramSize(cfg.Search.NGramSize))
	if err != nil {
		return err
	}

	req := search.Request{
		Query:  query,
		Limit:  opts.limit,
		Offset: opts.offset,
		Sort:   search.Sort(opts.sort),
		Filters: search.Filters{
			InStock:  opts.inStock,
			Category: opts.category,
		},
	}
	if opts.minPrice > 0 {
		req.Filters.MinPrice = &opts.minPrice
	}
	if opts.maxPrice > 0 {
		req.Filters.MaxPrice = &opts.maxPrice
	}

	resp, err := engine.Search(ctx, opts.project, req)
	if err != nil {
		return err
	}

	if len(resp.Items) == 0 {
		out.Status("", fmt.Sprintf("No results found for %q", query))
		return nil
	}

	switch opts.format {
	case "json":
		return formatJSON(cmd, resp)
	default:
		return formatText(out, resp)
	}
}

// formatText prints a numbered result list with price and stock lines.
func formatText(out *output.Writer, resp *search.Response) error {
	out.Statusf("🔍", "Found %d results for %q (%dms):", resp.Total, resp.Query, resp.TookMs)
	out.Newline()

	for i, item := range resp.Items {
		out.Statusf("", "%d. %s (score: %.2f)", i+1, item.Name, item.Score)

		details := []string{formatPrice(item.Price, item.Currency)}
		if item.OldPrice != nil && *item.OldPrice > item.Price {
			details = append(details, fmt.Sprintf("was %s", formatPrice(*item.OldPrice, item.Currency)))
		}
		if item.Category != "" {
			details = append(details, item.Category)
		}
		if item.InStock {
			details = append(details, "in stock")
		} else {
			details = append(details, "out of stock")
		}
		out.Status("", "   "+strings.Join(details, " | "))

		if item.URL != "" {
			out.Status("", "   "+item.URL)
		}
		out.Newline()
	}

	if resp.Related != nil && len(resp.Related.Items) > 0 {
		out.Statusf("", "Related by %s %q:", resp.Related.Field, resp.Related.Value)
		for _, p := range resp.Related.Items {
			out.Status("", "   "+p.Name)
		}
	}

	return nil
}

func formatPrice(price float64, currency string) string {
	if currency == "" {
		currency = "RUB"
	}
	return fmt.Sprintf("%.2f %s", price, currency)
}

// formatJSON prints the full API response shape.
func formatJSON(cmd *cobra.Command, resp *search.Response) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
