package server

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/vitrina-search/vitrina/internal/analytics"
	"github.com/vitrina-search/vitrina/internal/catalog"
	verrors "github.com/vitrina-search/vitrina/internal/errors"
	"github.com/vitrina-search/vitrina/internal/kv"
	"github.com/vitrina-search/vitrina/internal/search"
	"github.com/vitrina-search/vitrina/internal/store"
)

// meta is attached to widget-facing responses.
type meta struct {
	TookMs    int64  `json:"took_ms"`
	ProjectID string `json:"project_id"`
}

type searchResponse struct {
	Query   string          `json:"query"`
	Total   int             `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
	Items   []search.Item   `json:"items"`
	Related *search.Related `json:"related,omitempty"`
	Meta    meta            `json:"meta"`
}

func (s *Server) handleSearch(c echo.Context) error {
	ctx := c.Request().Context()
	project := projectID(c)

	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return verrors.New(verrors.ErrCodeQueryEmpty, "query parameter q is required", nil)
	}

	limit, err := intParam(c, "limit", search.DefaultLimit, 1, search.MaxLimit)
	if err != nil {
		return err
	}
	offset, err := intParam(c, "offset", 0, 0, 1<<30)
	if err != nil {
		return err
	}

	filters, err := parseFilters(c)
	if err != nil {
		return err
	}

	order := search.SortRelevance
	if raw := c.QueryParam("sort"); raw != "" {
		order = search.Sort(raw)
		if !order.Valid() {
			return verrors.ValidationError(fmt.Sprintf("unsupported sort %q", raw), nil)
		}
	}

	resp, err := s.engine.Search(ctx, project, search.Request{
		Query:   q,
		Limit:   limit,
		Offset:  offset,
		Filters: filters,
		Sort:    order,
	})
	if err != nil {
		return err
	}

	// Analytics are best effort; a counter write never fails a search.
	if err := s.tracker.LogSearch(ctx, project, q, time.Duration(resp.TookMs)*time.Millisecond); err != nil {
		s.logger.Debug("search analytics write failed", "project_id", project, "err", err)
	}

	return c.JSON(http.StatusOK, searchResponse{
		Query:   resp.Query,
		Total:   resp.Total,
		Limit:   limit,
		Offset:  offset,
		Items:   resp.Items,
		Related: resp.Related,
		Meta:    meta{TookMs: resp.TookMs, ProjectID: project},
	})
}

type suggestResponse struct {
	Prefix      string              `json:"prefix"`
	Suggestions *search.Suggestions `json:"suggestions"`
	Meta        meta                `json:"meta"`
}

func (s *Server) handleSuggest(c echo.Context) error {
	ctx := c.Request().Context()
	project := projectID(c)
	start := time.Now()

	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return verrors.New(verrors.ErrCodeQueryEmpty, "query parameter q is required", nil)
	}

	limit, err := intParam(c, "limit", search.DefaultSuggestLimit, 1, search.MaxSuggestLimit)
	if err != nil {
		return err
	}

	includeProducts := true
	if raw := c.QueryParam("include_products"); raw != "" {
		includeProducts, err = strconv.ParseBool(raw)
		if err != nil {
			return verrors.ValidationError("include_products must be a boolean", err)
		}
	}

	res, err := s.engine.Suggest(ctx, project, q, limit, includeProducts)
	if err != nil {
		return err
	}

	// The widget shows at most a handful of query completions.
	if len(res.Queries) > s.suggestCap {
		res.Queries = res.Queries[:s.suggestCap]
	}

	return c.JSON(http.StatusOK, suggestResponse{
		Prefix:      q,
		Suggestions: res,
		Meta:        meta{TookMs: time.Since(start).Milliseconds(), ProjectID: project},
	})
}

func (s *Server) handleIndex(c echo.Context) error {
	ctx := c.Request().Context()
	project := projectID(c)

	var products []catalog.Product
	if err := c.Bind(&products); err != nil {
		return verrors.ValidationError("request body must be a JSON array of products", err)
	}
	if len(products) == 0 {
		return verrors.ValidationError("no products provided", nil)
	}

	indexed, err := s.indexer.IndexProducts(ctx, project, products)
	if err != nil {
		return err
	}

	// The count on the project row is display metadata; the demo project
	// has no row at all.
	if err := s.registry.UpdateProductsCount(ctx, project, indexed); err != nil {
		s.logger.Debug("products count update skipped", "project_id", project, "err", err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":    true,
		"indexed":    indexed,
		"project_id": project,
	})
}

type productsResponse struct {
	Products []catalog.Product `json:"products"`
	Total    int               `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

func (s *Server) handleProducts(c echo.Context) error {
	ctx := c.Request().Context()
	project := projectID(c)

	limit, err := intParam(c, "limit", 100, 1, 1000)
	if err != nil {
		return err
	}
	offset, err := intParam(c, "offset", 0, 0, 1<<30)
	if err != nil {
		return err
	}

	keys, err := s.kv.Scan(ctx, kv.ProductsPattern(project))
	if err != nil {
		return verrors.StorageError("product listing failed", err)
	}
	sort.Strings(keys)

	total := len(keys)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	page := keys[offset:end]

	products := make([]catalog.Product, 0, len(page))
	if len(page) > 0 {
		records, err := s.kv.MGet(ctx, page...)
		if err != nil {
			return verrors.StorageError("product listing failed", err)
		}
		for _, key := range page {
			raw, ok := records[key]
			if !ok {
				continue
			}
			prod, err := catalog.UnmarshalProduct(raw)
			if err != nil {
				s.logger.Warn("corrupt product record", "project_id", project, "key", key, "err", err)
				continue
			}
			products = append(products, prod)
		}
	}

	return c.JSON(http.StatusOK, productsResponse{
		Products: products,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	})
}

type analyticsResponse struct {
	ProjectID string `json:"project_id"`
	Days      int    `json:"days"`
	*analytics.Summary
}

func (s *Server) handleAnalytics(c echo.Context) error {
	ctx := c.Request().Context()
	project := projectID(c)

	days, err := intParam(c, "days", analytics.DefaultSummaryDays, 1, 30)
	if err != nil {
		return err
	}

	summary, err := s.tracker.Summary(ctx, project, days)
	if err != nil {
		return err
	}

	// Archive the windowed counters so history survives their KV expiry.
	// Failures only cost durability, never the response.
	archive := make([]store.AnalyticsDay, 0, len(summary.QueriesByDay))
	for day, queries := range summary.QueriesByDay {
		archive = append(archive, store.AnalyticsDay{
			Day:     day,
			Queries: queries,
			Clicks:  summary.ClicksByDay[day],
		})
	}
	if err := s.registry.UpsertAnalyticsDays(ctx, project, archive); err != nil {
		s.logger.Debug("analytics archive skipped", "project_id", project, "err", err)
	}

	return c.JSON(http.StatusOK, analyticsResponse{
		ProjectID: project,
		Days:      days,
		Summary:   summary,
	})
}

type trackClickRequest struct {
	ProductID string `json:"product_id"`
	Query     string `json:"query"`
}

func (s *Server) handleTrackClick(c echo.Context) error {
	ctx := c.Request().Context()
	project := projectID(c)

	var req trackClickRequest
	if err := c.Bind(&req); err != nil {
		return verrors.ValidationError("invalid click payload", err)
	}
	if req.ProductID == "" {
		return verrors.ValidationError("product_id is required", nil)
	}

	if err := s.tracker.LogClick(ctx, project, req.ProductID, req.Query); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

// intParam reads an integer query parameter, enforcing its bounds.
func intParam(c echo.Context, name string, def, min, max int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, verrors.ValidationError(fmt.Sprintf("%s must be an integer", name), err)
	}
	if n < min || n > max {
		return 0, verrors.ValidationError(fmt.Sprintf("%s must be between %d and %d", name, min, max), nil)
	}
	return n, nil
}

// floatParam reads an optional float query parameter from the first
// name that is set.
func floatParam(c echo.Context, names ...string) (*float64, error) {
	for _, name := range names {
		raw := c.QueryParam(name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, verrors.ValidationError(fmt.Sprintf("%s must be a number", name), err)
		}
		return &v, nil
	}
	return nil, nil
}

// parseFilters assembles the search filters. min_price/max_price are the
// documented names; the price_min/price_max spellings of early widget
// builds are still accepted.
func parseFilters(c echo.Context) (search.Filters, error) {
	var f search.Filters

	if raw := c.QueryParam("in_stock"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return f, verrors.ValidationError("in_stock must be a boolean", err)
		}
		f.InStock = v
	}

	// An inverted window (min above max) is not rejected; it simply
	// matches nothing.
	minPrice, err := floatParam(c, "min_price", "price_min")
	if err != nil {
		return f, err
	}
	maxPrice, err := floatParam(c, "max_price", "price_max")
	if err != nil {
		return f, err
	}
	f.MinPrice = minPrice
	f.MaxPrice = maxPrice

	f.Category = c.QueryParam("category")
	return f, nil
}
