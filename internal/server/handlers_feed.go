package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	verrors "github.com/vitrina-search/vitrina/internal/errors"
)

type feedLoadRequest struct {
	URL string `json:"url"`
}

type feedLoadResponse struct {
	Success         bool   `json:"success"`
	ProductsCount   int    `json:"products_count,omitempty"`
	CategoriesCount int    `json:"categories_count,omitempty"`
	UpdatedCount    int    `json:"updated_count,omitempty"`
	ShopName        string `json:"shop_name,omitempty"`
	Message         string `json:"message,omitempty"`
	Error           string `json:"error,omitempty"`
}

func (s *Server) handleFeedLoad(c echo.Context) error {
	ctx := c.Request().Context()
	project := projectID(c)

	feedURL, err := bindFeedURL(c)
	if err != nil {
		return err
	}

	report, err := s.feeds.LoadFeed(ctx, project, feedURL)
	if err != nil {
		return feedFailure(c, err)
	}

	if err := s.registry.UpdateProductsCount(ctx, project, report.ProductsCount); err != nil {
		s.logger.Debug("products count update skipped", "project_id", project, "err", err)
	}

	return c.JSON(http.StatusOK, feedLoadResponse{
		Success:         true,
		ProductsCount:   report.ProductsCount,
		CategoriesCount: report.CategoriesCount,
		ShopName:        report.ShopName,
		Message:         "feed loaded",
	})
}

func (s *Server) handleFeedStock(c echo.Context) error {
	ctx := c.Request().Context()
	project := projectID(c)

	feedURL, err := bindFeedURL(c)
	if err != nil {
		return err
	}

	report, err := s.feeds.LoadStockFeed(ctx, project, feedURL)
	if err != nil {
		return feedFailure(c, err)
	}

	return c.JSON(http.StatusOK, feedLoadResponse{
		Success:      true,
		UpdatedCount: report.UpdatedCount,
		Message:      "stock feed applied",
	})
}

func (s *Server) handleFeedStatus(c echo.Context) error {
	st, err := s.feeds.Status(c.Request().Context(), projectID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

func bindFeedURL(c echo.Context) (string, error) {
	var req feedLoadRequest
	if err := c.Bind(&req); err != nil {
		return "", verrors.ValidationError("invalid feed request", err)
	}
	feedURL := strings.TrimSpace(req.URL)
	if feedURL == "" {
		return "", verrors.ValidationError("url is required", nil)
	}
	if !strings.HasPrefix(feedURL, "http://") && !strings.HasPrefix(feedURL, "https://") {
		return "", verrors.ValidationError("url must be http or https", nil)
	}
	return feedURL, nil
}

// feedFailure turns ingestion errors into the load-response contract: a
// held lock means a 409, a broken store propagates, and feed-level
// failures (fetch, parse, size) come back success=false because the
// error is already recorded on the feed status.
func feedFailure(c echo.Context, err error) error {
	if verrors.GetCode(err) == verrors.ErrCodeFeedLocked {
		return c.JSON(http.StatusConflict, feedLoadResponse{
			Success: false,
			Error:   "feed load already in progress",
		})
	}

	var ve *verrors.VitrinaError
	if errors.As(err, &ve) && ve.Category == verrors.CategoryFeed {
		return c.JSON(http.StatusOK, feedLoadResponse{Success: false, Error: ve.Message})
	}
	return err
}
