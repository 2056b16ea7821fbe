// Package server exposes the HTTP API: the widget-facing search surface,
// feed management, analytics, and the dashboard's auth and project
// endpoints. Handlers resolve the calling project from an API key before
// touching any index, falling back to the reserved demo project so the
// embedded widget never hard-fails on a misconfigured key.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/singleflight"

	"github.com/vitrina-search/vitrina/internal/analytics"
	"github.com/vitrina-search/vitrina/internal/auth"
	"github.com/vitrina-search/vitrina/internal/catalog"
	verrors "github.com/vitrina-search/vitrina/internal/errors"
	"github.com/vitrina-search/vitrina/internal/feed"
	"github.com/vitrina-search/vitrina/internal/index"
	"github.com/vitrina-search/vitrina/internal/kv"
	"github.com/vitrina-search/vitrina/internal/search"
	"github.com/vitrina-search/vitrina/internal/store"
	"github.com/vitrina-search/vitrina/pkg/version"
)

// DemoProjectID is the reserved project unknown API keys resolve to.
const DemoProjectID = "demo"

const (
	// keyCacheSize bounds the in-process API-key cache.
	keyCacheSize = 10_000

	// keyCacheTTL limits how long a cached key -> project mapping is
	// trusted without consulting the stores again.
	keyCacheTTL = 5 * time.Minute
)

// ErrNilDependency is returned by New when a required dependency is
// missing.
var ErrNilDependency = errors.New("nil dependency")

// Registry is the relational surface the HTTP API uses. *store.Store
// implements it.
type Registry interface {
	Ping(ctx context.Context) error
	CreateUser(ctx context.Context, u store.User) (*store.User, error)
	UserByEmail(ctx context.Context, email string) (*store.User, error)
	UserByID(ctx context.Context, userID string) (*store.User, error)
	CreateProject(ctx context.Context, projectID, userID, name, domain, feedURL, apiKey string) (*store.Project, error)
	ProjectByID(ctx context.Context, projectID string) (*store.Project, error)
	ProjectByAPIKey(ctx context.Context, apiKey string) (*store.Project, error)
	ProjectsByUser(ctx context.Context, userID string) ([]store.Project, error)
	UpdateProject(ctx context.Context, projectID string, upd store.ProjectUpdate) (*store.Project, error)
	DeleteProject(ctx context.Context, projectID, userID string) error
	RegenerateAPIKey(ctx context.Context, projectID, newKey string) error
	UpdateProductsCount(ctx context.Context, projectID string, count int) error
	UpsertAnalyticsDays(ctx context.Context, projectID string, days []store.AnalyticsDay) error
}

// FeedService runs feed ingestion on behalf of the feed endpoints.
// *feed.Manager implements it.
type FeedService interface {
	LoadFeed(ctx context.Context, projectID, feedURL string) (*feed.LoadReport, error)
	LoadStockFeed(ctx context.Context, projectID, feedURL string) (*feed.LoadReport, error)
	Status(ctx context.Context, projectID string) (*catalog.FeedStatus, error)
}

// Deps carries the collaborators a Server is built from. Auth may be nil
// when no JWT secret is configured; the account endpoints then reject
// every request while the widget surface keeps working.
type Deps struct {
	KV       kv.Store
	Registry Registry
	Engine   *search.Engine
	Indexer  *index.Indexer
	Feeds    FeedService
	Tracker  *analytics.Tracker
	Auth     *auth.Authenticator
}

// Server is the HTTP API server.
type Server struct {
	echo     *echo.Echo
	kv       kv.Store
	registry Registry
	engine   *search.Engine
	indexer  *index.Indexer
	feeds    FeedService
	tracker  *analytics.Tracker
	auth     *auth.Authenticator
	logger   *slog.Logger

	suggestCap  int
	keyPrefix   string
	corsOrigins []string

	keyCache *expirable.LRU[string, string]
	keyGroup singleflight.Group
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSuggestCap overrides the widget cap on suggested queries.
func WithSuggestCap(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.suggestCap = n
		}
	}
}

// WithKeyPrefix sets the prefix of newly generated API keys.
func WithKeyPrefix(prefix string) Option {
	return func(s *Server) {
		if prefix != "" {
			s.keyPrefix = prefix
		}
	}
}

// WithCORSOrigins sets the origins allowed to embed the widget.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.corsOrigins = origins
		}
	}
}

// New assembles the server and registers all routes.
func New(deps Deps, opts ...Option) (*Server, error) {
	switch {
	case deps.KV == nil:
		return nil, fmt.Errorf("%w: kv store is required", ErrNilDependency)
	case deps.Registry == nil:
		return nil, fmt.Errorf("%w: registry is required", ErrNilDependency)
	case deps.Engine == nil:
		return nil, fmt.Errorf("%w: search engine is required", ErrNilDependency)
	case deps.Indexer == nil:
		return nil, fmt.Errorf("%w: indexer is required", ErrNilDependency)
	case deps.Feeds == nil:
		return nil, fmt.Errorf("%w: feed service is required", ErrNilDependency)
	case deps.Tracker == nil:
		return nil, fmt.Errorf("%w: analytics tracker is required", ErrNilDependency)
	}

	s := &Server{
		kv:          deps.KV,
		registry:    deps.Registry,
		engine:      deps.Engine,
		indexer:     deps.Indexer,
		feeds:       deps.Feeds,
		tracker:     deps.Tracker,
		auth:        deps.Auth,
		logger:      slog.Default(),
		suggestCap:  search.SuggestQueryCap,
		keyPrefix:   auth.DefaultKeyPrefix,
		corsOrigins: []string{"*"},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.keyCache = expirable.NewLRU[string, string](keyCacheSize, nil, keyCacheTTL)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: s.corsOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization, headerAPIKey},
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug("http request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds())
			return nil
		},
	}))

	s.echo = e
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.echo.GET("/", s.handleRoot)
	s.echo.GET("/health", s.handleHealth)

	api := s.echo.Group("/api/v1")

	// Widget-facing routes carry a project identity.
	widget := api.Group("", s.resolveProject)
	widget.GET("/search", s.handleSearch)
	widget.GET("/suggest", s.handleSuggest)
	widget.POST("/index", s.handleIndex)
	widget.GET("/products", s.handleProducts)
	widget.POST("/feed/load", s.handleFeedLoad)
	widget.POST("/feed/stock", s.handleFeedStock)
	widget.GET("/feed/status", s.handleFeedStatus)
	widget.GET("/analytics", s.handleAnalytics)
	widget.POST("/track/click", s.handleTrackClick)

	api.POST("/auth/register", s.handleRegister)
	api.POST("/auth/login", s.handleLogin)
	api.GET("/auth/me", s.handleMe, s.requireUser)

	projects := api.Group("/projects", s.requireUser)
	projects.POST("", s.handleCreateProject)
	projects.GET("", s.handleListProjects)
	projects.GET("/:id", s.handleGetProject)
	projects.PUT("/:id", s.handleUpdateProject)
	projects.DELETE("/:id", s.handleDeleteProject)
	projects.POST("/:id/regenerate-key", s.handleRegenerateKey)
}

// Start serves on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info("http server listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the routing tree, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) handleRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"service": "Vitrina Search",
		"version": version.Short(),
		"status":  "running",
	})
}

// handleHealth reports serving readiness. The KV store carries every
// search, so it alone gates availability; relational reachability is
// reported but does not fail the check.
func (s *Server) handleHealth(c echo.Context) error {
	ctx := c.Request().Context()

	if err := s.kv.Ping(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"kv":     "unreachable",
			"error":  err.Error(),
		})
	}

	db := "connected"
	if err := s.registry.Ping(ctx); err != nil {
		db = "unreachable"
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": "healthy",
		"kv":     "connected",
		"db":     db,
	})
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error errorInfo `json:"error"`
}

type errorInfo struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// handleError maps errors onto HTTP statuses: coded service errors by
// their category, echo's own errors verbatim, anything else a 500.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	body := errorBody{Error: errorInfo{Message: "internal server error"}}

	var he *echo.HTTPError
	var ve *verrors.VitrinaError
	switch {
	case errors.As(err, &he):
		status = he.Code
		body.Error.Message = http.StatusText(status)
		if msg, ok := he.Message.(string); ok {
			body.Error.Message = msg
		}
	case errors.As(err, &ve):
		status = statusForError(ve)
		body.Error.Code = ve.Code
		body.Error.Message = ve.Message
	}

	if status >= http.StatusInternalServerError {
		attrs := []any{"uri", c.Request().RequestURI}
		for k, v := range verrors.FormatForLog(err) {
			attrs = append(attrs, k, v)
		}
		s.logger.Error("request failed", attrs...)
	}

	if writeErr := c.JSON(status, body); writeErr != nil {
		s.logger.Error("error response write failed", "err", writeErr)
	}
}

func statusForError(err error) int {
	switch verrors.GetCode(err) {
	case verrors.ErrCodeUnauthorized, verrors.ErrCodeInvalidAPIKey:
		return http.StatusUnauthorized
	case verrors.ErrCodeNotFound:
		return http.StatusNotFound
	case verrors.ErrCodeFeedLocked:
		return http.StatusConflict
	}

	switch verrors.GetCategory(err) {
	case verrors.CategoryValidation:
		return http.StatusBadRequest
	case verrors.CategoryStorage:
		return http.StatusServiceUnavailable
	case verrors.CategoryFeed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
