package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/vitrina-search/vitrina/internal/auth"
	"github.com/vitrina-search/vitrina/internal/catalog"
	verrors "github.com/vitrina-search/vitrina/internal/errors"
	"github.com/vitrina-search/vitrina/internal/kv"
	"github.com/vitrina-search/vitrina/internal/store"
)

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	User        *store.User `json:"user"`
}

func (s *Server) handleRegister(c echo.Context) error {
	if s.auth == nil {
		return verrors.New(verrors.ErrCodeUnauthorized, "authentication is not configured", nil)
	}

	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return verrors.ValidationError("invalid registration payload", err)
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return verrors.ValidationError("a valid email is required", nil)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return verrors.ValidationError("name is required", nil)
	}
	if len(req.Password) < 6 {
		return verrors.ValidationError("password must be at least 6 characters", nil)
	}

	user, err := s.registry.CreateUser(c.Request().Context(), store.User{
		ID:           auth.GenerateUserID(),
		Email:        email,
		Name:         name,
		PasswordHash: auth.HashPassword(req.Password),
	})
	if err != nil {
		return err
	}

	token, err := s.auth.IssueToken(user.ID, user.Email)
	if err != nil {
		return err
	}

	s.logger.Info("user registered", "user_id", user.ID)
	return c.JSON(http.StatusCreated, tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        user,
	})
}

func (s *Server) handleLogin(c echo.Context) error {
	if s.auth == nil {
		return verrors.New(verrors.ErrCodeUnauthorized, "authentication is not configured", nil)
	}

	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return verrors.ValidationError("invalid login payload", err)
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	user, err := s.registry.UserByEmail(c.Request().Context(), email)
	if err != nil {
		if verrors.GetCode(err) == verrors.ErrCodeNotFound {
			return verrors.New(verrors.ErrCodeUnauthorized, "invalid email or password", nil)
		}
		return err
	}
	if !auth.VerifyPassword(req.Password, user.PasswordHash) {
		return verrors.New(verrors.ErrCodeUnauthorized, "invalid email or password", nil)
	}

	token, err := s.auth.IssueToken(user.ID, user.Email)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        user,
	})
}

func (s *Server) handleMe(c echo.Context) error {
	claims, err := currentUser(c)
	if err != nil {
		return err
	}

	user, err := s.registry.UserByID(c.Request().Context(), claims.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

type createProjectRequest struct {
	Name    string `json:"name"`
	Domain  string `json:"domain"`
	FeedURL string `json:"feed_url"`
}

func (s *Server) handleCreateProject(c echo.Context) error {
	claims, err := currentUser(c)
	if err != nil {
		return err
	}

	var req createProjectRequest
	if err := c.Bind(&req); err != nil {
		return verrors.ValidationError("invalid project payload", err)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return verrors.ValidationError("name is required", nil)
	}
	feedURL := strings.TrimSpace(req.FeedURL)
	if feedURL != "" && !strings.HasPrefix(feedURL, "http://") && !strings.HasPrefix(feedURL, "https://") {
		return verrors.ValidationError("feed_url must be http or https", nil)
	}

	ctx := c.Request().Context()
	apiKey := auth.GenerateAPIKey(s.keyPrefix)
	project, err := s.registry.CreateProject(ctx,
		auth.GenerateProjectID(), claims.UserID, name, strings.TrimSpace(req.Domain), feedURL, apiKey)
	if err != nil {
		return err
	}

	if err := s.kv.Set(ctx, kv.APIKeyKey(apiKey), project.ID, 0); err != nil {
		s.logger.Warn("api key cache write failed", "project_id", project.ID, "err", err)
	}

	s.logger.Info("project created", "project_id", project.ID, "user_id", claims.UserID)
	return c.JSON(http.StatusCreated, project)
}

func (s *Server) handleListProjects(c echo.Context) error {
	claims, err := currentUser(c)
	if err != nil {
		return err
	}

	projects, err := s.registry.ProjectsByUser(c.Request().Context(), claims.UserID)
	if err != nil {
		return err
	}
	if projects == nil {
		projects = []store.Project{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"projects": projects,
		"total":    len(projects),
	})
}

func (s *Server) handleGetProject(c echo.Context) error {
	project, _, err := s.ownedProject(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, project)
}

type updateProjectRequest struct {
	Name           *string                 `json:"name"`
	Domain         *string                 `json:"domain"`
	FeedURL        *string                 `json:"feed_url"`
	AutoUpdate     *bool                   `json:"auto_update"`
	WidgetSettings *catalog.WidgetSettings `json:"widget_settings"`
	SearchSettings *catalog.SearchSettings `json:"search_settings"`
	Synonyms       *catalog.SynonymGroups  `json:"synonyms"`
}

func (s *Server) handleUpdateProject(c echo.Context) error {
	project, _, err := s.ownedProject(c)
	if err != nil {
		return err
	}

	var req updateProjectRequest
	if err := c.Bind(&req); err != nil {
		return verrors.ValidationError("invalid project payload", err)
	}

	ctx := c.Request().Context()
	updated, err := s.registry.UpdateProject(ctx, project.ID, store.ProjectUpdate{
		Name:           req.Name,
		Domain:         req.Domain,
		FeedURL:        req.FeedURL,
		AutoUpdate:     req.AutoUpdate,
		WidgetSettings: req.WidgetSettings,
		SearchSettings: req.SearchSettings,
		Synonyms:       req.Synonyms,
	})
	if err != nil {
		return err
	}

	// The engine reads synonyms from KV, so a dictionary change swaps
	// the cached copy in the same request.
	if req.Synonyms != nil {
		raw, err := json.Marshal(req.Synonyms)
		if err == nil {
			err = s.kv.Set(ctx, kv.SynonymsKey(project.ID), string(raw), 0)
		}
		if err != nil {
			s.logger.Warn("synonyms cache write failed", "project_id", project.ID, "err", err)
		}
	}

	return c.JSON(http.StatusOK, updated)
}

func (s *Server) handleDeleteProject(c echo.Context) error {
	project, claims, err := s.ownedProject(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	s.cleanupProjectKV(ctx, project)

	if err := s.registry.DeleteProject(ctx, project.ID, claims.UserID); err != nil {
		return err
	}

	s.logger.Info("project deleted", "project_id", project.ID, "user_id", claims.UserID)
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleRegenerateKey(c echo.Context) error {
	project, _, err := s.ownedProject(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	newKey := auth.GenerateAPIKey(s.keyPrefix)
	if err := s.registry.RegenerateAPIKey(ctx, project.ID, newKey); err != nil {
		return err
	}

	if project.APIKey != "" {
		s.keyCache.Remove(project.APIKey)
		if err := s.kv.Del(ctx, kv.APIKeyKey(project.APIKey)); err != nil {
			s.logger.Warn("stale api key cache entry", "project_id", project.ID, "err", err)
		}
	}
	if err := s.kv.Set(ctx, kv.APIKeyKey(newKey), project.ID, 0); err != nil {
		s.logger.Warn("api key cache write failed", "project_id", project.ID, "err", err)
	}

	s.logger.Info("api key rotated", "project_id", project.ID)
	return c.JSON(http.StatusOK, map[string]any{
		"api_key":    newKey,
		"project_id": project.ID,
	})
}

// ownedProject loads the project in :id and verifies the caller owns it.
// Foreign projects read as not found so ownership is not probeable.
func (s *Server) ownedProject(c echo.Context) (*store.Project, *auth.Claims, error) {
	claims, err := currentUser(c)
	if err != nil {
		return nil, nil, err
	}

	project, err := s.registry.ProjectByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return nil, nil, err
	}
	if project.UserID != claims.UserID {
		return nil, nil, verrors.NotFoundError("project not found")
	}
	return project, claims, nil
}

// cleanupProjectKV removes a deleted project's derived KV state: product
// records, indexes, analytics, feed status, synonyms and the API-key
// mapping. Failures are logged; the relational delete is the authority.
func (s *Server) cleanupProjectKV(ctx context.Context, project *store.Project) {
	patterns := []string{
		kv.ProductsPattern(project.ID),
		kv.IndexPattern(project.ID),
		kv.AnalyticsPattern(project.ID),
	}

	keys := []string{kv.FeedStatusKey(project.ID), kv.SynonymsKey(project.ID)}
	for _, pattern := range patterns {
		matched, err := s.kv.Scan(ctx, pattern)
		if err != nil {
			s.logger.Warn("project cleanup scan failed",
				"project_id", project.ID, "pattern", pattern, "err", err)
			continue
		}
		keys = append(keys, matched...)
	}

	if project.APIKey != "" {
		keys = append(keys, kv.APIKeyKey(project.APIKey))
		s.keyCache.Remove(project.APIKey)
	}

	if err := s.kv.Del(ctx, keys...); err != nil {
		s.logger.Warn("project cleanup failed", "project_id", project.ID, "err", err)
	}
}
