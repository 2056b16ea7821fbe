package server

import (
	"context"
	"errors"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/vitrina-search/vitrina/internal/auth"
	verrors "github.com/vitrina-search/vitrina/internal/errors"
	"github.com/vitrina-search/vitrina/internal/kv"
)

// headerAPIKey carries the widget's project key. It wins over the
// api_key and project_id query parameters.
const headerAPIKey = "X-API-Key"

// Context keys for values handlers read back from echo.Context.
const (
	ctxProjectID = "vitrina.project_id"
	ctxClaims    = "vitrina.claims"
)

// resolveProject attaches the calling project's ID to the request
// context. Resolution never fails: unknown or unresolvable keys serve
// the demo project.
func (s *Server) resolveProject(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		key := c.Request().Header.Get(headerAPIKey)
		if key == "" {
			key = c.QueryParam("api_key")
		}

		switch {
		case key != "":
			c.Set(ctxProjectID, s.projectForKey(ctx, key))
		case c.QueryParam("project_id") != "":
			c.Set(ctxProjectID, c.QueryParam("project_id"))
		default:
			c.Set(ctxProjectID, DemoProjectID)
		}
		return next(c)
	}
}

// projectID returns the project the middleware resolved for this request.
func projectID(c echo.Context) string {
	if id, ok := c.Get(ctxProjectID).(string); ok && id != "" {
		return id
	}
	return DemoProjectID
}

// projectForKey resolves an API key through three layers: the in-process
// cache, the KV mapping, and finally the relational store, re-populating
// the shorter-lived layers on the way back. Concurrent misses for one
// key collapse into a single lookup.
func (s *Server) projectForKey(ctx context.Context, key string) string {
	if id, ok := s.keyCache.Get(key); ok {
		return id
	}

	v, err, _ := s.keyGroup.Do(key, func() (any, error) {
		id, err := s.kv.Get(ctx, kv.APIKeyKey(key))
		if err == nil && id != "" {
			s.keyCache.Add(key, id)
			return id, nil
		}
		if err != nil && !errors.Is(err, kv.ErrNotFound) {
			s.logger.Warn("api key cache read failed", "err", err)
		}

		project, err := s.registry.ProjectByAPIKey(ctx, key)
		if err != nil {
			return "", err
		}

		s.keyCache.Add(key, project.ID)
		if err := s.kv.Set(ctx, kv.APIKeyKey(key), project.ID, 0); err != nil {
			s.logger.Warn("api key cache write failed", "project_id", project.ID, "err", err)
		}
		return project.ID, nil
	})
	if err != nil {
		if verrors.GetCode(err) == verrors.ErrCodeNotFound {
			s.logger.Debug("unknown api key, serving demo project")
		} else {
			s.logger.Warn("api key lookup failed, serving demo project", "err", err)
		}
		return DemoProjectID
	}
	return v.(string)
}

// requireUser admits only requests carrying a valid bearer token and
// stores the verified claims on the context.
func (s *Server) requireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.auth == nil {
			return verrors.New(verrors.ErrCodeUnauthorized, "authentication is not configured", nil)
		}

		header := c.Request().Header.Get(echo.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return verrors.New(verrors.ErrCodeUnauthorized, "missing bearer token", nil)
		}

		claims, err := s.auth.VerifyToken(token)
		if err != nil {
			return err
		}

		c.Set(ctxClaims, claims)
		return next(c)
	}
}

// currentUser returns the claims requireUser attached.
func currentUser(c echo.Context) (*auth.Claims, error) {
	claims, ok := c.Get(ctxClaims).(*auth.Claims)
	if !ok || claims == nil {
		return nil, verrors.New(verrors.ErrCodeUnauthorized, "missing bearer token", nil)
	}
	return claims, nil
}
