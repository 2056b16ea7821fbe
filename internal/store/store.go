// Package store is the relational side of persistence. Users, projects
// and API keys live in PostgreSQL as durable truth; the key-value store
// holds derived serving copies. The package also archives per-project
// product backups and daily analytics rollups.
package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	verrors "github.com/vitrina-search/vitrina/internal/errors"
)

// Pool bounds mirror the deployment the service inherits.
const (
	defaultMinConns = 2
	defaultMaxConns = 10
)

// Store wraps the connection pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger

	minConns int32
	maxConns int32
}

// Option configures the store before the pool connects.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPoolSize overrides the maximum number of connections.
func WithPoolSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxConns = int32(n)
		}
	}
}

// New connects a pool to the given postgres URL.
func New(ctx context.Context, url string, opts ...Option) (*Store, error) {
	s := &Store{
		logger:   slog.Default(),
		minConns: defaultMinConns,
		maxConns: defaultMaxConns,
	}
	for _, opt := range opts {
		opt(s)
	}

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, verrors.ConfigError("invalid database url", err)
	}
	cfg.MinConns = s.minConns
	cfg.MaxConns = s.maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, dbError("failed to connect to database", err)
	}
	s.pool = pool
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.pool.Ping(ctx); err != nil {
		return dbError("database unreachable", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
  id            VARCHAR(32)  PRIMARY KEY,
  email         VARCHAR(255) UNIQUE NOT NULL,
  name          VARCHAR(255) NOT NULL,
  password_hash VARCHAR(255) NOT NULL,
  created_at    TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS projects (
  id              VARCHAR(32) PRIMARY KEY,
  user_id         VARCHAR(32) REFERENCES users(id) ON DELETE CASCADE,
  name            VARCHAR(255) NOT NULL,
  domain          VARCHAR(255),
  feed_url        TEXT,
  status          VARCHAR(20) DEFAULT 'active',
  products_count  INTEGER DEFAULT 0,
  widget_settings JSONB DEFAULT '{}',
  search_settings JSONB DEFAULT '{}',
  created_at      TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS api_keys (
  key        VARCHAR(64) PRIMARY KEY,
  project_id VARCHAR(32) REFERENCES projects(id) ON DELETE CASCADE,
  created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS products_backup (
  project_id VARCHAR(32) REFERENCES projects(id) ON DELETE CASCADE,
  product_id VARCHAR(255) NOT NULL,
  payload    JSONB NOT NULL,
  PRIMARY KEY (project_id, product_id)
);

CREATE TABLE IF NOT EXISTS analytics_daily (
  project_id VARCHAR(32) REFERENCES projects(id) ON DELETE CASCADE,
  day        DATE NOT NULL,
  queries    INTEGER NOT NULL DEFAULT 0,
  clicks     INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (project_id, day)
);

CREATE INDEX IF NOT EXISTS idx_projects_user_id ON projects(user_id);
CREATE INDEX IF NOT EXISTS idx_api_keys_project_id ON api_keys(project_id);
`

// columnMigrations add columns that older deployments predate. Each
// runs in its own DO block so a fresh and an upgraded database end up
// identical.
var columnMigrations = []struct {
	column     string
	definition string
}{
	{"search_settings", "search_settings JSONB DEFAULT '{}'"},
	{"synonyms", "synonyms JSONB DEFAULT '[]'"},
	{"auto_update", "auto_update BOOLEAN DEFAULT TRUE"},
}

// Migrate creates missing tables and columns. Safe to run on every
// startup.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return dbError("failed to create schema", err)
	}

	for _, m := range columnMigrations {
		q := `
DO $$
BEGIN
  IF NOT EXISTS (SELECT 1 FROM information_schema.columns
                 WHERE table_name='projects' AND column_name='` + m.column + `') THEN
    ALTER TABLE projects ADD COLUMN ` + m.definition + `;
  END IF;
END $$;`
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return dbError("failed to migrate column "+m.column, err)
		}
	}

	s.logger.Info("database schema up to date")
	return nil
}

// dbError wraps a relational failure with the 503-mapped code.
func dbError(message string, cause error) *verrors.VitrinaError {
	return verrors.New(verrors.ErrCodeDBUnavailable, message, cause)
}

// isUniqueViolation reports whether err is a primary-key or unique
// constraint conflict.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
