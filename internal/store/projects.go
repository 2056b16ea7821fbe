package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vitrina-search/vitrina/internal/catalog"
	verrors "github.com/vitrina-search/vitrina/internal/errors"
)

// Project is a project row joined with its API key.
type Project struct {
	ID             string                 `json:"id"`
	UserID         string                 `json:"user_id"`
	Name           string                 `json:"name"`
	Domain         string                 `json:"domain,omitempty"`
	FeedURL        string                 `json:"feed_url,omitempty"`
	Status         string                 `json:"status"`
	ProductsCount  int                    `json:"products_count"`
	AutoUpdate     bool                   `json:"auto_update"`
	WidgetSettings catalog.WidgetSettings `json:"widget_settings"`
	SearchSettings catalog.SearchSettings `json:"search_settings"`
	Synonyms       catalog.SynonymGroups  `json:"synonyms"`
	APIKey         string                 `json:"api_key,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

const projectColumns = `p.id, p.user_id, p.name, p.domain, p.feed_url, p.status,
	p.products_count, p.auto_update, p.widget_settings, p.search_settings,
	p.synonyms, p.created_at, a.key`

// CreateProject inserts the project with default settings plus its API
// key in one transaction and returns the stored row.
func (s *Store) CreateProject(ctx context.Context, projectID, userID, name, domain, feedURL, apiKey string) (*Project, error) {
	widget, err := json.Marshal(catalog.DefaultWidgetSettings())
	if err != nil {
		return nil, verrors.InternalError("failed to encode widget settings", err)
	}
	search, err := json.Marshal(catalog.DefaultSearchSettings())
	if err != nil {
		return nil, verrors.InternalError("failed to encode search settings", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, dbError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO projects (id, user_id, name, domain, feed_url, widget_settings, search_settings)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		projectID, userID, name, domain, feedURL, widget, search)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, verrors.ValidationError("project already exists", err)
		}
		return nil, dbError("failed to create project", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO api_keys (key, project_id) VALUES ($1, $2)`,
		apiKey, projectID); err != nil {
		return nil, dbError("failed to create api key", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, dbError("failed to commit project", err)
	}

	return s.ProjectByID(ctx, projectID)
}

// ProjectByID fetches one project.
func (s *Store) ProjectByID(ctx context.Context, projectID string) (*Project, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+projectColumns+`
		FROM projects p
		LEFT JOIN api_keys a ON a.project_id = p.id
		WHERE p.id = $1`, projectID)

	p, err := scanProject(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, verrors.NotFoundError("project not found")
	}
	if err != nil {
		return nil, dbError("failed to read project", err)
	}
	return p, nil
}

// ProjectByAPIKey resolves the project an API key belongs to. This is
// the durable end of the key -> project fall-through chain.
func (s *Store) ProjectByAPIKey(ctx context.Context, apiKey string) (*Project, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+projectColumns+`
		FROM api_keys a
		JOIN projects p ON p.id = a.project_id
		WHERE a.key = $1`, apiKey)

	p, err := scanProject(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, verrors.NotFoundError("api key not found")
	}
	if err != nil {
		return nil, dbError("failed to resolve api key", err)
	}
	return p, nil
}

// ProjectsByUser lists the user's projects, newest first.
func (s *Store) ProjectsByUser(ctx context.Context, userID string) ([]Project, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+projectColumns+`
		FROM projects p
		LEFT JOIN api_keys a ON a.project_id = p.id
		WHERE p.user_id = $1
		ORDER BY p.created_at DESC`, userID)
	if err != nil {
		return nil, dbError("failed to list projects", err)
	}
	defer rows.Close()

	return collectProjects(rows)
}

// AllProjects lists every project. The feed scheduler walks this on
// each cycle.
func (s *Store) AllProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+projectColumns+`
		FROM projects p
		LEFT JOIN api_keys a ON a.project_id = p.id
		ORDER BY p.created_at`)
	if err != nil {
		return nil, dbError("failed to list projects", err)
	}
	defer rows.Close()

	return collectProjects(rows)
}

// ProjectUpdate selects the fields to change; nil fields stay as they
// are.
type ProjectUpdate struct {
	Name           *string
	Domain         *string
	FeedURL        *string
	Status         *string
	AutoUpdate     *bool
	WidgetSettings *catalog.WidgetSettings
	SearchSettings *catalog.SearchSettings
	Synonyms       *catalog.SynonymGroups
}

// UpdateProject applies the non-nil fields and returns the fresh row.
func (s *Store) UpdateProject(ctx context.Context, projectID string, upd ProjectUpdate) (*Project, error) {
	var (
		set  []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if upd.Name != nil {
		add("name", *upd.Name)
	}
	if upd.Domain != nil {
		add("domain", *upd.Domain)
	}
	if upd.FeedURL != nil {
		add("feed_url", *upd.FeedURL)
	}
	if upd.Status != nil {
		add("status", *upd.Status)
	}
	if upd.AutoUpdate != nil {
		add("auto_update", *upd.AutoUpdate)
	}
	if upd.WidgetSettings != nil {
		raw, err := json.Marshal(upd.WidgetSettings)
		if err != nil {
			return nil, verrors.InternalError("failed to encode widget settings", err)
		}
		add("widget_settings", raw)
	}
	if upd.SearchSettings != nil {
		raw, err := json.Marshal(upd.SearchSettings)
		if err != nil {
			return nil, verrors.InternalError("failed to encode search settings", err)
		}
		add("search_settings", raw)
	}
	if upd.Synonyms != nil {
		groups := *upd.Synonyms
		if groups == nil {
			groups = catalog.SynonymGroups{}
		}
		raw, err := json.Marshal(groups)
		if err != nil {
			return nil, verrors.InternalError("failed to encode synonyms", err)
		}
		add("synonyms", raw)
	}

	if len(set) == 0 {
		return s.ProjectByID(ctx, projectID)
	}

	args = append(args, projectID)
	q := fmt.Sprintf("UPDATE projects SET %s WHERE id = $%d",
		strings.Join(set, ", "), len(args))

	ct, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return nil, dbError("failed to update project", err)
	}
	if ct.RowsAffected() == 0 {
		return nil, verrors.NotFoundError("project not found")
	}

	return s.ProjectByID(ctx, projectID)
}

// DeleteProject removes the project if it belongs to the user. API
// keys, backups and analytics rows cascade.
func (s *Store) DeleteProject(ctx context.Context, projectID, userID string) error {
	ct, err := s.pool.Exec(ctx, `
		DELETE FROM projects WHERE id = $1 AND user_id = $2`,
		projectID, userID)
	if err != nil {
		return dbError("failed to delete project", err)
	}
	if ct.RowsAffected() == 0 {
		return verrors.NotFoundError("project not found")
	}
	return nil
}

// RegenerateAPIKey atomically replaces the project's key.
func (s *Store) RegenerateAPIKey(ctx context.Context, projectID, newKey string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return dbError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		DELETE FROM api_keys WHERE project_id = $1`, projectID); err != nil {
		return dbError("failed to drop old api key", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO api_keys (key, project_id) VALUES ($1, $2)`,
		newKey, projectID); err != nil {
		return dbError("failed to insert new api key", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return dbError("failed to commit key rotation", err)
	}
	return nil
}

// UpdateProductsCount stores the size of the last successful indexing.
func (s *Store) UpdateProductsCount(ctx context.Context, projectID string, count int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE projects SET products_count = $1 WHERE id = $2`,
		count, projectID)
	if err != nil {
		return dbError("failed to update products count", err)
	}
	return nil
}

// SearchSettings returns the project's search settings with defaults
// applied, satisfying the search engine's settings source. An unknown
// project gets plain defaults so retrieval keeps working.
func (s *Store) SearchSettings(ctx context.Context, projectID string) (catalog.SearchSettings, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `
		SELECT search_settings FROM projects WHERE id = $1`, projectID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.DefaultSearchSettings(), nil
	}
	if err != nil {
		return catalog.SearchSettings{}, dbError("failed to read search settings", err)
	}
	return decodeSearchSettings(raw), nil
}

func collectProjects(rows pgx.Rows) ([]Project, error) {
	var out []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, dbError("failed to scan project", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("failed to list projects", err)
	}
	return out, nil
}

func scanProject(row pgx.Row) (*Project, error) {
	var p Project
	var domain, feedURL, apiKey *string
	var widgetRaw, searchRaw, synRaw []byte
	if err := row.Scan(&p.ID, &p.UserID, &p.Name, &domain, &feedURL, &p.Status,
		&p.ProductsCount, &p.AutoUpdate, &widgetRaw, &searchRaw, &synRaw,
		&p.CreatedAt, &apiKey); err != nil {
		return nil, err
	}

	if domain != nil {
		p.Domain = *domain
	}
	if feedURL != nil {
		p.FeedURL = *feedURL
	}
	if apiKey != nil {
		p.APIKey = *apiKey
	}
	p.WidgetSettings = decodeWidgetSettings(widgetRaw)
	p.SearchSettings = decodeSearchSettings(searchRaw)
	p.Synonyms = decodeSynonyms(synRaw)
	return &p, nil
}

// decode helpers lay stored JSONB over the defaults, so rows written
// before a settings field existed still read complete.

func decodeWidgetSettings(raw []byte) catalog.WidgetSettings {
	st := catalog.DefaultWidgetSettings()
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &st)
	}
	return st
}

func decodeSearchSettings(raw []byte) catalog.SearchSettings {
	st := catalog.DefaultSearchSettings()
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &st)
	}
	return st
}

func decodeSynonyms(raw []byte) catalog.SynonymGroups {
	groups := catalog.SynonymGroups{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &groups)
	}
	return groups
}
