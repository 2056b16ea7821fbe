package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// AnalyticsDay is one day of rolled-up counters.
type AnalyticsDay struct {
	Day     string `json:"day"`
	Queries int    `json:"queries"`
	Clicks  int    `json:"clicks"`
}

// UpsertAnalyticsDays archives daily rollups. The KV counters expire
// after thirty days; this table keeps the history. GREATEST guards the
// stored values against a snapshot taken after a counter expired.
func (s *Store) UpsertAnalyticsDays(ctx context.Context, projectID string, days []AnalyticsDay) error {
	if len(days) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, d := range days {
		batch.Queue(`
			INSERT INTO analytics_daily (project_id, day, queries, clicks)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (project_id, day) DO UPDATE SET
				queries = GREATEST(analytics_daily.queries, EXCLUDED.queries),
				clicks  = GREATEST(analytics_daily.clicks, EXCLUDED.clicks)`,
			projectID, d.Day, d.Queries, d.Clicks)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range days {
		if _, err := br.Exec(); err != nil {
			return dbError("failed to archive analytics", err)
		}
	}
	return nil
}

// AnalyticsHistory reads the archived rollups, oldest first.
func (s *Store) AnalyticsHistory(ctx context.Context, projectID string, limit int) ([]AnalyticsDay, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := s.pool.Query(ctx, `
		SELECT to_char(day, 'YYYY-MM-DD'), queries, clicks
		FROM analytics_daily
		WHERE project_id = $1
		ORDER BY day DESC
		LIMIT $2`, projectID, limit)
	if err != nil {
		return nil, dbError("failed to read analytics history", err)
	}
	defer rows.Close()

	var out []AnalyticsDay
	for rows.Next() {
		var d AnalyticsDay
		if err := rows.Scan(&d.Day, &d.Queries, &d.Clicks); err != nil {
			return nil, dbError("failed to scan analytics row", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("failed to read analytics history", err)
	}

	// Oldest first for charting.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
