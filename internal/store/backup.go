package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/vitrina-search/vitrina/internal/catalog"
)

// ReplaceProductsBackup swaps the project's durable product snapshot
// for the given set. The indexer calls it in the background after each
// successful rebuild; `vitrina index restore` reads it back.
func (s *Store) ReplaceProductsBackup(ctx context.Context, projectID string, products []catalog.Product) error {
	// Last write wins for duplicate ids, same as the KV product keys.
	payloads := make(map[string]string, len(products))
	for _, p := range products {
		if p.ID == "" {
			continue
		}
		raw, err := p.MarshalString()
		if err != nil {
			s.logger.Warn("skipping unencodable product in backup",
				"project_id", projectID, "product_id", p.ID, "err", err)
			continue
		}
		payloads[p.ID] = raw
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return dbError("failed to begin backup transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		DELETE FROM products_backup WHERE project_id = $1`, projectID); err != nil {
		return dbError("failed to clear previous backup", err)
	}

	if len(payloads) > 0 {
		rows := make([][]any, 0, len(payloads))
		for id, raw := range payloads {
			rows = append(rows, []any{projectID, id, raw})
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"products_backup"},
			[]string{"project_id", "product_id", "payload"},
			pgx.CopyFromRows(rows)); err != nil {
			return dbError("failed to write products backup", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return dbError("failed to commit products backup", err)
	}
	return nil
}

// ProductsBackup reads the project's snapshot back, ordered by product
// id. Rows that no longer decode are skipped.
func (s *Store) ProductsBackup(ctx context.Context, projectID string) ([]catalog.Product, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT payload FROM products_backup
		WHERE project_id = $1
		ORDER BY product_id`, projectID)
	if err != nil {
		return nil, dbError("failed to read products backup", err)
	}
	defer rows.Close()

	var out []catalog.Product
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, dbError("failed to scan backup row", err)
		}
		p, err := catalog.UnmarshalProduct(raw)
		if err != nil {
			s.logger.Warn("skipping undecodable backup row",
				"project_id", projectID, "err", err)
			continue
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("failed to read products backup", err)
	}
	return out, nil
}
