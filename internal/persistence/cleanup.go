package persistence

import (
	"context"
	"database/sql"
	"fmt"
)

//goland:noinspection SqlWithoutWhere
func ClearHistory(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("database is not initialized")
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM jobs;`); err != nil {
		return fmt.Errorf("clear job history: %w", err)
	}

	return nil
}

// PruneHistory keeps the newest keep jobs and deletes the rest. keep <= 0 disables pruning.
func PruneHistory(ctx context.Context, db *sql.DB, keep int) (int64, error) {
	if db == nil {
		return 0, fmt.Errorf("database is not initialized")
	}
	if keep <= 0 {
		return 0, nil
	}

	res, err := db.ExecContext(ctx, `
		DELETE FROM jobs
		WHERE id NOT IN (
			SELECT id FROM jobs ORDER BY started_at DESC, id DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune job history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune job history: %w", err)
	}

	return n, nil
}
