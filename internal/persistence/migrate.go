package persistence

import (
	"context"
	"database/sql"
	"fmt"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL UNIQUE,
		transport TEXT NOT NULL,
		address TEXT,
		result TEXT NOT NULL,
		instructions_sent INTEGER NOT NULL,
		did_print INTEGER NOT NULL,
		ready_for_next_job INTEGER NOT NULL,
		bytes INTEGER NOT NULL,
		frames INTEGER NOT NULL,
		malformed_frames INTEGER NOT NULL,
		printer_state TEXT,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_started_at ON jobs(started_at DESC);`,
}

// migrate applies the schema; every statement is idempotent.
func migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, stmt := range migrations {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration tx: %w", err)
	}

	return nil
}
