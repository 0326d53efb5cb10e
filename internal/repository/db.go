package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

// Open opens (or creates) the sqlite history store at path. Pass ":memory:"
// for an ephemeral store.
func Open(ctx context.Context, path string, logger *slog.Logger) (*sql.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("opening database", "path", path)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent job updates.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("database ready")
	return db, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS extraction_jobs (
	id            TEXT PRIMARY KEY,
	batch_id      TEXT NOT NULL,
	file_name     TEXT NOT NULL,
	status        TEXT NOT NULL,
	error_message TEXT,
	company_name  TEXT,
	completeness  TEXT,
	result_json   TEXT,
	created_at    TIMESTAMP NOT NULL,
	finished_at   TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_extraction_jobs_batch ON extraction_jobs(batch_id);
CREATE INDEX IF NOT EXISTS idx_extraction_jobs_created ON extraction_jobs(created_at);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
