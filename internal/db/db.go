package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS translation_requests (
	id                 UUID PRIMARY KEY,
	source_language    TEXT NOT NULL,
	target_language    TEXT NOT NULL,
	provider           TEXT NOT NULL,
	filename           TEXT NOT NULL DEFAULT '',
	audio_size_bytes   BIGINT,
	converted          BOOLEAN NOT NULL DEFAULT FALSE,
	recognized         TEXT,
	transcript         TEXT,
	fallback           BOOLEAN NOT NULL DEFAULT FALSE,
	voice              TEXT,
	transcript_url     TEXT,
	audio_url          TEXT,
	status             TEXT NOT NULL,
	failed_stage       TEXT,
	error_message      TEXT,
	processing_time_ms INTEGER,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS translation_requests_created_at_idx ON translation_requests (created_at DESC);
`

// Open connects to Postgres, verifies the connection and makes sure the
// history table exists.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	conn, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := conn.ExecContext(ctx, schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return conn, nil
}
