package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RunSchema creates tables and indexes if they don't exist
func RunSchema(ctx context.Context, pool *pgxpool.Pool, tables *TableNames) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS ` + tables.Calls + ` (
			id UUID PRIMARY KEY,
			provider_call_id TEXT NOT NULL UNIQUE,
			direction TEXT NOT NULL DEFAULT 'inbound',
			caller_number TEXT NOT NULL DEFAULT '',
			callee_number TEXT NOT NULL DEFAULT '',
			caller_country TEXT NOT NULL DEFAULT '',
			language TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			start_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			end_time TIMESTAMPTZ,
			duration INTEGER NOT NULL DEFAULT 0,
			transcript TEXT NOT NULL DEFAULT '',
			transcript_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			full_transcript TEXT NOT NULL DEFAULT '',
			transcription_status TEXT NOT NULL DEFAULT '',
			turn_count INTEGER NOT NULL DEFAULT 0 CHECK (turn_count >= 0),
			empty_turns INTEGER NOT NULL DEFAULT 0,
			intent TEXT NOT NULL DEFAULT 'unknown',
			priority TEXT NOT NULL DEFAULT 'low',
			emergency_detected BOOLEAN NOT NULL DEFAULT FALSE,
			emergency_severity TEXT NOT NULL DEFAULT 'none',
			emergency_keywords TEXT[] NOT NULL DEFAULT '{}',
			emergency_context TEXT NOT NULL DEFAULT '',
			ai_response TEXT NOT NULL DEFAULT '',
			system_context TEXT NOT NULL DEFAULT '',
			follow_up_instructions TEXT NOT NULL DEFAULT '',
			recording_id TEXT NOT NULL DEFAULT '',
			recording_url TEXT NOT NULL DEFAULT '',
			recording_duration INTEGER NOT NULL DEFAULT 0,
			initiated_by TEXT NOT NULL DEFAULT 'system',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS ` + tables.Calls + `_created_at_idx ON ` + tables.Calls + ` (created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS ` + tables.Providers + ` (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			specialization TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			longitude DOUBLE PRECISION NOT NULL,
			latitude DOUBLE PRECISION NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			rating DOUBLE PRECISION,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (name, phone)
		)`,
		`CREATE INDEX IF NOT EXISTS ` + tables.Providers + `_active_idx ON ` + tables.Providers + ` (is_active)`,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("run schema: %w", err)
		}
	}
	return nil
}

// DropTables removes every table for the prefix
func DropTables(ctx context.Context, pool *pgxpool.Pool, tables *TableNames) error {
	for _, table := range tables.All() {
		if _, err := pool.Exec(ctx, `DROP TABLE IF EXISTS `+table+` CASCADE`); err != nil {
			return fmt.Errorf("drop %s: %w", table, err)
		}
	}
	return nil
}
