package persistence

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is applied idempotently at start-up.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS complaints (
		conversation_id       TEXT PRIMARY KEY,
		case_key              TEXT NOT NULL CHECK (case_key <> ''),
		part_number           TEXT NOT NULL,
		category              TEXT NOT NULL,
		summary               TEXT NOT NULL DEFAULT '',
		is_complaint          BOOLEAN NOT NULL DEFAULT FALSE,
		classification_status TEXT NOT NULL,
		from_email            TEXT NOT NULL DEFAULT '',
		subject               TEXT NOT NULL DEFAULT '',
		received_at           TIMESTAMPTZ NOT NULL,
		origin_sender         TEXT,
		origin_sent_at        TIMESTAMPTZ,
		origin_confidence     TEXT NOT NULL DEFAULT 'unresolved'
			CHECK (origin_confidence IN ('header-parsed', 'inline-parsed', 'unresolved')),
		initiator_email       TEXT,
		first_seen_at         TIMESTAMPTZ NOT NULL,
		thread_url            TEXT,
		matched_rules         TEXT[] NOT NULL DEFAULT '{}',
		duplicate_of          TEXT,
		created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_complaints_case_key ON complaints (case_key, received_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_complaints_received_at ON complaints (received_at)`,
	`CREATE TABLE IF NOT EXISTS complaint_custom_columns (
		name       TEXT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS complaint_custom_values (
		conversation_id TEXT NOT NULL REFERENCES complaints (conversation_id) ON DELETE CASCADE,
		column_name     TEXT NOT NULL REFERENCES complaint_custom_columns (name) ON DELETE CASCADE,
		value           TEXT NOT NULL DEFAULT '',
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (conversation_id, column_name)
	)`,
	`CREATE TABLE IF NOT EXISTS sync_cursor (
		mailbox          TEXT PRIMARY KEY,
		last_received_at TIMESTAMPTZ NOT NULL,
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate creates the tables this package reads and writes.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
