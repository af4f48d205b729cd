package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"complaint_server/core/port/out"
)

// =============================================================================
// SyncCursorAdapter - last processed received time per mailbox
// =============================================================================

type SyncCursorAdapter struct {
	db *sqlx.DB
}

var _ out.SyncCursorStore = (*SyncCursorAdapter)(nil)

func NewSyncCursorAdapter(db *sqlx.DB) *SyncCursorAdapter {
	return &SyncCursorAdapter{db: db}
}

func (a *SyncCursorAdapter) GetCursor(ctx context.Context, mailbox string) (time.Time, bool, error) {
	var at time.Time
	query := `SELECT last_received_at FROM sync_cursor WHERE mailbox = $1`
	if err := a.db.GetContext(ctx, &at, query, mailbox); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to get sync cursor: %w", err)
	}
	return at.UTC(), true, nil
}

// SetCursor never moves the cursor backwards.
func (a *SyncCursorAdapter) SetCursor(ctx context.Context, mailbox string, at time.Time) error {
	query := `
		INSERT INTO sync_cursor (mailbox, last_received_at)
		VALUES ($1, $2)
		ON CONFLICT (mailbox) DO UPDATE SET
			last_received_at = GREATEST(sync_cursor.last_received_at, EXCLUDED.last_received_at),
			updated_at = NOW()`
	if _, err := a.db.ExecContext(ctx, query, mailbox, at.UTC()); err != nil {
		return fmt.Errorf("failed to set sync cursor: %w", err)
	}
	return nil
}
