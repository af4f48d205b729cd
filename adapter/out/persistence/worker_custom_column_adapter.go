package persistence

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"complaint_server/core/port/out"
)

// CustomColumnAdapter stores user-defined columns next to complaints.
type CustomColumnAdapter struct {
	db *sqlx.DB
}

var _ out.CustomColumnStore = (*CustomColumnAdapter)(nil)

func NewCustomColumnAdapter(db *sqlx.DB) *CustomColumnAdapter {
	return &CustomColumnAdapter{db: db}
}

func (a *CustomColumnAdapter) ListColumns(ctx context.Context) ([]string, error) {
	var names []string
	if err := a.db.SelectContext(ctx, &names, `SELECT name FROM complaint_custom_columns ORDER BY created_at, name`); err != nil {
		return nil, fmt.Errorf("failed to list custom columns: %w", err)
	}
	return names, nil
}

// SetCustomValue registers the column if needed and writes the value.
func (a *CustomColumnAdapter) SetCustomValue(ctx context.Context, conversationID, column, value string) error {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO complaint_custom_columns (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, column); err != nil {
		return wrapWrite(conversationID, "register custom column", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO complaint_custom_values (conversation_id, column_name, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (conversation_id, column_name) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = NOW()`, conversationID, column, value); err != nil {
		return wrapWrite(conversationID, "set custom value", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit custom value: %w", err)
	}
	return nil
}

func (a *CustomColumnAdapter) CustomValues(ctx context.Context, conversationID string) (map[string]string, error) {
	var rows []struct {
		Column string `db:"column_name"`
		Value  string `db:"value"`
	}
	query := `SELECT column_name, value FROM complaint_custom_values WHERE conversation_id = $1`
	if err := a.db.SelectContext(ctx, &rows, query, conversationID); err != nil {
		return nil, fmt.Errorf("failed to get custom values: %w", err)
	}
	values := make(map[string]string, len(rows))
	for _, r := range rows {
		values[r.Column] = r.Value
	}
	return values, nil
}
