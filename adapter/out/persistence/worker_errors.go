package persistence

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"complaint_server/pkg/apperr"
)

// Postgres SQLSTATE codes that reject a single row.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgNotNullViolation    = "23502"
)

// isRowRejection reports constraint violations caused by the row itself.
func isRowRejection(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgUniqueViolation, pgForeignKeyViolation, pgCheckViolation, pgNotNullViolation:
		return true
	}
	return false
}

// wrapWrite maps row rejections to PERSISTENCE_CONFLICT and leaves other
// errors as database failures.
func wrapWrite(conversationID, op string, err error) error {
	if err == nil {
		return nil
	}
	if isRowRejection(err) {
		return apperr.PersistenceConflict(conversationID, err)
	}
	return apperr.DatabaseError(op, err)
}
