// Package postgres provides PostgreSQL implementations of the ledger repositories.
// Every scoped call filters by program, and status writes are guarded in SQL so a
// terminal row can never be changed.
package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
