package clickhouse

import (
	"database/sql"
	"errors"
)

// isNoRows reports whether a QueryRow scan found nothing.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
