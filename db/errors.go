package db

import (
	"strings"

	"github.com/filehaven/filehaven/errors"
)

// ErrDatabaseClosed is returned when operations are attempted on a closed
// database. This typically happens during graceful shutdown when the
// connection is closed before every goroutine has finished its work.
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed checks if an error indicates the database connection is
// closed. Handles both wrapped ErrDatabaseClosed errors and raw sql/sqlite
// driver errors, which we cannot wrap at the source.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrDatabaseClosed) {
		return true
	}

	errMsg := err.Error()
	return strings.Contains(errMsg, "database is closed") ||
		strings.Contains(errMsg, "sql: database is closed")
}
