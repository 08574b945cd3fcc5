package db

import (
	"strings"

	"github.com/teranos/backfill/errors"
)

// ErrDatabaseClosed is returned when a query runs after the store was closed,
// typically because the selector already released its connection.
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed checks if an error indicates the database connection is closed.
// database/sql, go-sqlite3 and pgxpool each report this with their own
// unexported errors, so the message is matched as a fallback.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDatabaseClosed) {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "database is closed") ||
		strings.Contains(msg, "closed pool")
}
