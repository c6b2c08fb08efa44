package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const sqlStateUniqueViolation = "23505"

// transientStates are postgres SQLSTATEs worth retrying on the same statement:
// serialization failure, deadlock, admin shutdown, too many connections.
var transientStates = map[string]bool{
	"40001": true,
	"40P01": true,
	"57P01": true,
	"53300": true,
}

// IsUniqueViolation matches postgres 23505 errors and the sqlite equivalent.
// A non-empty constraint narrows the match to that index.
func IsUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	if pgErr, ok := asPgError(err); ok {
		return pgErr.Code == sqlStateUniqueViolation && (constraint == "" || pgErr.ConstraintName == constraint)
	}
	msg := err.Error()
	if constraint != "" {
		return strings.Contains(msg, constraint)
	}
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}

// IsTransient reports whether err is worth retrying. Context cancellation
// never is.
func IsTransient(err error) bool {
	switch {
	case err == nil,
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, driver.ErrBadConn):
		return true
	}
	if pgErr, ok := asPgError(err); ok {
		// class 08: connection exceptions
		return strings.HasPrefix(pgErr.Code, "08") || transientStates[pgErr.Code]
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "connection reset by peer")
}

func asPgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	ok := errors.As(err, &pgErr)
	return pgErr, ok
}
