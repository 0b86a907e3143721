package db

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// IsUnavailable reports whether an error means the database itself is
// unreachable, as opposed to a statement that failed. Unavailability drives
// the 503 path: Retry-After headers and the reconnection worker.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exception. 57P01..57P03: server shutdown
		// and cannot-connect-now states.
		if strings.HasPrefix(pgErr.Code, "08") {
			return true
		}
		switch pgErr.Code {
		case "57P01", "57P02", "57P03":
			return true
		}
		return false
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// Deadline expiry while dialing surfaces as a bare context error.
	return errors.Is(err, context.DeadlineExceeded)
}
