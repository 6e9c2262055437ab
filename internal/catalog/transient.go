package catalog

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"strings"
	"syscall"

	"github.com/cloudflare/ahocorasick"
	"github.com/lib/pq"
)

// transientPatterns are lower-case fragments of connection-level failures
// that reach us only as wrapped error text.
var transientPatterns = []string{
	"connection reset",
	"connection refused",
	"connection closed",
	"connection_closed",
	"broken pipe",
	"bad connection",
	"econnreset",
	"unexpected eof",
	"server closed the connection",
	"terminating connection",
	"the database system is shutting down",
	"the database system is starting up",
	// database/sql on a pool closed by another caller's reset
	"sql: database is closed",
}

var transientMatcher = ahocorasick.NewStringMatcher(transientPatterns)

// IsTransient reports whether err is a connection-class storage failure that
// a fresh connection may fix. Cancellation and SQL-level errors are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	switch {
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code.Class() == "08":
			return true
		case pqErr.Code == "57P01", pqErr.Code == "57P02", pqErr.Code == "57P03":
			return true
		default:
			return false
		}
	}

	return len(transientMatcher.Match([]byte(strings.ToLower(err.Error())))) > 0
}
