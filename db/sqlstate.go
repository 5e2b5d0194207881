package db

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// sqlStater is implemented by any driver error that exposes a five-
// character SQLSTATE directly.
type sqlStater interface {
	SQLState() string
}

// ExtractSQLState recovers the five-character SQLSTATE carried by a
// driver error, trying the concrete error types of the Postgres (pgx,
// lib/pq) and MySQL drivers before falling back to a generic interface
// check. SQLite and SQL Server driver errors are not mapped and yield a
// state only if they implement SQLState() string. It
// returns the empty string when no SQLSTATE can be determined, which
// callers must treat as "not a recognized critical failure" rather than
// as an error in its own right.
func ExtractSQLState(err error) string {
	if err == nil {
		return ""
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		// MySQL errors are classified by their vendor error Number only;
		// MySQLError's SQLState field is not consulted. Map the handful
		// of error numbers that matter for critical-failure detection
		// onto their standard SQLSTATE equivalents.
		return mysqlErrnoToSQLState(myErr.Number)
	}

	var generic sqlStater
	if errors.As(err, &generic) {
		return generic.SQLState()
	}

	return ""
}

// mysqlErrnoToSQLState maps the MySQL server error numbers that
// correspond to connection-fatal conditions onto the SQLSTATEs Vibur's
// default critical set already recognizes.
func mysqlErrnoToSQLState(errno uint16) string {
	switch errno {
	case 2002, 2003, 2006, 2013:
		// Can't connect / server gone away / lost connection.
		return "08006"
	case 1053:
		// Server shutdown in progress.
		return "57P01"
	default:
		return ""
	}
}
