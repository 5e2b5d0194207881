// Package db provides the Connector contract (the pool's sole means of
// producing one raw physical database connection) and concrete
// implementations over database/sql drivers and pgx, matching the three
// Connector variants enumerated in the pool specification: a driver DSN
// plus credentials, an externally built data source with default
// credentials, and an externally built data source with explicit
// credentials.
package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// RawConn is the single physical database connection a Connector hands to
// the pool. It is owned exclusively by one ConnHolder at a time.
type RawConn interface {
	PingContext(ctx context.Context) error
	Close() error
	// Native returns the driver-specific handle (*sql.Conn, *pgx.Conn, ...)
	// for callers that need type-specific access, e.g. the proxy layer.
	Native() interface{}
}

// Connector produces one raw connection on demand. Implementations must
// not pool connections themselves — Vibur's pool is the only connection
// pool in the stack.
type Connector interface {
	Connect(ctx context.Context) (RawConn, error)
}

// sqlRawConn adapts *sql.Conn, obtained from a *sql.DB via Conn(ctx), to RawConn.
type sqlRawConn struct {
	conn *sql.Conn
}

func (c *sqlRawConn) PingContext(ctx context.Context) error { return c.conn.PingContext(ctx) }
func (c *sqlRawConn) Close() error                           { return c.conn.Close() }
func (c *sqlRawConn) Native() interface{}                    { return c.conn }

// DriverConnector is Connector variant (a): a database/sql driver name plus
// a DSN, with optional credentials appended to the DSN. Properties is
// stored on the connector but is not passed to the driver.
type DriverConnector struct {
	DriverName string
	DSN        string
	Properties map[string]string
	User       string
	Password   string

	db *sql.DB
}

// NewDriverConnector creates a Connector that opens physical connections
// through the standard database/sql driver registry (used for MySQL,
// SQLite, and SQL Server in this module).
func NewDriverConnector(driverName, dsn string, properties map[string]string) *DriverConnector {
	return &DriverConnector{DriverName: driverName, DSN: dsn, Properties: properties}
}

// WithCredentials returns a copy of this connector carrying explicit
// credentials, which Connect appends to the DSN; Properties is not used.
func (c *DriverConnector) WithCredentials(user, password string) *DriverConnector {
	clone := *c
	clone.User = user
	clone.Password = password
	clone.db = nil
	return &clone
}

func (c *DriverConnector) dsnWithCredentials() string {
	if c.User == "" && c.Password == "" {
		return c.DSN
	}
	// Driver-specific DSN templating is out of scope here; callers that need
	// per-call credentials should supply a DSN template consumed by their
	// own driver package. We append as generic key=value pairs understood
	// by drivers that accept them (e.g. lib/pq, mssql).
	return fmt.Sprintf("%s user=%s password=%s", c.DSN, c.User, c.Password)
}

// Connect lazily opens (once) the underlying *sqlx.DB and checks out one
// physical connection from it.
func (c *DriverConnector) Connect(ctx context.Context) (RawConn, error) {
	if c.db == nil {
		sqlxDB, err := sqlx.ConnectContext(ctx, c.DriverName, c.dsnWithCredentials())
		if err != nil {
			return nil, fmt.Errorf("vibur: opening %s driver: %w", c.DriverName, err)
		}
		// The pool itself enforces the single-physical-connection
		// invariant; database/sql must not keep its own idle pool behind it.
		sqlxDB.SetMaxIdleConns(0)
		c.db = sqlxDB.DB
	}

	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("vibur: checking out %s connection: %w", c.DriverName, err)
	}
	return &sqlRawConn{conn: conn}, nil
}

// Close releases the underlying *sql.DB, if one was opened.
func (c *DriverConnector) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// ExternalConnector is Connector variants (b) and (c): an already-built
// external data source, invoked through a caller-supplied opener. Passing
// an Open func that ignores credentials gives variant (b) (default
// credentials); one that rebuilds its target per-call from User/Password
// gives variant (c).
type ExternalConnector struct {
	Open     func(ctx context.Context, user, password string) (RawConn, error)
	User     string
	Password string
}

// NewExternalConnector wraps an existing externally configured data source
// (spec variant b: default credentials).
func NewExternalConnector(open func(ctx context.Context) (RawConn, error)) *ExternalConnector {
	return &ExternalConnector{Open: func(ctx context.Context, _, _ string) (RawConn, error) { return open(ctx) }}
}

// NewExternalConnectorWithCredentials wraps an externally configured data
// source that accepts explicit per-call credentials (spec variant c).
func NewExternalConnectorWithCredentials(user, password string, open func(ctx context.Context, user, password string) (RawConn, error)) *ExternalConnector {
	return &ExternalConnector{Open: open, User: user, Password: password}
}

func (c *ExternalConnector) Connect(ctx context.Context) (RawConn, error) {
	return c.Open(ctx, c.User, c.Password)
}
