// Package proxy implements the proxy layer (C8): every connection handed
// to an application is a proxy wrapping a ConnHolder, enforcing closed-
// state semantics, capturing errors for the restore-time critical-
// SQLSTATE scan, consulting the statement cache, and firing invocation
// hooks. The proxy layer operates over the database/sql surface
// (*sql.Conn), the common path for the MySQL, SQLite, and SQL Server
// Connectors; a Postgres ConnHolder built via the pgx Connector is
// consumed directly through its native *pgx.Conn for callers who need
// pgx's richer API, bypassing this layer by design.
package proxy

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vibur/vibur-go"
	"github.com/vibur/vibur-go/logging"
	"github.com/vibur/vibur-go/stmtcache"
)

// Connection is the proxy wrapping a borrowed ConnHolder's *sql.Conn.
type Connection struct {
	holder *vibur.ConnHolder
	conn   *sql.Conn
	ops    *vibur.PoolOperations
	hooks  *vibur.HookRegistry
	cache  *stmtcache.Cache
	cfg    *vibur.Config
	logger logging.Logger

	closed atomic.Bool

	errsMu sync.Mutex
	errs   []error
}

// New wraps holder's native *sql.Conn in a Connection proxy. ops is used
// to restore the holder through C7 when the proxy is closed.
func New(holder *vibur.ConnHolder, ops *vibur.PoolOperations, hooks *vibur.HookRegistry, cache *stmtcache.Cache, cfg *vibur.Config, logger logging.Logger) (*Connection, error) {
	conn, ok := holder.Native().(*sql.Conn)
	if !ok {
		return nil, fmt.Errorf("vibur/proxy: holder's native connection is not a *sql.Conn (%T)", holder.Native())
	}
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Connection{holder: holder, conn: conn, ops: ops, hooks: hooks, cache: cache, cfg: cfg, logger: logger}, nil
}

func (c *Connection) recordErr(err error) error {
	if err == nil {
		return nil
	}
	c.errsMu.Lock()
	c.errs = append(c.errs, err)
	c.errsMu.Unlock()
	return err
}

func (c *Connection) guard(method string) error {
	if c.closed.Load() {
		return vibur.ErrObjectClosed("connection")
	}
	c.holder.Touch()
	return c.hooks.RunMethodInvocation(context.Background(), method)
}

// ExecContext proxies (*sql.Conn).ExecContext, wrapped in the
// StatementExecution hook chain and error capture.
func (c *Connection) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if err := c.guard("ExecContext"); err != nil {
		return nil, err
	}

	var res sql.Result
	var err error
	start := time.Now()
	hookErr := c.hooks.RunStatementExecution(ctx, query, args, func() error {
		res, err = c.conn.ExecContext(ctx, query, args...)
		return err
	})
	c.maybeLogSlowQuery(query, time.Since(start))
	if hookErr != nil {
		return nil, c.recordErr(hookErr)
	}
	if err != nil {
		return nil, c.recordErr(err)
	}
	return res, nil
}

// QueryContext proxies (*sql.Conn).QueryContext and wraps the returned
// rows in Rows, which enforces ResultSetRetrieval accounting.
func (c *Connection) QueryContext(ctx context.Context, query string, args ...interface{}) (*Rows, error) {
	if err := c.guard("QueryContext"); err != nil {
		return nil, err
	}

	var rows *sql.Rows
	var err error
	start := time.Now()
	hookErr := c.hooks.RunStatementExecution(ctx, query, args, func() error {
		rows, err = c.conn.QueryContext(ctx, query, args...)
		return err
	})
	c.maybeLogSlowQuery(query, time.Since(start))
	if hookErr != nil {
		return nil, c.recordErr(hookErr)
	}
	if err != nil {
		return nil, c.recordErr(err)
	}
	return newRows(rows, c.hooks, ctx), nil
}

// PrepareContext consults the statement cache by a fingerprint of
// (connection identity, SQL text, call signature): a cache hit returns
// the cached *sql.Stmt wrapped so Close releases it back to the cache
// instead of closing it; a miss prepares a fresh statement and inserts
// it (or bypasses the cache entirely when StatementCacheMaxSize is 0 or
// the key is already IN_USE by another caller).
func (c *Connection) PrepareContext(ctx context.Context, query string) (*Statement, error) {
	if err := c.guard("PrepareContext"); err != nil {
		return nil, err
	}

	key := stmtcache.Key{ConnID: c.holder.ID(), SQL: query, Signature: "PrepareContext"}
	raw, cached, err := c.cache.TakeOrCreate(key, func() (stmtcache.RawStatement, error) {
		return c.conn.PrepareContext(ctx, query)
	})
	if err != nil {
		return nil, c.recordErr(err)
	}

	stmt := raw.(*sql.Stmt)
	return &Statement{conn: c, stmt: stmt, key: key, cached: cached, query: query}, nil
}

func (c *Connection) maybeLogSlowQuery(query string, elapsed time.Duration) {
	if c.cfg.LogQueryExecutionLongerThan > 0 && elapsed >= c.cfg.LogQueryExecutionLongerThan {
		c.logger.Warn(context.Background(), "slow query", logging.String("sql", query), logging.Duration("elapsed", elapsed))
	}
}

// IsClosed reports whether Close/Abort has already run.
func (c *Connection) IsClosed() bool { return c.closed.Load() }

// Close transitions the proxy to CLOSED and restores the underlying
// holder through PoolOperations.Restore, carrying whatever errors were
// captured during this borrow.
func (c *Connection) Close() error {
	return c.close(true)
}

// Abort behaves like Close but marks the holder unconditionally
// non-reusable, forcing it to be destroyed rather than returned to the
// pool — used when the application judges the connection unsalvageable.
func (c *Connection) Abort() error {
	return c.close(false)
}

func (c *Connection) close(maybeReusable bool) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.errsMu.Lock()
	errs := c.errs
	c.errsMu.Unlock()

	c.ops.Restore(context.Background(), c.holder, maybeReusable, errs)
	return nil
}

// Unwrap returns the underlying *sql.Conn iff AllowUnwrapping is set on
// the configuration; otherwise it raises VI005.
func (c *Connection) Unwrap() (*sql.Conn, error) {
	if !c.cfg.AllowUnwrapping {
		return nil, vibur.ErrWrapper()
	}
	return c.conn, nil
}

// IsWrapperFor reports whether Unwrap would succeed, without raising an error.
func (c *Connection) IsWrapperFor() bool { return c.cfg.AllowUnwrapping }
