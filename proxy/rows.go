package proxy

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibur/vibur-go"
)

// Rows is the proxy wrapping a *sql.Rows (the result-set surface). Each
// Next() call returning true increments a row counter; Close fires the
// ResultSetRetrieval hook with the final count and the elapsed time
// since the first Next call.
type Rows struct {
	rows  *sql.Rows
	hooks *vibur.HookRegistry
	ctx   context.Context

	rowCount  int
	firstNext time.Time
	closed    bool
}

func newRows(rows *sql.Rows, hooks *vibur.HookRegistry, ctx context.Context) *Rows {
	return &Rows{rows: rows, hooks: hooks, ctx: ctx}
}

// Next proxies (*sql.Rows).Next, counting successful advances.
func (r *Rows) Next() bool {
	if r.firstNext.IsZero() {
		r.firstNext = time.Now()
	}
	ok := r.rows.Next()
	if ok {
		r.rowCount++
	}
	return ok
}

// Scan proxies (*sql.Rows).Scan.
func (r *Rows) Scan(dest ...interface{}) error { return r.rows.Scan(dest...) }

// Columns proxies (*sql.Rows).Columns.
func (r *Rows) Columns() ([]string, error) { return r.rows.Columns() }

// Err proxies (*sql.Rows).Err.
func (r *Rows) Err() error { return r.rows.Err() }

// Close closes the underlying rows and fires ResultSetRetrieval once,
// idempotently.
func (r *Rows) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	var elapsed time.Duration
	if !r.firstNext.IsZero() {
		elapsed = time.Since(r.firstNext)
	}
	r.hooks.RunResultSetRetrieval(r.ctx, r.rowCount, elapsed)
	return r.rows.Close()
}
