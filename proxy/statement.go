package proxy

import (
	"context"
	"database/sql"
	"sync/atomic"
	"time"

	"github.com/vibur/vibur-go"
	"github.com/vibur/vibur-go/stmtcache"
)

// Statement is the proxy wrapping a prepared *sql.Stmt, possibly backed
// by a statement-cache entry. Close returns a cached entry to the cache
// (marking it AVAILABLE) instead of closing the raw statement; an
// uncached statement is closed outright.
type Statement struct {
	conn   *Connection
	stmt   *sql.Stmt
	key    stmtcache.Key
	cached bool
	query  string

	closed atomic.Bool
	params []interface{}
}

// SetParam records a parameter value at index when query-parameter
// recording is enabled. The value is not bound to the statement: an
// Exec/Query call made without arguments hands the recorded values to
// the StatementExecution hook (a call with arguments hands the hook its
// own arguments instead). Recorded values stay until ClearParameters.
func (s *Statement) SetParam(index int, value interface{}) {
	if !s.conn.cfg.IncludeQueryParameters {
		return
	}
	for len(s.params) <= index {
		s.params = append(s.params, nil)
	}
	s.params[index] = value
}

// ClearParameters discards recorded parameter bindings.
func (s *Statement) ClearParameters() { s.params = nil }

func (s *Statement) guard() error {
	if s.closed.Load() {
		return vibur.ErrObjectClosed("statement")
	}
	return s.conn.guard("Statement")
}

// ExecContext proxies (*sql.Stmt).ExecContext through the
// StatementExecution hook chain.
func (s *Statement) ExecContext(ctx context.Context, args ...interface{}) (sql.Result, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	var res sql.Result
	var err error
	start := time.Now()
	hookErr := s.conn.hooks.RunStatementExecution(ctx, s.query, s.execArgs(args), func() error {
		res, err = s.stmt.ExecContext(ctx, args...)
		return err
	})
	s.conn.maybeLogSlowQuery(s.query, time.Since(start))
	if hookErr != nil {
		return nil, s.conn.recordErr(hookErr)
	}
	if err != nil {
		return nil, s.conn.recordErr(err)
	}
	return res, nil
}

// QueryContext proxies (*sql.Stmt).QueryContext and wraps the result in Rows.
func (s *Statement) QueryContext(ctx context.Context, args ...interface{}) (*Rows, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	var rows *sql.Rows
	var err error
	start := time.Now()
	hookErr := s.conn.hooks.RunStatementExecution(ctx, s.query, s.execArgs(args), func() error {
		rows, err = s.stmt.QueryContext(ctx, args...)
		return err
	})
	s.conn.maybeLogSlowQuery(s.query, time.Since(start))
	if hookErr != nil {
		return nil, s.conn.recordErr(hookErr)
	}
	if err != nil {
		return nil, s.conn.recordErr(err)
	}
	return newRows(rows, s.conn.hooks, ctx), nil
}

func (s *Statement) execArgs(args []interface{}) []interface{} {
	if len(args) > 0 || len(s.params) == 0 {
		return args
	}
	return s.params
}

// Close returns a cached statement to the cache as AVAILABLE, or closes
// an uncached statement outright. Idempotent.
func (s *Statement) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.cached {
		s.conn.cache.Release(s.key)
		return nil
	}
	return s.stmt.Close()
}
