package vibur

import (
	"context"
	"sync/atomic"
	"time"
)

// InitConnectionHook runs once after a raw connection is created, before
// it is handed to the pool. A returned error aborts creation.
type InitConnectionHook func(ctx context.Context, conn RawConnHandle) error

// GetConnectionHook runs each time a holder is handed out to a caller.
// elapsed excludes physical connection creation time.
type GetConnectionHook func(ctx context.Context, conn RawConnHandle, elapsed time.Duration) error

// CloseConnectionHook runs each time a holder is restored to the pool.
type CloseConnectionHook func(ctx context.Context, conn RawConnHandle, elapsed time.Duration) error

// DestroyConnectionHook runs once when a holder is destroyed; it also runs
// when an InitConnection hook rejects a freshly created raw connection.
// It has no error return, so it cannot fail the destroy; a panic inside
// it is not recovered and reaches the caller of the destroy.
type DestroyConnectionHook func(conn RawConnHandle)

// GetConnectionTimeoutHook runs when borrow fails with a timeout and
// LogTakenConnectionsOnTimeout is set, before the typed error is raised,
// e.g. to log a diagnostic dump.
type GetConnectionTimeoutHook func(ctx context.Context, timeout time.Duration)

// MethodInvocationHook runs before every intercepted proxy call.
type MethodInvocationHook func(ctx context.Context, methodName string) error

// StatementExecutionHook wraps a statement execution call. It must
// invoke proceed exactly once unless deliberately short-circuiting
// (e.g. to retry).
type StatementExecutionHook func(ctx context.Context, sql string, args []interface{}, proceed func() error) error

// ResultSetRetrievalHook runs when a proxied result set is closed,
// reporting the number of rows iterated and elapsed time.
type ResultSetRetrievalHook func(ctx context.Context, rowCount int, elapsed time.Duration)

// RawConnHandle is the minimal view of a raw connection exposed to
// lifecycle hooks; it avoids coupling the hook registry to any one
// driver package.
type RawConnHandle interface {
	Native() interface{}
}

// HookRegistry holds the ordered, typed collections of lifecycle and
// invocation hooks. Registration is only legal before the owning
// DataSource starts; after that, reads are lock-free via copy-on-write
// snapshots stored behind atomic.Pointer.
type HookRegistry struct {
	init              atomic.Pointer[[]InitConnectionHook]
	get               atomic.Pointer[[]GetConnectionHook]
	close             atomic.Pointer[[]CloseConnectionHook]
	destroy           atomic.Pointer[[]DestroyConnectionHook]
	getTimeout        atomic.Pointer[[]GetConnectionTimeoutHook]
	methodInvocation  atomic.Pointer[[]MethodInvocationHook]
	statementExec     atomic.Pointer[[]StatementExecutionHook]
	resultSetRetrieve atomic.Pointer[[]ResultSetRetrievalHook]
	started           atomic.Bool
}

// NewHookRegistry returns an empty registry ready for registration.
func NewHookRegistry() *HookRegistry {
	r := &HookRegistry{}
	r.init.Store(&[]InitConnectionHook{})
	r.get.Store(&[]GetConnectionHook{})
	r.close.Store(&[]CloseConnectionHook{})
	r.destroy.Store(&[]DestroyConnectionHook{})
	r.getTimeout.Store(&[]GetConnectionTimeoutHook{})
	r.methodInvocation.Store(&[]MethodInvocationHook{})
	r.statementExec.Store(&[]StatementExecutionHook{})
	r.resultSetRetrieve.Store(&[]ResultSetRetrievalHook{})
	return r
}

// MarkStarted freezes the registry against further registration. Called
// once by the owning DataSource's start().
func (r *HookRegistry) MarkStarted() { r.started.Store(true) }

// AddInitConnection registers an InitConnection hook. Panics if called
// after the registry has been started, matching the "registration only
// before start" contract.
func (r *HookRegistry) AddInitConnection(h InitConnectionHook) {
	r.assertNotStarted()
	cur := append(append([]InitConnectionHook{}, *r.init.Load()...), h)
	r.init.Store(&cur)
}

func (r *HookRegistry) AddGetConnection(h GetConnectionHook) {
	r.assertNotStarted()
	cur := append(append([]GetConnectionHook{}, *r.get.Load()...), h)
	r.get.Store(&cur)
}

func (r *HookRegistry) AddCloseConnection(h CloseConnectionHook) {
	r.assertNotStarted()
	cur := append(append([]CloseConnectionHook{}, *r.close.Load()...), h)
	r.close.Store(&cur)
}

func (r *HookRegistry) AddDestroyConnection(h DestroyConnectionHook) {
	r.assertNotStarted()
	cur := append(append([]DestroyConnectionHook{}, *r.destroy.Load()...), h)
	r.destroy.Store(&cur)
}

func (r *HookRegistry) AddGetConnectionTimeout(h GetConnectionTimeoutHook) {
	r.assertNotStarted()
	cur := append(append([]GetConnectionTimeoutHook{}, *r.getTimeout.Load()...), h)
	r.getTimeout.Store(&cur)
}

func (r *HookRegistry) AddMethodInvocation(h MethodInvocationHook) {
	r.assertNotStarted()
	cur := append(append([]MethodInvocationHook{}, *r.methodInvocation.Load()...), h)
	r.methodInvocation.Store(&cur)
}

func (r *HookRegistry) AddStatementExecution(h StatementExecutionHook) {
	r.assertNotStarted()
	cur := append(append([]StatementExecutionHook{}, *r.statementExec.Load()...), h)
	r.statementExec.Store(&cur)
}

func (r *HookRegistry) AddResultSetRetrieval(h ResultSetRetrievalHook) {
	r.assertNotStarted()
	cur := append(append([]ResultSetRetrievalHook{}, *r.resultSetRetrieve.Load()...), h)
	r.resultSetRetrieve.Store(&cur)
}

func (r *HookRegistry) assertNotStarted() {
	if r.started.Load() {
		panic("vibur: hook registration is only allowed before start()")
	}
}

// RunInitConnection fires InitConnection hooks in order, stopping at the
// first error.
func (r *HookRegistry) RunInitConnection(ctx context.Context, conn RawConnHandle) error {
	for _, h := range *r.init.Load() {
		if err := h(ctx, conn); err != nil {
			return err
		}
	}
	return nil
}

// RunGetConnection fires GetConnection hooks in order, stopping at the
// first error.
func (r *HookRegistry) RunGetConnection(ctx context.Context, conn RawConnHandle, elapsed time.Duration) error {
	for _, h := range *r.get.Load() {
		if err := h(ctx, conn, elapsed); err != nil {
			return err
		}
	}
	return nil
}

// RunCloseConnection fires CloseConnection hooks in order, stopping at
// the first error.
func (r *HookRegistry) RunCloseConnection(ctx context.Context, conn RawConnHandle, elapsed time.Duration) error {
	for _, h := range *r.close.Load() {
		if err := h(ctx, conn, elapsed); err != nil {
			return err
		}
	}
	return nil
}

// RunDestroyConnection fires every DestroyConnection hook unconditionally;
// callers are responsible for recovering/logging hook panics or errors
// since this hook kind has no error return.
func (r *HookRegistry) RunDestroyConnection(conn RawConnHandle) {
	for _, h := range *r.destroy.Load() {
		h(conn)
	}
}

// RunGetConnectionTimeout fires every GetConnectionTimeout hook.
func (r *HookRegistry) RunGetConnectionTimeout(ctx context.Context, timeout time.Duration) {
	for _, h := range *r.getTimeout.Load() {
		h(ctx, timeout)
	}
}

// RunMethodInvocation fires MethodInvocation hooks in order, stopping at
// the first error.
func (r *HookRegistry) RunMethodInvocation(ctx context.Context, methodName string) error {
	for _, h := range *r.methodInvocation.Load() {
		if err := h(ctx, methodName); err != nil {
			return err
		}
	}
	return nil
}

// RunStatementExecution threads proceed through every registered
// StatementExecution hook, outermost first, so each hook wraps the next
// and finally the real call.
func (r *HookRegistry) RunStatementExecution(ctx context.Context, sql string, args []interface{}, proceed func() error) error {
	hooks := *r.statementExec.Load()
	chain := proceed
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		next := chain
		chain = func() error { return h(ctx, sql, args, next) }
	}
	return chain()
}

// RunResultSetRetrieval fires every ResultSetRetrieval hook.
func (r *HookRegistry) RunResultSetRetrieval(ctx context.Context, rowCount int, elapsed time.Duration) {
	for _, h := range *r.resultSetRetrieve.Load() {
		h(ctx, rowCount, elapsed)
	}
}
