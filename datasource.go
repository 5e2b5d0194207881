package vibur

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/vibur/vibur-go/db"
	"github.com/vibur/vibur-go/logging"
	"github.com/vibur/vibur-go/stmtcache"
)

// State is the DataSource lifecycle state.
type State int32

const (
	StateNew State = iota
	StateWorking
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateWorking:
		return "WORKING"
	case StateTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// DataSource is the façade (C9): one-way NEW→WORKING→TERMINATED
// lifecycle, getConnection dispatch, and taken-connection reporting.
type DataSource struct {
	cfg       *Config
	connector db.Connector
	validate  Validator
	logger    logging.Logger

	hooks   *HookRegistry
	cache   *stmtcache.Cache
	factory *ConnectionFactory
	pool    *Pool
	reducer *PoolReducer
	ops     *PoolOperations

	state atomic.Int32

	takenMu sync.Mutex
	taken   map[uint64]*ConnHolder
}

// NewDataSource builds a DataSource in the NEW state. Hooks may be
// registered on the returned instance's Hooks() until Start is called.
func NewDataSource(cfg *Config, connector db.Connector, validate Validator, logger logging.Logger) *DataSource {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &DataSource{
		cfg:       cfg,
		connector: connector,
		validate:  validate,
		logger:    logger,
		hooks:     NewHookRegistry(),
		taken:     make(map[uint64]*ConnHolder),
	}
}

// Hooks exposes the registry for pre-start registration.
func (ds *DataSource) Hooks() *HookRegistry { return ds.hooks }

// State reports the current lifecycle state.
func (ds *DataSource) State() State { return State(ds.state.Load()) }

// Start is legal only from NEW. It applies the login timeout, builds
// the statement cache, factory, pool, and reducer in order, and moves
// to WORKING. On any failure it undoes partial construction and
// re-raises.
func (ds *DataSource) Start(ctx context.Context) error {
	if !ds.state.CompareAndSwap(int32(StateNew), int32(StateWorking)) {
		return fmt.Errorf("vibur: start() is only legal from NEW, current state is %s", ds.State())
	}

	ds.cache = stmtcache.New(ds.cfg.StatementCacheMaxSize)
	ds.factory = NewConnectionFactory(ds.cfg, ds.connector, ds.hooks, ds.logger, ds.validate)
	ds.pool = NewPool(ds.factory, ds.cfg.PoolMaxSize, ds.cfg.PoolFair, ds.cfg.PoolFifo, ds.cache.EvictConnection)
	ds.ops = NewPoolOperations(ds.pool, ds.factory, ds.hooks, ds.cfg, ds.logger)

	loginCtx := ctx
	var cancel context.CancelFunc
	if ds.cfg.LoginTimeout > 0 {
		loginCtx, cancel = context.WithTimeout(ctx, ds.cfg.LoginTimeout)
		defer cancel()
	}
	if err := ds.pool.Start(loginCtx, ds.cfg.PoolInitialSize); err != nil {
		ds.state.Store(int32(StateNew))
		return err
	}

	ds.hooks.MarkStarted()
	ds.reducer = NewPoolReducer(ds.pool, ds.cfg.ReducerTimeInterval, ds.cfg.ReducerSamples, ds.cfg.PoolInitialSize, ds.logger, ds.cfg.Metrics)
	ds.reducer.Start()

	return nil
}

// Terminate is idempotent; it transitions to TERMINATED and shuts down
// the reducer, then the pool. The statement cache has no shutdown step
// of its own: the pool's drain evicts and closes the cached statements
// of the idle connections it destroys, and entries pinned to
// connections still taken stay in the cache.
func (ds *DataSource) Terminate() {
	if !ds.state.CompareAndSwap(int32(StateWorking), int32(StateTerminated)) {
		ds.state.Store(int32(StateTerminated))
		return
	}
	if ds.reducer != nil {
		ds.reducer.Terminate()
	}
	if ds.pool != nil {
		ds.pool.Terminate()
	}
}

// GetConnection borrows a ConnHolder using the pool's default
// credentials. If the DataSource is TERMINATED and
// AllowConnectionAfterTermination is set, it serves a raw (non-pooled)
// connection instead; otherwise it raises VI000/VI001.
//
// The returned holder is not itself a proxy: closed-state enforcement,
// per-call error capture for the critical-SQLSTATE scan, and statement-
// cache lookups only happen once the caller wraps it with proxy.New
// (using Operations() and Hooks() below as the proxy's pool-side
// collaborators). Call proxy.New immediately after GetConnection rather
// than operating on the raw holder directly.
func (ds *DataSource) GetConnection(ctx context.Context) (*ConnHolder, error) {
	switch ds.State() {
	case StateNew:
		return nil, ErrNotStarted()
	case StateTerminated:
		if !ds.cfg.AllowConnectionAfterTermination {
			return nil, ErrPoolClosed()
		}
		return ds.rawConnection(ctx)
	}

	h, err := ds.ops.Borrow(ctx, ds.cfg.ConnectionTimeout)
	if err != nil {
		return nil, err
	}
	ds.trackTaken(h)
	return h, nil
}

// GetConnectionWithCredentials always serves a raw (non-pooled)
// connection built from a per-call Connector variant carrying the given
// credentials, regardless of DataSource state beyond NEW.
func (ds *DataSource) GetConnectionWithCredentials(ctx context.Context, user, password string) (*ConnHolder, error) {
	if ds.State() == StateNew {
		return nil, ErrNotStarted()
	}

	var connector db.Connector
	switch c := ds.connector.(type) {
	case *db.DriverConnector:
		connector = c.WithCredentials(user, password)
	case *db.PostgresConnector:
		connector = c.WithCredentials(user, password)
	case *db.ExternalConnector:
		connector = db.NewExternalConnectorWithCredentials(user, password, c.Open)
	default:
		connector = ds.connector
	}

	raw, err := connector.Connect(ctx)
	if err != nil {
		return nil, ErrConnectionInit(err)
	}
	return newConnHolder(raw, ds.factory.Version()), nil
}

func (ds *DataSource) rawConnection(ctx context.Context) (*ConnHolder, error) {
	raw, err := ds.connector.Connect(ctx)
	if err != nil {
		return nil, ErrConnectionInit(err)
	}
	return newConnHolder(raw, -1), nil
}

// SeverConnection forcibly invalidates holder, destroying it rather than
// returning it to the pool, and is idempotent on an already-destroyed
// holder.
func (ds *DataSource) SeverConnection(h *ConnHolder) {
	if h.destroyed.Load() {
		return
	}
	ds.untrackTaken(h)
	if ds.ops != nil {
		ds.ops.Restore(context.Background(), h, false, nil)
		return
	}
	ds.factory.Destroy(h, nil)
}

func (ds *DataSource) trackTaken(h *ConnHolder) {
	if !ds.cfg.PoolEnableConnectionTracking {
		return
	}
	ds.takenMu.Lock()
	ds.taken[h.ID()] = h
	ds.takenMu.Unlock()
}

func (ds *DataSource) untrackTaken(h *ConnHolder) {
	if !ds.cfg.PoolEnableConnectionTracking {
		return
	}
	ds.takenMu.Lock()
	delete(ds.taken, h.ID())
	ds.takenMu.Unlock()
}

// GetTakenConnections returns a snapshot of currently-taken holders.
// Available only when connection tracking is enabled.
func (ds *DataSource) GetTakenConnections() []TakenSnapshot {
	ds.takenMu.Lock()
	defer ds.takenMu.Unlock()

	out := make([]TakenSnapshot, 0, len(ds.taken))
	for _, h := range ds.taken {
		out = append(out, h.snapshot())
	}
	return out
}

// Pool exposes the underlying Pool for reporting (created/idle counts).
func (ds *DataSource) Pool() *Pool { return ds.pool }

// Operations exposes the PoolOperations facade so callers in packages
// that cannot be imported by vibur itself (notably proxy, which this
// package cannot import back without a cycle) can wrap a borrowed
// ConnHolder and later restore it correctly.
func (ds *DataSource) Operations() *PoolOperations { return ds.ops }

// StatementCache exposes the underlying statement cache.
func (ds *DataSource) StatementCache() *stmtcache.Cache { return ds.cache }
