package vibur

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/vibur/vibur-go/db"
	"github.com/vibur/vibur-go/logging"
)

// rawConnHandle adapts db.RawConn to the hook registry's RawConnHandle.
type rawConnHandle struct{ raw db.RawConn }

func (h rawConnHandle) Native() interface{} { return h.raw.Native() }

// Validator probes a raw connection's liveness when TestConnectionQuery
// is set to something other than ValidateConnectionQuery. Driver-
// specific query execution is deliberately left to the caller: a
// Validator closing over a *sql.Conn or *pgx.Conn can run whatever
// liveness query the target database expects.
type Validator func(ctx context.Context, raw db.RawConn) error

// ConnectionFactory is the versioned producer/validator/destroyer of
// ConnHolders (C4). Its version strictly increases via bumpVersion; a
// holder is reusable only while its own version matches the factory's
// current version.
type ConnectionFactory struct {
	cfg       *Config
	connector db.Connector
	hooks     *HookRegistry
	logger    logging.Logger
	validate  Validator

	version atomic.Int64
}

// NewConnectionFactory builds a factory bound to connector, starting at
// generation 0.
func NewConnectionFactory(cfg *Config, connector db.Connector, hooks *HookRegistry, logger logging.Logger, validate Validator) *ConnectionFactory {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &ConnectionFactory{cfg: cfg, connector: connector, hooks: hooks, logger: logger, validate: validate}
}

// Version returns the factory's current generation.
func (f *ConnectionFactory) Version() int64 { return f.version.Load() }

// BumpVersion CASes the factory's generation from expected to expected+1,
// returning true iff this call performed the bump. Concurrent restores
// observing the same critical failure will only have one of them
// succeed, guaranteeing a single drain per generation.
func (f *ConnectionFactory) BumpVersion(expected int64) bool {
	return f.version.CompareAndSwap(expected, expected+1)
}

// Create loops up to AcquireRetryAttempts+1 calls to the Connector,
// sleeping AcquireRetryDelay between attempts, chaining failures into
// one error. On success it runs InitConnection hooks; a hook failure
// closes the raw connection and surfaces the chained error. On total
// failure it raises VI003.
func (f *ConnectionFactory) Create(ctx context.Context) (*ConnHolder, error) {
	createStart := time.Now()
	holder, err := f.create(ctx)
	if f.cfg.Tracing != nil {
		f.cfg.Tracing.RecordCreate(ctx, time.Since(createStart), err)
	}
	return holder, err
}

func (f *ConnectionFactory) create(ctx context.Context) (*ConnHolder, error) {
	var lastErr error

	attempts := f.cfg.AcquireRetryAttempts + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 && f.cfg.AcquireRetryDelay > 0 {
			select {
			case <-time.After(f.cfg.AcquireRetryDelay):
			case <-ctx.Done():
				return nil, ErrConnectionInit(ctx.Err())
			}
		}

		loginCtx := ctx
		var cancel context.CancelFunc
		if f.cfg.LoginTimeout > 0 {
			loginCtx, cancel = context.WithTimeout(ctx, f.cfg.LoginTimeout)
		}
		raw, err := f.connector.Connect(loginCtx)
		if cancel != nil {
			cancel()
		}
		if err != nil {
			lastErr = chainError(lastErr, err)
			continue
		}

		holder := newConnHolder(raw, f.version.Load())
		start := time.Now()
		if err := f.hooks.RunInitConnection(ctx, rawConnHandle{raw}); err != nil {
			_ = raw.Close()
			f.hooks.RunDestroyConnection(rawConnHandle{raw})
			f.logger.Warn(ctx, "init connection hook failed", logging.ErrField(err))
			lastErr = chainError(lastErr, err)
			continue
		}
		f.logger.Debug(ctx, "connection created", logging.Duration("elapsed", time.Since(start)))
		if f.cfg.Metrics != nil {
			f.cfg.Metrics.IncCreated()
		}
		return holder, nil
	}

	return nil, ErrConnectionInit(lastErr)
}

// ReadyToTake decides whether a holder — whether just dequeued from idle
// or just created on demand — may be handed to a caller. It is the sole
// path that fires GetConnection hooks and stamps taken-tracking
// metadata, so the pool must route both of its take branches through
// it. It returns false (never an error) when the holder should instead
// be destroyed and another holder taken or created.
func (f *ConnectionFactory) ReadyToTake(ctx context.Context, h *ConnHolder) bool {
	if h.Version() != f.version.Load() {
		return false
	}

	if f.cfg.ConnectionIdleLimit >= 0 {
		idleFor := time.Duration(time.Now().UnixNano()-h.RestoredNanoTime()) * time.Nanosecond
		if idleFor >= f.cfg.ConnectionIdleLimit {
			if !f.validateHolder(ctx, h) {
				return false
			}
		}
	}

	h.markTaken(f.cfg.PoolEnableConnectionTracking)

	elapsed := time.Duration(0) // excludes physical creation/dequeue time by construction: this runs right before handoff
	if err := f.hooks.RunGetConnection(ctx, rawConnHandle{h.raw}, elapsed); err != nil {
		f.logger.Warn(ctx, "get connection hook failed", logging.ErrField(err))
		return false
	}
	return true
}

func (f *ConnectionFactory) validateHolder(ctx context.Context, h *ConnHolder) bool {
	vctx := ctx
	var cancel context.CancelFunc
	if f.cfg.ValidateTimeout > 0 {
		vctx, cancel = context.WithTimeout(ctx, f.cfg.ValidateTimeout)
		defer cancel()
	}

	var err error
	if f.cfg.TestConnectionQuery == "" {
		return true
	}
	if f.cfg.TestConnectionQuery == ValidateConnectionQuery || f.validate == nil {
		err = h.raw.PingContext(vctx)
	} else {
		err = f.validate(vctx, h.raw)
	}
	if err != nil {
		f.logger.LogPool(ctx, logging.PoolValidationFailed, logging.ErrField(err))
		if f.cfg.Metrics != nil {
			f.cfg.Metrics.IncValidationFailure()
		}
		return false
	}
	return true
}

// ReadyToRestore clears tracking fields, runs CloseConnection hooks, and
// updates restoredNanoTime. It returns false if any hook failed, in
// which case the caller must destroy the holder instead of returning it
// to the idle list.
func (f *ConnectionFactory) ReadyToRestore(ctx context.Context, h *ConnHolder) bool {
	start := time.Unix(0, h.takenNanoTime.Load())
	h.clearTracking()

	elapsed := time.Duration(0)
	if !start.IsZero() && h.takenNanoTime.Load() != 0 {
		elapsed = time.Since(start)
	}

	if err := f.hooks.RunCloseConnection(ctx, rawConnHandle{h.raw}, elapsed); err != nil {
		f.logger.Warn(ctx, "close connection hook failed", logging.ErrField(err))
		h.markRestored()
		return false
	}
	h.markRestored()
	return true
}

// Destroy evicts the holder's statement cache entries (via evictCache,
// supplied by the caller to avoid a direct dependency from this package
// on stmtcache), closes the raw connection quietly, and runs
// DestroyConnection hooks. Close errors are logged and swallowed.
func (f *ConnectionFactory) Destroy(h *ConnHolder, evictCache func(connID uint64)) {
	if !h.destroyed.CompareAndSwap(false, true) {
		return
	}
	if evictCache != nil {
		evictCache(h.id)
	}
	if err := h.raw.Close(); err != nil {
		f.logger.Warn(context.Background(), "error closing raw connection", logging.ErrField(err))
	}
	f.hooks.RunDestroyConnection(rawConnHandle{h.raw})
	if f.cfg.Metrics != nil {
		f.cfg.Metrics.AddDestroyed(1)
	}
	if f.cfg.Tracing != nil {
		f.cfg.Tracing.RecordDestroy(context.Background(), 1)
	}
}

func chainError(prev, next error) error {
	if prev == nil {
		return next
	}
	return &chainedFactoryError{msg: next.Error(), cause: prev}
}

type chainedFactoryError struct {
	msg   string
	cause error
}

func (e *chainedFactoryError) Error() string { return e.msg + "; " + e.cause.Error() }
func (e *chainedFactoryError) Unwrap() error { return e.cause }
func (e *chainedFactoryError) NextError() error { return e.cause }
