package vibur

import (
	"context"
	"time"

	"github.com/vibur/vibur-go/logging"
)

// PoolOperations is the facade (C7) consumed by the DataSource: borrow
// with timeout, restore with error post-processing, and critical-state
// generation rollover.
type PoolOperations struct {
	pool    *Pool
	factory *ConnectionFactory
	hooks   *HookRegistry
	cfg     *Config
	logger  logging.Logger
}

// NewPoolOperations builds the facade over pool/factory/hooks.
func NewPoolOperations(pool *Pool, factory *ConnectionFactory, hooks *HookRegistry, cfg *Config, logger logging.Logger) *PoolOperations {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &PoolOperations{pool: pool, factory: factory, hooks: hooks, cfg: cfg, logger: logger}
}

// Borrow obtains a holder within timeout (zero means wait indefinitely).
// On failure it raises VI001 if the pool is terminated, otherwise VI002,
// optionally firing GetConnectionTimeout hooks first.
func (po *PoolOperations) Borrow(ctx context.Context, timeout time.Duration) (*ConnHolder, error) {
	start := time.Now()
	var h *ConnHolder
	var err error

	if timeout <= 0 {
		h, err = po.pool.Take(ctx)
	} else {
		tctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		h, err = po.pool.TryTake(tctx)
	}

	if err != nil {
		return nil, err
	}
	if h != nil {
		if po.cfg.Metrics != nil {
			po.cfg.Metrics.ObserveBorrow(time.Since(start), false)
			po.cfg.Metrics.SetCreated(po.pool.Created())
		}
		if po.cfg.Tracing != nil {
			po.cfg.Tracing.RecordBorrow(ctx, time.Since(start), false)
		}
		return h, nil
	}

	if po.cfg.Metrics != nil {
		po.cfg.Metrics.ObserveBorrow(time.Since(start), true)
	}
	if po.cfg.Tracing != nil {
		po.cfg.Tracing.RecordBorrow(ctx, time.Since(start), true)
	}

	if po.pool.IsTerminated() {
		return nil, ErrPoolClosed()
	}

	if po.cfg.LogTakenConnectionsOnTimeout {
		po.hooks.RunGetConnectionTimeout(ctx, timeout)
	}
	po.logger.LogPool(ctx, logging.PoolBorrowTimeout, logging.Duration("timeout", timeout))
	return nil, ErrBorrowTimeout(int(timeout.Milliseconds()))
}

// Restore returns a holder to the pool. A holder is reusable iff valid,
// errs is empty, and the holder's stamped version still matches the
// factory's current version. errs is then scanned (including NextError
// chains) for a configured critical SQLSTATE; if found, the factory's
// version is bumped from the holder's version and, if this call won the
// bump, the pool is drained and the event logged at error level. Version
// bumps are idempotent under concurrent restores: only the CAS winner
// drains.
func (po *PoolOperations) Restore(ctx context.Context, h *ConnHolder, valid bool, errs []error) {
	reusable := valid && len(errs) == 0 && h.Version() == po.factory.Version()
	po.pool.Restore(h, reusable)

	if len(errs) == 0 {
		return
	}

	critical := false
	for _, state := range po.cfg.CriticalSQLStates {
		for _, err := range errs {
			if HasSQLState(err, state) {
				critical = true
				break
			}
		}
		if critical {
			break
		}
	}
	if !critical {
		return
	}

	if po.factory.BumpVersion(h.Version()) {
		destroyed := po.pool.DrainCreated()
		po.logger.LogPool(ctx, logging.PoolCriticalDrain,
			logging.Int64("fromVersion", h.Version()),
			logging.Int("destroyed", destroyed))
		if po.cfg.Metrics != nil {
			po.cfg.Metrics.IncCriticalDrain()
		}
		if po.cfg.Tracing != nil {
			po.cfg.Tracing.RecordCriticalDrain(ctx)
		}
	}
}
